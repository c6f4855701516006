package purchase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mohamed3773/MyCProject-sub000/logger"
	"github.com/mohamed3773/MyCProject-sub000/oracle"
	"github.com/mohamed3773/MyCProject-sub000/registry"
	"github.com/mohamed3773/MyCProject-sub000/store"
	"github.com/mohamed3773/MyCProject-sub000/store/memory"
	"github.com/mohamed3773/MyCProject-sub000/types"
)

const (
	cronosWallet = "0x9999999999999999999999999999999999999999"
	buyerAddr    = "0x6666666666666666666666666666666666666666"
)

var fixedNow = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	orch        *Orchestrator
	verifier    *mockVerifier
	transferrer *mockTransferrer
	store       store.SoldStateStore
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithStore(t, memory.NewPurchaseStore())
}

func newFixtureWithStore(t *testing.T, sold store.SoldStateStore) *fixture {
	t.Helper()

	overrides := &registry.Overrides{Networks: []registry.NetworkOverride{
		{ID: types.NetworkCronos, ReceivingWallet: cronosWallet},
	}}
	reg, err := registry.New(overrides.Apply(registry.Default()))
	require.NoError(t, err)

	feed := oracle.StaticFeed{
		"ETH": decimal.RequireFromString("2300"),
		"CRO": decimal.RequireFromString("0.13"),
	}
	pricer := oracle.New(feed, time.Minute, time.Second, oracle.WithClock(func() time.Time { return fixedNow }))

	f := &fixture{
		verifier:    &mockVerifier{},
		transferrer: &mockTransferrer{},
		store:       sold,
	}
	f.orch = New(reg, pricer, f.verifier, f.transferrer, sold,
		WithClock(func() time.Time { return fixedNow }),
		WithRecordTimeout(time.Second),
	)
	return f
}

func txHash(i int) string {
	return fmt.Sprintf("0x%064x", i)
}

func request(tokenID uint64, tx string) Request {
	return Request{
		TokenID:   tokenID,
		Rarity:    "common",
		Buyer:     buyerAddr,
		Network:   types.NetworkCronos,
		Currency:  "CRO",
		PaymentTx: tx,
	}
}

func validPayment(tx string) *types.PaymentVerificationResult {
	return &types.PaymentVerificationResult{
		IsValid: true,
		Network: types.NetworkCronos,
		TxHash:  tx,
		Checks:  types.VerificationChecks{Exists: true, Confirmed: true, SenderMatch: true, RecipientMatch: true, AmountWithinTolerance: true},
	}
}

func transferred(tokenID uint64) *types.TransferResult {
	return &types.TransferResult{
		Success:     true,
		Network:     types.NetworkSepolia,
		TxHash:      "0xsettle",
		BlockNumber: 101,
		To:          buyerAddr,
		TokenID:     tokenID,
	}
}

func TestExecuteCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := txHash(1)

	f.verifier.On("Verify", mock.Anything, types.NetworkCronos, tx, mock.MatchedBy(func(e types.ExpectedPayment) bool {
		return e.Buyer == buyerAddr &&
			e.ReceivingWallet == cronosWallet &&
			e.Amount.Currency == "CRO" &&
			e.Amount.Value.String() == "141.53846154"
	})).Return(validPayment(tx), nil).Once()
	f.transferrer.On("Transfer", mock.Anything, uint64(42), buyerAddr).Return(transferred(42), nil).Once()

	out := f.orch.Execute(ctx, request(42, tx))

	require.Nil(t, out.Err)
	assert.Equal(t, StateCompleted, out.State)
	assert.True(t, out.Succeeded())
	assert.Equal(t, []State{StateQuoted, StatePaymentSubmitted, StatePaymentVerified, StateTransferExecuting, StateCompleted}, out.History)
	assert.NotEmpty(t, out.AttemptID)
	assert.False(t, out.RequiresRefund)

	require.NotNil(t, out.Record)
	assert.Equal(t, "141.53846154", out.Record.Price.Value.String())
	assert.Equal(t, "18.4", out.Record.PriceUSD.String())
	assert.Equal(t, types.RarityCommon, out.Record.Rarity)
	assert.Equal(t, types.NetworkSepolia, out.Record.SettlementNetwork)
	assert.Equal(t, fixedNow, out.Record.PurchasedAt)

	sold, err := f.store.IsSold(ctx, 42)
	require.NoError(t, err)
	assert.True(t, sold)

	f.verifier.AssertExpectations(t)
	f.transferrer.AssertExpectations(t)
}

func TestExecuteAlreadySoldSkipsLedgers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.RecordPurchase(ctx, &types.PurchaseRecord{
		TokenID:        7,
		Buyer:          buyerAddr,
		PaymentNetwork: types.NetworkCronos,
		PaymentTx:      txHash(100),
		Rarity:         types.RarityCommon,
		PurchasedAt:    fixedNow,
	}))

	out := f.orch.Execute(ctx, request(7, txHash(2)))

	assert.Equal(t, StateAlreadySold, out.State)
	require.NotNil(t, out.Err)
	assert.Equal(t, types.ErrCodeAlreadySold, out.Err.Code)
	assert.False(t, out.RequiresRefund)
	assert.Nil(t, out.Quote)

	f.verifier.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.transferrer.AssertNumberOfCalls(t, "Transfer", 0)
	f.transferrer.AssertNumberOfCalls(t, "OwnerOf", 0)
}

func TestExecutePaymentRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := txHash(3)

	rejected := &types.PaymentVerificationResult{
		Network:       types.NetworkCronos,
		TxHash:        tx,
		InvalidReason: types.ReasonRecipientMismatch,
		Checks:        types.VerificationChecks{Exists: true, Confirmed: true, SenderMatch: true},
	}
	f.verifier.On("Verify", mock.Anything, types.NetworkCronos, tx, mock.Anything).Return(rejected, nil).Once()

	out := f.orch.Execute(ctx, request(8, tx))

	assert.Equal(t, StatePaymentRejected, out.State)
	require.NotNil(t, out.Err)
	assert.Equal(t, types.ErrCodePaymentRejected, out.Err.Code)
	assert.Equal(t, types.StepPayment, out.Err.Step)
	assert.Equal(t, types.ReasonRecipientMismatch, out.Err.Message)
	assert.Same(t, rejected, out.Verification)
	assert.False(t, out.RequiresRefund)

	sold, err := f.store.IsSold(ctx, 8)
	require.NoError(t, err)
	assert.False(t, sold)
	f.transferrer.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything, mock.Anything)
}

func TestExecuteTransferFailedCarriesPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := txHash(4)

	f.verifier.On("Verify", mock.Anything, types.NetworkCronos, tx, mock.Anything).Return(validPayment(tx), nil).Once()
	failed := &types.TransferResult{Network: types.NetworkSepolia, TokenID: 9, ErrorCode: types.ErrCodeInsufficientFunds}
	f.transferrer.On("Transfer", mock.Anything, uint64(9), buyerAddr).
		Return(failed, types.NewError(types.ErrCodeInsufficientFunds, types.StepTransfer, "custodial account cannot pay the network fee")).Once()

	out := f.orch.Execute(ctx, request(9, tx))

	assert.Equal(t, StateTransferFailed, out.State)
	assert.True(t, out.RequiresRefund)
	require.NotNil(t, out.Err)
	assert.Equal(t, types.ErrCodeInsufficientFunds, out.Err.Code)
	assert.Equal(t, types.StepTransfer, out.Err.Step)

	data, ok := out.Err.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, tx, data["paymentTx"])
	assert.Equal(t, "cronos", data["paymentNetwork"])

	sold, err := f.store.IsSold(ctx, 9)
	require.NoError(t, err)
	assert.False(t, sold)
}

func TestExecuteQuoteRejected(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Request)
		code string
	}{
		{"unsupported currency", func(r *Request) { r.Currency = "USDC" }, types.ErrCodeUnsupportedCurrency},
		{"unknown network", func(r *Request) { r.Network = "solana" }, types.ErrCodeUnsupportedNetwork},
		{"no receiving wallet", func(r *Request) { r.Network = types.NetworkBase; r.Currency = "ETH" }, types.ErrCodeUnsupportedNetwork},
		{"unknown rarity", func(r *Request) { r.Rarity = "Mythic" }, types.ErrCodeValidation},
		{"bad buyer", func(r *Request) { r.Buyer = "0x123" }, types.ErrCodeValidation},
		{"bad payment reference", func(r *Request) { r.PaymentTx = "0xabc" }, types.ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := request(10, txHash(5))
			tt.edit(&req)

			out := f.orch.Execute(context.Background(), req)

			assert.Equal(t, StateQuoteRejected, out.State)
			require.NotNil(t, out.Err)
			assert.Equal(t, tt.code, out.Err.Code)
			f.verifier.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			f.transferrer.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestExecutePaymentReuse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := "0x" + strings.Repeat("ab", 32)

	f.verifier.On("Verify", mock.Anything, types.NetworkCronos, tx, mock.Anything).Return(validPayment(tx), nil).Once()
	f.transferrer.On("Transfer", mock.Anything, uint64(11), buyerAddr).Return(transferred(11), nil).Once()
	require.Equal(t, StateCompleted, f.orch.Execute(ctx, request(11, tx)).State)

	out := f.orch.Execute(ctx, request(12, "0x"+strings.Repeat("AB", 32)))

	assert.Equal(t, StatePaymentRejected, out.State)
	require.NotNil(t, out.Err)
	assert.Contains(t, out.Err.Message, types.ReasonPaymentAlreadyUsed)
	f.verifier.AssertNumberOfCalls(t, "Verify", 1)
	f.transferrer.AssertNumberOfCalls(t, "Transfer", 1)
}

func TestConcurrentAttemptsSameToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const attempts = 16

	f.verifier.On("Verify", mock.Anything, types.NetworkCronos, mock.Anything, mock.Anything).
		Return(func(_ context.Context, _ types.Network, tx string, _ types.ExpectedPayment) *types.PaymentVerificationResult {
			return validPayment(tx)
		}, nil)
	f.transferrer.On("Transfer", mock.Anything, uint64(77), buyerAddr).Return(transferred(77), nil)

	outcomes := make([]*Outcome, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = f.orch.Execute(ctx, request(77, txHash(1000+i)))
		}(i)
	}
	wg.Wait()

	counts := map[State]int{}
	for _, out := range outcomes {
		counts[out.State]++
	}
	assert.Equal(t, 1, counts[StateCompleted])
	assert.Equal(t, attempts-1, counts[StateAlreadySold])
	f.transferrer.AssertNumberOfCalls(t, "Transfer", 1)
	assert.Zero(t, f.orch.locks.size())
}

func TestOwnershipLostToCompletedSale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := txHash(7)

	f.verifier.On("Verify", mock.Anything, types.NetworkCronos, tx, mock.Anything).Return(validPayment(tx), nil).Once()
	f.transferrer.On("Transfer", mock.Anything, uint64(13), buyerAddr).
		Run(func(mock.Arguments) {
			// Another process finishes the sale in between.
			_ = f.store.RecordPurchase(ctx, &types.PurchaseRecord{
				TokenID:        13,
				Buyer:          "0x1111111111111111111111111111111111111111",
				PaymentNetwork: types.NetworkPolygon,
				PaymentTx:      txHash(999),
				PurchasedAt:    fixedNow,
			})
		}).
		Return(&types.TransferResult{TokenID: 13}, types.NewError(types.ErrCodeOwnershipMismatch, types.StepOwnership, "token 13 is no longer held by the custodian")).
		Once()

	out := f.orch.Execute(ctx, request(13, tx))

	assert.Equal(t, StateAlreadySold, out.State)
	assert.True(t, out.RequiresRefund)
	require.NotNil(t, out.Err)
	assert.Equal(t, types.ErrCodeAlreadySold, out.Err.Code)
	assert.Equal(t, types.StepOwnership, out.Err.Step)
}

func TestOwnershipMismatchWithoutRecord(t *testing.T) {
	f := newFixture(t)
	tx := txHash(8)

	f.verifier.On("Verify", mock.Anything, types.NetworkCronos, tx, mock.Anything).Return(validPayment(tx), nil).Once()
	f.transferrer.On("Transfer", mock.Anything, uint64(14), buyerAddr).
		Return(&types.TransferResult{TokenID: 14}, types.NewError(types.ErrCodeOwnershipMismatch, types.StepOwnership, "gone")).Once()
	f.transferrer.On("OwnerOf", mock.Anything, uint64(14)).Return("0x1111111111111111111111111111111111111111", nil).Once()

	out := f.orch.Execute(context.Background(), request(14, tx))

	assert.Equal(t, StateTransferFailed, out.State)
	assert.True(t, out.RequiresRefund)
	assert.Equal(t, types.ErrCodeOwnershipMismatch, out.Err.Code)
	assert.Equal(t, types.StepOwnership, out.Err.Step)
}

func TestTokenDeliveredByEarlierAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := txHash(11)

	f.verifier.On("Verify", mock.Anything, types.NetworkCronos, tx, mock.Anything).Return(validPayment(tx), nil).Once()
	f.transferrer.On("Transfer", mock.Anything, uint64(17), buyerAddr).
		Return(&types.TransferResult{Network: types.NetworkSepolia, TokenID: 17}, types.NewError(types.ErrCodeOwnershipMismatch, types.StepOwnership, "token 17 is no longer held by the custodian")).Once()
	f.transferrer.On("OwnerOf", mock.Anything, uint64(17)).Return(strings.ToUpper(buyerAddr), nil).Once()

	out := f.orch.Execute(ctx, request(17, tx))

	assert.Equal(t, StateAlreadySold, out.State)
	assert.False(t, out.RequiresRefund)
	require.NotNil(t, out.Err)
	assert.Equal(t, types.ErrCodeAlreadySold, out.Err.Code)
	assert.Equal(t, types.StepOwnership, out.Err.Step)

	rec, err := f.store.GetByToken(ctx, 17)
	require.NoError(t, err)
	assert.Equal(t, tx, rec.PaymentTx)
	assert.Equal(t, types.NetworkSepolia, rec.SettlementNetwork)
	assert.Empty(t, rec.SettlementTx)
	require.NotNil(t, out.Record)
	assert.Equal(t, rec.PaymentTx, out.Record.PaymentTx)
	f.transferrer.AssertExpectations(t)
}

func TestExecuteRejectsTokenIDOutOfRange(t *testing.T) {
	f := newFixture(t)

	out := f.orch.Execute(context.Background(), request(1<<63, txHash(12)))

	assert.Equal(t, StateQuoteRejected, out.State)
	require.NotNil(t, out.Err)
	assert.Equal(t, types.ErrCodeValidation, out.Err.Code)
	f.verifier.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.transferrer.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything, mock.Anything)

	_, err := f.orch.Quote(context.Background(), 1<<63, types.RarityCommon, types.NetworkCronos, "CRO")
	var merr *types.MarketError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, types.ErrCodeValidation, merr.Code)
}

// flakySoldStore answers the first IsSold and fails the rest.
type flakySoldStore struct {
	store.SoldStateStore
	reads int
}

func (s *flakySoldStore) IsSold(ctx context.Context, tokenID uint64) (bool, error) {
	s.reads++
	if s.reads > 1 {
		return false, errors.New("connection reset by peer")
	}
	return s.SoldStateStore.IsSold(ctx, tokenID)
}

func TestSoldStateUnreadableAfterVerification(t *testing.T) {
	sold := &flakySoldStore{SoldStateStore: memory.NewPurchaseStore()}
	f := newFixtureWithStore(t, sold)
	core, logs := observer.New(zap.WarnLevel)
	f.orch.logger = logger.FromZap(zap.New(core))
	tx := txHash(13)

	f.verifier.On("Verify", mock.Anything, types.NetworkCronos, tx, mock.Anything).Return(validPayment(tx), nil).Once()
	f.transferrer.On("Transfer", mock.Anything, uint64(18), buyerAddr).Return(transferred(18), nil).Once()

	out := f.orch.Execute(context.Background(), request(18, tx))

	assert.Equal(t, StateCompleted, out.State)
	warned := logs.FilterMessage("sold state unreadable after verification, transferring anyway").All()
	require.Len(t, warned, 1)
	assert.Equal(t, "connection reset by peer", warned[0].ContextMap()["error"])
}

func TestClaimedAmountAudit(t *testing.T) {
	f := newFixture(t)
	tx := txHash(9)

	f.verifier.On("Verify", mock.Anything, types.NetworkCronos, tx, mock.MatchedBy(func(e types.ExpectedPayment) bool {
		return e.Amount.Value.String() == "141.53846154"
	})).Return(validPayment(tx), nil).Once()
	f.transferrer.On("Transfer", mock.Anything, uint64(15), buyerAddr).Return(transferred(15), nil).Once()

	req := request(15, tx)
	claimed := decimal.RequireFromString("1")
	req.ClaimedAmount = &claimed

	out := f.orch.Execute(context.Background(), req)

	assert.Equal(t, StateCompleted, out.State)
	assert.True(t, out.ClaimMismatch)
	assert.Equal(t, "1", out.ClaimedAmount.String())
}

type failingRecordStore struct {
	store.SoldStateStore
	writes int
}

func (s *failingRecordStore) RecordPurchase(context.Context, *types.PurchaseRecord) error {
	s.writes++
	return errors.Join(store.ErrDuplicateKey, errors.New("constraint"))
}

func TestRecordFailureAfterTransfer(t *testing.T) {
	sold := &failingRecordStore{SoldStateStore: memory.NewPurchaseStore()}
	f := newFixtureWithStore(t, sold)
	tx := txHash(10)

	f.verifier.On("Verify", mock.Anything, types.NetworkCronos, tx, mock.Anything).Return(validPayment(tx), nil).Once()
	f.transferrer.On("Transfer", mock.Anything, uint64(16), buyerAddr).Return(transferred(16), nil).Once()

	out := f.orch.Execute(context.Background(), request(16, tx))

	assert.Equal(t, StateCompleted, out.State)
	require.NotNil(t, out.Err)
	assert.Equal(t, types.ErrCodeStore, out.Err.Code)
	assert.Equal(t, types.StepRecord, out.Err.Step)
	assert.Equal(t, 1, sold.writes)
}

func TestQuote(t *testing.T) {
	f := newFixture(t)

	q, err := f.orch.Quote(context.Background(), 1, types.RarityCommon, types.NetworkCronos, "cro")
	require.NoError(t, err)
	assert.Equal(t, "141.53846154", q.Amount.Value.String())
	assert.Equal(t, cronosWallet, q.ReceivingWallet)

	_, err = f.orch.Quote(context.Background(), 1, types.RarityCommon, types.NetworkCronos, "USDT")
	var merr *types.MarketError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, types.ErrCodeUnsupportedCurrency, merr.Code)
}

func TestTransitions(t *testing.T) {
	assert.True(t, CanTransition(StatePaymentSubmitted, StatePaymentVerified))
	assert.True(t, CanTransition(StatePaymentVerified, StateAlreadySold))
	assert.False(t, CanTransition(StateQuoted, StateTransferExecuting))
	assert.False(t, CanTransition(StateCompleted, StateTransferFailed))

	for _, s := range []State{StateCompleted, StateQuoteRejected, StatePaymentRejected, StateAlreadySold, StateTransferFailed} {
		assert.True(t, s.Terminal(), s)
	}
	assert.False(t, StateTransferExecuting.Terminal())

	out := &Outcome{}
	out.advance(StateQuoted)
	assert.Panics(t, func() { out.advance(StateCompleted) })
}

func TestKeyedMutexHonoursContext(t *testing.T) {
	k := newKeyedMutex()
	unlock, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := k.Lock(context.Background(), "b")
	require.NoError(t, err)
	other()

	unlock()
	assert.Zero(t, k.size())
}
