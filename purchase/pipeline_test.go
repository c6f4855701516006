package purchase

import (
	"context"
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamed3773/MyCProject-sub000/clients"
	"github.com/mohamed3773/MyCProject-sub000/clients/clienttest"
	"github.com/mohamed3773/MyCProject-sub000/oracle"
	"github.com/mohamed3773/MyCProject-sub000/registry"
	"github.com/mohamed3773/MyCProject-sub000/settlement"
	"github.com/mohamed3773/MyCProject-sub000/store/memory"
	"github.com/mohamed3773/MyCProject-sub000/types"
	"github.com/mohamed3773/MyCProject-sub000/utils"
	"github.com/mohamed3773/MyCProject-sub000/verification"
)

type ledgers struct {
	orch      *Orchestrator
	cronos    *clienttest.Backend
	sepolia   *clienttest.Backend
	sold      *memory.PurchaseStore
	custodian *ecdsa.PrivateKey
	buyer     *ecdsa.PrivateKey
	wallet    common.Address
}

// newLedgers wires the real verifier and settlement service over in-memory
// cronos (payment) and sepolia (settlement) ledgers.
func newLedgers(t *testing.T, settleOpts []settlement.Option, opts ...Option) *ledgers {
	t.Helper()

	l := &ledgers{
		cronos:    clienttest.New(25),
		sepolia:   clienttest.New(11155111),
		sold:      memory.NewPurchaseStore(),
		custodian: clienttest.NewKey(),
		buyer:     clienttest.NewKey(),
		wallet:    common.HexToAddress(cronosWallet),
	}
	collection := common.HexToAddress("0x5555555555555555555555555555555555555555")
	l.sepolia.Collection = collection

	overrides := &registry.Overrides{Networks: []registry.NetworkOverride{
		{ID: types.NetworkCronos, ReceivingWallet: l.wallet.Hex()},
	}}
	reg, err := registry.New(overrides.Apply(registry.Default()))
	require.NoError(t, err)

	mgr := clients.NewManager(1000, 100, nil)
	mgr.Add(types.NetworkCronos, l.cronos)
	mgr.Add(types.NetworkSepolia, l.sepolia)

	settleDesc, err := reg.GetNetwork(types.NetworkSepolia)
	require.NoError(t, err)
	settleBackend, err := mgr.Get(types.NetworkSepolia)
	require.NoError(t, err)
	settleOpts = append([]settlement.Option{settlement.WithPollInterval(time.Millisecond, 5*time.Millisecond)}, settleOpts...)
	settler, err := settlement.NewSettlementService(settleDesc, collection.Hex(), settleBackend,
		clients.NewKeySignerFromKey(l.custodian), settleOpts...)
	require.NoError(t, err)

	pricer := oracle.New(oracle.StaticFeed{
		"ETH": decimal.RequireFromString("2300"),
		"CRO": decimal.RequireFromString("0.13"),
	}, time.Minute, time.Second)

	l.orch = New(reg, pricer, verification.NewVerificationService(reg, mgr, time.Second), settler, l.sold, opts...)
	t.Cleanup(l.orch.Close)
	return l
}

func (l *ledgers) hold(tokenIDs ...uint64) {
	for _, id := range tokenIDs {
		l.sepolia.SetOwner(id, clienttest.Address(l.custodian))
	}
}

// pay sends amount CRO from the buyer to the receiving wallet.
func (l *ledgers) pay(amount string) *ethtypes.Transaction {
	value := decimal.RequireFromString(amount).Shift(18).BigInt()
	return l.cronos.Pay(l.buyer, l.wallet, value, nil, ethtypes.ReceiptStatusSuccessful)
}

func (l *ledgers) request(tokenID uint64, payment *ethtypes.Transaction) Request {
	return Request{
		TokenID:   tokenID,
		Rarity:    types.RarityCommon,
		Buyer:     clienttest.Address(l.buyer).Hex(),
		Network:   types.NetworkCronos,
		Currency:  "CRO",
		PaymentTx: payment.Hash().Hex(),
	}
}

// TestPipelineOverLedgers runs a purchase through the real verifier and
// settlement service against in-memory ledgers.
func TestPipelineOverLedgers(t *testing.T) {
	ctx := context.Background()
	l := newLedgers(t, nil)
	l.hold(500, 501)
	buyerAddr := clienttest.Address(l.buyer)

	payment := l.pay("141.53846154")
	out := l.orch.Execute(ctx, l.request(500, payment))

	require.Nil(t, out.Err)
	require.Equal(t, StateCompleted, out.State)
	assert.Equal(t, buyerAddr, l.sepolia.Owner(500))
	assert.True(t, out.Verification.IsValid)
	assert.Equal(t, uint64(101), out.Transfer.BlockNumber)
	assert.Equal(t, utils.NormalizeAddress(out.Transfer.TxHash), out.Record.SettlementTx)

	// The same payment cannot buy a second token.
	again := l.orch.Execute(ctx, l.request(501, payment))
	assert.Equal(t, StatePaymentRejected, again.State)
	assert.Equal(t, clienttest.Address(l.custodian), l.sepolia.Owner(501))

	// An underpayment is rejected before the settlement ledger is touched.
	sent := len(l.sepolia.Sent())
	under := l.orch.Execute(ctx, l.request(501, l.pay("130")))
	assert.Equal(t, StatePaymentRejected, under.State)
	assert.Equal(t, types.ReasonAmountOutOfTolerance, under.Err.Message)
	assert.Len(t, l.sepolia.Sent(), sent)
}

func TestLateTransferIsRecorded(t *testing.T) {
	ctx := context.Background()
	l := newLedgers(t, []settlement.Option{settlement.WithTimeouts(time.Second, 30*time.Millisecond)})
	l.hold(600)
	l.sepolia.WithholdReceipts = true

	payment := l.pay("141.53846154")
	first := l.orch.Execute(ctx, l.request(600, payment))

	assert.Equal(t, StateTransferFailed, first.State)
	require.NotNil(t, first.Err)
	assert.Equal(t, types.ErrCodeConfirmationTimeout, first.Err.Code)
	assert.True(t, first.SettlementPending)
	require.NotEmpty(t, first.Transfer.TxHash)
	data, ok := first.Err.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, first.Transfer.TxHash, data["settlementTx"])
	assert.Equal(t, true, data["settlementPending"])

	// the transfer lands after the attempt gave up
	require.Equal(t, 1, l.sepolia.MinePending())

	retry := l.orch.Execute(ctx, l.request(600, payment))
	assert.Equal(t, StateAlreadySold, retry.State)
	assert.False(t, retry.RequiresRefund)
	assert.Len(t, l.sepolia.Sent(), 1)

	rec, err := l.sold.GetByToken(ctx, 600)
	require.NoError(t, err)
	assert.Equal(t, utils.NormalizeAddress(first.Transfer.TxHash), rec.SettlementTx)
	assert.Equal(t, utils.NormalizeAddress(payment.Hash().Hex()), rec.PaymentTx)

	bought, err := l.sold.GetByBuyer(ctx, clienttest.Address(l.buyer).Hex())
	require.NoError(t, err)
	assert.Len(t, bought, 1)
}

func TestRetryRecoversUnrecordedDelivery(t *testing.T) {
	ctx := context.Background()
	l := newLedgers(t, []settlement.Option{settlement.WithTimeouts(time.Second, 30*time.Millisecond)})
	l.hold(700)
	l.sepolia.WithholdReceipts = true

	payment := l.pay("141.53846154")
	first := l.orch.Execute(ctx, l.request(700, payment))
	require.Equal(t, StateTransferFailed, first.State)

	// Stop watching before the transfer lands, as after a restart.
	l.orch.Close()
	require.Equal(t, 1, l.sepolia.MinePending())
	assert.Equal(t, clienttest.Address(l.buyer), l.sepolia.Owner(700))

	retry := l.orch.Execute(ctx, l.request(700, payment))
	assert.Equal(t, StateAlreadySold, retry.State)
	require.NotNil(t, retry.Err)
	assert.Equal(t, types.ErrCodeAlreadySold, retry.Err.Code)
	assert.False(t, retry.RequiresRefund)
	assert.Len(t, l.sepolia.Sent(), 1)

	sold, err := l.sold.IsSold(ctx, 700)
	require.NoError(t, err)
	assert.True(t, sold)
}

func TestLateTransferWatchHoldsTheToken(t *testing.T) {
	ctx := context.Background()
	l := newLedgers(t, []settlement.Option{settlement.WithTimeouts(time.Second, 30*time.Millisecond)})
	l.hold(800)
	l.sepolia.WithholdReceipts = true

	payment := l.pay("141.53846154")
	first := l.orch.Execute(ctx, l.request(800, payment))
	require.True(t, first.SettlementPending)

	// While the transfer is unconfirmed a retry waits instead of sending again.
	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	retry := l.orch.Execute(short, l.request(800, payment))
	assert.Equal(t, StateQuoteRejected, retry.State)
	assert.Len(t, l.sepolia.Sent(), 1)
}
