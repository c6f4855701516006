// Package purchase drives one purchase attempt from quote to recorded sale.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mohamed3773/MyCProject-sub000/logger"
	"github.com/mohamed3773/MyCProject-sub000/metrics"
	"github.com/mohamed3773/MyCProject-sub000/settlement"
	"github.com/mohamed3773/MyCProject-sub000/store"
	"github.com/mohamed3773/MyCProject-sub000/types"
	"github.com/mohamed3773/MyCProject-sub000/utils"
	"github.com/mohamed3773/MyCProject-sub000/verification"
)

// Catalog resolves networks and currencies.
type Catalog interface {
	GetNetwork(id types.Network) (types.NetworkDescriptor, error)
	GetCurrency(id types.Network, symbol string) (types.CurrencyDescriptor, error)
	Validate(id types.Network, symbol string) error
}

// Pricer quotes a collectible in a currency.
type Pricer interface {
	Quote(ctx context.Context, tokenID uint64, rarity types.Rarity, network types.NetworkDescriptor, currency types.CurrencyDescriptor) (*types.Quote, error)
}

// Orchestrator runs purchase attempts. Attempts for different tokens run in
// parallel; attempts for one token are serialized in-process, and the store's
// unique key settles races between processes.
type Orchestrator struct {
	catalog     Catalog
	pricer      Pricer
	verifier    verification.Verifier
	transferrer settlement.Transferrer
	confirmer   settlement.Confirmer
	store       store.SoldStateStore

	tolerance     decimal.Decimal
	recordTimeout time.Duration
	lateWindow    time.Duration
	locks         *keyedMutex
	newID         func() string
	nowFn         func() time.Time

	// late tracks transfers still being watched after their attempt ended.
	late     sync.WaitGroup
	lateCtx  context.Context
	stopLate context.CancelFunc

	logger  logger.Logger
	metrics metrics.Recorder
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger.OrNoop(l) }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = metrics.OrNoop(m) }
}

// WithTolerance sets the band used to audit the client's claimed amount.
func WithTolerance(t decimal.Decimal) Option {
	return func(o *Orchestrator) { o.tolerance = t }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.nowFn = now }
}

// WithRecordTimeout bounds the retries of the final store write.
func WithRecordTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.recordTimeout = d }
}

// WithLateConfirmation bounds how long a transfer that missed its
// confirmation budget keeps being watched before it is left to an operator.
func WithLateConfirmation(d time.Duration) Option {
	return func(o *Orchestrator) { o.lateWindow = d }
}

// New wires an orchestrator from its collaborators.
func New(
	catalog Catalog,
	pricer Pricer,
	verifier verification.Verifier,
	transferrer settlement.Transferrer,
	sold store.SoldStateStore,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		catalog:       catalog,
		pricer:        pricer,
		verifier:      verifier,
		transferrer:   transferrer,
		store:         sold,
		tolerance:     types.DefaultTolerance,
		recordTimeout: 30 * time.Second,
		lateWindow:    30 * time.Minute,
		locks:         newKeyedMutex(),
		newID:         uuid.NewString,
		nowFn:         time.Now,
		logger:        logger.NoopLogger{},
		metrics:       metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(o)
	}
	o.confirmer, _ = transferrer.(settlement.Confirmer)
	o.lateCtx, o.stopLate = context.WithCancel(context.Background())
	return o
}

// Close stops watching late transfers and waits for the watchers to exit.
// Transfers still unconfirmed are logged for reconciliation.
func (o *Orchestrator) Close() {
	o.stopLate()
	o.late.Wait()
}

// Quote prices tokenID without starting a purchase.
func (o *Orchestrator) Quote(ctx context.Context, tokenID uint64, rarity types.Rarity, network types.Network, currency string) (*types.Quote, error) {
	if tokenID > math.MaxInt64 {
		return nil, types.NewError(types.ErrCodeValidation, types.StepQuote, "token id %d is out of range", tokenID)
	}
	if err := o.catalog.Validate(network, currency); err != nil {
		return nil, err
	}
	netDesc, err := o.catalog.GetNetwork(network)
	if err != nil {
		return nil, types.NewError(types.ErrCodeUnsupportedNetwork, types.StepQuote, "%v", err)
	}
	curDesc, err := o.catalog.GetCurrency(network, currency)
	if err != nil {
		return nil, types.NewError(types.ErrCodeUnsupportedCurrency, types.StepQuote, "%v", err)
	}
	return o.pricer.Quote(ctx, tokenID, rarity, netDesc, curDesc)
}

// Execute runs one purchase attempt to a terminal state.
func (o *Orchestrator) Execute(ctx context.Context, req Request) *Outcome {
	start := time.Now()
	if n, ok := types.ParseNetwork(string(req.Network)); ok {
		req.Network = n
	}
	out := &Outcome{
		AttemptID:      o.newID(),
		TokenID:        req.TokenID,
		ClaimedAmount:  req.ClaimedAmount,
		PaymentNetwork: req.Network,
		PaymentTx:      req.PaymentTx,
	}
	fields := map[string]any{
		logger.FieldAttemptID: out.AttemptID,
		logger.FieldTokenID:   req.TokenID,
		logger.FieldNetwork:   string(req.Network),
		logger.FieldTx:        req.PaymentTx,
		logger.FieldBuyer:     req.Buyer,
	}

	defer func() {
		labels := map[string]string{"network": string(req.Network), "outcome": string(out.State)}
		o.metrics.IncCounter(metrics.PurchaseOutcome, labels)
		o.metrics.ObserveLatency(metrics.OpPurchase, time.Since(start), map[string]string{"network": string(req.Network)})

		fields[logger.FieldState] = string(out.State)
		if out.Err != nil {
			fields[logger.FieldReason] = out.Err.Message
		}
		switch out.State {
		case StateCompleted:
			o.logger.Info("purchase completed", fields)
		case StateTransferFailed:
			o.logger.Error("payment verified but transfer failed", fields)
		case StateAlreadySold:
			if out.RequiresRefund {
				o.logger.Error("payment verified for a sold token", fields)
			} else {
				o.logger.Info("purchase rejected", fields)
			}
		default:
			o.logger.Info("purchase rejected", fields)
		}
	}()

	rarity, verr := validateRequest(req)
	if verr != nil {
		out.Err = verr
		out.advance(StateQuoteRejected)
		return out
	}
	req.Rarity = rarity
	out.PaymentTx = store.NormalizeTxRef(req.PaymentTx)

	unlockToken, err := o.locks.Lock(ctx, tokenKey(req.TokenID))
	if err != nil {
		out.Err = types.NewError(types.ErrCodeValidation, types.StepQuote, "purchase abandoned: %v", err)
		out.advance(StateQuoteRejected)
		return out
	}
	// A late-transfer watcher takes over the locks by clearing these.
	var unlockPayment func()
	defer func() {
		if unlockPayment != nil {
			unlockPayment()
		}
		if unlockToken != nil {
			unlockToken()
		}
	}()

	sold, err := o.store.IsSold(ctx, req.TokenID)
	if err != nil {
		out.Err = types.NewError(types.ErrCodeStore, types.StepRecord, "cannot read sold state: %v", err)
		out.advance(StateQuoteRejected)
		return out
	}
	if sold {
		out.Err = types.NewError(types.ErrCodeAlreadySold, types.StepQuote, "token %d is already sold", req.TokenID)
		out.advance(StateAlreadySold)
		return out
	}

	quote, err := o.Quote(ctx, req.TokenID, req.Rarity, req.Network, req.Currency)
	if err != nil {
		out.Err = asMarketError(err, types.ErrCodeValidation, types.StepQuote)
		out.advance(StateQuoteRejected)
		return out
	}
	if quote.ReceivingWallet == "" {
		out.Err = types.NewError(types.ErrCodeUnsupportedNetwork, types.StepQuote, "no receiving wallet configured for %s", req.Network)
		out.advance(StateQuoteRejected)
		return out
	}
	out.Quote = quote
	out.advance(StateQuoted)

	o.auditClaim(out, fields)

	// The same payment must not settle two tokens, even concurrently.
	unlockPayment, err = o.locks.Lock(ctx, paymentKey(req.Network, out.PaymentTx))
	if err != nil {
		out.advance(StatePaymentSubmitted)
		out.Err = types.NewError(types.ErrCodePaymentRejected, types.StepPayment, "purchase abandoned: %v", err)
		out.advance(StatePaymentRejected)
		return out
	}
	out.advance(StatePaymentSubmitted)

	if prior, err := o.store.FindByPayment(ctx, req.Network, out.PaymentTx); err == nil {
		out.Err = types.NewError(types.ErrCodePaymentRejected, types.StepPayment, "%s: already settled token %d", types.ReasonPaymentAlreadyUsed, prior.TokenID)
		out.advance(StatePaymentRejected)
		return out
	} else if !errors.Is(err, store.ErrNotFound) {
		out.Err = types.NewError(types.ErrCodeStore, types.StepRecord, "cannot check payment reuse: %v", err)
		out.advance(StatePaymentRejected)
		return out
	}

	expected := types.ExpectedPayment{
		Buyer:           req.Buyer,
		ReceivingWallet: quote.ReceivingWallet,
		Amount:          quote.Amount,
	}
	result, err := o.verifier.Verify(ctx, req.Network, out.PaymentTx, expected)
	out.Verification = result
	if err != nil || result == nil || !result.IsValid {
		reason := "verification failed"
		switch {
		case err != nil:
			reason = err.Error()
		case result != nil && result.InvalidReason != "":
			reason = result.InvalidReason
		}
		out.Err = &types.MarketError{
			Code:    types.ErrCodePaymentRejected,
			Step:    types.StepPayment,
			Message: reason,
			Data:    result,
		}
		out.advance(StatePaymentRejected)
		return out
	}
	out.advance(StatePaymentVerified)

	sold, err = o.store.IsSold(ctx, req.TokenID)
	if err != nil {
		o.logger.Warn("sold state unreadable after verification, transferring anyway", withField(fields, logger.FieldError, err))
	}
	if err == nil && sold {
		out.RequiresRefund = true
		out.Err = o.refundError(types.ErrCodeAlreadySold, types.StepRecord, out, "token %d was sold while the payment was verified", req.TokenID)
		out.advance(StateAlreadySold)
		return out
	}

	out.advance(StateTransferExecuting)
	transfer, err := o.transferrer.Transfer(ctx, req.TokenID, req.Buyer)
	out.Transfer = transfer
	if err != nil || transfer == nil || !transfer.Success {
		out.RequiresRefund = true
		merr := asMarketError(err, types.ErrCodeTransferFailed, types.StepTransfer)
		switch merr.Code {
		case types.ErrCodeOwnershipMismatch:
			if sold, serr := o.store.IsSold(ctx, req.TokenID); serr == nil && sold {
				out.Err = o.refundError(types.ErrCodeAlreadySold, types.StepOwnership, out, "token %d was sold by another attempt", req.TokenID)
				out.advance(StateAlreadySold)
				return out
			}
			if owner, oerr := o.transferrer.OwnerOf(ctx, req.TokenID); oerr == nil && utils.SameAddress(owner, req.Buyer) {
				o.recoverDelivered(ctx, out, req, quote, fields)
				return out
			}
		case types.ErrCodeConfirmationTimeout:
			if o.confirmer == nil || transfer == nil || transfer.TxHash == "" {
				break
			}
			out.SettlementPending = true
			releasePayment, releaseToken := unlockPayment, unlockToken
			unlockPayment, unlockToken = nil, nil
			o.watchLateTransfer(o.newRecord(req, quote, transfer), transfer, func() {
				releasePayment()
				releaseToken()
			})
		}
		out.Err = o.refundError(merr.Code, merr.Step, out, "%s", merr.Message)
		out.advance(StateTransferFailed)
		return out
	}

	rec := o.newRecord(req, quote, transfer)
	rec.PurchasedAt = o.nowFn().UTC()
	out.Record = rec
	if err := o.recordPurchase(ctx, rec); err != nil {
		// The asset has moved; only the bookkeeping is missing.
		out.Err = types.NewError(types.ErrCodeStore, types.StepRecord, "transfer %s succeeded but the sale was not recorded: %v", transfer.TxHash, err)
	}
	out.advance(StateCompleted)
	return out
}

func (o *Orchestrator) newRecord(req Request, quote *types.Quote, transfer *types.TransferResult) *types.PurchaseRecord {
	rec := &types.PurchaseRecord{
		TokenID:        req.TokenID,
		Buyer:          req.Buyer,
		PaymentNetwork: req.Network,
		PaymentTx:      store.NormalizeTxRef(req.PaymentTx),
		Price:          quote.Amount,
		PriceUSD:       quote.PriceUSD,
		Rarity:         quote.Rarity,
	}
	if transfer != nil {
		rec.SettlementNetwork = transfer.Network
		rec.SettlementTx = transfer.TxHash
	}
	return rec
}

// watchLateTransfer keeps polling a transfer that missed its confirmation
// budget and records the sale once it is mined. release runs when the
// watcher is done; until then attempts for the same token or payment wait.
func (o *Orchestrator) watchLateTransfer(rec *types.PurchaseRecord, pending *types.TransferResult, release func()) {
	fields := map[string]any{
		logger.FieldTokenID: rec.TokenID,
		logger.FieldNetwork: string(pending.Network),
		logger.FieldTx:      pending.TxHash,
		logger.FieldBuyer:   rec.Buyer,
		"paymentTx":         rec.PaymentTx,
	}
	o.logger.Warn("transfer not confirmed in time, watching it", fields)

	o.late.Add(1)
	go func() {
		defer o.late.Done()
		defer release()

		ctx, cancel := context.WithTimeout(o.lateCtx, o.lateWindow)
		defer cancel()

		transfer, err := o.confirmer.AwaitTransfer(ctx, pending)
		if err != nil || transfer == nil || !transfer.Success {
			o.logger.Error("late transfer did not settle, payment needs reconciliation", withField(fields, logger.FieldError, err))
			return
		}

		rec.SettlementNetwork = transfer.Network
		rec.SettlementTx = transfer.TxHash
		rec.PurchasedAt = o.nowFn().UTC()
		if err := o.recordPurchase(ctx, rec); err != nil {
			o.logger.Error("late transfer settled but the sale was not recorded", withField(fields, logger.FieldError, err))
			return
		}
		o.logger.Info("late transfer settled, sale recorded", fields)
	}()
}

// recoverDelivered handles a token that already sits with this buyer but has
// no record, left behind by an attempt whose transfer mined after it gave up.
// The sale is recorded against the verified payment.
func (o *Orchestrator) recoverDelivered(ctx context.Context, out *Outcome, req Request, quote *types.Quote, fields map[string]any) {
	rec := o.newRecord(req, quote, out.Transfer)
	rec.SettlementTx = ""
	rec.PurchasedAt = o.nowFn().UTC()

	o.logger.Warn("token already delivered to buyer without a record", fields)
	err := o.recordPurchase(ctx, rec)
	switch {
	case err == nil:
		out.Record = rec
		out.RequiresRefund = false
		out.Err = types.NewError(types.ErrCodeAlreadySold, types.StepOwnership, "token %d was already delivered to the buyer by an earlier attempt", req.TokenID)
	case errors.Is(err, store.ErrDuplicateKey):
		out.Err = o.refundError(types.ErrCodeAlreadySold, types.StepOwnership, out, "token %d was sold by another attempt", req.TokenID)
	default:
		out.RequiresRefund = false
		out.Err = types.NewError(types.ErrCodeStore, types.StepRecord, "token %d was already delivered to the buyer but the sale was not recorded: %v", req.TokenID, err)
	}
	out.advance(StateAlreadySold)
}

// recordPurchase retries transient store failures. Uniqueness violations are
// permanent.
func (o *Orchestrator) recordPurchase(ctx context.Context, rec *types.PurchaseRecord) error {
	// The transfer is mined; a cancelled request must not skip the record.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.recordTimeout)
	defer cancel()

	op := func() error {
		err := o.store.RecordPurchase(ctx, rec)
		if errors.Is(err, store.ErrDuplicateKey) || errors.Is(err, store.ErrInvalidInput) {
			return backoff.Permanent(err)
		}
		return err
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = o.recordTimeout
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}

func (o *Orchestrator) auditClaim(out *Outcome, fields map[string]any) {
	if out.ClaimedAmount == nil {
		return
	}
	claimed := types.Amount{Value: *out.ClaimedAmount, Currency: out.Quote.Amount.Currency, Decimals: out.Quote.Amount.Decimals}
	if claimed.WithinTolerance(out.Quote.Amount, o.tolerance) {
		return
	}
	out.ClaimMismatch = true
	o.logger.Warn("claimed amount differs from quote", map[string]any{
		logger.FieldAttemptID: fields[logger.FieldAttemptID],
		logger.FieldTokenID:   out.TokenID,
		"claimed":             claimed.Value.String(),
		"expected":            out.Quote.Amount.Value.String(),
		"currency":            out.Quote.Amount.Currency,
	})
}

// refundError carries the verified payment so reconciliation can act on it.
func (o *Orchestrator) refundError(code string, step types.Step, out *Outcome, format string, args ...any) *types.MarketError {
	merr := types.NewError(code, step, format, args...)
	data := map[string]any{
		"paymentNetwork": string(out.PaymentNetwork),
		"paymentTx":      out.PaymentTx,
		"requiresRefund": true,
	}
	if out.Transfer != nil && out.Transfer.TxHash != "" {
		data["settlementTx"] = out.Transfer.TxHash
	}
	if out.SettlementPending {
		data["settlementPending"] = true
	}
	merr.Data = data
	return merr
}

// validateRequest rejects malformed input before any I/O and returns the
// canonical rarity.
func validateRequest(req Request) (types.Rarity, *types.MarketError) {
	if req.TokenID > math.MaxInt64 {
		return "", types.NewError(types.ErrCodeValidation, types.StepQuote, "token id %d is out of range", req.TokenID)
	}
	rarity, err := types.ParseRarity(string(req.Rarity))
	if err != nil {
		return "", types.NewError(types.ErrCodeValidation, types.StepQuote, "%v", err)
	}
	if err := utils.ValidateAddress(req.Buyer); err != nil {
		return "", types.NewError(types.ErrCodeValidation, types.StepQuote, "invalid buyer: %v", err)
	}
	if err := utils.ValidateTransactionHash(req.PaymentTx); err != nil {
		return "", types.NewError(types.ErrCodeValidation, types.StepPayment, "invalid payment reference: %v", err)
	}
	if _, ok := types.ParseNetwork(string(req.Network)); !ok {
		return "", types.NewError(types.ErrCodeUnsupportedNetwork, types.StepQuote, "unsupported network %q", req.Network)
	}
	return rarity, nil
}

func withField(fields map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out[key] = value
	return out
}

func asMarketError(err error, code string, step types.Step) *types.MarketError {
	var merr *types.MarketError
	if errors.As(err, &merr) {
		return merr
	}
	if err == nil {
		return types.NewError(code, step, "unknown failure")
	}
	return types.NewError(code, step, "%v", err)
}

func tokenKey(id uint64) string {
	return fmt.Sprintf("token:%d", id)
}

func paymentKey(network types.Network, tx string) string {
	return fmt.Sprintf("payment:%s:%s", network, tx)
}
