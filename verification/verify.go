// Package verification decides whether a claimed payment transaction is a
// valid, sufficient, confirmed transfer to the expected receiving wallet.
package verification

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/mohamed3773/MyCProject-sub000/clients"
	"github.com/mohamed3773/MyCProject-sub000/logger"
	"github.com/mohamed3773/MyCProject-sub000/metrics"
	"github.com/mohamed3773/MyCProject-sub000/registry"
	"github.com/mohamed3773/MyCProject-sub000/types"
	"github.com/mohamed3773/MyCProject-sub000/utils"
)

// Verifier checks a payment transaction against what it has to satisfy.
type Verifier interface {
	Verify(ctx context.Context, network types.Network, txRef string, expected types.ExpectedPayment) (*types.PaymentVerificationResult, error)
}

// BackendSource resolves the long-lived RPC backend of a network.
type BackendSource interface {
	Get(network types.Network) (clients.Backend, error)
}

// VerificationService verifies payments on every configured network.
type VerificationService struct {
	registry         *registry.Registry
	backends         BackendSource
	timeout          time.Duration
	tolerance        decimal.Decimal
	minConfirmations uint64
	logger           logger.Logger
	metrics          metrics.Recorder
}

var _ Verifier = (*VerificationService)(nil)

// Option configures a VerificationService.
type Option func(*VerificationService)

// WithTolerance sets the allowed relative deviation of the paid amount.
func WithTolerance(t decimal.Decimal) Option {
	return func(s *VerificationService) { s.tolerance = t }
}

// WithMinConfirmations requires at least n blocks on top of the payment.
func WithMinConfirmations(n uint64) Option {
	return func(s *VerificationService) { s.minConfirmations = n }
}

func WithLogger(l logger.Logger) Option {
	return func(s *VerificationService) { s.logger = logger.OrNoop(l) }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(s *VerificationService) { s.metrics = metrics.OrNoop(m) }
}

// NewVerificationService creates a new verification service. timeout bounds
// every read query.
func NewVerificationService(reg *registry.Registry, backends BackendSource, timeout time.Duration, opts ...Option) *VerificationService {
	s := &VerificationService{
		registry:  reg,
		backends:  backends,
		timeout:   timeout,
		tolerance: types.DefaultTolerance,
		logger:    logger.NoopLogger{},
		metrics:   metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify fetches txRef from network and checks it against expected. Every
// failure is reported in the result; the error is reserved for a nil
// expectation.
func (s *VerificationService) Verify(
	ctx context.Context,
	network types.Network,
	txRef string,
	expected types.ExpectedPayment,
) (*types.PaymentVerificationResult, error) {
	start := time.Now()
	result := &types.PaymentVerificationResult{Network: network, TxHash: txRef}

	defer func() {
		labels := map[string]string{"network": string(network), "outcome": result.InvalidReason}
		s.metrics.ObserveLatency(metrics.OpVerify, time.Since(start), labels)
		if result.IsValid {
			s.metrics.IncCounter(metrics.PaymentVerified, labels)
		} else {
			s.metrics.IncCounter(metrics.PaymentRejected, labels)
		}
	}()

	if err := utils.ValidateTransactionHash(txRef); err != nil {
		return reject(result, types.ReasonInvalidTxReference, err), nil
	}

	netDesc, err := s.registry.GetNetwork(network)
	if err != nil {
		return reject(result, types.ReasonUnsupportedNetwork, err), nil
	}
	currency, err := s.registry.GetCurrency(network, expected.Amount.Currency)
	if err != nil {
		return reject(result, types.ReasonUnsupportedCurrency, err), nil
	}

	backend, err := s.backends.Get(network)
	if err != nil {
		return reject(result, types.ReasonNetworkUnavailable, err), nil
	}

	verifyCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	hash := common.HexToHash(txRef)
	tx, pending, err := backend.TransactionByHash(verifyCtx, hash)
	switch {
	case clients.IsNotFound(err):
		return reject(result, types.ReasonTxNotFound, nil), nil
	case err != nil:
		return reject(result, types.ReasonNetworkUnavailable, err), nil
	case pending:
		result.Checks.Exists = true
		return reject(result, types.ReasonTxPending, nil), nil
	}

	receipt, err := backend.TransactionReceipt(verifyCtx, hash)
	switch {
	case clients.IsNotFound(err):
		return reject(result, types.ReasonTxNotFound, nil), nil
	case err != nil:
		return reject(result, types.ReasonNetworkUnavailable, err), nil
	}
	result.Checks.Exists = true
	if receipt.BlockNumber != nil {
		result.BlockNumber = receipt.BlockNumber.Uint64()
	}

	head, err := backend.BlockNumber(verifyCtx)
	if err != nil {
		return reject(result, types.ReasonNetworkUnavailable, err), nil
	}
	if head >= result.BlockNumber {
		result.Confirmations = head - result.BlockNumber
	}

	succeeded := receipt.Status == ethtypes.ReceiptStatusSuccessful
	result.Checks.Confirmed = succeeded && result.Confirmations >= s.minConfirmations

	chainID := big.NewInt(netDesc.ChainID)
	sender, senderErr := ethtypes.Sender(ethtypes.LatestSignerForChainID(chainID), tx)
	if senderErr == nil {
		result.Sender = utils.NormalizeAddress(sender.Hex())
	}

	var reason string
	if currency.Native {
		reason = s.checkNative(result, tx, currency, expected)
	} else {
		reason = s.checkToken(result, tx, receipt, currency, expected)
	}

	switch {
	case !succeeded:
		reason = types.ReasonTxFailed
	case !result.Checks.SenderMatch:
		reason = types.ReasonSenderMismatch
	case reason != "":
	case !result.Checks.RecipientMatch:
		reason = types.ReasonRecipientMismatch
	case !result.Checks.AmountWithinTolerance:
		reason = types.ReasonAmountOutOfTolerance
	case !result.Checks.Confirmed:
		reason = types.ReasonInsufficientConfirmations
	}

	if reason != "" {
		s.logger.Info("payment rejected", map[string]any{
			logger.FieldNetwork: network,
			logger.FieldTx:      txRef,
			logger.FieldReason:  reason,
		})
		return reject(result, reason, nil), nil
	}

	result.IsValid = result.Checks.Passed()
	return result, nil
}

func (s *VerificationService) checkNative(
	result *types.PaymentVerificationResult,
	tx *ethtypes.Transaction,
	currency types.CurrencyDescriptor,
	expected types.ExpectedPayment,
) string {
	result.Checks.SenderMatch = utils.SameAddress(result.Sender, expected.Buyer)

	if tx.To() != nil {
		result.Recipient = utils.NormalizeAddress(tx.To().Hex())
	}
	result.Checks.RecipientMatch = utils.SameAddress(result.Recipient, expected.ReceivingWallet)

	paid := types.AmountFromBaseUnits(tx.Value(), currency)
	result.Amount = &paid
	result.Checks.AmountWithinTolerance = paid.WithinTolerance(expectedIn(currency, expected), s.tolerance)
	return ""
}

// checkToken verifies an ERC-20 payment from the Transfer event the token
// contract emitted. Exactly one transfer to the receiving wallet must exist.
func (s *VerificationService) checkToken(
	result *types.PaymentVerificationResult,
	tx *ethtypes.Transaction,
	receipt *ethtypes.Receipt,
	currency types.CurrencyDescriptor,
	expected types.ExpectedPayment,
) string {
	result.Checks.SenderMatch = utils.SameAddress(result.Sender, expected.Buyer)

	contract := common.HexToAddress(currency.Contract)
	if tx.To() == nil || *tx.To() != contract {
		return types.ReasonTokenContractMismatch
	}

	transfers, err := clients.DecodeTokenTransfers(receipt, contract)
	if err != nil || len(transfers) == 0 {
		return types.ReasonTokenTransferNotFound
	}

	var matching []clients.TokenTransfer
	for _, t := range transfers {
		if utils.SameAddress(t.To.Hex(), expected.ReceivingWallet) {
			matching = append(matching, t)
		}
	}
	switch len(matching) {
	case 0:
		result.Recipient = utils.NormalizeAddress(transfers[0].To.Hex())
		return ""
	case 1:
	default:
		return types.ReasonTokenTransferAmbiguous
	}

	t := matching[0]
	result.Recipient = utils.NormalizeAddress(t.To.Hex())
	result.Checks.RecipientMatch = true
	if !utils.SameAddress(t.From.Hex(), expected.Buyer) {
		result.Checks.SenderMatch = false
	}

	paid := types.AmountFromBaseUnits(t.Value, currency)
	result.Amount = &paid
	result.Checks.AmountWithinTolerance = paid.WithinTolerance(expectedIn(currency, expected), s.tolerance)
	return ""
}

// Lookup returns the raw transaction and receipt for status polling.
func (s *VerificationService) Lookup(ctx context.Context, network types.Network, txRef string) (*types.TransactionView, error) {
	if err := utils.ValidateTransactionHash(txRef); err != nil {
		return nil, types.NewError(types.ErrCodeValidation, types.StepPayment, "%v", err)
	}
	netDesc, err := s.registry.GetNetwork(network)
	if err != nil {
		return nil, types.NewError(types.ErrCodeUnsupportedNetwork, types.StepPayment, "%v", err)
	}
	backend, err := s.backends.Get(network)
	if err != nil {
		return nil, err
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	hash := common.HexToHash(txRef)
	tx, pending, err := backend.TransactionByHash(lookupCtx, hash)
	if clients.IsNotFound(err) {
		return nil, types.NewError(types.ErrCodeTransactionNotFound, types.StepPayment, "transaction %s not found on %s", txRef, network)
	}
	if err != nil {
		return nil, types.NewError(types.ErrCodeNetworkUnavailable, types.StepPayment, "fetch transaction: %v", err)
	}

	view := &types.TransactionView{
		Network:     network,
		Hash:        hash.Hex(),
		Pending:     pending,
		Transaction: tx,
		ExplorerURL: netDesc.TxURL(hash.Hex()),
	}
	if pending {
		return view, nil
	}

	receipt, err := backend.TransactionReceipt(lookupCtx, hash)
	switch {
	case clients.IsNotFound(err):
		view.Pending = true
	case err != nil:
		return nil, types.NewError(types.ErrCodeNetworkUnavailable, types.StepPayment, "fetch receipt: %v", err)
	default:
		view.Receipt = receipt
	}
	return view, nil
}

func expectedIn(currency types.CurrencyDescriptor, expected types.ExpectedPayment) types.Amount {
	return types.NewAmount(expected.Amount.Value, currency)
}

func reject(r *types.PaymentVerificationResult, reason string, err error) *types.PaymentVerificationResult {
	r.IsValid = false
	r.InvalidReason = reason
	if err != nil {
		r.Error = fmt.Sprintf("%s: %v", reason, err)
	}
	return r
}
