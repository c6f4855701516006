// Package settlement transfers collectibles out of the custodial account on
// the settlement network.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/mohamed3773/MyCProject-sub000/clients"
	"github.com/mohamed3773/MyCProject-sub000/logger"
	"github.com/mohamed3773/MyCProject-sub000/metrics"
	"github.com/mohamed3773/MyCProject-sub000/types"
	"github.com/mohamed3773/MyCProject-sub000/utils"
)

// Transferrer moves one collectible to a buyer.
type Transferrer interface {
	OwnerOf(ctx context.Context, tokenID uint64) (string, error)
	Transfer(ctx context.Context, tokenID uint64, to string) (*types.TransferResult, error)
}

// Confirmer resumes waiting on a transfer that was submitted but not
// confirmed within the confirmation budget.
type Confirmer interface {
	AwaitTransfer(ctx context.Context, pending *types.TransferResult) (*types.TransferResult, error)
}

// gasHeadroom pads the node's gas estimate, in percent.
const gasHeadroom = 20

// SettlementService transfers ERC-721 tokens held by the custodial signer.
type SettlementService struct {
	network    types.Network
	chainID    *big.Int
	collection common.Address
	backend    clients.Backend
	signer     clients.Signer

	readTimeout    time.Duration
	confirmTimeout time.Duration
	initialPoll    time.Duration
	maxPoll        time.Duration

	// submitMu serializes custodial submissions so nonces never collide.
	submitMu sync.Mutex

	logger  logger.Logger
	metrics metrics.Recorder
}

var (
	_ Transferrer = (*SettlementService)(nil)
	_ Confirmer   = (*SettlementService)(nil)
)

// Option configures a SettlementService.
type Option func(*SettlementService)

func WithLogger(l logger.Logger) Option {
	return func(s *SettlementService) { s.logger = logger.OrNoop(l) }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(s *SettlementService) { s.metrics = metrics.OrNoop(m) }
}

// WithTimeouts sets the read query deadline and the confirmation wait budget.
func WithTimeouts(read, confirm time.Duration) Option {
	return func(s *SettlementService) {
		s.readTimeout = read
		s.confirmTimeout = confirm
	}
}

// WithPollInterval bounds the exponential receipt polling interval.
func WithPollInterval(initial, max time.Duration) Option {
	return func(s *SettlementService) {
		s.initialPoll = initial
		s.maxPoll = max
	}
}

// NewSettlementService creates a transfer service for collection on network.
func NewSettlementService(
	network types.NetworkDescriptor,
	collection string,
	backend clients.Backend,
	signer clients.Signer,
	opts ...Option,
) (*SettlementService, error) {
	if err := utils.ValidateAddress(collection); err != nil {
		return nil, fmt.Errorf("collection address: %w", err)
	}
	if backend == nil || signer == nil {
		return nil, errors.New("settlement requires a backend and a signer")
	}

	s := &SettlementService{
		network:        network.ID,
		chainID:        big.NewInt(network.ChainID),
		collection:     common.HexToAddress(collection),
		backend:        backend,
		signer:         signer,
		readTimeout:    types.DefaultReadTimeout,
		confirmTimeout: types.DefaultConfirmationTimeout,
		initialPoll:    time.Second,
		maxPoll:        15 * time.Second,
		logger:         logger.NoopLogger{},
		metrics:        metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Custodian returns the custodial holder address.
func (s *SettlementService) Custodian() string {
	return utils.NormalizeAddress(s.signer.Address().Hex())
}

// Network returns the settlement network.
func (s *SettlementService) Network() types.Network {
	return s.network
}

// OwnerOf returns the current on-chain holder of tokenID, lower-cased.
func (s *SettlementService) OwnerOf(ctx context.Context, tokenID uint64) (string, error) {
	readCtx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()

	owner, err := clients.OwnerOf(readCtx, s.backend, s.collection, tokenID)
	if err != nil {
		return "", err
	}
	return utils.NormalizeAddress(owner.Hex()), nil
}

// Transfer re-checks custody, submits safeTransferFrom signed by the
// custodian and waits for it to be mined. Failures come back in the result
// with a classified error code; the error return is a *types.MarketError
// carrying the same code.
func (s *SettlementService) Transfer(ctx context.Context, tokenID uint64, to string) (*types.TransferResult, error) {
	start := time.Now()
	custodian := s.signer.Address()
	result := &types.TransferResult{
		Network: s.network,
		From:    utils.NormalizeAddress(custodian.Hex()),
		To:      utils.NormalizeAddress(to),
		TokenID: tokenID,
	}

	defer func() {
		labels := map[string]string{"network": string(s.network), "outcome": result.ErrorCode}
		s.metrics.ObserveLatency(metrics.OpTransfer, time.Since(start), labels)
		if !result.Success {
			s.metrics.IncCounter(metrics.TransferFailed, labels)
		}
	}()

	if err := utils.ValidateAddress(to); err != nil {
		return fail(result, types.ErrCodeValidation, types.StepTransfer, "invalid recipient: %v", err)
	}
	recipient := common.HexToAddress(to)

	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	owner, err := s.OwnerOf(ctx, tokenID)
	if err != nil {
		if clients.ClassifyRPCError(err) == clients.ErrClassReverted {
			return fail(result, types.ErrCodeOwnershipMismatch, types.StepOwnership, "token %d is not held by the collection: %v", tokenID, err)
		}
		return fail(result, types.ErrCodeNetworkUnavailable, types.StepOwnership, "cannot read owner of token %d: %v", tokenID, err)
	}
	if !utils.SameAddress(owner, custodian.Hex()) {
		s.logger.Warn("custodian no longer holds token", map[string]any{
			logger.FieldNetwork: s.network,
			logger.FieldTokenID: tokenID,
			"owner":             owner,
		})
		return fail(result, types.ErrCodeOwnershipMismatch, types.StepOwnership, "token %d is no longer held by the custodian", tokenID)
	}

	signed, err := s.buildAndSign(ctx, custodian, recipient, tokenID)
	if err != nil {
		return failClassified(result, err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.readTimeout)
	err = s.backend.SendTransaction(sendCtx, signed)
	cancel()
	if err != nil {
		return failClassified(result, fmt.Errorf("send transaction: %w", err))
	}
	result.TxHash = signed.Hash().Hex()

	s.logger.Info("transfer submitted", map[string]any{
		logger.FieldNetwork: s.network,
		logger.FieldTokenID: tokenID,
		logger.FieldTx:      result.TxHash,
	})

	receipt, err := s.waitMined(ctx, signed.Hash())
	if err != nil {
		return fail(result, types.ErrCodeConfirmationTimeout, types.StepTransfer, "transfer %s not confirmed: %v", result.TxHash, err)
	}
	return s.settled(result, receipt)
}

// AwaitTransfer polls for the receipt of a submitted transfer until it is
// mined or ctx ends. pending is not modified.
func (s *SettlementService) AwaitTransfer(ctx context.Context, pending *types.TransferResult) (*types.TransferResult, error) {
	result := *pending
	result.Success = false
	result.Error = ""
	result.ErrorCode = ""
	if result.TxHash == "" {
		return fail(&result, types.ErrCodeTransferFailed, types.StepTransfer, "transfer of token %d was never submitted", result.TokenID)
	}

	receipt, err := s.pollReceipt(ctx, common.HexToHash(result.TxHash))
	if err != nil {
		return fail(&result, types.ErrCodeConfirmationTimeout, types.StepTransfer, "transfer %s not confirmed: %v", result.TxHash, err)
	}
	return s.settled(&result, receipt)
}

func (s *SettlementService) settled(result *types.TransferResult, receipt *ethtypes.Receipt) (*types.TransferResult, error) {
	if receipt.BlockNumber != nil {
		result.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return fail(result, types.ErrCodeTransferReverted, types.StepTransfer, "transfer %s reverted on-chain", result.TxHash)
	}

	result.Success = true
	s.logger.Info("transfer confirmed", map[string]any{
		logger.FieldNetwork: s.network,
		logger.FieldTokenID: result.TokenID,
		logger.FieldTx:      result.TxHash,
		"block":             result.BlockNumber,
	})
	return result, nil
}

func (s *SettlementService) buildAndSign(ctx context.Context, from, to common.Address, tokenID uint64) (*ethtypes.Transaction, error) {
	readCtx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()

	data, err := clients.PackSafeTransferFrom(from, to, tokenID)
	if err != nil {
		return nil, err
	}

	gasLimit, err := s.backend.EstimateGas(readCtx, ethereum.CallMsg{From: from, To: &s.collection, Data: data})
	if err != nil {
		return nil, &estimateError{fmt.Errorf("estimate gas: %w", err)}
	}
	gasLimit += gasLimit * gasHeadroom / 100

	gasPrice, err := s.backend.SuggestGasPrice(readCtx)
	if err != nil {
		return nil, &estimateError{fmt.Errorf("suggest gas price: %w", err)}
	}

	nonce, err := s.backend.PendingNonceAt(readCtx, from)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &s.collection,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	return s.signer.SignTx(tx, s.chainID)
}

// waitMined waits for the receipt within the confirmation budget. The
// transaction is already on the ledger, so a cancelled caller does not cut
// the wait short.
func (s *SettlementService) waitMined(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.confirmTimeout)
	defer cancel()
	return s.pollReceipt(waitCtx, hash)
}

// pollReceipt polls with exponential backoff until the receipt appears or
// ctx ends.
func (s *SettlementService) pollReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.initialPoll
	b.MaxInterval = s.maxPoll
	b.MaxElapsedTime = 0

	return backoff.RetryWithData(func() (*ethtypes.Receipt, error) {
		readCtx, cancel := context.WithTimeout(ctx, s.readTimeout)
		defer cancel()

		receipt, err := s.backend.TransactionReceipt(readCtx, hash)
		if err != nil {
			if !clients.IsNotFound(err) {
				s.logger.Debug("receipt poll failed", map[string]any{
					logger.FieldTx:    hash.Hex(),
					logger.FieldError: err,
				})
			}
			return nil, err
		}
		return receipt, nil
	}, backoff.WithContext(b, ctx))
}

type estimateError struct{ err error }

func (e *estimateError) Error() string { return e.err.Error() }
func (e *estimateError) Unwrap() error { return e.err }

// failClassified maps a pre-mining ledger error onto a transfer error code.
func failClassified(result *types.TransferResult, err error) (*types.TransferResult, error) {
	switch clients.ClassifyRPCError(err) {
	case clients.ErrClassInsufficientFunds:
		return fail(result, types.ErrCodeInsufficientFunds, types.StepTransfer, "custodial account cannot pay the network fee: %v", err)
	case clients.ErrClassReverted:
		return fail(result, types.ErrCodeTransferReverted, types.StepTransfer, "transfer would revert: %v", err)
	}

	var est *estimateError
	if errors.As(err, &est) {
		return fail(result, types.ErrCodeFeeEstimation, types.StepTransfer, "fee estimation failed: %v", err)
	}
	return fail(result, types.ErrCodeTransferFailed, types.StepTransfer, "transfer failed: %v", err)
}

func fail(result *types.TransferResult, code string, step types.Step, format string, args ...any) (*types.TransferResult, error) {
	merr := types.NewError(code, step, format, args...)
	result.Success = false
	result.ErrorCode = code
	result.Error = merr.Message
	return result, merr
}
