package clients

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/time/rate"

	"github.com/mohamed3773/MyCProject-sub000/metrics"
)

// Limiter is a token bucket shared by every call to one network.
type Limiter struct {
	limiter *rate.Limiter
	network string
	metrics metrics.Recorder
}

// NewLimiter allows rps requests per second with a burst of burst.
func NewLimiter(rps float64, burst int, network string, rec metrics.Recorder) *Limiter {
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		network: network,
		metrics: metrics.OrNoop(rec),
	}
}

// Wait blocks until one token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	r := l.limiter.Reserve()
	if !r.OK() {
		return fmt.Errorf("rate: cannot reserve token")
	}
	delay := r.Delay()
	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			r.Cancel()
			return ctx.Err()
		}
	}
	return nil
}

func (l *Limiter) record(method string, err error) {
	if err == nil {
		return
	}
	l.metrics.IncCounter(metrics.RPCError, map[string]string{
		"network": l.network,
		"outcome": method + ":" + ClassifyRPCError(err),
	})
}

// limitedBackend throttles every call through a Limiter.
type limitedBackend struct {
	next    Backend
	limiter *Limiter
}

// WithRateLimit wraps b so that each call consumes one limiter token.
func WithRateLimit(b Backend, l *Limiter) Backend {
	return &limitedBackend{next: b, limiter: l}
}

func (b *limitedBackend) TransactionByHash(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, bool, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, false, err
	}
	tx, pending, err := b.next.TransactionByHash(ctx, hash)
	if !IsNotFound(err) {
		b.limiter.record("eth_getTransactionByHash", err)
	}
	return tx, pending, err
}

func (b *limitedBackend) TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	r, err := b.next.TransactionReceipt(ctx, hash)
	if !IsNotFound(err) {
		b.limiter.record("eth_getTransactionReceipt", err)
	}
	return r, err
}

func (b *limitedBackend) BlockNumber(ctx context.Context) (uint64, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	n, err := b.next.BlockNumber(ctx)
	b.limiter.record("eth_blockNumber", err)
	return n, err
}

func (b *limitedBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	out, err := b.next.CallContract(ctx, msg, blockNumber)
	b.limiter.record("eth_call", err)
	return out, err
}

func (b *limitedBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	gas, err := b.next.EstimateGas(ctx, msg)
	b.limiter.record("eth_estimateGas", err)
	return gas, err
}

func (b *limitedBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	p, err := b.next.SuggestGasPrice(ctx)
	b.limiter.record("eth_gasPrice", err)
	return p, err
}

func (b *limitedBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	n, err := b.next.PendingNonceAt(ctx, account)
	b.limiter.record("eth_getTransactionCount", err)
	return n, err
}

func (b *limitedBackend) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	err := b.next.SendTransaction(ctx, tx)
	b.limiter.record("eth_sendRawTransaction", err)
	return err
}
