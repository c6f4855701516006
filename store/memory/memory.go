// Package memory is an in-process SoldStateStore for tests and single-node
// deployments without a database.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/mohamed3773/MyCProject-sub000/store"
	"github.com/mohamed3773/MyCProject-sub000/types"
	"github.com/mohamed3773/MyCProject-sub000/utils"
)

type paymentKey struct {
	network types.Network
	tx      string
}

// PurchaseStore keeps purchases in maps guarded by one lock, which makes
// RecordPurchase atomic per token.
type PurchaseStore struct {
	mu        sync.RWMutex
	byToken   map[uint64]*types.PurchaseRecord
	byPayment map[paymentKey]uint64
}

var _ store.SoldStateStore = (*PurchaseStore)(nil)

// NewPurchaseStore creates an empty store.
func NewPurchaseStore() *PurchaseStore {
	return &PurchaseStore{
		byToken:   make(map[uint64]*types.PurchaseRecord),
		byPayment: make(map[paymentKey]uint64),
	}
}

func (s *PurchaseStore) IsSold(_ context.Context, tokenID uint64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byToken[tokenID]
	return ok, nil
}

// RecordPurchase inserts rec. Returns ErrDuplicateKey if the token is sold and
// ErrPaymentReused if the payment already backs another purchase.
func (s *PurchaseStore) RecordPurchase(_ context.Context, rec *types.PurchaseRecord) error {
	norm, err := store.Normalize(rec)
	if err != nil {
		return err
	}
	pk := paymentKey{network: norm.PaymentNetwork, tx: norm.PaymentTx}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byToken[norm.TokenID]; exists {
		return store.ErrDuplicateKey
	}
	if _, used := s.byPayment[pk]; used {
		return store.ErrPaymentReused
	}

	s.byToken[norm.TokenID] = norm
	s.byPayment[pk] = norm.TokenID
	return nil
}

func (s *PurchaseStore) GetByToken(_ context.Context, tokenID uint64) (*types.PurchaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byToken[tokenID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// GetByBuyer returns the buyer's purchases, newest first.
func (s *PurchaseStore) GetByBuyer(_ context.Context, buyer string) ([]*types.PurchaseRecord, error) {
	key := utils.NormalizeAddress(buyer)

	s.mu.RLock()
	var out []*types.PurchaseRecord
	for _, rec := range s.byToken {
		if rec.Buyer == key {
			cp := *rec
			out = append(out, &cp)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].PurchasedAt.Equal(out[j].PurchasedAt) {
			return out[i].TokenID < out[j].TokenID
		}
		return out[i].PurchasedAt.After(out[j].PurchasedAt)
	})
	return out, nil
}

func (s *PurchaseStore) FindByPayment(_ context.Context, network types.Network, txRef string) (*types.PurchaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byPayment[paymentKey{network: network, tx: store.NormalizeTxRef(txRef)}]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s.byToken[id]
	return &cp, nil
}

func (s *PurchaseStore) Stats(_ context.Context) (*types.SalesStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := types.NewSalesStats()
	for _, rec := range s.byToken {
		stats.Add(rec)
	}
	return stats, nil
}
