// Package store is the durable record of sold collectibles. The existence of
// a PurchaseRecord for a token is the only source of truth for "sold".
package store

import (
	"context"
	"math"
	"strings"

	"github.com/mohamed3773/MyCProject-sub000/types"
	"github.com/mohamed3773/MyCProject-sub000/utils"
)

// SoldStateStore persists purchases. RecordPurchase must be atomic per token:
// of two concurrent writers for the same token exactly one succeeds and the
// other gets ErrDuplicateKey.
type SoldStateStore interface {
	IsSold(ctx context.Context, tokenID uint64) (bool, error)
	RecordPurchase(ctx context.Context, rec *types.PurchaseRecord) error
	GetByToken(ctx context.Context, tokenID uint64) (*types.PurchaseRecord, error)
	GetByBuyer(ctx context.Context, buyer string) ([]*types.PurchaseRecord, error)
	FindByPayment(ctx context.Context, network types.Network, txRef string) (*types.PurchaseRecord, error)
	Stats(ctx context.Context) (*types.SalesStats, error)
}

// Normalize validates rec and returns a copy with addresses and transaction
// references lower-cased.
func Normalize(rec *types.PurchaseRecord) (*types.PurchaseRecord, error) {
	if rec == nil || rec.Buyer == "" || rec.PaymentTx == "" || rec.PaymentNetwork == "" {
		return nil, ErrInvalidInput
	}
	if err := CheckTokenID(rec.TokenID); err != nil {
		return nil, err
	}
	out := *rec
	out.Buyer = utils.NormalizeAddress(rec.Buyer)
	out.PaymentTx = NormalizeTxRef(rec.PaymentTx)
	out.SettlementTx = NormalizeTxRef(rec.SettlementTx)
	return &out, nil
}

// CheckTokenID rejects ids that do not fit a signed 64-bit column.
func CheckTokenID(id uint64) error {
	if id > math.MaxInt64 {
		return ErrInvalidInput
	}
	return nil
}

// NormalizeTxRef lower-cases a transaction reference.
func NormalizeTxRef(ref string) string {
	return strings.ToLower(strings.TrimSpace(ref))
}
