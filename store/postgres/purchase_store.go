package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mohamed3773/MyCProject-sub000/store"
	"github.com/mohamed3773/MyCProject-sub000/types"
	"github.com/mohamed3773/MyCProject-sub000/utils"
)

// PurchaseStore implements store.SoldStateStore on PostgreSQL.
type PurchaseStore struct {
	pool *Pool
}

var _ store.SoldStateStore = (*PurchaseStore)(nil)

// NewPurchaseStore creates a store over pool.
func NewPurchaseStore(pool *Pool) *PurchaseStore {
	return &PurchaseStore{pool: pool}
}

const purchaseColumns = `token_id, buyer, payment_network, payment_tx, settlement_network, settlement_tx,
	price_currency, price_decimals, price_amount::text, price_usd::text, rarity, purchased_at`

func (s *PurchaseStore) IsSold(ctx context.Context, tokenID uint64) (bool, error) {
	if err := store.CheckTokenID(tokenID); err != nil {
		return false, err
	}
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM purchases WHERE token_id = $1)`, int64(tokenID)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query sold state: %w", err)
	}
	return exists, nil
}

// RecordPurchase inserts rec. Returns store.ErrDuplicateKey if the token is
// sold and store.ErrPaymentReused if the payment already backs a purchase.
func (s *PurchaseStore) RecordPurchase(ctx context.Context, rec *types.PurchaseRecord) error {
	norm, err := store.Normalize(rec)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO purchases (
			token_id, buyer, payment_network, payment_tx, settlement_network, settlement_tx,
			price_currency, price_decimals, price_amount, price_usd, rarity, purchased_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10::numeric, $11, $12)`,
		int64(norm.TokenID),
		norm.Buyer,
		string(norm.PaymentNetwork),
		norm.PaymentTx,
		string(norm.SettlementNetwork),
		norm.SettlementTx,
		norm.Price.Currency,
		norm.Price.Decimals,
		norm.Price.Value.String(),
		norm.PriceUSD.String(),
		string(norm.Rarity),
		norm.PurchasedAt.UTC(),
	)
	switch uniqueViolation(err) {
	case "":
	case constraintPayment:
		return store.ErrPaymentReused
	default:
		return store.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}
	return nil
}

func (s *PurchaseStore) GetByToken(ctx context.Context, tokenID uint64) (*types.PurchaseRecord, error) {
	if err := store.CheckTokenID(tokenID); err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE token_id = $1`, int64(tokenID))
	rec, err := scanPurchase(row)
	if isNotFoundError(err) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query purchase: %w", err)
	}
	return rec, nil
}

// GetByBuyer returns the buyer's purchases, newest first.
func (s *PurchaseStore) GetByBuyer(ctx context.Context, buyer string) ([]*types.PurchaseRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE buyer = $1 ORDER BY purchased_at DESC, token_id ASC`,
		utils.NormalizeAddress(buyer))
	if err != nil {
		return nil, fmt.Errorf("query purchases by buyer: %w", err)
	}
	defer rows.Close()

	var out []*types.PurchaseRecord
	for rows.Next() {
		rec, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchases: %w", err)
	}
	return out, nil
}

func (s *PurchaseStore) FindByPayment(ctx context.Context, network types.Network, txRef string) (*types.PurchaseRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE payment_network = $1 AND payment_tx = $2`,
		string(network), store.NormalizeTxRef(txRef))
	rec, err := scanPurchase(row)
	if isNotFoundError(err) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query purchase by payment: %w", err)
	}
	return rec, nil
}

func (s *PurchaseStore) Stats(ctx context.Context) (*types.SalesStats, error) {
	stats := types.NewSalesStats()

	var revenue string
	err := s.pool.QueryRow(ctx, `SELECT count(*), COALESCE(sum(price_usd), 0)::text FROM purchases`).
		Scan(&stats.Count, &revenue)
	if err != nil {
		return nil, fmt.Errorf("query sales totals: %w", err)
	}
	if stats.RevenueUSD, err = decimal.NewFromString(revenue); err != nil {
		return nil, fmt.Errorf("parse revenue: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT price_currency, sum(price_amount)::text FROM purchases GROUP BY price_currency`)
	if err != nil {
		return nil, fmt.Errorf("query revenue by currency: %w", err)
	}
	for rows.Next() {
		var currency, total string
		if err := rows.Scan(&currency, &total); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan revenue by currency: %w", err)
		}
		v, err := decimal.NewFromString(total)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("parse revenue for %s: %w", currency, err)
		}
		stats.RevenueByCurrency[currency] = v
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revenue by currency: %w", err)
	}

	rows, err = s.pool.Query(ctx, `SELECT rarity, count(*) FROM purchases GROUP BY rarity`)
	if err != nil {
		return nil, fmt.Errorf("query count by rarity: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rarity string
		var n int64
		if err := rows.Scan(&rarity, &n); err != nil {
			return nil, fmt.Errorf("scan count by rarity: %w", err)
		}
		stats.CountByRarity[types.Rarity(rarity)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate count by rarity: %w", err)
	}
	return stats, nil
}

func scanPurchase(row pgx.Row) (*types.PurchaseRecord, error) {
	var (
		rec                   types.PurchaseRecord
		tokenID               int64
		paymentNet, settleNet string
		rarity                string
		priceAmount, priceUSD string
	)
	err := row.Scan(
		&tokenID,
		&rec.Buyer,
		&paymentNet,
		&rec.PaymentTx,
		&settleNet,
		&rec.SettlementTx,
		&rec.Price.Currency,
		&rec.Price.Decimals,
		&priceAmount,
		&priceUSD,
		&rarity,
		&rec.PurchasedAt,
	)
	if err != nil {
		return nil, err
	}

	if rec.Price.Value, err = decimal.NewFromString(priceAmount); err != nil {
		return nil, fmt.Errorf("parse price amount: %w", err)
	}
	if rec.PriceUSD, err = decimal.NewFromString(priceUSD); err != nil {
		return nil, fmt.Errorf("parse price usd: %w", err)
	}
	rec.TokenID = uint64(tokenID)
	rec.PaymentNetwork = types.Network(paymentNet)
	rec.SettlementNetwork = types.Network(settleNet)
	rec.Rarity = types.Rarity(rarity)
	rec.PurchasedAt = rec.PurchasedAt.UTC()
	return &rec, nil
}
