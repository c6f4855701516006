package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mohamed3773/MyCProject-sub000/purchase"
	"github.com/mohamed3773/MyCProject-sub000/types"
)

// PriceRequest is the body of POST /price.
type PriceRequest struct {
	TokenID        uint64 `json:"tokenId" validate:"lte=9223372036854775807"`
	RarityName     string `json:"rarityName" validate:"required"`
	NetworkID      string `json:"networkId" validate:"required"`
	CurrencySymbol string `json:"currencySymbol" validate:"required"`
}

// PurchaseRequest is the body of POST /purchase.
type PurchaseRequest struct {
	TokenID            uint64 `json:"tokenId" validate:"lte=9223372036854775807"`
	RarityName         string `json:"rarityName" validate:"required"`
	BuyerAddress       string `json:"buyerAddress" validate:"required,eth_addr"`
	NetworkID          string `json:"networkId" validate:"required"`
	CurrencySymbol     string `json:"currencySymbol" validate:"required"`
	PaymentTxReference string `json:"paymentTxReference" validate:"required,txhash"`
	ClaimedAmount      string `json:"claimedAmount,omitempty" validate:"omitempty,amount"`
}

type QuoteResponse struct {
	TokenID         uint64          `json:"tokenId"`
	Rarity          types.Rarity    `json:"rarity"`
	Network         types.Network   `json:"networkId"`
	Currency        string          `json:"currencySymbol"`
	Amount          string          `json:"amount"`
	Decimals        int32           `json:"decimals"`
	BasePrice       string          `json:"basePrice"`
	PriceUSD        decimal.Decimal `json:"priceUsd"`
	ReceivingWallet string          `json:"receivingWallet"`
	FallbackRates   bool            `json:"fallbackRates"`
	CreatedAt       time.Time       `json:"createdAt"`
}

func quoteResponse(q *types.Quote) QuoteResponse {
	return QuoteResponse{
		TokenID:         q.TokenID,
		Rarity:          q.Rarity,
		Network:         q.Network,
		Currency:        q.Currency,
		Amount:          q.Amount.Value.StringFixed(8),
		Decimals:        q.Amount.Decimals,
		BasePrice:       q.BasePrice.String(),
		PriceUSD:        q.PriceUSD,
		ReceivingWallet: q.ReceivingWallet,
		FallbackRates:   q.Rates.Fallback,
		CreatedAt:       q.CreatedAt,
	}
}

// TxLink is a transaction reference with its explorer URL.
type TxLink struct {
	Network     types.Network `json:"network"`
	Hash        string        `json:"hash"`
	BlockNumber uint64        `json:"blockNumber,omitempty"`
	ExplorerURL string        `json:"explorerUrl,omitempty"`
}

type PurchaseResponse struct {
	AttemptID   string          `json:"attemptId"`
	State       purchase.State  `json:"state"`
	TokenID     uint64          `json:"tokenId"`
	Buyer       string          `json:"buyer"`
	Rarity      types.Rarity    `json:"rarity"`
	Price       types.Amount    `json:"price"`
	PriceUSD    decimal.Decimal `json:"priceUsd"`
	Payment     TxLink          `json:"payment"`
	Settlement  TxLink          `json:"settlement"`
	PurchasedAt time.Time       `json:"purchasedAt"`
	// Warning is set when the transfer succeeded but bookkeeping did not.
	Warning *types.MarketError `json:"warning,omitempty"`
}

type ErrorResponse struct {
	Error          *types.MarketError               `json:"error"`
	AttemptID      string                           `json:"attemptId,omitempty"`
	State          purchase.State                   `json:"state,omitempty"`
	RequiresRefund bool                             `json:"requiresRefund,omitempty"`
	Pending        bool                             `json:"settlementPending,omitempty"`
	PaymentTx      string                           `json:"paymentTx,omitempty"`
	Verification   *types.PaymentVerificationResult `json:"verification,omitempty"`
	Transfer       *types.TransferResult            `json:"transfer,omitempty"`
}

type TokenResponse struct {
	TokenID uint64                `json:"tokenId"`
	Sold    bool                  `json:"sold"`
	Record  *types.PurchaseRecord `json:"record,omitempty"`
}
