// Package types holds the value types shared by every stage of the purchase
// settlement pipeline.
package types

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Network represents a supported ledger. The set is closed: every value must
// be listed in AllNetworks and handled by Family.
type Network string

const (
	NetworkEthereum Network = "ethereum"
	NetworkPolygon  Network = "polygon"
	NetworkBase     Network = "base"
	NetworkBSC      Network = "bsc"
	NetworkCronos   Network = "cronos"
	NetworkSepolia  Network = "sepolia" // testnet
)

// AllNetworks lists every Network in display order.
var AllNetworks = []Network{
	NetworkEthereum,
	NetworkPolygon,
	NetworkBase,
	NetworkBSC,
	NetworkCronos,
	NetworkSepolia,
}

// ParseNetwork maps an identifier to a Network, ignoring case and surrounding space.
func ParseNetwork(s string) (Network, bool) {
	n := Network(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllNetworks {
		if n == known {
			return n, true
		}
	}
	return "", false
}

// Family classifies the network. All supported networks are EVM ledgers today.
func (n Network) Family() ChainFamily {
	switch n {
	case NetworkEthereum, NetworkPolygon, NetworkBase, NetworkBSC, NetworkCronos, NetworkSepolia:
		return ChainEVM
	default:
		return ""
	}
}

func (n Network) IsEVM() bool {
	return n.Family() == ChainEVM
}

// IsTestnet reports whether the network carries no real value.
func (n Network) IsTestnet() bool {
	return n == NetworkSepolia
}

func (n Network) String() string {
	return string(n)
}

// ChainFamily classifies a network into a blockchain family.
type ChainFamily string

const (
	ChainEVM ChainFamily = "evm"
)

// RateSnapshot records the USD rates a quote was computed from.
type RateSnapshot struct {
	BaseUSD   decimal.Decimal `json:"baseUsd"`
	TargetUSD decimal.Decimal `json:"targetUsd"`
	// Fallback is set when either rate came from the last-known-good table.
	Fallback bool `json:"fallback"`
}

// Quote is an advisory price for one collectible in a buyer-chosen currency.
// It is never persisted and never trusted at verification time.
type Quote struct {
	TokenID         uint64          `json:"tokenId"`
	Rarity          Rarity          `json:"rarity"`
	BasePrice       Amount          `json:"basePrice"`
	Network         Network         `json:"network"`
	Currency        string          `json:"currency"`
	Amount          Amount          `json:"amount"`
	PriceUSD        decimal.Decimal `json:"priceUsd"`
	Rates           RateSnapshot    `json:"rates"`
	ReceivingWallet string          `json:"receivingWallet"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// ExpectedPayment is what a payment transaction has to satisfy.
type ExpectedPayment struct {
	Buyer           string `json:"buyer" validate:"required"`
	ReceivingWallet string `json:"receivingWallet" validate:"required"`
	Amount          Amount `json:"amount"`
}

// VerificationChecks are the individual sub-checks of a payment verification.
type VerificationChecks struct {
	Exists                bool `json:"exists"`
	Confirmed             bool `json:"confirmed"`
	SenderMatch           bool `json:"senderMatch"`
	RecipientMatch        bool `json:"recipientMatch"`
	AmountWithinTolerance bool `json:"amountWithinTolerance"`
}

// Passed reports whether every sub-check succeeded.
func (c VerificationChecks) Passed() bool {
	return c.Exists && c.Confirmed && c.SenderMatch && c.RecipientMatch && c.AmountWithinTolerance
}

// Payment verification failure reasons.
const (
	ReasonInvalidTxReference        = "invalid transaction reference"
	ReasonTxNotFound                = "transaction not found"
	ReasonTxPending                 = "transaction pending"
	ReasonTxFailed                  = "transaction failed"
	ReasonSenderMismatch            = "sender mismatch"
	ReasonRecipientMismatch         = "recipient mismatch"
	ReasonAmountOutOfTolerance      = "amount out of tolerance"
	ReasonInsufficientConfirmations = "insufficient confirmations"
	ReasonTokenContractMismatch     = "token contract mismatch"
	ReasonTokenTransferNotFound     = "token transfer not found"
	ReasonTokenTransferAmbiguous    = "ambiguous token transfer"
	ReasonUnsupportedNetwork        = "unsupported network"
	ReasonUnsupportedCurrency       = "unsupported currency"
	ReasonNetworkUnavailable        = "network unavailable"
	ReasonPaymentAlreadyUsed        = "payment already used"
)

// PaymentVerificationResult contains the result of payment verification
type PaymentVerificationResult struct {
	IsValid       bool               `json:"isValid"`
	InvalidReason string             `json:"invalidReason,omitempty"`
	Checks        VerificationChecks `json:"checks"`
	Network       Network            `json:"network"`
	TxHash        string             `json:"txHash"`
	Sender        string             `json:"sender,omitempty"`
	Recipient     string             `json:"recipient,omitempty"`
	Amount        *Amount            `json:"amount,omitempty"`
	BlockNumber   uint64             `json:"blockNumber,omitempty"`
	Confirmations uint64             `json:"confirmations"`
	Error         string             `json:"error,omitempty"`
}

// TransferResult contains the result of an ownership transfer on the settlement network.
type TransferResult struct {
	Success     bool    `json:"success"`
	Network     Network `json:"network"`
	TxHash      string  `json:"txHash,omitempty"`
	BlockNumber uint64  `json:"blockNumber,omitempty"`
	From        string  `json:"from"`
	To          string  `json:"to"`
	TokenID     uint64  `json:"tokenId"`
	ErrorCode   string  `json:"errorCode,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// PurchaseRecord is the durable proof that a collectible was sold.
// It is created once per tokenId and never updated.
type PurchaseRecord struct {
	TokenID           uint64          `json:"tokenId"`
	Buyer             string          `json:"buyer"`
	PaymentNetwork    Network         `json:"paymentNetwork"`
	PaymentTx         string          `json:"paymentTx"`
	SettlementNetwork Network         `json:"settlementNetwork"`
	SettlementTx      string          `json:"settlementTx"`
	Price             Amount          `json:"price"`
	PriceUSD          decimal.Decimal `json:"priceUsd"`
	Rarity            Rarity          `json:"rarity"`
	PurchasedAt       time.Time       `json:"purchasedAt"`
}

// SalesStats aggregates every PurchaseRecord.
type SalesStats struct {
	Count             int64                      `json:"count"`
	RevenueUSD        decimal.Decimal            `json:"revenueUsd"`
	RevenueByCurrency map[string]decimal.Decimal `json:"revenueByCurrency"`
	CountByRarity     map[Rarity]int64           `json:"countByRarity"`
}

// NewSalesStats returns zeroed stats with initialised maps.
func NewSalesStats() *SalesStats {
	return &SalesStats{
		RevenueUSD:        decimal.Zero,
		RevenueByCurrency: make(map[string]decimal.Decimal),
		CountByRarity:     make(map[Rarity]int64),
	}
}

// Add folds one record into the stats.
func (s *SalesStats) Add(r *PurchaseRecord) {
	s.Count++
	s.RevenueUSD = s.RevenueUSD.Add(r.PriceUSD)
	s.RevenueByCurrency[r.Price.Currency] = s.RevenueByCurrency[r.Price.Currency].Add(r.Price.Value)
	s.CountByRarity[r.Rarity]++
}
