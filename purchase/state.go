package purchase

import (
	"github.com/shopspring/decimal"

	"github.com/mohamed3773/MyCProject-sub000/types"
)

// State is a step of a purchase attempt.
type State string

const (
	StateQuoted            State = "Quoted"
	StatePaymentSubmitted  State = "PaymentSubmitted"
	StatePaymentVerified   State = "PaymentVerified"
	StateTransferExecuting State = "TransferExecuting"
	StateCompleted         State = "Completed"

	StateQuoteRejected   State = "QuoteRejected"
	StatePaymentRejected State = "PaymentRejected"
	StateAlreadySold     State = "AlreadySold"
	StateTransferFailed  State = "TransferFailed"
)

// Terminal reports whether no further transition leaves s.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateQuoteRejected, StatePaymentRejected, StateAlreadySold, StateTransferFailed:
		return true
	default:
		return false
	}
}

var transitions = map[State][]State{
	"":                     {StateQuoted, StateQuoteRejected, StateAlreadySold},
	StateQuoted:            {StatePaymentSubmitted},
	StatePaymentSubmitted:  {StatePaymentVerified, StatePaymentRejected},
	StatePaymentVerified:   {StateTransferExecuting, StateAlreadySold},
	StateTransferExecuting: {StateCompleted, StateTransferFailed, StateAlreadySold},
}

// CanTransition reports whether to may follow from.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Request is a buyer's claim that paymentTx pays for tokenID.
type Request struct {
	TokenID   uint64
	Rarity    types.Rarity
	Buyer     string
	Network   types.Network
	Currency  string
	PaymentTx string
	// ClaimedAmount is what the client says it paid. It is audited, never
	// used for verification.
	ClaimedAmount *decimal.Decimal
}

// Outcome is the terminal result of one purchase attempt. Business failures
// are reported here, never as a Go error.
type Outcome struct {
	AttemptID    string                           `json:"attemptId"`
	State        State                            `json:"state"`
	History      []State                          `json:"history"`
	TokenID      uint64                           `json:"tokenId"`
	Quote        *types.Quote                     `json:"quote,omitempty"`
	Verification *types.PaymentVerificationResult `json:"verification,omitempty"`
	Transfer     *types.TransferResult            `json:"transfer,omitempty"`
	Record       *types.PurchaseRecord            `json:"record,omitempty"`
	Err          *types.MarketError               `json:"error,omitempty"`

	ClaimedAmount  *decimal.Decimal `json:"claimedAmount,omitempty"`
	ClaimMismatch  bool             `json:"claimMismatch,omitempty"`
	PaymentNetwork types.Network    `json:"paymentNetwork"`
	PaymentTx      string           `json:"paymentTx"`
	// RequiresRefund is set when a verified payment did not result in a
	// transfer and must be reconciled by an operator.
	RequiresRefund bool `json:"requiresRefund,omitempty"`
	// SettlementPending is set when the transfer was submitted but not
	// confirmed in time. It is still watched and recorded if it mines.
	SettlementPending bool `json:"settlementPending,omitempty"`
}

// Succeeded reports whether the collectible was transferred and recorded.
func (o *Outcome) Succeeded() bool {
	return o.State == StateCompleted
}

func (o *Outcome) advance(to State) {
	if !CanTransition(o.State, to) {
		panic("purchase: illegal transition " + string(o.State) + " -> " + string(to))
	}
	o.State = to
	o.History = append(o.History, to)
}
