package types

import "fmt"

// Step names the stage of a purchase that produced an error, so a client can
// tell whether a retry is safe.
type Step string

const (
	StepQuote     Step = "quote"
	StepPayment   Step = "payment"
	StepOwnership Step = "ownership"
	StepTransfer  Step = "transfer"
	StepRecord    Step = "record"
)

// MarketError is the structured error returned across component boundaries.
type MarketError struct {
	Code    string      `json:"code"`
	Step    Step        `json:"step"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e MarketError) Error() string {
	return e.Message
}

// NewError builds a MarketError with a formatted message.
func NewError(code string, step Step, format string, args ...any) *MarketError {
	return &MarketError{
		Code:    code,
		Step:    step,
		Message: fmt.Sprintf(format, args...),
	}
}

// Common error codes
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeUnsupportedNetwork  = "UNSUPPORTED_NETWORK"
	ErrCodeUnsupportedCurrency = "UNSUPPORTED_CURRENCY"
	ErrCodePaymentRejected     = "PAYMENT_VERIFICATION_FAILED"
	ErrCodeAlreadySold         = "ALREADY_SOLD"
	ErrCodeOwnershipMismatch   = "OWNERSHIP_MISMATCH"
	ErrCodeInsufficientFunds   = "INSUFFICIENT_FUNDS_FOR_FEE"
	ErrCodeTransferReverted    = "TRANSFER_REVERTED"
	ErrCodeFeeEstimation       = "FEE_ESTIMATION_FAILED"
	ErrCodeConfirmationTimeout = "CONFIRMATION_TIMEOUT"
	ErrCodeTransferFailed      = "TRANSFER_FAILED"
	ErrCodeStore               = "STORE_ERROR"
	ErrCodeNetworkUnavailable  = "NETWORK_UNAVAILABLE"
	ErrCodeTransactionNotFound = "TRANSACTION_NOT_FOUND"
	ErrCodeConfigError         = "CONFIG_ERROR"
)
