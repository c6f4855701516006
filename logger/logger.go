// Package logger is the structured logging port used by every pipeline stage.
package logger

// Logger writes leveled messages with structured fields. Well-known field keys
// are listed below so the stages agree on naming.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// Field keys.
const (
	FieldNetwork   = "network"
	FieldTokenID   = "token_id"
	FieldTx        = "tx"
	FieldState     = "state"
	FieldReason    = "reason"
	FieldBuyer     = "buyer"
	FieldAttemptID = "attempt_id"
	FieldError     = "error"
)

type NoopLogger struct{}

func (NoopLogger) Debug(string, map[string]any) {}
func (NoopLogger) Info(string, map[string]any)  {}
func (NoopLogger) Warn(string, map[string]any)  {}
func (NoopLogger) Error(string, map[string]any) {}

// OrNoop returns l, or a NoopLogger when l is nil.
func OrNoop(l Logger) Logger {
	if l == nil {
		return NoopLogger{}
	}
	return l
}
