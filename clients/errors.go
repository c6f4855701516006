package clients

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum"
)

// RPC error classes.
const (
	ErrClassOK                = "ok"
	ErrClassNotFound          = "not_found"
	ErrClassTimeout           = "timeout"
	ErrClassRateLimited       = "rate_limited"
	ErrClassServer            = "server_error"
	ErrClassNetwork           = "network_error"
	ErrClassInsufficientFunds = "insufficient_funds"
	ErrClassReverted          = "reverted"
	ErrClassClient            = "client_error"
)

// ClassifyRPCError buckets a node error by its message, since JSON-RPC
// providers do not agree on error codes.
func ClassifyRPCError(err error) string {
	if err == nil {
		return ErrClassOK
	}
	if errors.Is(err, ethereum.NotFound) {
		return ErrClassNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrClassTimeout
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "insufficient funds"):
		return ErrClassInsufficientFunds
	case strings.Contains(lower, "execution reverted") || strings.Contains(lower, "revert"):
		return ErrClassReverted
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return ErrClassTimeout
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "429") || strings.Contains(lower, "too many requests"):
		return ErrClassRateLimited
	case strings.Contains(lower, "500") || strings.Contains(lower, "502") || strings.Contains(lower, "503") || strings.Contains(lower, "internal server error"):
		return ErrClassServer
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "network is unreachable") || strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "broken pipe") || strings.Contains(lower, "eof"):
		return ErrClassNetwork
	default:
		return ErrClassClient
	}
}

// IsNotFound reports whether err means the node does not know the object.
func IsNotFound(err error) bool {
	return errors.Is(err, ethereum.NotFound)
}
