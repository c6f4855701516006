package store

import (
	"errors"
	"fmt"
)

// Storage errors for the append-only purchase store.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a purchase for the token already
	// exists. Records are never updated.
	ErrDuplicateKey = errors.New("duplicate key: purchase already recorded")

	// ErrPaymentReused is returned when the payment reference already backs
	// another purchase. It also matches ErrDuplicateKey.
	ErrPaymentReused = fmt.Errorf("%w: payment reference already used", ErrDuplicateKey)

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
