package payment

import (
	"errors"
	"fmt"
)

// ErrTransactionNotFound means no transaction matches the correlation id.
// Webhook callers log it and acknowledge the gateway anyway.
var ErrTransactionNotFound = errors.New("payment transaction not found")

// ErrIndeterminate means the poll attempt budget ran out before the
// transaction reached a terminal state. The payment may still resolve via
// webhook; this is "still processing", not a failure.
var ErrIndeterminate = errors.New("payment outcome still indeterminate")

// ValidationError rejects bad input before any network call is made.
// No transaction record is ever created for it.
type ValidationError struct {
	Field  string // Offending field
	Reason string // Human-readable reason
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
