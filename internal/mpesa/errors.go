package mpesa

import (
	"errors"
	"fmt"
)

// ErrStillProcessing is returned by STKQuery while the gateway has not yet
// resolved the push. It is not a failure; the transaction stays pending.
var ErrStillProcessing = errors.New("transaction is still being processed")

// AuthError reports a rejected credential exchange with the token endpoint.
type AuthError struct {
	StatusCode int    // HTTP status returned by the gateway
	Body       string // Raw gateway error payload, for diagnostics
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("mpesa auth failed: status %d: %s", e.StatusCode, e.Body)
}

// GatewayError reports a push or status call the gateway rejected, or one
// that failed in transit. Description carries the gateway's human-readable
// message when one was delivered.
type GatewayError struct {
	StatusCode  int    // HTTP status, zero on transport failure
	Code        string // Gateway error code, when delivered
	Description string // Gateway's human-readable message
	Err         error  // Underlying transport error, when any
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mpesa gateway call failed: %v", e.Err)
	}
	return fmt.Sprintf("mpesa gateway rejected request: status %d code %q: %s", e.StatusCode, e.Code, e.Description)
}

func (e *GatewayError) Unwrap() error { return e.Err }
