package payment

import (
	"context"
	"errors"
	"strconv"

	"studycollab/internal/domain" // Importing domain models
	"studycollab/internal/mpesa"  // Gateway client and payload types

	"github.com/sirupsen/logrus" // Logging library
)

// StatusQuerier is the slice of the gateway client the engine needs for the
// poll path.
type StatusQuerier interface {
	STKQuery(ctx context.Context, checkoutRequestID string) (*mpesa.STKQueryResponse, error)
}

// Engine reconciles payment outcomes. The inbound webhook and the outbound
// status poll are two producers feeding one idempotent consumer: both funnel
// into the store's guarded terminal transition, so whichever arrives first
// wins and the other becomes a no-op.
type Engine struct {
	store        *Store
	gateway      StatusQuerier
	entitlements *Entitlements
}

// NewEngine creates a reconciliation engine.
func NewEngine(store *Store, gateway StatusQuerier, entitlements *Entitlements) *Engine {
	return &Engine{store: store, gateway: gateway, entitlements: entitlements}
}

// OnWebhook applies the gateway's asynchronous callback verdict. An unknown
// correlation id is reported as ErrTransactionNotFound — callers must still
// acknowledge the gateway to avoid provider-side retry storms. Duplicate
// deliveries are safe no-ops.
func (e *Engine) OnWebhook(ctx context.Context, env *mpesa.CallbackEnvelope) (*domain.PaymentTransaction, error) {
	cb := env.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		logrus.Warn("M-Pesa callback missing CheckoutRequestID")
		return nil, ErrTransactionNotFound
	}

	res := TerminalResult{
		ResultCode:        cb.ResultCode,
		ResultDescription: cb.ResultDesc,
	}
	if cb.ResultCode == 0 {
		// Success callbacks carry confirmation metadata worth keeping for audit
		res.ReceiptNumber = cb.CallbackMetadata.StringItem("MpesaReceiptNumber")
		res.ConfirmedPhone = cb.CallbackMetadata.StringItem("PhoneNumber")
		res.ConfirmedAmount = cb.CallbackMetadata.Int64Item("Amount")
		res.TransactionDate = cb.CallbackMetadata.StringItem("TransactionDate")
	}

	t, applied, err := e.applyVerdict(ctx, cb.CheckoutRequestID, res)
	if errors.Is(err, ErrTransactionNotFound) {
		logrus.WithField("checkout_request_id", cb.CheckoutRequestID).
			Warn("M-Pesa callback for unknown transaction")
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if !applied {
		// Duplicate or late delivery; the first writer already settled it
		logrus.WithFields(logrus.Fields{
			"checkout_request_id": cb.CheckoutRequestID,
			"status":              t.Status,
		}).Info("M-Pesa callback ignored: transaction already terminal")
	}
	return t, nil
}

// OnPoll queries the gateway for the current outcome and applies it through
// the same terminal transition as the webhook path. While the gateway
// reports the push as still processing, the transaction is left pending and
// returned unchanged.
func (e *Engine) OnPoll(ctx context.Context, checkoutRequestID string) (*domain.PaymentTransaction, error) {
	t, err := e.store.GetByCheckoutID(ctx, checkoutRequestID)
	if err != nil {
		return nil, err
	}
	if t.IsTerminal() {
		// The webhook already settled it; nothing to ask the gateway
		return t, nil
	}

	q, err := e.gateway.STKQuery(ctx, checkoutRequestID)
	if errors.Is(err, mpesa.ErrStillProcessing) {
		return t, nil
	}
	if err != nil {
		return nil, err
	}
	if q.ResultCode == "" {
		// No verdict yet
		return t, nil
	}
	code, err := strconv.Atoi(q.ResultCode)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"checkout_request_id": checkoutRequestID,
			"result_code":         q.ResultCode,
		}).Warn("M-Pesa status query returned a non-numeric result code")
		return t, nil
	}

	t, _, err = e.applyVerdict(ctx, checkoutRequestID, TerminalResult{
		ResultCode:        code,
		ResultDescription: q.ResultDesc,
	})
	return t, err
}

// applyVerdict performs the guarded terminal transition and, when this call
// is the one that completed the transaction, grants the entitlement.
func (e *Engine) applyVerdict(ctx context.Context, checkoutRequestID string, res TerminalResult) (*domain.PaymentTransaction, bool, error) {
	t, applied, err := e.store.ApplyTerminal(ctx, checkoutRequestID, res)
	if err != nil {
		return nil, false, err
	}
	if applied {
		// Log the settled outcome as a money-movement event
		logrus.WithFields(logrus.Fields{
			"checkout_request_id": checkoutRequestID,
			"status":              t.Status,
			"result_code":         res.ResultCode,
			"result_desc":         res.ResultDescription,
			"amount":              t.Amount,
		}).Info("Payment transaction settled")
	}
	if t.Status == domain.StatusCompleted {
		// Idempotent regardless of which caller settled the transaction
		if err := e.entitlements.ApplyIfNeeded(ctx, t); err != nil {
			return t, applied, err
		}
	}
	return t, applied, nil
}
