package payment

import (
	"context"
	"time"

	"studycollab/internal/domain" // Importing domain models

	"github.com/sirupsen/logrus" // Logging library
)

// Poller drives the client-visible status-check loop: a bounded number of
// gateway queries at a fixed interval, used only while the webhook has not
// arrived. The store, not the poll response, is the source of truth, and the
// poller never forces a terminal write of its own.
type Poller struct {
	store       *Store
	engine      *Engine
	interval    time.Duration
	maxAttempts int
}

// NewPoller creates a status poller with the given budget.
func NewPoller(store *Store, engine *Engine, interval time.Duration, maxAttempts int) *Poller {
	return &Poller{store: store, engine: engine, interval: interval, maxAttempts: maxAttempts}
}

// Wait polls until the transaction is terminal, the attempt budget runs out,
// or the context is cancelled. Budget exhaustion returns the still-pending
// transaction together with ErrIndeterminate: the payment may yet resolve
// via webhook. Transient gateway failures consume an attempt but do not
// abort the loop.
func (p *Poller) Wait(ctx context.Context, checkoutRequestID string) (*domain.PaymentTransaction, error) {
	var last *domain.PaymentTransaction
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		// The webhook may have settled it between attempts; check the store first
		t, err := p.store.GetByCheckoutID(ctx, checkoutRequestID)
		if err != nil {
			return nil, err
		}
		if t.IsTerminal() {
			return t, nil
		}
		last = t

		t, err = p.engine.OnPoll(ctx, checkoutRequestID)
		if err != nil {
			// Transient gateway trouble; keep the attempt loop going
			logrus.WithFields(logrus.Fields{
				"checkout_request_id": checkoutRequestID,
				"attempt":             attempt,
				"error":               err.Error(),
			}).Warn("Status poll attempt failed")
		} else {
			if t.IsTerminal() {
				return t, nil
			}
			last = t
		}

		if attempt < p.maxAttempts {
			select {
			case <-ctx.Done():
				return last, ctx.Err()
			case <-time.After(p.interval):
			}
		}
	}
	return last, ErrIndeterminate
}
