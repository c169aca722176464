package payment

import (
	"context"
	"fmt"
	"time"

	"studycollab/internal/domain" // Importing domain models

	"github.com/sirupsen/logrus" // Logging library
	"gorm.io/gorm"               // GORM ORM library
)

// Entitlements grants purchased prompt quota to user accounts. Application
// is idempotent per transaction: the prompts_granted flag is flipped in the
// same database transaction as the quota credit, so a crash between the two
// can never double-credit on retry.
type Entitlements struct {
	db *gorm.DB
}

// NewEntitlements creates an Entitlements applier on the given database.
func NewEntitlements(db *gorm.DB) *Entitlements {
	return &Entitlements{db: db}
}

// ApplyIfNeeded credits the owning account once for a completed payment.
// Calls for non-completed or already-granted transactions are no-ops, as are
// concurrent duplicate calls (the grant flag is flipped with a guarded
// UPDATE inside the transaction). A completed payment with no owning user is
// deferred: the quota is granted later by account linking, outside this core.
func (e *Entitlements) ApplyIfNeeded(ctx context.Context, t *domain.PaymentTransaction) error {
	// Only a completed, not-yet-granted transaction can credit quota
	if t.Status != domain.StatusCompleted || t.PromptsGranted {
		return nil
	}
	if t.UserID == nil {
		// Payment was initiated before login; leave the grant for account linking
		logrus.WithFields(logrus.Fields{
			"transaction_id":      t.ID,
			"checkout_request_id": t.CheckoutRequestID,
		}).Info("Entitlement deferred: transaction has no owning user")
		return nil
	}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Flip the grant flag first; zero rows means another caller already won
		res := tx.Model(&domain.PaymentTransaction{}).
			Where("id = ? AND prompts_granted = ?", t.ID, false).
			Update("prompts_granted", true)
		if res.Error != nil {
			return res.Error // Return error to rollback
		}
		if res.RowsAffected == 0 {
			return nil // Already granted elsewhere; nothing to credit
		}
		// Credit the quota and mark the account paid, atomically with the flag
		now := time.Now()
		if err := tx.Model(&domain.User{}).Where("id = ?", *t.UserID).Updates(map[string]any{
			"prompts_remaining":       gorm.Expr("prompts_remaining + ?", t.PromptCount),
			"total_prompts_purchased": gorm.Expr("total_prompts_purchased + ?", t.PromptCount),
			"prompts_used_cycle":      0,
			"is_paid_user":            true,
			"last_payment_at":         now,
		}).Error; err != nil {
			return err // Return error to rollback
		}
		t.PromptsGranted = true
		return nil // Commit transaction
	})
	if err != nil {
		// Log the error with context
		logrus.WithFields(logrus.Fields{
			"transaction_id":      t.ID,
			"checkout_request_id": t.CheckoutRequestID,
			"user_id":             *t.UserID,
			"error":               err.Error(),
		}).Error("Failed to grant prompt entitlement")
		return fmt.Errorf("grant entitlement: %w", err)
	}

	if t.PromptsGranted {
		// Log successful grant
		logrus.WithFields(logrus.Fields{
			"transaction_id":      t.ID,
			"checkout_request_id": t.CheckoutRequestID,
			"user_id":             *t.UserID,
			"prompts":             t.PromptCount,
			"plan":                t.Plan,
			"timestamp":           time.Now().Format(time.RFC3339), // Current timestamp
		}).Info("Prompts granted")
	}
	return nil
}
