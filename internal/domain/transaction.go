package domain

import "time"

// Payment transaction statuses
const (
	StatusPending   = "pending"   // Push accepted, outcome not yet known
	StatusCompleted = "completed" // Terminal: payer authorized the payment
	StatusFailed    = "failed"    // Terminal: payer cancelled or the gateway rejected
)

// PaymentTransaction Model: one M-Pesa push payment attempt.
// Rows are never deleted; the table is the audit trail of money movement.
type PaymentTransaction struct {
	ID                   uint      `gorm:"primaryKey"`               // Primary key
	UserID               *uint     `gorm:"index"`                    // Owning user; nil when initiated before login
	PhoneNumber          string    `gorm:"not null"`                 // Normalized payer number (2547XXXXXXXX)
	ConfirmedPhoneNumber string                                      // Payer number confirmed by the gateway callback
	Amount               int64     `gorm:"not null"`                 // Requested amount in whole KES
	ConfirmedAmount      int64                                       // Amount confirmed by the gateway callback
	CheckoutRequestID    string    `gorm:"uniqueIndex;not null"`     // Gateway correlation id; reconciliation key
	MerchantRequestID    string                                      // Secondary gateway id, kept for audit only
	ReceiptNumber        string                                      // M-Pesa receipt number from the callback metadata
	TransactionDate      string                                      // Gateway confirmation timestamp, as delivered
	ResultCode           *int                                        // Gateway result code; set only at terminal transition
	ResultDescription    string                                      // Gateway result description; set only at terminal transition
	Status               string    `gorm:"not null;default:pending"` // pending, completed or failed
	Plan                 string    `gorm:"not null"`                 // Plan reference purchased
	PromptCount          int       `gorm:"not null"`                 // Prompts granted on success, fixed at creation
	PromptsGranted       bool      `gorm:"not null;default:false"`   // Entitlement idempotency guard
	CreatedAt            time.Time                                   // Timestamp of creation
	UpdatedAt            time.Time                                   // Timestamp of last mutation
}

// IsTerminal reports whether the transaction reached an absorbing state.
func (t *PaymentTransaction) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}
