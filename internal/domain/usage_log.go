package domain

import "time"

// AIUsageLog Model: one row per AI prompt consumption event.
type AIUsageLog struct {
	ID             uint      `gorm:"primaryKey"` // Primary key
	UserID         uint      `gorm:"index"`      // User who consumed the prompts
	ServiceType    string    `gorm:"not null"`   // Which AI feature consumed them
	PromptsUsed    int       `gorm:"not null"`   // Number of prompts consumed
	RemainingAfter int       `gorm:"not null"`   // Quota left after the deduction
	CreatedAt      time.Time // Timestamp of consumption
}
