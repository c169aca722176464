package domain

import "time"

// User Model
type User struct {
	ID                    uint       `gorm:"primaryKey"`             // Primary key
	Username              string     `gorm:"unique;not null"`        // Unique username
	Password              string     `gorm:"not null"`               // Hashed password
	Role                  string     `gorm:"default:user"`           // Role: user or admin
	PromptsRemaining      int        `gorm:"not null;default:0"`     // Spendable AI prompt quota
	PromptsUsedCycle      int        `gorm:"not null;default:0"`     // Prompts consumed this billing cycle
	TotalPromptsPurchased int        `gorm:"not null;default:0"`     // Lifetime purchased prompts
	IsPaidUser            bool       `gorm:"not null;default:false"` // Set once a payment completes
	LastPaymentAt         *time.Time // Time of the most recent completed payment
}
