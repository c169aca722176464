package api

import (
	"context"  // Context for Redis operations
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"time"     // Cache TTLs

	"studycollab/internal/domain" // Importing domain models
	"studycollab/internal/utils"  // Utility functions

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
	"gorm.io/gorm"                 // GORM ORM library
)

// quotaCacheKey builds the cache key for a user's prompt quota
func quotaCacheKey(userID uint) string {
	return "quota:user:" + strconv.Itoa(int(userID))
}

// UsePromptRequest consumes prompts from the user's quota
type UsePromptRequest struct {
	ServiceType string `json:"service_type" binding:"required"` // Which AI feature is consuming
	Count       int    `json:"count"`                           // Prompts to consume, defaults to 1
}

// QuotaHandler returns the authenticated user's prompt quota
func QuotaHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID") // Get userID from context
		// Check if userID exists in context
		if !exists {
			// If not, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		ctx := context.Background()              // Context for Redis operations
		cacheKey := quotaCacheKey(userID.(uint)) // Cache key for the quota
		var cached struct {
			Remaining int  `json:"remaining"`  // Prompts remaining
			UsedCycle int  `json:"used_cycle"` // Prompts used this cycle
			Purchased int  `json:"purchased"`  // Lifetime purchased prompts
			IsPaid    bool `json:"is_paid"`    // Whether the user has ever paid
		}
		// If cached data found, return it
		found, err := utils.GetCache(ctx, rdb, cacheKey, &cached)
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{
				"remaining":  cached.Remaining, // Prompts remaining
				"used_cycle": cached.UsedCycle, // Prompts used this cycle
				"purchased":  cached.Purchased, // Lifetime purchased prompts
				"is_paid":    cached.IsPaid,    // Paid flag
				"cached":     true,             // Indicate response is from cache
			})
			return
		}
		var user domain.User // Fetch user from database
		if err := db.First(&user, userID).Error; err != nil {
			// Return not found if the user doesn't exist
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		resp := gin.H{
			"remaining":  user.PromptsRemaining,      // Prompts remaining
			"used_cycle": user.PromptsUsedCycle,      // Prompts used this cycle
			"purchased":  user.TotalPromptsPurchased, // Lifetime purchased prompts
			"is_paid":    user.IsPaidUser,            // Paid flag
			"cached":     false,                      // Not from cache
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, 60*time.Second) // Cache the quota for 60 seconds
		c.JSON(http.StatusOK, resp)                                  // Return the quota
	}
}

// UsePromptHandler consumes prompts from the user's quota and logs the usage
func UsePromptHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID") // Get userID from context
		// Check if userID exists in context
		if !exists {
			// If not, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var req UsePromptRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		if req.Count <= 0 {
			req.Count = 1 // Default to a single prompt
		}
		uid := userID.(uint) // Authenticated user id
		var remaining int    // Quota left after the deduction
		// Deduct and log atomically; the guarded UPDATE prevents going negative
		err := db.Transaction(func(tx *gorm.DB) error {
			// Deduct only when enough quota remains
			res := tx.Model(&domain.User{}).
				Where("id = ? AND prompts_remaining >= ?", uid, req.Count).
				Updates(map[string]any{
					"prompts_remaining":  gorm.Expr("prompts_remaining - ?", req.Count),
					"prompts_used_cycle": gorm.Expr("prompts_used_cycle + ?", req.Count),
				})
			if res.Error != nil {
				return res.Error // Return error to rollback
			}
			if res.RowsAffected == 0 {
				return gorm.ErrRecordNotFound // Insufficient quota
			}
			var user domain.User // Reload for the post-deduction balance
			if err := tx.First(&user, uid).Error; err != nil {
				return err // Return error to rollback
			}
			remaining = user.PromptsRemaining
			// Log the consumption event
			log := domain.AIUsageLog{
				UserID:         uid,
				ServiceType:    req.ServiceType,
				PromptsUsed:    req.Count,
				RemainingAfter: remaining,
			}
			if err := tx.Create(&log).Error; err != nil {
				return err // Return error to rollback
			}
			return nil // Commit transaction
		})
		// Handle transaction result
		if err == gorm.ErrRecordNotFound {
			// Not enough quota left for the request
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "No AI prompts remaining. Please purchase a plan."})
			return
		}
		if err != nil {
			// Log the error with context
			logrus.WithFields(logrus.Fields{
				"user_id": uid,          // User ID
				"count":   req.Count,    // Requested prompts
				"error":   err.Error(),  // Error message
			}).Error("Prompt deduction failed") // Log deduction failure
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to use prompt"})
			return
		}
		// Log successful consumption
		logrus.WithFields(logrus.Fields{
			"user_id":      uid,             // User ID
			"service_type": req.ServiceType, // Consuming feature
			"count":        req.Count,       // Prompts consumed
			"remaining":    remaining,       // Quota left
		}).Info("Prompt used") // Log prompt usage
		// Invalidate the quota cache
		_ = utils.DeleteCache(context.Background(), rdb, quotaCacheKey(uid))
		// Return the new balance
		c.JSON(http.StatusOK, gin.H{"remaining": remaining})
	}
}
