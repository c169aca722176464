package api

import (
	"context"  // Context for Redis operations
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"strings"  // String manipulation
	"time"     // Time durations

	"studycollab/internal/domain"  // Importing domain models
	"studycollab/internal/payment" // Payment store for listings and stats
	"studycollab/internal/utils"   // Utility functions

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
)

// ListPaymentsHandler returns all payment transactions, with optional
// filtering by user, status, or date
func ListPaymentsHandler(store *payment.Store, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.Background()
		// Build cache key from all query params
		var keyParts []string // Parts of the cache key
		// Append each query parameter to the key parts
		for _, k := range []string{"user_id", "status", "from", "to", "page", "page_size"} {
			keyParts = append(keyParts, k+"="+c.DefaultQuery(k, "")) // Append key-value pair
		}
		// Join key parts to form the final cache key
		cacheKey := "admin:payments:list:" + strings.Join(keyParts, ":")
		var cached struct {
			Transactions []domain.PaymentTransaction `json:"transactions"` // List of transactions
			Page         int                         `json:"page"`         // Current page
			PageSize     int                         `json:"page_size"`    // Page size
			Total        int64                       `json:"total"`        // Total number of transactions
			TotalPages   int                         `json:"total_pages"`  // Total pages
		}
		// If cached data found, return it
		found, err := utils.GetCache(ctx, rdb, cacheKey, &cached)
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{
				"transactions": cached.Transactions, // List of transactions
				"page":         cached.Page,         // Current page
				"page_size":    cached.PageSize,     // Page size
				"total":        cached.Total,        // Total number of transactions
				"total_pages":  cached.TotalPages,   // Total pages
				"cached":       true,                // Indicate response is from cache
			})
			return
		}
		page := 1      // Default page number
		pageSize := 20 // Default page size
		// Check and set page number and size from query params
		if p := c.Query("page"); p != "" {
			// If valid, set page number
			if v, err := strconv.Atoi(p); err == nil && v > 0 {
				page = v // Set page if valid
			}
		}
		// Check and set page size within limits
		if ps := c.Query("page_size"); ps != "" {
			// If valid, set page size
			if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
				pageSize = v // Set page size
			}
		}
		// Fetch the filtered page from the store
		txs, total, err := store.List(c.Request.Context(), payment.ListOptions{
			UserID:   c.Query("user_id"), // Filter by owning user
			Status:   c.Query("status"),  // Filter by status
			From:     c.Query("from"),    // Filter by start date
			To:       c.Query("to"),      // Filter by end date
			Page:     page,               // Page number
			PageSize: pageSize,           // Page size
		})
		if err != nil {
			// If error occurs, return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch transactions"})
			return
		}
		// The total number of pages
		totalPages := (int(total) + pageSize - 1) / pageSize
		respData := gin.H{
			"transactions": txs,        // List of transactions
			"page":         page,       // Current page
			"page_size":    pageSize,   // Page size
			"total":        total,      // Total number of transactions
			"total_pages":  totalPages, // Total pages
			"cached":       false,      // Indicate response is not from cache
		}
		// Cache the response for future requests
		_ = utils.SetCache(ctx, rdb, cacheKey, respData, 60*time.Second)
		c.JSON(http.StatusOK, respData) // Return the response
	}
}

// PaymentStatsHandler returns revenue and outcome counts for the admin
// dashboard
func PaymentStatsHandler(store *payment.Store, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.Background()             // Context for Redis operations
		cacheKey := "admin:payments:stats"      // Cache key for the stats
		var cached payment.Stats                // Cached stats struct
		// If cached data found, return it
		found, err := utils.GetCache(ctx, rdb, cacheKey, &cached)
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{"stats": cached, "cached": true})
			return
		}
		// Compute the aggregates from the store
		stats, err := store.AggregateStats(c.Request.Context())
		if err != nil {
			// If error occurs, return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute payment stats"})
			return
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, stats, 60*time.Second) // Cache the stats for 60 seconds
		c.JSON(http.StatusOK, gin.H{"stats": stats, "cached": false}) // Return the stats
	}
}
