package api

import (
	"context"       // Context for Redis operations
	"encoding/json" // JSON decoding of the provider callback
	"errors"        // Error inspection
	"net/http"      // HTTP status codes
	"strconv"       // String conversion
	"time"          // Cache TTLs

	"studycollab/internal/domain"  // Importing domain models
	"studycollab/internal/mpesa"   // Gateway payload types and errors
	"studycollab/internal/payment" // Payment core components
	"studycollab/internal/utils"   // Utility functions

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
)

// InitiateRequest starts a push payment for a plan
type InitiateRequest struct {
	Phone string `json:"phone" binding:"required"` // Payer phone number, any accepted local form
	Plan  string `json:"plan" binding:"required"`  // Plan reference from the catalog
}

// PlansHandler returns the purchasable plan catalog
func PlansHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"plans": domain.Plans}) // Fixed in-code catalog
	}
}

// InitiatePaymentHandler validates the request and submits the push payment
func InitiatePaymentHandler(svc *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID") // Get userID from context
		// Check if userID exists in context
		if !exists {
			// If not, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var req InitiateRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		uid := userID.(uint) // Owning user for the entitlement
		t, err := svc.Initiate(c.Request.Context(), &uid, req.Phone, req.Plan)
		if err != nil {
			respondPaymentError(c, err) // Map the error taxonomy to HTTP
			return
		}
		// Return the correlation id the client will poll with
		c.JSON(http.StatusOK, gin.H{
			"success":             true,
			"message":             "Payment request sent successfully. Please check your phone to complete the transaction.",
			"transaction_id":      t.ID,
			"checkout_request_id": t.CheckoutRequestID,
		})
	}
}

// statusCacheKey scopes the cached status to the reading user; a warm cache
// entry must never answer for a user the ownership check would refuse
func statusCacheKey(checkoutID string, userID uint) string {
	return "payment:status:" + checkoutID + ":user:" + strconv.Itoa(int(userID))
}

// PaymentStatusHandler returns the current status for a checkout request id
func PaymentStatusHandler(store *payment.Store, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID") // Get userID from context
		// Check if userID exists in context
		if !exists {
			// If not, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		checkoutID := c.Param("checkout_id")                  // Correlation id from the path
		ctx := context.Background()                           // Context for Redis operations
		cacheKey := statusCacheKey(checkoutID, userID.(uint)) // Per-user cache key for the status
		var cached struct {
			Status  string `json:"status"`  // Transaction status
			Message string `json:"message"` // Gateway result description
		}
		// If cached data found, return it
		found, err := utils.GetCache(ctx, rdb, cacheKey, &cached)
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{"status": cached.Status, "message": cached.Message, "cached": true})
			return
		}
		// Fetch the transaction from the store
		t, err := store.GetByCheckoutID(c.Request.Context(), checkoutID)
		if errors.Is(err, payment.ErrTransactionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch transaction"})
			return
		}
		// Only the owning user may read the status
		if t.UserID != nil && *t.UserID != userID.(uint) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
			return
		}
		resp := gin.H{"status": t.Status, "message": t.ResultDescription, "cached": false}
		// Terminal statuses are immutable and can be cached for a while;
		// pending ones only briefly, so the webhook shows up promptly
		ttl := 3 * time.Second
		if t.IsTerminal() {
			ttl = 10 * time.Minute
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, ttl)
		c.JSON(http.StatusOK, resp) // Return the status
	}
}

// ConfirmPaymentHandler runs the bounded status poll until the transaction
// settles or the attempt budget runs out
func ConfirmPaymentHandler(store *payment.Store, poller *payment.Poller, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID") // Get userID from context
		// Check if userID exists in context
		if !exists {
			// If not, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		checkoutID := c.Param("checkout_id") // Correlation id from the path
		// Ownership gate before any gateway traffic: a non-owner must not be
		// able to spend this transaction's poll budget
		t, err := store.GetByCheckoutID(c.Request.Context(), checkoutID)
		if errors.Is(err, payment.ErrTransactionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch transaction"})
			return
		}
		// Only the owning user may drive the poll
		if t.UserID != nil && *t.UserID != userID.(uint) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
			return
		}
		t, err = poller.Wait(c.Request.Context(), checkoutID)
		if errors.Is(err, payment.ErrIndeterminate) {
			// Budget exhausted with no verdict; the webhook may still arrive
			c.JSON(http.StatusOK, gin.H{
				"status":  domain.StatusPending,
				"message": "Payment is still processing. Please try again shortly.",
			})
			return
		}
		if errors.Is(err, payment.ErrTransactionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
			return
		}
		if err != nil {
			respondPaymentError(c, err) // Map the error taxonomy to HTTP
			return
		}
		// Drop any cached quota and status now that the outcome is settled
		invalidatePaymentCaches(rdb, checkoutID, t.UserID)
		c.JSON(http.StatusOK, gin.H{"status": t.Status, "message": t.ResultDescription})
	}
}

// MpesaCallbackHandler receives the gateway's asynchronous webhook. The
// provider contract requires a success acknowledgment no matter what happens
// internally; failures are logged, never surfaced to the gateway.
func MpesaCallbackHandler(engine *payment.Engine, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ack := gin.H{"ResultCode": 0, "ResultDesc": "Confirmation received successfully"}

		var env mpesa.CallbackEnvelope // Decode the provider callback shape
		if err := json.NewDecoder(c.Request.Body).Decode(&env); err != nil {
			// Malformed body; acknowledge anyway to avoid provider retries
			logrus.WithField("error", err.Error()).Warn("Malformed M-Pesa callback body")
			c.JSON(http.StatusOK, ack)
			return
		}

		t, err := engine.OnWebhook(c.Request.Context(), &env)
		if err != nil {
			// Unknown transaction or internal trouble; logged by the engine
			logrus.WithFields(logrus.Fields{
				"checkout_request_id": env.Body.StkCallback.CheckoutRequestID,
				"error":               err.Error(),
			}).Error("M-Pesa callback processing failed")
			c.JSON(http.StatusOK, ack)
			return
		}
		// Drop stale cached status and quota for the settled transaction
		invalidatePaymentCaches(rdb, t.CheckoutRequestID, t.UserID)
		c.JSON(http.StatusOK, ack)
	}
}

// invalidatePaymentCaches drops cached status, quota and admin listings
// after a transaction mutation
func invalidatePaymentCaches(rdb *redis.Client, checkoutID string, userID *uint) {
	ctx := context.Background()                                        // Context for Redis operations
	_ = utils.InvalidatePrefix(ctx, rdb, "payment:status:"+checkoutID) // Per-user status caches
	_ = utils.InvalidatePrefix(ctx, rdb, "admin:payments:")            // Admin listings and stats
	if userID != nil {
		_ = utils.DeleteCache(ctx, rdb, quotaCacheKey(*userID)) // Quota cache
	}
}

// respondPaymentError maps the payment error taxonomy onto HTTP responses.
// Raw provider codes never reach the caller; only the human-readable
// description is attached for diagnostics.
func respondPaymentError(c *gin.Context, err error) {
	var ve *payment.ValidationError
	if errors.As(err, &ve) {
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error()})
		return
	}
	var ae *mpesa.AuthError
	if errors.As(err, &ae) {
		// Credential exchange rejected; the cache retries on the next call
		logrus.WithField("error", ae.Error()).Error("M-Pesa authentication failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to connect to the payment gateway"})
		return
	}
	var ge *mpesa.GatewayError
	if errors.As(err, &ge) {
		msg := ge.Description
		if msg == "" {
			msg = "Payment gateway request failed"
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Payment request failed"})
}
