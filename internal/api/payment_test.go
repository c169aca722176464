package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"studycollab/internal/domain"
	"studycollab/internal/mpesa"
	"studycollab/internal/payment"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newCallbackRouter wires the webhook route against an in-memory store. The
// Redis client points nowhere; cache failures must never affect the response.
func newCallbackRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.User{}, &domain.PaymentTransaction{}, &domain.AIUsageLog{}))

	store := payment.NewStore(db)
	engine := payment.NewEngine(store, nil, payment.NewEntitlements(db))
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})

	r := gin.New()
	r.POST("/mpesa/callback", MpesaCallbackHandler(engine, rdb))
	return r, db
}

// postCallback delivers a raw webhook body and returns the recorded response
func postCallback(r *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/mpesa/callback", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

// assertAck verifies the provider-mandated success acknowledgment
func assertAck(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code)
	var ack struct {
		ResultCode int    `json:"ResultCode"`
		ResultDesc string `json:"ResultDesc"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ack))
	assert.Equal(t, 0, ack.ResultCode)
	assert.Equal(t, "Confirmation received successfully", ack.ResultDesc)
}

// countingQuerier records how many gateway status queries the poll path makes
type countingQuerier struct {
	n int
}

func (q *countingQuerier) STKQuery(ctx context.Context, checkoutRequestID string) (*mpesa.STKQueryResponse, error) {
	q.n++
	return nil, mpesa.ErrStillProcessing
}

// headerAuth stands in for the JWT middleware: the authenticated user id is
// taken from a request header so one router can serve requests as any user
func headerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if v := c.GetHeader("X-User-ID"); v != "" {
			id, _ := strconv.Atoi(v)
			c.Set("userID", uint(id))
		}
		c.Next()
	}
}

// newStatusRouter wires the status and confirm routes against an in-memory
// store and a live in-process Redis, so the cache-warm path is exercised
func newStatusRouter(t *testing.T) (*gin.Engine, *gorm.DB, *countingQuerier) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.User{}, &domain.PaymentTransaction{}, &domain.AIUsageLog{}))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	store := payment.NewStore(db)
	querier := &countingQuerier{}
	engine := payment.NewEngine(store, querier, payment.NewEntitlements(db))
	poller := payment.NewPoller(store, engine, time.Millisecond, 3)

	r := gin.New()
	g := r.Group("/payments", headerAuth())
	g.GET("/:checkout_id/status", PaymentStatusHandler(store, rdb))
	g.POST("/:checkout_id/confirm", ConfirmPaymentHandler(store, poller, rdb))
	return r, db, querier
}

// getAs performs a request with the given user id in the auth header
func getAs(r *gin.Engine, method, path string, userID uint) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("X-User-ID", strconv.Itoa(int(userID)))
	r.ServeHTTP(w, req)
	return w
}

func TestPaymentStatusCacheDoesNotLeakAcrossUsers(t *testing.T) {
	r, db, _ := newStatusRouter(t)
	owner := uint(1)
	require.NoError(t, db.Create(&domain.User{Username: "alice", Password: "x"}).Error)
	require.NoError(t, db.Create(&domain.User{Username: "bob", Password: "x"}).Error)
	require.NoError(t, db.Create(&domain.PaymentTransaction{
		UserID:            &owner,
		PhoneNumber:       "254712345678",
		Amount:            1000,
		CheckoutRequestID: "ws_CO_1",
		Status:            domain.StatusCompleted,
		ResultDescription: "The service request is processed successfully.",
		Plan:              "student_pro",
		PromptCount:       150,
		PromptsGranted:    true,
	}).Error)

	// The owner reads the status; the second read must come from the cache
	w := getAs(r, http.MethodGet, "/payments/ws_CO_1/status", owner)
	require.Equal(t, http.StatusOK, w.Code)
	w = getAs(r, http.MethodGet, "/payments/ws_CO_1/status", owner)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Status string `json:"status"`
		Cached bool   `json:"cached"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.StatusCompleted, resp.Status)
	assert.True(t, resp.Cached, "second owner read should be served from cache")

	// A different user must be refused even though the cache is warm
	w = getAs(r, http.MethodGet, "/payments/ws_CO_1/status", 2)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotContains(t, w.Body.String(), "completed")
}

func TestConfirmRejectsNonOwnerBeforePolling(t *testing.T) {
	r, db, querier := newStatusRouter(t)
	owner := uint(1)
	require.NoError(t, db.Create(&domain.PaymentTransaction{
		UserID:            &owner,
		PhoneNumber:       "254712345678",
		Amount:            1000,
		CheckoutRequestID: "ws_CO_1",
		Status:            domain.StatusPending,
		Plan:              "student_pro",
		PromptCount:       150,
	}).Error)

	// A non-owner is refused with no gateway traffic at all
	w := getAs(r, http.MethodPost, "/payments/ws_CO_1/confirm", 2)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Zero(t, querier.n, "non-owner confirm must not reach the gateway")

	// The owner still drives the full poll budget
	w = getAs(r, http.MethodPost, "/payments/ws_CO_1/confirm", owner)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), domain.StatusPending)
	assert.Equal(t, 3, querier.n)
}

func TestMpesaCallbackMalformedBodyStillAcks(t *testing.T) {
	r, _ := newCallbackRouter(t)
	assertAck(t, postCallback(r, `{"Body":`))
}

func TestMpesaCallbackUnknownTransactionStillAcks(t *testing.T) {
	r, _ := newCallbackRouter(t)
	assertAck(t, postCallback(r, `{"Body":{"stkCallback":{
		"CheckoutRequestID":"ws_CO_unknown","ResultCode":0,
		"ResultDesc":"The service request is processed successfully."}}}`))
}

func TestMpesaCallbackSettlesTransaction(t *testing.T) {
	r, db := newCallbackRouter(t)
	uid := uint(1)
	require.NoError(t, db.Create(&domain.User{Username: "alice", Password: "x"}).Error)
	require.NoError(t, db.Create(&domain.PaymentTransaction{
		UserID:            &uid,
		PhoneNumber:       "254712345678",
		Amount:            150,
		CheckoutRequestID: "ws_CO_1",
		Status:            domain.StatusPending,
		Plan:              "student_pro",
		PromptCount:       150,
	}).Error)

	assertAck(t, postCallback(r, `{"Body":{"stkCallback":{
		"MerchantRequestID":"29115-34620561-1",
		"CheckoutRequestID":"ws_CO_1","ResultCode":0,
		"ResultDesc":"The service request is processed successfully.",
		"CallbackMetadata":{"Item":[
			{"Name":"Amount","Value":150.00},
			{"Name":"MpesaReceiptNumber","Value":"NLJ7RT61SV"},
			{"Name":"TransactionDate","Value":20250901101530},
			{"Name":"PhoneNumber","Value":254712345678}]}}}}`))

	var tx domain.PaymentTransaction
	require.NoError(t, db.Where("checkout_request_id = ?", "ws_CO_1").First(&tx).Error)
	assert.Equal(t, domain.StatusCompleted, tx.Status)
	assert.Equal(t, "NLJ7RT61SV", tx.ReceiptNumber)
	assert.True(t, tx.PromptsGranted)

	var u domain.User
	require.NoError(t, db.First(&u, uid).Error)
	assert.Equal(t, 150, u.PromptsRemaining)
	assert.True(t, u.IsPaidUser)
}
