package payment

import (
	"context"
	"fmt"
	"testing"

	"studycollab/internal/domain"
	"studycollab/internal/mpesa"

	"github.com/stretchr/testify/require"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a fresh in-memory database migrated with the domain models.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.User{}, &domain.PaymentTransaction{}, &domain.AIUsageLog{}))
	return db
}

// seedUser creates a user with the given starting quota.
func seedUser(t *testing.T, db *gorm.DB, remaining int) *domain.User {
	t.Helper()
	user := &domain.User{Username: "alice", Password: "x", PromptsRemaining: remaining, PromptsUsedCycle: 7}
	require.NoError(t, db.Create(user).Error)
	return user
}

// seedPending creates a pending transaction owned by the given user.
func seedPending(t *testing.T, db *gorm.DB, userID *uint, checkoutID string) *domain.PaymentTransaction {
	t.Helper()
	tx := &domain.PaymentTransaction{
		UserID:            userID,
		PhoneNumber:       "254712345678",
		Amount:            1000,
		CheckoutRequestID: checkoutID,
		MerchantRequestID: "mr-" + checkoutID,
		Status:            domain.StatusPending,
		Plan:              "student_pro",
		PromptCount:       150,
	}
	require.NoError(t, db.Create(tx).Error)
	return tx
}

// successCallback builds a gateway callback with ResultCode 0 and metadata.
func successCallback(checkoutID string) *mpesa.CallbackEnvelope {
	env := &mpesa.CallbackEnvelope{}
	env.Body.StkCallback = mpesa.StkCallback{
		MerchantRequestID: "mr-" + checkoutID,
		CheckoutRequestID: checkoutID,
		ResultCode:        0,
		ResultDesc:        "The service request is processed successfully.",
		CallbackMetadata: &mpesa.CallbackMetadata{Item: []mpesa.MetadataItem{
			{Name: "Amount", Value: float64(1000)},
			{Name: "MpesaReceiptNumber", Value: "NLJ7RT61SV"},
			{Name: "TransactionDate", Value: float64(20250901101530)},
			{Name: "PhoneNumber", Value: float64(254712345678)},
		}},
	}
	return env
}

// failureCallback builds a gateway callback with a non-zero result code.
func failureCallback(checkoutID string, code int, desc string) *mpesa.CallbackEnvelope {
	env := &mpesa.CallbackEnvelope{}
	env.Body.StkCallback = mpesa.StkCallback{
		MerchantRequestID: "mr-" + checkoutID,
		CheckoutRequestID: checkoutID,
		ResultCode:        code,
		ResultDesc:        desc,
	}
	return env
}

// stubQuerier returns canned status-query responses.
type stubQuerier struct {
	resp *mpesa.STKQueryResponse
	err  error
	n    int
}

func (s *stubQuerier) STKQuery(ctx context.Context, checkoutRequestID string) (*mpesa.STKQueryResponse, error) {
	s.n++
	return s.resp, s.err
}
