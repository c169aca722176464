package payment

import (
	"context"
	"testing"

	"studycollab/internal/domain"
	"studycollab/internal/mpesa"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// stubPusher returns a canned push response or error and records the request.
type stubPusher struct {
	resp       *mpesa.STKPushResponse
	err        error
	gotPhone   string
	gotAmount  int64
	gotAcctRef string
	calls      int
}

func (s *stubPusher) STKPush(ctx context.Context, phone string, amount int64, accountRef, description string) (*mpesa.STKPushResponse, error) {
	s.calls++
	s.gotPhone = phone
	s.gotAmount = amount
	s.gotAcctRef = accountRef
	return s.resp, s.err
}

func TestInitiateCreatesPendingTransaction(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	user := seedUser(t, db, 0)
	pusher := &stubPusher{resp: &mpesa.STKPushResponse{
		MerchantRequestID: "29115-34620561-1",
		CheckoutRequestID: "ws_CO_191220191020363925",
		ResponseCode:      "0",
	}}
	svc := NewService(store, pusher, 1)

	tx, err := svc.Initiate(context.Background(), &user.ID, "0712345678", "student_pro")
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_191220191020363925", tx.CheckoutRequestID)
	assert.Equal(t, domain.StatusPending, tx.Status)
	assert.Equal(t, int64(1000), tx.Amount)
	assert.Equal(t, 150, tx.PromptCount)
	assert.Equal(t, "254712345678", pusher.gotPhone)
	assert.Equal(t, int64(1000), pusher.gotAmount)
	assert.Equal(t, "Account_1", pusher.gotAcctRef)

	// Exactly one pending row exists, keyed by the correlation id
	stored, err := store.GetByCheckoutID(context.Background(), "ws_CO_191220191020363925")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
	require.NotNil(t, stored.UserID)
	assert.Equal(t, user.ID, *stored.UserID)
}

func TestInitiateNormalizesBarePhone(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	pusher := &stubPusher{resp: &mpesa.STKPushResponse{CheckoutRequestID: "ws_CO_1", ResponseCode: "0"}}
	svc := NewService(store, pusher, 1)

	// Subscriber number with the country prefix missing entirely
	_, err := svc.Initiate(context.Background(), nil, "712345678", "student_pro")
	require.NoError(t, err)
	assert.Equal(t, "254712345678", pusher.gotPhone)
}

func TestInitiateRejectsInvalidPhoneBeforeNetwork(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	pusher := &stubPusher{}
	svc := NewService(store, pusher, 1)

	_, err := svc.Initiate(context.Background(), nil, "12345", "student_pro")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Zero(t, pusher.calls, "validation failures must never reach the gateway")
	assertNoTransactions(t, db)
}

func TestInitiateRejectsUnknownPlan(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	pusher := &stubPusher{}
	svc := NewService(store, pusher, 1)

	_, err := svc.Initiate(context.Background(), nil, "0712345678", "platinum")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Zero(t, pusher.calls)
	assertNoTransactions(t, db)
}

func TestInitiateGatewayRejectionCreatesNoRecord(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	pusher := &stubPusher{err: &mpesa.GatewayError{StatusCode: 400, Code: "400.002.02", Description: "Bad Request - Invalid PhoneNumber"}}
	svc := NewService(store, pusher, 1)

	_, err := svc.Initiate(context.Background(), nil, "0712345678", "student_pro")
	var ge *mpesa.GatewayError
	require.ErrorAs(t, err, &ge)
	// An error return never leaves a record behind
	assertNoTransactions(t, db)
}

// assertNoTransactions verifies the store holds no transaction rows.
func assertNoTransactions(t *testing.T, db *gorm.DB) {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&domain.PaymentTransaction{}).Count(&count).Error)
	assert.Zero(t, count)
}
