package payment

import (
	"context"
	"fmt"
	"math/rand"

	"studycollab/internal/domain" // Importing domain models
	"studycollab/internal/mpesa"  // Gateway client and payload types

	"github.com/sirupsen/logrus" // Logging library
)

// Pusher is the slice of the gateway client the service needs to submit a
// push request.
type Pusher interface {
	STKPush(ctx context.Context, phone string, amount int64, accountRef, description string) (*mpesa.STKPushResponse, error)
}

// Service builds and submits push payment requests. A successful submission
// always leaves exactly one pending transaction row keyed by the gateway's
// correlation id; a failed submission leaves none.
type Service struct {
	store     *Store
	gateway   Pusher
	minAmount int64
}

// NewService creates a payment initiation service.
func NewService(store *Store, gateway Pusher, minAmount int64) *Service {
	return &Service{store: store, gateway: gateway, minAmount: minAmount}
}

// Initiate validates the payer reference, submits the push for the plan's
// price, and persists the pending transaction. Persisting is the final,
// non-retractable step: if it fails after the gateway accepted the push,
// money may move with no local record, so the failure is logged at error
// severity for manual reconciliation before being surfaced.
func (s *Service) Initiate(ctx context.Context, userID *uint, rawPhone, planRef string) (*domain.PaymentTransaction, error) {
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}
	plan, ok := domain.PlanByRef(planRef)
	if !ok {
		return nil, &ValidationError{Field: "plan", Reason: "unknown plan reference"}
	}
	if plan.Price < s.minAmount {
		return nil, &ValidationError{Field: "amount", Reason: fmt.Sprintf("below the gateway minimum of %d", s.minAmount)}
	}

	// Account reference shown on the payer's statement
	accountRef := fmt.Sprintf("Account_%d", rand.Intn(9000)+1000)
	if userID != nil {
		accountRef = fmt.Sprintf("Account_%d", *userID)
	}

	resp, err := s.gateway.STKPush(ctx, phone, plan.Price, accountRef, "Payment for StudyCollab")
	if err != nil {
		// Gateway rejected or unreachable; no transaction row is created
		return nil, err
	}

	t := &domain.PaymentTransaction{
		UserID:            userID,
		PhoneNumber:       phone,
		Amount:            plan.Price,
		CheckoutRequestID: resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		Status:            domain.StatusPending,
		Plan:              plan.Ref,
		PromptCount:       plan.Prompts,
	}
	if err := s.store.Create(ctx, t); err != nil {
		// The push is already accepted; this mismatch needs an operator
		logrus.WithFields(logrus.Fields{
			"checkout_request_id": resp.CheckoutRequestID,
			"merchant_request_id": resp.MerchantRequestID,
			"phone":               phone,
			"amount":              plan.Price,
			"error":               err.Error(),
		}).Error("Push accepted by gateway but transaction record could not be persisted")
		return nil, fmt.Errorf("persist transaction after accepted push: %w", err)
	}

	// Log the initiated payment
	logrus.WithFields(logrus.Fields{
		"transaction_id":      t.ID,
		"checkout_request_id": t.CheckoutRequestID,
		"phone":               phone,
		"amount":              plan.Price,
		"plan":                plan.Ref,
	}).Info("Payment push initiated")
	return t, nil
}
