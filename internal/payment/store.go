package payment

import (
	"context"
	"errors"

	"studycollab/internal/domain" // Importing domain models

	"gorm.io/gorm" // GORM ORM library
)

// Store is the authoritative record of payment attempts. All status
// mutation flows through ApplyTerminal, whose compare-and-swap guard makes
// duplicate webhook deliveries and overlapping polls safe.
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store on the given database handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Create persists a freshly initiated pending transaction.
func (s *Store) Create(ctx context.Context, t *domain.PaymentTransaction) error {
	return s.db.WithContext(ctx).Create(t).Error
}

// GetByCheckoutID looks a transaction up by its gateway correlation id.
func (s *Store) GetByCheckoutID(ctx context.Context, checkoutRequestID string) (*domain.PaymentTransaction, error) {
	var t domain.PaymentTransaction
	err := s.db.WithContext(ctx).Where("checkout_request_id = ?", checkoutRequestID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// TerminalResult carries a gateway verdict into the store. Confirmation
// metadata fields are only present on success.
type TerminalResult struct {
	ResultCode        int    // Gateway result code; 0 means success
	ResultDescription string // Gateway result description
	ReceiptNumber     string // M-Pesa receipt number, success only
	ConfirmedPhone    string // Payer number confirmed by the gateway, success only
	ConfirmedAmount   int64  // Amount confirmed by the gateway, success only
	TransactionDate   string // Gateway confirmation timestamp, success only
}

// ApplyTerminal moves a pending transaction to its terminal state. The
// transition is a single guarded UPDATE: rows already terminal are left
// untouched and returned unchanged with applied=false, which is the sole
// idempotency boundary for the webhook/poll race. First writer wins.
func (s *Store) ApplyTerminal(ctx context.Context, checkoutRequestID string, res TerminalResult) (*domain.PaymentTransaction, bool, error) {
	status := domain.StatusFailed
	if res.ResultCode == 0 {
		status = domain.StatusCompleted
	}

	updates := map[string]any{
		"status":             status,
		"result_code":        res.ResultCode,
		"result_description": res.ResultDescription,
	}
	if status == domain.StatusCompleted {
		updates["receipt_number"] = res.ReceiptNumber
		updates["confirmed_phone_number"] = res.ConfirmedPhone
		updates["confirmed_amount"] = res.ConfirmedAmount
		updates["transaction_date"] = res.TransactionDate
	}

	// Compare-and-swap on status: only a pending row can move
	tx := s.db.WithContext(ctx).
		Model(&domain.PaymentTransaction{}).
		Where("checkout_request_id = ? AND status = ?", checkoutRequestID, domain.StatusPending).
		Updates(updates)
	if tx.Error != nil {
		return nil, false, tx.Error
	}
	applied := tx.RowsAffected > 0

	// Reload so callers see whichever writer won
	t, err := s.GetByCheckoutID(ctx, checkoutRequestID)
	if err != nil {
		return nil, false, err
	}
	return t, applied, nil
}

// ListOptions filters and paginates admin transaction listings.
type ListOptions struct {
	UserID   string // Filter by owning user id
	Status   string // Filter by status
	From     string // Created-at lower bound
	To       string // Created-at upper bound
	Page     int    // Page number, 1-based
	PageSize int    // Page size
}

// List returns transactions matching the options, newest first, with the
// total count for pagination.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]domain.PaymentTransaction, int64, error) {
	query := s.db.WithContext(ctx).Model(&domain.PaymentTransaction{})
	if opts.UserID != "" {
		query = query.Where("user_id = ?", opts.UserID) // Filter by user
	}
	if opts.Status != "" {
		query = query.Where("status = ?", opts.Status) // Filter by status
	}
	if opts.From != "" {
		query = query.Where("created_at >= ?", opts.From) // Filter by start date
	}
	if opts.To != "" {
		query = query.Where("created_at <= ?", opts.To) // Filter by end date
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (opts.Page - 1) * opts.PageSize
	var txs []domain.PaymentTransaction
	if err := query.Order("created_at desc").Offset(offset).Limit(opts.PageSize).Find(&txs).Error; err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

// Stats summarizes payment outcomes for the admin dashboard.
type Stats struct {
	Revenue        int64 `json:"revenue"`         // Sum of completed amounts in whole KES
	CompletedCount int64 `json:"completed_count"` // Number of completed payments
	FailedCount    int64 `json:"failed_count"`    // Number of failed payments
	PendingCount   int64 `json:"pending_count"`   // Number of still-pending payments
}

// AggregateStats computes revenue and outcome counts across all transactions.
func (s *Store) AggregateStats(ctx context.Context) (*Stats, error) {
	var st Stats

	// COALESCE so an empty table sums to zero rather than NULL
	if err := s.db.WithContext(ctx).Model(&domain.PaymentTransaction{}).
		Where("status = ?", domain.StatusCompleted).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&st.Revenue).Error; err != nil {
		return nil, err
	}
	counts := []struct {
		status string
		dest   *int64
	}{
		{domain.StatusCompleted, &st.CompletedCount},
		{domain.StatusFailed, &st.FailedCount},
		{domain.StatusPending, &st.PendingCount},
	}
	for _, c := range counts {
		if err := s.db.WithContext(ctx).Model(&domain.PaymentTransaction{}).
			Where("status = ?", c.status).Count(c.dest).Error; err != nil {
			return nil, err
		}
	}
	return &st, nil
}
