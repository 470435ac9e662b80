package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"course-service/internal/models"
	"course-service/internal/store"
	"course-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EnrollmentService records purchases in the order ledger and grants
// course access
type EnrollmentService struct {
	store    Store
	cache    Cache
	events   Publisher
	logger   *zap.Logger
	currency string
}

// NewEnrollmentService creates a new enrollment service
func NewEnrollmentService(store Store, cache Cache, events Publisher, currency string) *EnrollmentService {
	return &EnrollmentService{
		store:    store,
		cache:    cache,
		events:   events,
		logger:   util.GetLogger(),
		currency: currency,
	}
}

// CreateOrderRequest describes a pre-verified payment result from the
// checkout collaborator
type CreateOrderRequest struct {
	LearnerID         int64  `json:"learner_id" binding:"required"`
	CourseID          int64  `json:"course_id" binding:"required"`
	PurchaseType      string `json:"purchase_type" binding:"required"`
	AmountCents       int64  `json:"amount_cents"`
	Provider          string `json:"provider" binding:"required"`
	ProviderPaymentID string `json:"provider_payment_id,omitempty"`
	ReceiptURL        string `json:"receipt_url,omitempty"`
}

func (r *CreateOrderRequest) validate() error {
	if r.LearnerID == 0 {
		return validationErr("learner_id")
	}
	if r.CourseID == 0 {
		return validationErr("course_id")
	}
	switch r.PurchaseType {
	case models.PurchaseSingleCourse, models.PurchaseBundle, models.PurchaseCorporate:
	default:
		return fmt.Errorf("%w: unknown purchase_type %q", ErrValidation, r.PurchaseType)
	}
	switch r.Provider {
	case models.ProviderStripe, models.ProviderPaypal, models.ProviderFree:
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrValidation, r.Provider)
	}
	if r.AmountCents < 0 {
		return fmt.Errorf("%w: amount_cents must not be negative", ErrValidation)
	}
	return nil
}

// CreateOrder records a purchase as Order + OrderItem + Payment rows in one
// transaction. A free purchase is completed immediately; paid providers
// start pending and flip to completed inside the same transaction once the
// payment row is written.
func (s *EnrollmentService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*store.Purchase, error) {
	ctx, span := util.StartSpan(ctx, "EnrollmentService.CreateOrder")
	defer span.End()

	if err := req.validate(); err != nil {
		util.OrdersFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	existing, err := s.store.GetEnrollment(ctx, req.LearnerID, req.CourseID)
	if err != nil {
		return nil, fmt.Errorf("failed to check enrollment: %w", err)
	}
	if existing != nil {
		util.OrdersFailedTotal.WithLabelValues("duplicate_enrollment").Inc()
		return nil, ErrDuplicateEnrollment
	}

	if _, err := s.store.GetCourseByID(ctx, req.CourseID); err != nil {
		util.OrdersFailedTotal.WithLabelValues("course_not_found").Inc()
		return nil, err
	}

	orderStatus := models.OrderStatusPending
	if req.Provider == models.ProviderFree {
		orderStatus = models.OrderStatusCompleted
	}

	purchase := &store.Purchase{
		Order: models.Order{
			LearnerID:     req.LearnerID,
			PurchaseType:  req.PurchaseType,
			SubtotalCents: req.AmountCents,
			DiscountCents: 0,
			TaxCents:      0,
			TotalCents:    req.AmountCents,
			Currency:      s.currency,
			Status:        orderStatus,
		},
		OrderItem: models.OrderItem{
			CourseID:       req.CourseID,
			Quantity:       1,
			UnitPriceCents: req.AmountCents,
		},
		Payment: models.Payment{
			Provider:          req.Provider,
			ProviderPaymentID: req.ProviderPaymentID,
			Status:            models.PaymentStatusSucceeded,
			AmountCents:       req.AmountCents,
			ReceiptURL:        req.ReceiptURL,
		},
	}

	if err := s.store.CreatePurchaseTx(ctx, purchase); err != nil {
		step := "unknown"
		var ledgerErr *store.LedgerError
		if errors.As(err, &ledgerErr) {
			step = ledgerErr.Step
		}
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		s.logger.Error("Ledger write failed",
			zap.Int64("learner_id", req.LearnerID),
			zap.Int64("course_id", req.CourseID),
			zap.String("step", step),
			zap.Error(err))
		return nil, fmt.Errorf("failed to record purchase: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order recorded",
		zap.Int64("order_id", purchase.Order.ID),
		zap.Int64("learner_id", req.LearnerID),
		zap.Int64("course_id", req.CourseID),
		zap.String("provider", req.Provider),
		zap.Int64("amount_cents", req.AmountCents))

	return purchase, nil
}

// CreateEnrollment grants course access, one row per (learner, course),
// referencing the paying order. Must follow a successful ledger write.
// The unique constraint on enrollments closes the concurrent-insert race.
func (s *EnrollmentService) CreateEnrollment(ctx context.Context, learnerID, courseID, orderID int64, purchasedAs string) (*models.Enrollment, error) {
	ctx, span := util.StartSpan(ctx, "EnrollmentService.CreateEnrollment")
	defer span.End()

	if learnerID == 0 {
		return nil, validationErr("learner_id")
	}
	if courseID == 0 {
		return nil, validationErr("course_id")
	}
	if orderID == 0 {
		return nil, validationErr("order_id")
	}

	enrollment := &models.Enrollment{
		LearnerID:   learnerID,
		CourseID:    courseID,
		PurchasedAs: purchasedAs,
		OrderID:     orderID,
		Status:      models.EnrollmentStatusActive,
		StartedAt:   time.Now(),
	}

	if err := s.store.CreateEnrollment(ctx, enrollment); err != nil {
		if store.IsUniqueViolation(err) {
			util.EnrollmentsFailedTotal.WithLabelValues("duplicate").Inc()
			return nil, ErrDuplicateEnrollment
		}
		util.EnrollmentsFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create enrollment: %w", err)
	}

	util.EnrollmentsCreatedTotal.Inc()
	s.logger.Info("Enrollment created",
		zap.Int64("enrollment_id", enrollment.ID),
		zap.Int64("learner_id", learnerID),
		zap.Int64("course_id", courseID),
		zap.Int64("order_id", orderID))

	// The enrollment row is the durable fact; the counter is best-effort.
	if err := s.store.IncrementEnrollmentCount(ctx, courseID); err != nil {
		s.logger.Error("Failed to bump course enrollment count",
			zap.Int64("course_id", courseID),
			zap.Error(err))
	}

	if err := s.cache.InvalidateProgress(ctx, learnerID, courseID); err != nil {
		s.logger.Warn("Failed to invalidate progress cache",
			zap.Int64("learner_id", learnerID),
			zap.Int64("course_id", courseID),
			zap.Error(err))
	}

	event := &models.EnrollmentCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeEnrollmentCreated,
			Timestamp: time.Now(),
		},
		EnrollmentID: enrollment.ID,
		LearnerID:    learnerID,
		CourseID:     courseID,
		OrderID:      orderID,
		PurchasedAs:  purchasedAs,
	}
	if err := s.events.PublishEnrollmentCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish EnrollmentCreated event", zap.Error(err))
	}

	return enrollment, nil
}

// CheckoutResult bundles the rows produced by a full checkout
type CheckoutResult struct {
	Order      models.Order      `json:"order"`
	OrderItem  models.OrderItem  `json:"order_item"`
	Payment    models.Payment    `json:"payment"`
	Enrollment models.Enrollment `json:"enrollment"`
}

// Checkout runs the full purchase path: ledger write then enrollment,
// the sequence the checkout collaborator performs on a confirmed payment.
func (s *EnrollmentService) Checkout(ctx context.Context, req *CreateOrderRequest) (*CheckoutResult, error) {
	ctx, span := util.StartSpan(ctx, "EnrollmentService.Checkout")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	purchase, err := s.CreateOrder(ctx, req)
	if err != nil {
		return nil, err
	}

	enrollment, err := s.CreateEnrollment(ctx, req.LearnerID, req.CourseID, purchase.Order.ID, req.PurchaseType)
	if err != nil {
		return nil, err
	}

	return &CheckoutResult{
		Order:      purchase.Order,
		OrderItem:  purchase.OrderItem,
		Payment:    purchase.Payment,
		Enrollment: *enrollment,
	}, nil
}

// GetOrder retrieves an order with its items and payment
func (s *EnrollmentService) GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, *models.Payment, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, nil, err
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, nil, err
	}

	payment, err := s.store.GetPaymentByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, nil, err
	}

	return order, items, payment, nil
}
