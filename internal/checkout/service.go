package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/styl6559/storefront/internal/cart"
	"github.com/styl6559/storefront/internal/client/orders"
	"github.com/styl6559/storefront/internal/domain"
	"github.com/styl6559/storefront/internal/payment"
)

const (
	// TaxRate is applied to the cart subtotal when shipping is submitted.
	TaxRate = 0.18

	defaultCurrency = "INR"
)

// CartEngine is the slice of the cart engine the checkout flow drives.
type CartEngine interface {
	Items() []domain.CartItem
	ValidateCartItems() (validItems []domain.CartItem, removedItemNames []string)
	ApplyValidation(ctx context.Context, validItems []domain.CartItem) error
	RemoveLines(ctx context.Context, refs []domain.LineRef) error
}

// CartProvider hands out the cart engine bound to a user's identity.
type CartProvider interface {
	Engine(ctx context.Context, userID string) (CartEngine, error)
}

// ManagerCarts adapts cart.Manager to the CartProvider interface.
type ManagerCarts struct {
	Manager *cart.Manager
}

func (m ManagerCarts) Engine(ctx context.Context, userID string) (CartEngine, error) {
	return m.Manager.Engine(ctx, userID)
}

// OrdersBackend is the slice of the order client the flow depends on.
type OrdersBackend interface {
	CreateOrder(ctx context.Context, req *orders.CreateOrderRequest) (*orders.CreateOrderResponse, error)
	VerifyPayment(ctx context.Context, req *orders.VerifyPaymentRequest) error
}

// BeginResult is what starting a checkout returns: either a freshly
// created session or, on an idempotency-key replay, the existing one.
type BeginResult struct {
	SessionID        string
	Status           Status
	RemovedItemNames []string
	Existing         bool
}

// PaymentIntent carries everything the payment widget needs: backend
// order handle, amount, and the buyer's contact details for prefill.
type PaymentIntent struct {
	OrderID  string
	Amount   float64
	Currency string
	Key      string
	Prefill  domain.ShippingAddress
}

// Service drives a checkout session through its stages, persisting every
// transition so a session survives a process restart mid-flow.
type Service struct {
	repo     RepoInterface
	carts    CartProvider
	orders   OrdersBackend
	verifier payment.Verifier
	notifier cart.Notifier
	logger   *zap.Logger
}

func NewService(repo RepoInterface, carts CartProvider, ordersBackend OrdersBackend, verifier payment.Verifier, notifier cart.Notifier, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		carts:    carts,
		orders:   ordersBackend,
		verifier: verifier,
		notifier: notifier,
		logger:   logger,
	}
}

// Begin starts a checkout for the user's current cart: validates stock
// against the live catalog, freezes a snapshot of the valid lines and
// creates the session. A replayed idempotency key returns the existing
// session instead of creating a second one. Guests cannot check out.
func (s *Service) Begin(ctx context.Context, userID, idempotencyKey string) (*BeginResult, error) {
	if userID == "" {
		return nil, ErrAuthRequired
	}

	existingID, existingStatus, err := s.repo.GetSessionByIdempotencyKey(ctx, idempotencyKey)
	if err != nil && !errors.Is(err, ErrIdempotencyKeyNotFound) {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if existingID != nil {
		s.logger.Info("duplicate checkout request",
			zap.String("idempotency_key", idempotencyKey),
			zap.String("checkout_id", *existingID),
			zap.String("status", string(*existingStatus)))
		session, err := s.repo.GetSession(ctx, *existingID)
		if err != nil {
			return nil, err
		}
		return &BeginResult{
			SessionID:        session.ID,
			Status:           session.Status,
			RemovedItemNames: session.RemovedItemNames,
			Existing:         true,
		}, nil
	}

	engine, err := s.carts.Engine(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	valid, removed := engine.ValidateCartItems()
	if len(valid) == 0 && len(removed) == 0 {
		return nil, ErrEmptyCart
	}

	status := StatusEnteringShippingDetails
	if len(removed) > 0 {
		status = StatusConfirmingRemovedItems
	}

	now := time.Now()
	session := &Session{
		ID:               uuid.NewString(),
		UserID:           userID,
		IdempotencyKey:   idempotencyKey,
		Status:           status,
		Snapshot:         snapshotFromItems(valid, now),
		RemovedItemNames: removed,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	return &BeginResult{
		SessionID:        session.ID,
		Status:           status,
		RemovedItemNames: removed,
	}, nil
}

// ConfirmRemovedItems applies the stock validation the buyer just
// acknowledged: unavailable lines are removed from the live cart and the
// frozen snapshot is rebuilt from what survived. If nothing survived the
// session is cancelled and the cart is simply empty.
func (s *Service) ConfirmRemovedItems(ctx context.Context, sessionID string) error {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != StatusConfirmingRemovedItems {
		return ErrIllegalTransition
	}

	engine, err := s.carts.Engine(ctx, session.UserID)
	if err != nil {
		return fmt.Errorf("failed to get cart: %w", err)
	}

	// Re-validate at confirmation time: availability may have shifted
	// again while the buyer was reading the dialog.
	valid, _ := engine.ValidateCartItems()
	if err := engine.ApplyValidation(ctx, valid); err != nil {
		return fmt.Errorf("failed to apply stock validation: %w", err)
	}

	if len(valid) == 0 {
		if err := s.repo.UpdateStatus(ctx, sessionID, StatusConfirmingRemovedItems, StatusPaymentCancelled); err != nil {
			return err
		}
		return ErrEmptyCart
	}

	snapshot := snapshotFromItems(valid, time.Now())
	return s.repo.UpdateSnapshot(ctx, sessionID, snapshot, StatusConfirmingRemovedItems, StatusEnteringShippingDetails)
}

// SubmitShipping validates the form, computes totals over the frozen
// snapshot and requests order creation from the backend. A backend
// failure returns the session to the shipping stage with the backend's
// message; the form itself is left untouched for retry.
func (s *Service) SubmitShipping(ctx context.Context, sessionID string, form *ShippingForm) (*PaymentIntent, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Status.CanTransitionTo(StatusSubmittingOrder) {
		return nil, ErrIllegalTransition
	}

	if !form.CanSubmit() {
		if len(form.Validate()) == 0 {
			return nil, ErrLookupInFlight
		}
		return nil, ErrInvalidForm
	}

	snapshot := session.Snapshot
	var subtotal float64
	for _, item := range snapshot.Items {
		subtotal += item.Subtotal
	}
	snapshot.Subtotal = subtotal
	snapshot.Tax = subtotal * TaxRate
	snapshot.Total = snapshot.Subtotal + snapshot.Tax

	address := form.Address()
	if err := s.repo.SaveShipping(ctx, sessionID, &address, snapshot, session.Status, StatusSubmittingOrder); err != nil {
		return nil, err
	}

	orderItems := make([]orders.OrderItem, 0, len(snapshot.Items))
	for _, item := range snapshot.Items {
		orderItems = append(orderItems, orders.OrderItem{
			ProductID:    item.ProductID,
			Quantity:     item.Quantity,
			SelectedSize: item.Size,
		})
	}

	created, err := s.orders.CreateOrder(ctx, &orders.CreateOrderRequest{
		Items:           orderItems,
		ShippingAddress: address,
	})
	if err != nil {
		message := orderFailureMessage(err)
		s.notifier.Error(message)
		if errRollback := s.repo.SetFailure(ctx, sessionID, message, StatusSubmittingOrder, StatusEnteringShippingDetails); errRollback != nil {
			s.logger.Error("failed to return session to shipping stage",
				zap.String("checkout_id", sessionID), zap.Error(errRollback))
		}
		return nil, fmt.Errorf("order creation failed: %w", err)
	}

	if err := s.repo.SetOrder(ctx, sessionID, created.OrderID, StatusSubmittingOrder, StatusAwaitingPayment); err != nil {
		// Return the session to the shipping stage so the buyer can
		// resubmit instead of stranding it mid-transition.
		if errRollback := s.repo.SetFailure(ctx, sessionID, "order could not be recorded", StatusSubmittingOrder, StatusEnteringShippingDetails); errRollback != nil {
			s.logger.Error("failed to return session to shipping stage",
				zap.String("checkout_id", sessionID), zap.Error(errRollback))
		}
		return nil, err
	}

	return &PaymentIntent{
		OrderID:  created.OrderID,
		Amount:   created.Amount,
		Currency: created.Currency,
		Key:      created.Key,
		Prefill:  address,
	}, nil
}

// HandlePaymentSuccess checks the gateway signature, records the verified
// payment with the order backend, removes exactly the checked-out lines
// from the cart and completes the session, emitting the completion event
// through the outbox.
func (s *Service) HandlePaymentSuccess(ctx context.Context, sessionID, paymentID, signature string) error {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.Status.CanTransitionTo(StatusPaymentSucceeded) {
		return ErrIllegalTransition
	}

	verifyErr := s.verifier.Verify(session.OrderID, paymentID, signature)
	if verifyErr == nil {
		verifyErr = s.orders.VerifyPayment(ctx, &orders.VerifyPaymentRequest{
			OrderID:   session.OrderID,
			PaymentID: paymentID,
			Signature: signature,
		})
	}
	if verifyErr != nil {
		s.notifier.Error("Payment verification failed")
		if errFail := s.repo.SetFailure(ctx, sessionID, verifyErr.Error(), session.Status, StatusPaymentFailed); errFail != nil {
			s.logger.Error("failed to mark session as failed",
				zap.String("checkout_id", sessionID), zap.Error(errFail))
		}
		return fmt.Errorf("%w: %v", ErrPaymentNotVerified, verifyErr)
	}

	engine, err := s.carts.Engine(ctx, session.UserID)
	if err != nil {
		return fmt.Errorf("failed to get cart: %w", err)
	}
	if err := engine.RemoveLines(ctx, session.Snapshot.LineRefs()); err != nil {
		// The payment is real regardless; complete the session and let
		// the buyer clear the duplicate lines manually.
		s.logger.Error("failed to remove checked-out lines",
			zap.String("checkout_id", sessionID), zap.Error(err))
	}

	payload, err := completionPayload(session, paymentID)
	if err != nil {
		return err
	}
	if err := s.repo.CompleteSession(ctx, sessionID, paymentID, payload); err != nil {
		return err
	}

	s.notifier.Success("Order placed successfully")
	return nil
}

// HandlePaymentFailure records a failed payment. Cart and form state are
// untouched so the buyer can retry.
func (s *Service) HandlePaymentFailure(ctx context.Context, sessionID, reason string) error {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.Status.CanTransitionTo(StatusPaymentFailed) {
		return ErrIllegalTransition
	}

	s.notifier.Error("Payment failed, please try again")
	return s.repo.SetFailure(ctx, sessionID, reason, session.Status, StatusPaymentFailed)
}

// Cancel abandons the session at whatever stage it is in. The cart is
// untouched.
func (s *Service) Cancel(ctx context.Context, sessionID string) error {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.Status.CanTransitionTo(StatusPaymentCancelled) {
		return ErrIllegalTransition
	}

	return s.repo.UpdateStatus(ctx, sessionID, session.Status, StatusPaymentCancelled)
}

// Session exposes the persisted session, for status polling.
func (s *Service) Session(ctx context.Context, sessionID string) (*Session, error) {
	return s.repo.GetSession(ctx, sessionID)
}

func completionPayload(session *Session, paymentID string) ([]byte, error) {
	payload := map[string]interface{}{
		"checkout_id":  session.ID,
		"user_id":      session.UserID,
		"order_id":     session.OrderID,
		"payment_id":   paymentID,
		"items":        session.Snapshot.Items,
		"subtotal":     session.Snapshot.Subtotal,
		"tax":          session.Snapshot.Tax,
		"total_amount": session.Snapshot.Total,
		"currency":     session.Snapshot.Currency,
		"completed_at": time.Now(),
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkout payload: %w", err)
	}
	return encoded, nil
}

func orderFailureMessage(err error) string {
	var apiErr *orders.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return "something went wrong, please try again"
}
