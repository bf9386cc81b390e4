package checkout

import (
	"context"
	"sync"

	"github.com/styl6559/storefront/internal/client/orders"
	"github.com/styl6559/storefront/internal/domain"
)

// MockRepository is an in-memory RepoInterface that honors the same
// status-guarded transitions as the postgres implementation.
type MockRepository struct {
	mu       sync.Mutex
	sessions map[string]*Session
	byKey    map[string]string
	outbox   []*OutboxEvent
	nextID   int64

	CreateErr   error
	GetErr      error
	SetOrderErr error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		sessions: make(map[string]*Session),
		byKey:    make(map[string]string),
	}
}

func (m *MockRepository) Close() error { return nil }

func (m *MockRepository) RunMigrations(*Credentials) error { return nil }

func (m *MockRepository) GetSessionByIdempotencyKey(_ context.Context, key string) (*string, *Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byKey[key]
	if !ok {
		return nil, nil, ErrIdempotencyKeyNotFound
	}
	status := m.sessions[id].Status
	return &id, &status, nil
}

func (m *MockRepository) CreateSession(_ context.Context, session *Session) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *session
	m.sessions[session.ID] = &cp
	m.byKey[session.IdempotencyKey] = session.ID
	return nil
}

func (m *MockRepository) GetSession(_ context.Context, id string) (*Session, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *session
	return &cp, nil
}

func (m *MockRepository) UpdateStatus(_ context.Context, id string, from, to Status) error {
	return m.transition(id, from, func(s *Session) { s.Status = to })
}

func (m *MockRepository) UpdateSnapshot(_ context.Context, id string, snapshot *CartSnapshot, from, to Status) error {
	return m.transition(id, from, func(s *Session) {
		s.Status = to
		s.Snapshot = snapshot
	})
}

func (m *MockRepository) SaveShipping(_ context.Context, id string, address *domain.ShippingAddress, snapshot *CartSnapshot, from, to Status) error {
	return m.transition(id, from, func(s *Session) {
		s.Status = to
		s.ShippingAddress = address
		s.Snapshot = snapshot
	})
}

func (m *MockRepository) SetOrder(_ context.Context, id, orderID string, from, to Status) error {
	if m.SetOrderErr != nil {
		return m.SetOrderErr
	}
	return m.transition(id, from, func(s *Session) {
		s.Status = to
		s.OrderID = orderID
	})
}

func (m *MockRepository) SetFailure(_ context.Context, id, reason string, from, to Status) error {
	return m.transition(id, from, func(s *Session) {
		s.Status = to
		s.FailureReason = reason
	})
}

func (m *MockRepository) CompleteSession(_ context.Context, id, paymentID string, eventPayload []byte) error {
	return m.transition(id, StatusAwaitingPayment, func(s *Session) {
		s.Status = StatusPaymentSucceeded
		s.PaymentID = paymentID
		m.nextID++
		m.outbox = append(m.outbox, &OutboxEvent{
			ID:          m.nextID,
			AggregateID: id,
			EventType:   "checkout-completed",
			Payload:     eventPayload,
		})
	})
}

func (m *MockRepository) GetUnprocessedEvents(_ context.Context, limit int) ([]*OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.outbox) > limit {
		return m.outbox[:limit], nil
	}
	return m.outbox, nil
}

func (m *MockRepository) MarkEventAsProcessed(_ context.Context, eventID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.outbox[:0]
	for _, event := range m.outbox {
		if event.ID != eventID {
			kept = append(kept, event)
		}
	}
	m.outbox = kept
	return nil
}

func (m *MockRepository) transition(id string, from Status, apply func(*Session)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if session.Status != from {
		return ErrIllegalTransition
	}
	apply(session)
	return nil
}

// MockCartEngine implements CartEngine over fixed item sets.
type MockCartEngine struct {
	ValidItems   []domain.CartItem
	RemovedNames []string
	CurrentItems []domain.CartItem

	AppliedItems []domain.CartItem
	RemovedRefs  []domain.LineRef
	ApplyErr     error
	RemoveErr    error
}

func (m *MockCartEngine) Items() []domain.CartItem { return m.CurrentItems }

func (m *MockCartEngine) ValidateCartItems() ([]domain.CartItem, []string) {
	return m.ValidItems, m.RemovedNames
}

func (m *MockCartEngine) ApplyValidation(_ context.Context, validItems []domain.CartItem) error {
	if m.ApplyErr != nil {
		return m.ApplyErr
	}
	m.AppliedItems = validItems
	m.CurrentItems = validItems
	return nil
}

func (m *MockCartEngine) RemoveLines(_ context.Context, refs []domain.LineRef) error {
	if m.RemoveErr != nil {
		return m.RemoveErr
	}
	m.RemovedRefs = refs
	return nil
}

type MockCartProvider struct {
	Engines map[string]*MockCartEngine
	Err     error
}

func (m *MockCartProvider) Engine(_ context.Context, userID string) (CartEngine, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Engines[userID], nil
}

// MockOrders implements OrdersBackend with canned responses.
type MockOrders struct {
	CreateResponse *orders.CreateOrderResponse
	CreateErr      error
	VerifyErr      error

	CreateRequests []*orders.CreateOrderRequest
	VerifyRequests []*orders.VerifyPaymentRequest
}

func (m *MockOrders) CreateOrder(_ context.Context, req *orders.CreateOrderRequest) (*orders.CreateOrderResponse, error) {
	m.CreateRequests = append(m.CreateRequests, req)
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	return m.CreateResponse, nil
}

func (m *MockOrders) VerifyPayment(_ context.Context, req *orders.VerifyPaymentRequest) error {
	m.VerifyRequests = append(m.VerifyRequests, req)
	return m.VerifyErr
}

// MockVerifier implements payment.Verifier, accepting every signature
// unless Err is set.
type MockVerifier struct {
	Err   error
	Calls int
}

func (m *MockVerifier) Verify(_, _, _ string) error {
	m.Calls++
	return m.Err
}

type silentNotifier struct{}

func (silentNotifier) Success(string) {}

func (silentNotifier) Error(string) {}
