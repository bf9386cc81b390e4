package checkout

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/styl6559/storefront/internal/domain"
)

var ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// OutboxEvent is one unpublished row of the transactional outbox.
type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

type RepoInterface interface {
	GetSessionByIdempotencyKey(ctx context.Context, key string) (*string, *Status, error)
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	UpdateStatus(ctx context.Context, id string, from, to Status) error
	UpdateSnapshot(ctx context.Context, id string, snapshot *CartSnapshot, from, to Status) error
	SaveShipping(ctx context.Context, id string, address *domain.ShippingAddress, snapshot *CartSnapshot, from, to Status) error
	SetOrder(ctx context.Context, id, orderID string, from, to Status) error
	SetFailure(ctx context.Context, id, reason string, from, to Status) error
	CompleteSession(ctx context.Context, id, paymentID string, eventPayload []byte) error
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, eventID int64) error
	Close() error
	RunMigrations(cred *Credentials) error
}

type Repository struct {
	db *sql.DB
}

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) GetSessionByIdempotencyKey(ctx context.Context, key string) (*string, *Status, error) {
	query := `SELECT id, status FROM checkout_sessions WHERE idempotency_key = $1`

	var id string
	var status Status
	err := r.db.QueryRowContext(ctx, query, key).Scan(&id, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query idempotency key: %w", err)
	}

	return &id, &status, nil
}

func (r *Repository) CreateSession(ctx context.Context, session *Session) error {
	snapshotJSON, err := json.Marshal(session.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal cart snapshot: %w", err)
	}
	removedJSON, err := json.Marshal(session.RemovedItemNames)
	if err != nil {
		return fmt.Errorf("failed to marshal removed item names: %w", err)
	}

	query := `INSERT INTO checkout_sessions
                (id, user_id, idempotency_key, status, cart_snapshot, removed_items, created_at, updated_at)
              VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())`
	_, err = r.db.ExecContext(ctx, query,
		session.ID,
		session.UserID,
		session.IdempotencyKey,
		session.Status,
		snapshotJSON,
		removedJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to create checkout session: %w", err)
	}
	return nil
}

func (r *Repository) GetSession(ctx context.Context, id string) (*Session, error) {
	query := `SELECT id, user_id, idempotency_key, status, cart_snapshot, removed_items,
                     shipping_address, order_id, payment_id, failure_reason, created_at, updated_at
              FROM checkout_sessions WHERE id = $1`

	var session Session
	var snapshotJSON, removedJSON []byte
	var addressJSON []byte
	var orderID, paymentID, failureReason sql.NullString

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID,
		&session.UserID,
		&session.IdempotencyKey,
		&session.Status,
		&snapshotJSON,
		&removedJSON,
		&addressJSON,
		&orderID,
		&paymentID,
		&failureReason,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query checkout session: %w", err)
	}

	if err := json.Unmarshal(snapshotJSON, &session.Snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cart snapshot: %w", err)
	}
	if len(removedJSON) > 0 {
		if err := json.Unmarshal(removedJSON, &session.RemovedItemNames); err != nil {
			return nil, fmt.Errorf("failed to unmarshal removed item names: %w", err)
		}
	}
	if len(addressJSON) > 0 {
		if err := json.Unmarshal(addressJSON, &session.ShippingAddress); err != nil {
			return nil, fmt.Errorf("failed to unmarshal shipping address: %w", err)
		}
	}
	session.OrderID = orderID.String
	session.PaymentID = paymentID.String
	session.FailureReason = failureReason.String

	return &session, nil
}

// UpdateStatus moves a session from one status to another. The previous
// status is part of the WHERE clause, so a concurrent transition loses and
// surfaces as ErrIllegalTransition instead of silently overwriting.
func (r *Repository) UpdateStatus(ctx context.Context, id string, from, to Status) error {
	query := `UPDATE checkout_sessions SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`
	return r.execTransition(ctx, id, query, to, id, from)
}

// UpdateSnapshot replaces the frozen cart snapshot, used when confirming
// removed items reduces the checked-out set.
func (r *Repository) UpdateSnapshot(ctx context.Context, id string, snapshot *CartSnapshot, from, to Status) error {
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal cart snapshot: %w", err)
	}

	query := `UPDATE checkout_sessions
              SET status = $1, cart_snapshot = $2, updated_at = NOW()
              WHERE id = $3 AND status = $4`
	return r.execTransition(ctx, id, query, to, snapshotJSON, id, from)
}

func (r *Repository) SaveShipping(ctx context.Context, id string, address *domain.ShippingAddress, snapshot *CartSnapshot, from, to Status) error {
	addressJSON, err := json.Marshal(address)
	if err != nil {
		return fmt.Errorf("failed to marshal shipping address: %w", err)
	}
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal cart snapshot: %w", err)
	}

	query := `UPDATE checkout_sessions
              SET status = $1, shipping_address = $2, cart_snapshot = $3, updated_at = NOW()
              WHERE id = $4 AND status = $5`
	return r.execTransition(ctx, id, query, to, addressJSON, snapshotJSON, id, from)
}

func (r *Repository) SetOrder(ctx context.Context, id, orderID string, from, to Status) error {
	query := `UPDATE checkout_sessions SET status = $1, order_id = $2, updated_at = NOW() WHERE id = $3 AND status = $4`
	return r.execTransition(ctx, id, query, to, orderID, id, from)
}

func (r *Repository) SetFailure(ctx context.Context, id, reason string, from, to Status) error {
	query := `UPDATE checkout_sessions SET status = $1, failure_reason = $2, updated_at = NOW() WHERE id = $3 AND status = $4`
	return r.execTransition(ctx, id, query, to, reason, id, from)
}

// CompleteSession marks the session paid and writes the outbox event in
// the same transaction, so the event exists iff the status change did.
func (r *Repository) CompleteSession(ctx context.Context, id, paymentID string, eventPayload []byte) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `UPDATE checkout_sessions
              SET status = $1, payment_id = $2, updated_at = NOW()
              WHERE id = $3 AND status = $4`
	res, err := tx.ExecContext(ctx, query, StatusPaymentSucceeded, paymentID, id, StatusAwaitingPayment)
	if err != nil {
		return fmt.Errorf("failed to complete checkout session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return r.transitionFailure(ctx, id)
	}

	outboxQuery := `INSERT INTO checkout_outbox (aggregate_id, event_type, payload, created_at)
                    VALUES ($1, $2, $3, NOW())`
	if _, err := tx.ExecContext(ctx, outboxQuery, id, "checkout-completed", eventPayload); err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `SELECT id, aggregate_id, event_type, payload, created_at
              FROM checkout_outbox
              WHERE processed = FALSE
              ORDER BY created_at
              LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var event OutboxEvent
		if err := rows.Scan(&event.ID, &event.AggregateID, &event.EventType, &event.Payload, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox events: %w", err)
	}

	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, eventID int64) error {
	query := `UPDATE checkout_outbox SET processed = TRUE, processed_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, eventID); err != nil {
		return fmt.Errorf("failed to mark outbox event as processed: %w", err)
	}
	return nil
}

func (r *Repository) execTransition(ctx context.Context, id, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update checkout session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return r.transitionFailure(ctx, id)
	}
	return nil
}

// transitionFailure distinguishes a missing session from a stale status.
func (r *Repository) transitionFailure(ctx context.Context, id string) error {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM checkout_sessions WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to query checkout session: %w", err)
	}
	return ErrIllegalTransition
}
