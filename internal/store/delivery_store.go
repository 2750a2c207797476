package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Priya8975/hookline/internal/domain"
	"github.com/jackc/pgx/v5"
)

const deliveryColumns = `id, subscription_id, event_id, event_type, retry_count, payload, status,
	response_code, response_body, response_time_ms, error_message, next_retry_at, created_at, delivered_at`

func scanDeliveryAttempt(row rowScanner) (*domain.DeliveryAttempt, error) {
	var (
		a         domain.DeliveryAttempt
		eventType string
		status    string
	)
	err := row.Scan(
		&a.ID, &a.SubscriptionID, &a.EventID, &eventType, &a.RetryCount, &a.Payload, &status,
		&a.ResponseCode, &a.ResponseBody, &a.ResponseTimeMs, &a.ErrorMessage, &a.NextRetryAt,
		&a.CreatedAt, &a.DeliveredAt,
	)
	if err != nil {
		return nil, err
	}
	a.EventType = domain.EventType(eventType)
	a.Status = domain.DeliveryStatus(status)
	return &a, nil
}

// CreateDeliveryAttempt inserts a pending delivery attempt.
func (s *PostgresStore) CreateDeliveryAttempt(ctx context.Context, a *domain.DeliveryAttempt) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO delivery_attempts (id, subscription_id, event_id, event_type, retry_count, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.SubscriptionID, a.EventID, string(a.EventType), a.RetryCount, a.Payload, string(a.Status), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting delivery attempt: %w", err)
	}
	return nil
}

// CompleteDeliveryAttempt records the terminal outcome of a pending attempt.
// The row is only updated while it is still pending.
func (s *PostgresStore) CompleteDeliveryAttempt(ctx context.Context, a *domain.DeliveryAttempt) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE delivery_attempts SET
			status = $2, response_code = $3, response_body = $4, response_time_ms = $5,
			error_message = $6, next_retry_at = $7, delivered_at = $8
		WHERE id = $1 AND status = 'pending'
	`, a.ID, string(a.Status), a.ResponseCode, a.ResponseBody, a.ResponseTimeMs,
		a.ErrorMessage, a.NextRetryAt, a.DeliveredAt)
	if err != nil {
		return fmt.Errorf("completing delivery attempt: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAttemptNotPending
	}
	return nil
}

// ListDeliveryAttempts returns delivery attempts with optional filtering,
// newest first.
func (s *PostgresStore) ListDeliveryAttempts(ctx context.Context, f domain.DeliveryFilter) ([]domain.DeliveryAttempt, error) {
	query := `SELECT ` + deliveryColumns + ` FROM delivery_attempts`
	args := []any{}
	conditions := []string{}

	add := func(cond string, v any) {
		args = append(args, v)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if f.SubscriptionID != "" {
		add("subscription_id = $%d", f.SubscriptionID)
	}
	if f.EventID != "" {
		add("event_id = $%d", f.EventID)
	}
	if f.EventType != "" {
		add("event_type = $%d", string(f.EventType))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at < $%d", f.To)
	}

	query += whereClause(conditions)
	query += " ORDER BY created_at DESC"

	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying delivery attempts: %w", err)
	}
	defer rows.Close()

	attempts := []domain.DeliveryAttempt{}
	for rows.Next() {
		a, err := scanDeliveryAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning delivery attempt: %w", err)
		}
		attempts = append(attempts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating delivery attempts: %w", err)
	}
	return attempts, nil
}

// GetDeliveryAttempt returns a single delivery attempt by ID.
func (s *PostgresStore) GetDeliveryAttempt(ctx context.Context, id string) (*domain.DeliveryAttempt, error) {
	a, err := scanDeliveryAttempt(s.pool.QueryRow(ctx,
		`SELECT `+deliveryColumns+` FROM delivery_attempts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying delivery attempt: %w", err)
	}
	return a, nil
}
