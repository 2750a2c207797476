package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Priya8975/hookline/internal/domain"
	"github.com/jackc/pgx/v5"
)

const subscriptionColumns = `id, owner_id, name, description, url, events, secret, status, headers,
	timeout_seconds, max_retry_attempts, rate_limit_per_second, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*domain.Subscription, error) {
	var (
		sub    domain.Subscription
		events []string
		status string
	)
	err := row.Scan(
		&sub.ID, &sub.OwnerID, &sub.Name, &sub.Description, &sub.URL, &events,
		&sub.Secret, &status, &sub.Headers, &sub.TimeoutSeconds, &sub.MaxRetryAttempts,
		&sub.RateLimitPerSecond, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.Status = domain.SubscriptionStatus(status)
	sub.Events = toEventTypes(events)
	return &sub, nil
}

func (s *PostgresStore) CreateSubscription(ctx context.Context, sub *domain.Subscription) error {
	headers := sub.Headers
	if headers == nil {
		headers = map[string]string{}
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO subscriptions (id, owner_id, name, description, url, events, secret, status, headers,
			timeout_seconds, max_retry_attempts, rate_limit_per_second)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`, sub.ID, sub.OwnerID, sub.Name, sub.Description, sub.URL, fromEventTypes(sub.Events), sub.Secret,
		string(sub.Status), headers, sub.TimeoutSeconds, sub.MaxRetryAttempts, sub.RateLimitPerSecond,
	).Scan(&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting subscription: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	sub, err := scanSubscription(s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying subscription: %w", err)
	}
	return sub, nil
}

// ListSubscriptions returns subscriptions, optionally restricted to one owner.
func (s *PostgresStore) ListSubscriptions(ctx context.Context, ownerID string) ([]domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions`
	args := []any{}
	if ownerID != "" {
		query += ` WHERE owner_id = $1`
		args = append(args, ownerID)
	}
	query += ` ORDER BY created_at DESC`

	return s.querySubscriptions(ctx, query, args...)
}

// FindSubscriptionsForEvent returns every subscription, active or paused,
// whose event set contains eventType.
func (s *PostgresStore) FindSubscriptionsForEvent(ctx context.Context, eventType domain.EventType) ([]domain.Subscription, error) {
	return s.querySubscriptions(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE events @> ARRAY[$1::text]`,
		string(eventType))
}

func (s *PostgresStore) querySubscriptions(ctx context.Context, query string, args ...any) ([]domain.Subscription, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []domain.Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subscriptions: %w", err)
	}
	return subs, nil
}

// UpdateSubscription overwrites the mutable fields of a subscription.
// Returns nil when the subscription does not exist.
func (s *PostgresStore) UpdateSubscription(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	headers := sub.Headers
	if headers == nil {
		headers = map[string]string{}
	}

	updated, err := scanSubscription(s.pool.QueryRow(ctx, `
		UPDATE subscriptions SET
			name = $2, description = $3, url = $4, events = $5, secret = $6, status = $7,
			headers = $8, timeout_seconds = $9, max_retry_attempts = $10,
			rate_limit_per_second = $11, updated_at = NOW()
		WHERE id = $1
		RETURNING `+subscriptionColumns,
		sub.ID, sub.Name, sub.Description, sub.URL, fromEventTypes(sub.Events), sub.Secret,
		string(sub.Status), headers, sub.TimeoutSeconds, sub.MaxRetryAttempts, sub.RateLimitPerSecond,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("updating subscription: %w", err)
	}
	return updated, nil
}

// SetSubscriptionStatus toggles a subscription between active and paused.
func (s *PostgresStore) SetSubscriptionStatus(ctx context.Context, id string, status domain.SubscriptionStatus) (*domain.Subscription, error) {
	sub, err := scanSubscription(s.pool.QueryRow(ctx, `
		UPDATE subscriptions SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+subscriptionColumns, id, string(status)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("updating subscription status: %w", err)
	}
	return sub, nil
}

// DeleteSubscription removes a subscription; its delivery attempts are
// removed by the ON DELETE CASCADE foreign key.
func (s *PostgresStore) DeleteSubscription(ctx context.Context, id string) (bool, error) {
	result, err := s.pool.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("deleting subscription: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func toEventTypes(values []string) []domain.EventType {
	out := make([]domain.EventType, len(values))
	for i, v := range values {
		out[i] = domain.EventType(v)
	}
	return out
}

func fromEventTypes(events []domain.EventType) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = string(e)
	}
	return out
}

func whereClause(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}
