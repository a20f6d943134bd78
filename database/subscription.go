package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"keyword-notifier/pkg/notifier"
)

// SaveSubscription inserts or replaces a subscriber's aggregate subscription.
func (db *DB) SaveSubscription(ctx context.Context, sub *notifier.Subscription) error {
	phrases, err := json.Marshal(sub.Phrases)
	if err != nil {
		return fmt.Errorf("marshal phrases: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO subscriptions (subscriber_id, phrases, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(subscriber_id) DO UPDATE SET
			phrases = excluded.phrases,
			active = excluded.active,
			updated_at = excluded.updated_at
	`, sub.SubscriberID, string(phrases), sub.Active, formatTime(sub.CreatedAt), formatTime(sub.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save subscription %s: %w", sub.SubscriberID, err)
	}
	return nil
}

// LoadSubscription loads a subscriber's aggregate subscription.
func (db *DB) LoadSubscription(ctx context.Context, subscriberID string) (*notifier.Subscription, error) {
	var (
		sub                  notifier.Subscription
		phrases              string
		createdAt, updatedAt string
	)
	err := db.QueryRowContext(ctx, `
		SELECT subscriber_id, phrases, active, created_at, updated_at
		FROM subscriptions WHERE subscriber_id = ?
	`, subscriberID).Scan(&sub.SubscriberID, &phrases, &sub.Active, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("subscription %s: %w", subscriberID, notifier.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load subscription %s: %w", subscriberID, err)
	}

	if err := json.Unmarshal([]byte(phrases), &sub.Phrases); err != nil {
		return nil, fmt.Errorf("unmarshal phrases: %w", err)
	}
	if sub.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if sub.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &sub, nil
}

// DeleteSubscription removes a subscriber's aggregate subscription.
func (db *DB) DeleteSubscription(ctx context.Context, subscriberID string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM subscriptions WHERE subscriber_id = ?`, subscriberID)
	if err != nil {
		return fmt.Errorf("delete subscription %s: %w", subscriberID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("subscription %s: %w", subscriberID, notifier.ErrNotFound)
	}
	return nil
}

// SaveContact inserts or replaces a subscriber's contact address.
func (db *DB) SaveContact(ctx context.Context, c *notifier.Contact) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO contacts (subscriber_id, email, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(subscriber_id) DO UPDATE SET
			email = excluded.email,
			updated_at = excluded.updated_at
	`, c.SubscriberID, c.Email, formatTime(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save contact %s: %w", c.SubscriberID, err)
	}
	return nil
}

// LoadContact loads a subscriber's contact address.
func (db *DB) LoadContact(ctx context.Context, subscriberID string) (*notifier.Contact, error) {
	var (
		c         notifier.Contact
		updatedAt string
	)
	err := db.QueryRowContext(ctx, `
		SELECT subscriber_id, email, updated_at FROM contacts WHERE subscriber_id = ?
	`, subscriberID).Scan(&c.SubscriberID, &c.Email, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("contact %s: %w", subscriberID, notifier.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load contact %s: %w", subscriberID, err)
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
