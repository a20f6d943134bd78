package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"keyword-notifier/pkg/notifier"
)

const contentColumns = `id, publisher_id, title, body, keywords, created_at`

// SaveContent inserts or replaces a content item.
func (db *DB) SaveContent(ctx context.Context, c *notifier.Content) error {
	keywords, err := json.Marshal(c.Keywords)
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO contents (`+contentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			publisher_id = excluded.publisher_id,
			title = excluded.title,
			body = excluded.body,
			keywords = excluded.keywords
	`, c.ID, c.PublisherID, c.Title, c.Body, string(keywords), formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("save content %s: %w", c.ID, err)
	}

	db.logger.Debug("Content saved", "id", c.ID, "publisher", c.PublisherID)
	return nil
}

// LoadContent loads a content item by id.
func (db *DB) LoadContent(ctx context.Context, id string) (*notifier.Content, error) {
	row := db.QueryRowContext(ctx, `SELECT `+contentColumns+` FROM contents WHERE id = ?`, id)
	c, err := scanContent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("content %s: %w", id, notifier.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load content %s: %w", id, err)
	}
	return c, nil
}

// DeleteContent removes a content item.
func (db *DB) DeleteContent(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM contents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete content %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete content %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("content %s: %w", id, notifier.ErrNotFound)
	}
	return nil
}

// ListContent returns every stored content item, oldest first.
func (db *DB) ListContent(ctx context.Context) ([]*notifier.Content, error) {
	return db.queryContent(ctx, `SELECT `+contentColumns+` FROM contents ORDER BY created_at, id`)
}

// ContentByPublisher returns every item owned by publisherID, oldest first.
func (db *DB) ContentByPublisher(ctx context.Context, publisherID string) ([]*notifier.Content, error) {
	return db.queryContent(ctx, `SELECT `+contentColumns+` FROM contents WHERE publisher_id = ? ORDER BY created_at, id`, publisherID)
}

func (db *DB) queryContent(ctx context.Context, query string, args ...any) ([]*notifier.Content, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query content: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			db.logger.Warn("Failed to close rows", "error", closeErr)
		}
	}()

	var out []*notifier.Content
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContent(s scanner) (*notifier.Content, error) {
	var (
		c         notifier.Content
		keywords  string
		createdAt string
	)
	if err := s.Scan(&c.ID, &c.PublisherID, &c.Title, &c.Body, &keywords, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(keywords), &c.Keywords); err != nil {
		return nil, fmt.Errorf("unmarshal keywords: %w", err)
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = t
	return &c, nil
}
