// Package transport carries published content from publishers to subscriber sessions.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"keyword-notifier/pkg/notifier"
)

// ContentTopic is the default topic content is published on.
const ContentTopic = "content"

// ErrClosed is returned by operations on a closed bus or consumer.
var ErrClosed = errors.New("transport closed")

// Record is a single published message.
type Record struct {
	PublishedAt time.Time
	Topic       string
	Key         string
	Value       []byte
}

// Consumer receives records for the topics it subscribed to.
type Consumer interface {
	// Poll waits up to timeout for records and returns whatever is queued.
	// An empty batch means the wait timed out or Wakeup was called.
	Poll(ctx context.Context, timeout time.Duration) ([]Record, error)
	// Wakeup interrupts a blocked Poll.
	Wakeup()
	// Close stops delivery. It is safe to call more than once and concurrently with Poll.
	Close() error
}

// EncodeContent serializes content for the wire.
func EncodeContent(c *notifier.Content) ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal content: %w", err)
	}
	return data, nil
}

// DecodeContent parses a record value produced by EncodeContent.
func DecodeContent(data []byte) (*notifier.Content, error) {
	var c notifier.Content
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal content: %w", err)
	}
	if c.ID == "" {
		return nil, errors.New("content without id")
	}
	return &c, nil
}
