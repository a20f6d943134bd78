package transport

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/juju/pubsub/v2"
)

const defaultBufferSize = 256

// Hub is an in-process bus. Each consumer gets its own bounded queue fed by
// a SimpleHub subscription, so a slow consumer only delays itself.
type Hub struct {
	hub        *pubsub.SimpleHub
	logger     *slog.Logger
	bufferSize int

	mu        sync.Mutex
	closed    bool
	consumers map[*hubConsumer]struct{}
}

// NewHub creates an in-process bus. bufferSize bounds each consumer's queue.
func NewHub(bufferSize int, logger *slog.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Hub{
		hub:        pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{}),
		logger:     logger,
		bufferSize: bufferSize,
		consumers:  make(map[*hubConsumer]struct{}),
	}
}

// Publish sends value to every consumer subscribed to topic.
func (h *Hub) Publish(ctx context.Context, topic, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return ErrClosed
	}

	_ = h.hub.Publish(topic, Record{
		PublishedAt: time.Now(),
		Topic:       topic,
		Key:         key,
		Value:       slices.Clone(value),
	})

	h.logger.Debug("Record published", "topic", topic, "key", key, "bytes", len(value))
	return nil
}

// Subscribe registers a consumer for topics.
func (h *Hub) Subscribe(topics ...string) (Consumer, error) {
	if len(topics) == 0 {
		return nil, errors.New("subscribe: no topics")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}

	c := &hubConsumer{
		owner:   h,
		records: make(chan Record, h.bufferSize),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	for _, topic := range topics {
		c.unsubs = append(c.unsubs, h.hub.Subscribe(topic, c.deliver))
	}
	h.consumers[c] = struct{}{}

	h.logger.Debug("Consumer subscribed", "topics", topics)
	return c, nil
}

// Close closes every consumer and rejects further publishes.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	consumers := make([]*hubConsumer, 0, len(h.consumers))
	for c := range h.consumers {
		consumers = append(consumers, c)
	}
	h.mu.Unlock()

	for _, c := range consumers {
		if err := c.Close(); err != nil {
			h.logger.Warn("Failed to close consumer", "error", err)
		}
	}
	return nil
}

func (h *Hub) forget(c *hubConsumer) {
	h.mu.Lock()
	delete(h.consumers, c)
	h.mu.Unlock()
}

type hubConsumer struct {
	owner   *Hub
	records chan Record
	wake    chan struct{}
	done    chan struct{}
	unsubs  []func()
	once    sync.Once
}

// deliver runs on the hub's per-subscriber goroutine. It waits for queue
// space until the consumer is closed.
func (c *hubConsumer) deliver(_ string, data interface{}) {
	rec, ok := data.(Record)
	if !ok {
		return
	}
	select {
	case c.records <- rec:
	case <-c.done:
	}
}

func (c *hubConsumer) Poll(ctx context.Context, timeout time.Duration) ([]Record, error) {
	select {
	case <-c.done:
		return nil, ErrClosed
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var batch []Record
	select {
	case rec := <-c.records:
		batch = append(batch, rec)
	case <-timer.C:
		return nil, nil
	case <-c.wake:
		return nil, nil
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for len(batch) < cap(c.records) {
		select {
		case rec := <-c.records:
			batch = append(batch, rec)
		default:
			return batch, nil
		}
	}
	return batch, nil
}

func (c *hubConsumer) Wakeup() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *hubConsumer) Close() error {
	c.once.Do(func() {
		close(c.done)
		for _, unsub := range c.unsubs {
			unsub()
		}
		c.owner.forget(c)
	})
	return nil
}
