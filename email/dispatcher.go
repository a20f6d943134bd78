package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"keyword-notifier/pkg/notifier"
)

const (
	defaultSendTimeout = 5 * time.Minute
	defaultQueueSize   = 1024
)

type job struct {
	ctx     context.Context
	address string
	content *notifier.Content
	matched []string
}

// Dispatcher sends content notifications on a bounded worker pool so callers
// never wait on a mail provider. Notifications queue while every worker is
// busy and are dropped only when the queue is full. Failures are logged, not
// returned.
type Dispatcher struct {
	sender  *Sender
	pool    *ants.Pool
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.RWMutex
	closed  bool
	queue   chan job
	drained chan struct{}
}

// NewDispatcher creates a dispatcher running at most workers concurrent sends
// and holding up to queueSize pending notifications.
func NewDispatcher(sender *Sender, workers, queueSize int, logger *slog.Logger) (*Dispatcher, error) {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	pool, err := ants.NewPool(workers,
		ants.WithPanicHandler(func(p interface{}) {
			logger.Error("Mail worker panicked", "panic", p)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create mail pool: %w", err)
	}

	d := &Dispatcher{
		sender:  sender,
		pool:    pool,
		logger:  logger,
		timeout: defaultSendTimeout,
		queue:   make(chan job, queueSize),
		drained: make(chan struct{}),
	}
	go d.drain()
	return d, nil
}

// Notify queues a notification for address and returns immediately.
func (d *Dispatcher) Notify(ctx context.Context, address string, c *notifier.Content, matched []string) {
	if c == nil {
		return
	}
	j := job{
		// Sends outlive the caller's context.
		ctx:     context.WithoutCancel(ctx),
		address: address,
		content: c.Clone(),
		matched: slices.Clone(matched),
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("Notification email dropped, dispatcher closed", "to", address, "content_id", c.ID)
		return
	}
	select {
	case d.queue <- j:
	default:
		d.logger.Warn("Notification email dropped, queue full", "to", address, "content_id", c.ID, "queued", len(d.queue))
	}
}

// drain hands queued notifications to the pool, waiting for a free worker.
func (d *Dispatcher) drain() {
	defer close(d.drained)
	for j := range d.queue {
		err := d.pool.Submit(func() { d.send(j) })
		if err != nil {
			d.logger.Warn("Notification email dropped", "to", j.address, "content_id", j.content.ID, "error", err)
		}
	}
}

func (d *Dispatcher) send(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.timeout)
	defer cancel()

	if err := d.sender.SendContentNotification(ctx, j.address, j.content, j.matched); err != nil {
		d.logger.Warn("Failed to send notification email",
			"to", j.address,
			"content_id", j.content.ID,
			"error", err)
	}
}

// Close stops accepting notifications and waits up to timeout for queued and
// in-flight sends before releasing the pool.
func (d *Dispatcher) Close(timeout time.Duration) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	deadline := time.Now().Add(timeout)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var errs []error
	select {
	case <-d.drained:
	case <-timer.C:
		errs = append(errs, fmt.Errorf("mail queue not drained after %v, %d pending", timeout, len(d.queue)))
	}

	if err := d.pool.ReleaseTimeout(max(time.Until(deadline), time.Millisecond)); err != nil {
		errs = append(errs, fmt.Errorf("release mail pool: %w", err))
	}
	return errors.Join(errs...)
}
