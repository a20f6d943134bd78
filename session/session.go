// Package session runs one consumption loop per logged-in subscriber and turns
// published content into notifications.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/tomb.v2"

	"keyword-notifier/match"
	"keyword-notifier/pkg/notifier"
	"keyword-notifier/transport"
)

const (
	defaultPollTimeout = 100 * time.Millisecond
	defaultGracePeriod = 5 * time.Second
)

// State is a session lifecycle state. Sessions only move forward:
// Created, Running, Closing, Closed.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Registry interface for subscriber phrase sets.
type Registry interface {
	AddPhrase(ctx context.Context, subscriberID, phrase string) error
	RemovePhrase(ctx context.Context, subscriberID, phrase string) (bool, error)
	ListPhrases(ctx context.Context, subscriberID string) ([]string, error)
}

// Bus interface for registering interest in published content.
type Bus interface {
	Subscribe(topics ...string) (transport.Consumer, error)
}

// Mailer interface for out-of-band notifications. Notify must not block on delivery.
type Mailer interface {
	Notify(ctx context.Context, address string, c *notifier.Content, matched []string)
}

// Contacts interface for resolving a subscriber's mail address.
// An empty address means the subscriber has none.
type Contacts interface {
	Address(ctx context.Context, subscriberID string) (string, error)
}

// Config holds what every session needs. Mailer and Contacts are optional;
// without them matches are only recorded in the notification log.
type Config struct {
	Registry    Registry
	Bus         Bus
	Mailer      Mailer
	Contacts    Contacts
	Logger      *slog.Logger
	Topic       string
	PollTimeout time.Duration
	GracePeriod time.Duration
}

// Session is the live consumption context of one subscriber.
type Session struct {
	subscriberID string
	registry     Registry
	bus          Bus
	mailer       Mailer
	contacts     Contacts
	logger       *slog.Logger
	topic        string
	pollTimeout  time.Duration
	grace        time.Duration

	mu       sync.Mutex // guards lifecycle transitions
	state    atomic.Int32
	t        tomb.Tomb
	consumer transport.Consumer

	log  *Log
	seen map[string]struct{} // content ids handled by the loop; loop-owned
}

// New creates a session for subscriberID in state Created.
func New(subscriberID string, cfg *Config) *Session {
	s := &Session{
		subscriberID: subscriberID,
		registry:     cfg.Registry,
		bus:          cfg.Bus,
		mailer:       cfg.Mailer,
		contacts:     cfg.Contacts,
		logger:       cfg.Logger.With("subscriber", subscriberID),
		topic:        cfg.Topic,
		pollTimeout:  cfg.PollTimeout,
		grace:        cfg.GracePeriod,
		log:          NewLog(),
		seen:         make(map[string]struct{}),
	}
	if s.topic == "" {
		s.topic = transport.ContentTopic
	}
	if s.pollTimeout <= 0 {
		s.pollTimeout = defaultPollTimeout
	}
	if s.grace <= 0 {
		s.grace = defaultGracePeriod
	}
	return s
}

// SubscriberID returns the subscriber this session belongs to.
func (s *Session) SubscriberID() string {
	return s.subscriberID
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Alive reports whether the session is running and its loop has not exited.
// The loop exits on its own when the transport closes the subscription.
func (s *Session) Alive() bool {
	return s.State() == StateRunning && s.t.Alive()
}

// Start subscribes to the content topic and launches the consumption loop.
// If the subscription cannot be acquired the session is closed and the error returned.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.State(); st != StateCreated {
		return fmt.Errorf("start session %s: session is %s", s.subscriberID, st)
	}

	consumer, err := s.bus.Subscribe(s.topic)
	if err != nil {
		s.state.Store(int32(StateClosed))
		return fmt.Errorf("subscribe to %s: %w", s.topic, err)
	}
	s.consumer = consumer
	s.state.Store(int32(StateRunning))
	s.t.Go(s.loop)

	s.logger.Info("Session started", "topic", s.topic)
	return nil
}

// Close stops the loop, waiting at most the grace period for it to exit, then
// releases the transport subscription and clears the notification log.
func (s *Session) Close() error {
	s.mu.Lock()
	switch s.State() {
	case StateCreated:
		s.state.Store(int32(StateClosed))
		s.mu.Unlock()
		return nil
	case StateRunning:
		s.state.Store(int32(StateClosing))
		s.mu.Unlock()
	default:
		s.mu.Unlock()
		return nil
	}

	s.t.Kill(nil)
	s.consumer.Wakeup()

	timer := time.NewTimer(s.grace)
	defer timer.Stop()
	select {
	case <-s.t.Dead():
	case <-timer.C:
		s.logger.Warn("Session loop did not stop in time, forcing close", "grace", s.grace)
	}

	var closeErr error
	if err := s.consumer.Close(); err != nil {
		closeErr = fmt.Errorf("close consumer: %w", err)
	}
	s.log.Clear()
	s.state.Store(int32(StateClosed))

	s.logger.Info("Session closed")
	return closeErr
}

func (s *Session) loop() error {
	ctx := s.t.Context(context.Background())

	for {
		select {
		case <-s.t.Dying():
			return nil
		default:
		}

		records, err := s.consumer.Poll(ctx, s.pollTimeout)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) {
				if s.t.Alive() {
					s.logger.Warn("Transport closed under running session")
				}
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("Poll failed", "error", err)
			continue
		}

		for _, rec := range records {
			if !s.t.Alive() {
				return nil
			}
			s.handle(ctx, rec)
		}
	}
}

// handle processes one record. Failures are logged and never stop the loop.
func (s *Session) handle(ctx context.Context, rec transport.Record) {
	c, err := transport.DecodeContent(rec.Value)
	if err != nil {
		s.logger.Warn("Skipping malformed record", "key", rec.Key, "error", err)
		return
	}
	if _, dup := s.seen[c.ID]; dup {
		s.logger.Debug("Skipping duplicate delivery", "content_id", c.ID)
		return
	}

	phrases, err := s.registry.ListPhrases(ctx, s.subscriberID)
	if err != nil {
		s.logger.Warn("Failed to list phrases", "content_id", c.ID, "error", err)
		return
	}
	s.seen[c.ID] = struct{}{}

	target := match.Prepare(c)
	var matched []string
	for _, phrase := range phrases {
		field, ok := target.Match(phrase)
		if !ok {
			continue
		}
		s.log.Append(phrase, c)
		matched = append(matched, phrase)
		s.logger.Debug("Content matched", "content_id", c.ID, "phrase", phrase, "field", field)
	}
	if len(matched) == 0 {
		return
	}

	s.logger.Info("Content matched subscriptions", "content_id", c.ID, "matched", matched)
	s.notify(ctx, c, matched)
}

func (s *Session) notify(ctx context.Context, c *notifier.Content, matched []string) {
	if s.mailer == nil || s.contacts == nil {
		return
	}
	address, err := s.contacts.Address(ctx, s.subscriberID)
	if err != nil {
		s.logger.Warn("Failed to resolve contact address", "error", err)
		return
	}
	if address == "" {
		s.logger.Debug("No contact address, skipping mail", "content_id", c.ID)
		return
	}
	s.mailer.Notify(ctx, address, c, matched)
}

// AddSubscription adds phrase for this subscriber. It returns false if the
// phrase is invalid or could not be stored.
func (s *Session) AddSubscription(ctx context.Context, phrase string) bool {
	if err := s.registry.AddPhrase(ctx, s.subscriberID, phrase); err != nil {
		if notifier.IsValidation(err) {
			s.logger.Info("Rejected subscription phrase", "phrase", phrase, "error", err)
		} else {
			s.logger.Warn("Failed to add subscription", "phrase", phrase, "error", err)
		}
		return false
	}
	return true
}

// RemoveSubscription removes phrase and reports whether it was subscribed.
func (s *Session) RemoveSubscription(ctx context.Context, phrase string) bool {
	removed, err := s.registry.RemovePhrase(ctx, s.subscriberID, phrase)
	if err != nil {
		s.logger.Warn("Failed to remove subscription", "phrase", phrase, "error", err)
		return false
	}
	return removed
}

// ActiveKeywords returns the subscriber's current phrases.
func (s *Session) ActiveKeywords(ctx context.Context) []string {
	phrases, err := s.registry.ListPhrases(ctx, s.subscriberID)
	if err != nil {
		s.logger.Warn("Failed to list phrases", "error", err)
		return []string{}
	}
	return phrases
}

// Notifications returns a snapshot of the notification log.
func (s *Session) Notifications() map[string][]*notifier.Content {
	return s.log.Snapshot()
}
