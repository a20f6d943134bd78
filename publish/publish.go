// Package publish validates content and writes it through to storage and the bus.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"keyword-notifier/keywords"
	"keyword-notifier/pkg/notifier"
	"keyword-notifier/transport"
)

// Store interface for content persistence.
type Store interface {
	SaveContent(ctx context.Context, c *notifier.Content) error
	LoadContent(ctx context.Context, id string) (*notifier.Content, error)
	DeleteContent(ctx context.Context, id string) error
	ListContent(ctx context.Context) ([]*notifier.Content, error)
	ContentByPublisher(ctx context.Context, publisherID string) ([]*notifier.Content, error)
}

// Bus interface for emitting published content.
type Bus interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Extractor interface for suggesting keywords.
type Extractor interface {
	Extract(title, body string) []string
}

// Publisher owns the content lifecycle on the publishing side.
type Publisher struct {
	store     Store
	bus       Bus
	extractor Extractor
	topic     string
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a publisher emitting on topic.
func New(store Store, bus Bus, extractor Extractor, topic string, logger *slog.Logger) *Publisher {
	if topic == "" {
		topic = transport.ContentTopic
	}
	return &Publisher{
		store:     store,
		bus:       bus,
		extractor: extractor,
		topic:     topic,
		logger:    logger,
		now:       time.Now,
	}
}

// Publish validates c, assigns its id and timestamp, stores it and emits it
// keyed by id. A failed emit is logged; the stored content is still returned.
func (p *Publisher) Publish(ctx context.Context, c *notifier.Content) (*notifier.Content, error) {
	if c == nil {
		return nil, notifier.Invalid("content", "must not be nil")
	}
	out := c.Clone()
	out.Title = strings.TrimSpace(out.Title)
	out.PublisherID = strings.TrimSpace(out.PublisherID)
	out.Keywords = NormalizeKeywords(out.Keywords)

	if err := validate(out); err != nil {
		return nil, err
	}

	out.ID = uuid.NewString()
	out.CreatedAt = p.now().UTC()

	if err := p.store.SaveContent(ctx, out); err != nil {
		return nil, fmt.Errorf("save content: %w", err)
	}
	p.logger.Info("Content published", "content_id", out.ID, "publisher", out.PublisherID, "keywords", out.Keywords)

	if err := p.emit(ctx, out); err != nil {
		p.logger.Warn("Content stored but not delivered", "content_id", out.ID, "error", err)
	}
	return out.Clone(), nil
}

func (p *Publisher) emit(ctx context.Context, c *notifier.Content) error {
	data, err := transport.EncodeContent(c)
	if err != nil {
		return err
	}
	if err := p.bus.Publish(ctx, p.topic, c.ID, data); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}

func validate(c *notifier.Content) error {
	switch {
	case c.Title == "":
		return notifier.Invalid("title", "must not be empty")
	case strings.TrimSpace(c.Body) == "":
		return notifier.Invalid("body", "must not be empty")
	case c.PublisherID == "":
		return notifier.Invalid("publisher", "must not be empty")
	case len(c.Keywords) == 0:
		return notifier.Invalid("keywords", "at least one keyword is required")
	}
	return nil
}

// Draft suggests keywords for title and body, leaving out those in drop.
// At least one keyword must remain.
func (p *Publisher) Draft(title, body string, drop ...string) ([]string, error) {
	if strings.TrimSpace(title) == "" && strings.TrimSpace(body) == "" {
		return nil, notifier.Invalid("content", "title or body is required")
	}

	dropped := NormalizeKeywords(drop)
	suggested := slices.DeleteFunc(p.extractor.Extract(title, body), func(kw string) bool {
		return slices.Contains(dropped, kw)
	})
	if len(suggested) == 0 {
		return nil, notifier.Invalid("keywords", "no keywords left")
	}
	return suggested, nil
}

// DeleteContent removes content id if requester published it.
func (p *Publisher) DeleteContent(ctx context.Context, id, requester string) error {
	if _, err := p.owned(ctx, id, requester); err != nil {
		return err
	}
	if err := p.store.DeleteContent(ctx, id); err != nil {
		return fmt.Errorf("delete content %s: %w", id, err)
	}
	p.logger.Info("Content deleted", "content_id", id, "publisher", requester)
	return nil
}

// UpdateKeywords replaces the keyword set of content id if requester published it.
func (p *Publisher) UpdateKeywords(ctx context.Context, id, requester string, updated []string) (*notifier.Content, error) {
	kws := NormalizeKeywords(updated)
	if len(kws) == 0 {
		return nil, notifier.Invalid("keywords", "at least one keyword is required")
	}

	c, err := p.owned(ctx, id, requester)
	if err != nil {
		return nil, err
	}
	c.Keywords = kws
	if err := p.store.SaveContent(ctx, c); err != nil {
		return nil, fmt.Errorf("save content %s: %w", id, err)
	}
	p.logger.Info("Content keywords updated", "content_id", id, "keywords", kws)
	return c, nil
}

// owned loads content id and checks it belongs to requester.
func (p *Publisher) owned(ctx context.Context, id, requester string) (*notifier.Content, error) {
	c, err := p.store.LoadContent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load content %s: %w", id, err)
	}
	if c.PublisherID != requester {
		p.logger.Info("Rejected change by non-owner", "content_id", id, "requester", requester)
		return nil, fmt.Errorf("content %s: %w", id, notifier.ErrUnauthorized)
	}
	return c, nil
}

// ContentByPublisher returns every item published by publisherID.
func (p *Publisher) ContentByPublisher(ctx context.Context, publisherID string) ([]*notifier.Content, error) {
	items, err := p.store.ContentByPublisher(ctx, publisherID)
	if err != nil {
		return nil, fmt.Errorf("list content of %s: %w", publisherID, err)
	}
	return items, nil
}

// AllContent returns every stored item.
func (p *Publisher) AllContent(ctx context.Context) ([]*notifier.Content, error) {
	items, err := p.store.ListContent(ctx)
	if err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}
	return items, nil
}

// DeleteAllByPublisher removes every item published by publisherID and
// returns how many were removed.
func (p *Publisher) DeleteAllByPublisher(ctx context.Context, publisherID string) (int, error) {
	items, err := p.ContentByPublisher(ctx, publisherID)
	if err != nil {
		return 0, err
	}

	var errs []error
	deleted := 0
	for _, c := range items {
		if err := p.store.DeleteContent(ctx, c.ID); err != nil {
			if notifier.IsNotFound(err) {
				continue
			}
			errs = append(errs, fmt.Errorf("delete content %s: %w", c.ID, err))
			continue
		}
		deleted++
	}

	p.logger.Info("Deleted publisher content", "publisher", publisherID, "deleted", deleted, "failed", len(errs))
	return deleted, errors.Join(errs...)
}

// NormalizeKeywords lower-cases, trims and de-duplicates keywords, dropping
// empty ones. Order is preserved.
func NormalizeKeywords(kws []string) []string {
	out := make([]string, 0, len(kws))
	for _, kw := range kws {
		kw = strings.Join(strings.Fields(keywords.Lower(kw)), " ")
		if kw == "" || slices.Contains(out, kw) {
			continue
		}
		out = append(out, kw)
	}
	return out
}
