package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"testing"
	"time"

	"keyword-notifier/keywords"
	"keyword-notifier/pkg/notifier"
	"keyword-notifier/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type memStore struct {
	mu       sync.Mutex
	contents map[string]*notifier.Content
	saveErr  error
}

func newMemStore() *memStore {
	return &memStore{contents: make(map[string]*notifier.Content)}
}

func (m *memStore) SaveContent(_ context.Context, c *notifier.Content) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.contents[c.ID] = c.Clone()
	return nil
}

func (m *memStore) LoadContent(_ context.Context, id string) (*notifier.Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contents[id]
	if !ok {
		return nil, fmt.Errorf("content %s: %w", id, notifier.ErrNotFound)
	}
	return c.Clone(), nil
}

func (m *memStore) DeleteContent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.contents[id]; !ok {
		return fmt.Errorf("content %s: %w", id, notifier.ErrNotFound)
	}
	delete(m.contents, id)
	return nil
}

func (m *memStore) ListContent(context.Context) ([]*notifier.Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*notifier.Content
	for _, c := range m.contents {
		out = append(out, c.Clone())
	}
	slices.SortFunc(out, func(a, b *notifier.Content) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (m *memStore) ContentByPublisher(ctx context.Context, publisherID string) ([]*notifier.Content, error) {
	all, _ := m.ListContent(ctx)
	return slices.DeleteFunc(all, func(c *notifier.Content) bool { return c.PublisherID != publisherID }), nil
}

type published struct {
	topic, key string
	value      []byte
}

type recordingBus struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (b *recordingBus) Publish(_ context.Context, topic, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.sent = append(b.sent, published{topic: topic, key: key, value: value})
	return nil
}

func newPublisher() (*Publisher, *memStore, *recordingBus) {
	store := newMemStore()
	bus := &recordingBus{}
	p := New(store, bus, keywords.New(), "", testLogger())
	p.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return p, store, bus
}

func worldCup() *notifier.Content {
	return &notifier.Content{
		Title:       "World Cup Final",
		Body:        "The football match ended 2-1",
		Keywords:    []string{"Football", " sports ", "football", ""},
		PublisherID: "pub-1",
	}
}

func TestPublish(t *testing.T) {
	p, store, bus := newPublisher()
	ctx := context.Background()

	in := worldCup()
	got, err := p.Publish(ctx, in)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if got.ID == "" {
		t.Error("no id assigned")
	}
	if !got.CreatedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v", got.CreatedAt)
	}
	if !slices.Equal(got.Keywords, []string{"football", "sports"}) {
		t.Errorf("Keywords = %v, want normalized and de-duplicated", got.Keywords)
	}
	if in.ID != "" || len(in.Keywords) != 4 {
		t.Error("Publish modified its argument")
	}

	stored, err := store.LoadContent(ctx, got.ID)
	if err != nil {
		t.Fatalf("content not stored: %v", err)
	}
	if stored.Title != "World Cup Final" {
		t.Errorf("stored title = %q", stored.Title)
	}

	if len(bus.sent) != 1 {
		t.Fatalf("bus received %d records, want 1", len(bus.sent))
	}
	rec := bus.sent[0]
	if rec.topic != transport.ContentTopic || rec.key != got.ID {
		t.Errorf("record topic/key = %q/%q", rec.topic, rec.key)
	}
	decoded, err := transport.DecodeContent(rec.value)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.ID != got.ID || !slices.Equal(decoded.Keywords, got.Keywords) {
		t.Errorf("emitted content = %+v", decoded)
	}
}

func TestPublishIDsAreUnique(t *testing.T) {
	p, _, _ := newPublisher()
	seen := make(map[string]bool)
	for range 20 {
		c, err := p.Publish(context.Background(), worldCup())
		if err != nil {
			t.Fatal(err)
		}
		if seen[c.ID] {
			t.Fatalf("duplicate id %s", c.ID)
		}
		seen[c.ID] = true
	}
}

func TestPublishValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *notifier.Content)
		field  string
	}{
		{"empty title", func(c *notifier.Content) { c.Title = "  " }, "title"},
		{"empty body", func(c *notifier.Content) { c.Body = "" }, "body"},
		{"no publisher", func(c *notifier.Content) { c.PublisherID = "" }, "publisher"},
		{"no keywords", func(c *notifier.Content) { c.Keywords = nil }, "keywords"},
		{"blank keywords", func(c *notifier.Content) { c.Keywords = []string{" ", ""} }, "keywords"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, store, bus := newPublisher()
			c := worldCup()
			tt.mutate(c)

			_, err := p.Publish(context.Background(), c)
			var verr *notifier.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Publish() error = %v, want ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("field = %q, want %q", verr.Field, tt.field)
			}
			if len(store.contents) != 0 || len(bus.sent) != 0 {
				t.Error("invalid content was stored or emitted")
			}
		})
	}

	p, _, _ := newPublisher()
	if _, err := p.Publish(context.Background(), nil); !notifier.IsValidation(err) {
		t.Errorf("Publish(nil) error = %v", err)
	}
}

func TestPublishStoreFailure(t *testing.T) {
	p, store, bus := newPublisher()
	store.saveErr = errors.New("disk full")

	if _, err := p.Publish(context.Background(), worldCup()); err == nil {
		t.Fatal("Publish() succeeded with failing store")
	}
	if len(bus.sent) != 0 {
		t.Error("content emitted although it was not stored")
	}
}

func TestPublishBusFailureIsNotFatal(t *testing.T) {
	p, store, bus := newPublisher()
	bus.err = transport.ErrClosed

	got, err := p.Publish(context.Background(), worldCup())
	if err != nil {
		t.Fatalf("Publish() error = %v, want success for the stored write", err)
	}
	if _, err := store.LoadContent(context.Background(), got.ID); err != nil {
		t.Errorf("content not stored: %v", err)
	}
}

func TestDeleteContent(t *testing.T) {
	p, store, _ := newPublisher()
	ctx := context.Background()
	c, err := p.Publish(ctx, worldCup())
	if err != nil {
		t.Fatal(err)
	}

	if err := p.DeleteContent(ctx, c.ID, "someone-else"); !errors.Is(err, notifier.ErrUnauthorized) {
		t.Errorf("delete by non-owner error = %v, want ErrUnauthorized", err)
	}
	if _, err := store.LoadContent(ctx, c.ID); err != nil {
		t.Error("non-owner delete removed content")
	}

	if err := p.DeleteContent(ctx, c.ID, "pub-1"); err != nil {
		t.Fatalf("delete by owner error = %v", err)
	}
	if _, err := store.LoadContent(ctx, c.ID); !notifier.IsNotFound(err) {
		t.Error("content still stored after delete")
	}

	if err := p.DeleteContent(ctx, c.ID, "pub-1"); !notifier.IsNotFound(err) {
		t.Errorf("delete of absent content error = %v, want ErrNotFound", err)
	}
}

func TestUpdateKeywords(t *testing.T) {
	p, store, _ := newPublisher()
	ctx := context.Background()
	c, err := p.Publish(ctx, worldCup())
	if err != nil {
		t.Fatal(err)
	}

	got, err := p.UpdateKeywords(ctx, c.ID, "pub-1", []string{"Soccer", "world cup"})
	if err != nil {
		t.Fatalf("UpdateKeywords() error = %v", err)
	}
	if !slices.Equal(got.Keywords, []string{"soccer", "world cup"}) {
		t.Errorf("Keywords = %v", got.Keywords)
	}
	stored, _ := store.LoadContent(ctx, c.ID)
	if !slices.Equal(stored.Keywords, got.Keywords) {
		t.Errorf("stored keywords = %v", stored.Keywords)
	}

	if _, err := p.UpdateKeywords(ctx, c.ID, "intruder", []string{"spam"}); !errors.Is(err, notifier.ErrUnauthorized) {
		t.Errorf("non-owner edit error = %v", err)
	}
	if _, err := p.UpdateKeywords(ctx, c.ID, "pub-1", []string{"  "}); !notifier.IsValidation(err) {
		t.Errorf("empty keywords error = %v", err)
	}
	if _, err := p.UpdateKeywords(ctx, "missing", "pub-1", []string{"x"}); !notifier.IsNotFound(err) {
		t.Errorf("missing content error = %v", err)
	}
}

func TestDraft(t *testing.T) {
	p, _, _ := newPublisher()

	got, err := p.Draft("Robotics and Automation", "Robotics is transforming automation in factories")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) == 0 || got[0] != "robotics" {
		t.Errorf("Draft() = %v, want robotics first", got)
	}

	dropped, err := p.Draft("Robotics and Automation", "Robotics is transforming automation in factories", "ROBOTICS")
	if err != nil {
		t.Fatal(err)
	}
	if slices.Contains(dropped, "robotics") {
		t.Errorf("Draft() = %v, dropped keyword still present", dropped)
	}

	if _, err := p.Draft("Robotics", "", "robotics"); !notifier.IsValidation(err) {
		t.Errorf("Draft with nothing left error = %v", err)
	}
	if _, err := p.Draft(" ", ""); !notifier.IsValidation(err) {
		t.Errorf("Draft of empty input error = %v", err)
	}
}

func TestPublisherQueries(t *testing.T) {
	p, _, _ := newPublisher()
	ctx := context.Background()

	for i, pub := range []string{"pub-1", "pub-2", "pub-1"} {
		c := worldCup()
		c.PublisherID = pub
		c.Title = fmt.Sprintf("Item %d", i)
		if _, err := p.Publish(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	all, err := p.AllContent(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("AllContent() = %d items, want 3", len(all))
	}

	mine, err := p.ContentByPublisher(ctx, "pub-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 2 {
		t.Errorf("ContentByPublisher(pub-1) = %d items, want 2", len(mine))
	}

	n, err := p.DeleteAllByPublisher(ctx, "pub-1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("DeleteAllByPublisher() = %d, want 2", n)
	}
	rest, _ := p.AllContent(ctx)
	if len(rest) != 1 || rest[0].PublisherID != "pub-2" {
		t.Errorf("remaining content = %v", rest)
	}
}

func TestNormalizeKeywords(t *testing.T) {
	tests := []struct {
		in   []string
		want []string
	}{
		{nil, []string{}},
		{[]string{"Go", "go", " GO "}, []string{"go"}},
		{[]string{"Machine   Learning", "AI"}, []string{"machine learning", "ai"}},
		{[]string{"", "  ", "Ça"}, []string{"ça"}},
	}
	for _, tt := range tests {
		if got := NormalizeKeywords(tt.in); !slices.Equal(got, tt.want) {
			t.Errorf("NormalizeKeywords(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
