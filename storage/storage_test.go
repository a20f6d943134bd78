package storage

import (
	"context"
	"log/slog"
	"os"
	"slices"
	"strings"
	"testing"
	"time"

	"keyword-notifier/pkg/notifier"
)

func newLocalStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(nil, "", t.TempDir(), []byte("test-salt"), logger)
}

func TestObjectKey(t *testing.T) {
	s := newLocalStore(t)

	tests := []struct {
		name string
		kind string
		id   string
	}{
		{"plain id", kindContent, "abc"},
		{"path traversal attempt", kindSubscription, "../../etc/passwd"},
		{"unicode id", kindContact, "zoë"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := s.ObjectKey(tt.kind, tt.id)
			if !strings.HasPrefix(key, tt.kind+"-") || !strings.HasSuffix(key, ".json") {
				t.Errorf("ObjectKey() = %q, want %s-<hash>.json", key, tt.kind)
			}
			if strings.ContainsAny(key, "/\\") {
				t.Errorf("ObjectKey() = %q contains a path separator", key)
			}
			if again := s.ObjectKey(tt.kind, tt.id); again != key {
				t.Errorf("ObjectKey() not stable: %q vs %q", key, again)
			}
		})
	}
}

func TestContentLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newLocalStore(t)
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	items := []*notifier.Content{
		{ID: "2", Title: "Second", PublisherID: "pub-a", Keywords: []string{"b"}, CreatedAt: base.Add(time.Minute)},
		{ID: "1", Title: "First", PublisherID: "pub-a", Keywords: []string{"a"}, CreatedAt: base},
		{ID: "3", Title: "Other", PublisherID: "pub-b", Keywords: []string{"c"}, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, c := range items {
		if err := s.SaveContent(ctx, c); err != nil {
			t.Fatalf("SaveContent(%s) error = %v", c.ID, err)
		}
	}

	got, err := s.LoadContent(ctx, "1")
	if err != nil {
		t.Fatalf("LoadContent() error = %v", err)
	}
	if got.Title != "First" || !slices.Equal(got.Keywords, []string{"a"}) {
		t.Errorf("LoadContent() = %+v", got)
	}

	all, err := s.ListContent(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, c := range all {
		ids = append(ids, c.ID)
	}
	if !slices.Equal(ids, []string{"1", "2", "3"}) {
		t.Errorf("ListContent() ids = %v, want [1 2 3]", ids)
	}

	mine, err := s.ContentByPublisher(ctx, "pub-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 2 || mine[0].ID != "1" || mine[1].ID != "2" {
		t.Errorf("ContentByPublisher() = %v", mine)
	}

	if err := s.DeleteContent(ctx, "1"); err != nil {
		t.Fatalf("DeleteContent() error = %v", err)
	}
	if _, err := s.LoadContent(ctx, "1"); !notifier.IsNotFound(err) {
		t.Errorf("LoadContent() after delete error = %v, want not found", err)
	}
	if err := s.DeleteContent(ctx, "1"); !notifier.IsNotFound(err) {
		t.Errorf("second DeleteContent() error = %v, want not found", err)
	}
}

func TestSubscriptionAndContact(t *testing.T) {
	ctx := context.Background()
	s := newLocalStore(t)

	if _, err := s.LoadSubscription(ctx, "alice"); !notifier.IsNotFound(err) {
		t.Fatalf("LoadSubscription() on empty store error = %v, want not found", err)
	}

	sub := &notifier.Subscription{SubscriberID: "alice", Phrases: []string{"football"}, Active: true}
	if err := s.SaveSubscription(ctx, sub); err != nil {
		t.Fatal(err)
	}
	got, err := s.LoadSubscription(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got.Phrases, []string{"football"}) || !got.Active {
		t.Errorf("LoadSubscription() = %+v", got)
	}
	if err := s.DeleteSubscription(ctx, "alice"); err != nil {
		t.Fatal(err)
	}

	if err := s.SaveContact(ctx, &notifier.Contact{SubscriberID: "alice", Email: "alice@example.com"}); err != nil {
		t.Fatal(err)
	}
	contact, err := s.LoadContact(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if contact.Email != "alice@example.com" {
		t.Errorf("LoadContact() email = %q", contact.Email)
	}

	// Contacts and subscriptions must not show up as content.
	all, err := s.ListContent(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Errorf("ListContent() = %v, want empty", all)
	}
}
