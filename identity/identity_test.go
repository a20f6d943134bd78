package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"keyword-notifier/pkg/notifier"
)

type memStore struct {
	contacts map[string]*notifier.Contact
	loadErr  error
}

func (m *memStore) LoadContact(_ context.Context, id string) (*notifier.Contact, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	c, ok := m.contacts[id]
	if !ok {
		return nil, fmt.Errorf("contact %s: %w", id, notifier.ErrNotFound)
	}
	return c, nil
}

func (m *memStore) SaveContact(_ context.Context, c *notifier.Contact) error {
	m.contacts[c.SubscriberID] = c
	return nil
}

func newDirectory() (*Directory, *memStore) {
	store := &memStore{contacts: make(map[string]*notifier.Contact)}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(store, logger), store
}

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"alice@example.com", true},
		{"first.last+tag@sub.example.org", true},
		{"not-an-email", false},
		{"a@b", false},
		{"Alice <alice@example.com>", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			if got := IsValidEmail(tt.email); got != tt.want {
				t.Errorf("IsValidEmail(%q) = %v, want %v", tt.email, got, tt.want)
			}
		})
	}
}

func TestRegisterAndAddress(t *testing.T) {
	ctx := context.Background()
	dir, _ := newDirectory()

	if err := dir.Register(ctx, "alice", "  Alice@Example.com "); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	got, err := dir.Address(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got != "alice@example.com" {
		t.Errorf("Address() = %q, want alice@example.com", got)
	}
}

func TestRegisterRejectsInvalid(t *testing.T) {
	dir, _ := newDirectory()

	if err := dir.Register(context.Background(), "alice", "nope"); !notifier.IsValidation(err) {
		t.Errorf("Register() error = %v, want ValidationError", err)
	}
	if err := dir.Register(context.Background(), "", "alice@example.com"); !notifier.IsValidation(err) {
		t.Errorf("Register() error = %v, want ValidationError", err)
	}
}

func TestAddressUnknownSubscriber(t *testing.T) {
	dir, store := newDirectory()

	got, err := dir.Address(context.Background(), "bob")
	if err != nil || got != "" {
		t.Errorf("Address() = %q, %v, want empty, nil", got, err)
	}

	store.loadErr = errors.New("backend down")
	if _, err := dir.Address(context.Background(), "bob"); err == nil {
		t.Error("Address() error = nil, want backend failure")
	}
}
