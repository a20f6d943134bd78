// Package identity resolves subscribers to the address notifications are mailed to.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"keyword-notifier/pkg/notifier"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Store interface for contact persistence.
type Store interface {
	LoadContact(ctx context.Context, subscriberID string) (*notifier.Contact, error)
	SaveContact(ctx context.Context, c *notifier.Contact) error
}

// Directory maps subscriber ids to contact addresses.
type Directory struct {
	store  Store
	logger *slog.Logger
}

// New creates a directory backed by store.
func New(store Store, logger *slog.Logger) *Directory {
	return &Directory{store: store, logger: logger}
}

// Register sets the contact address for a subscriber.
func (d *Directory) Register(ctx context.Context, subscriberID, email string) error {
	if subscriberID == "" {
		return notifier.Invalid("subscriber", "must not be empty")
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if !IsValidEmail(email) {
		return notifier.Invalid("email", "not a valid address")
	}

	c := &notifier.Contact{SubscriberID: subscriberID, Email: email, UpdatedAt: time.Now()}
	if err := d.store.SaveContact(ctx, c); err != nil {
		return fmt.Errorf("save contact: %w", err)
	}

	d.logger.Info("Contact registered", "subscriber", subscriberID, "email", email)
	return nil
}

// Address returns the subscriber's contact address, or "" if none is known.
func (d *Directory) Address(ctx context.Context, subscriberID string) (string, error) {
	c, err := d.store.LoadContact(ctx, subscriberID)
	if err != nil {
		if notifier.IsNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("load contact: %w", err)
	}
	return c.Email, nil
}

// IsValidEmail reports whether email looks like a deliverable address.
func IsValidEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 {
		return false
	}

	// Use mail.ParseAddress for robust validation
	_, err := mail.ParseAddress(email)
	return err == nil && emailRegex.MatchString(email)
}
