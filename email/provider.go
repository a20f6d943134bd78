// Package email handles sending notification emails via multiple providers.
package email

import (
	"context"
	"errors"
	"log/slog"

	"keyword-notifier/pkg/notifier"
)

const subjectPrefix = "New Content Matching Your Subscriptions: "

// Provider defines the interface for email sending implementations.
type Provider interface {
	// Send sends an email with the given parameters.
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Sender formats notification emails and hands them to a provider.
type Sender struct {
	provider Provider
	logger   *slog.Logger
	baseURL  string // For links in emails
}

// New creates a new email sender with the given provider.
func New(provider Provider, logger *slog.Logger, baseURL string) *Sender {
	return &Sender{
		provider: provider,
		logger:   logger,
		baseURL:  baseURL,
	}
}

// Subject returns the subject line used for a content notification.
func Subject(c *notifier.Content) string {
	return subjectPrefix + c.Title
}

// SendContentNotification mails one notification listing every phrase the content matched.
func (s *Sender) SendContentNotification(ctx context.Context, to string, c *notifier.Content, matched []string) error {
	if to == "" {
		return errors.New("no recipient")
	}
	if c == nil || len(matched) == 0 {
		return nil
	}

	subject := Subject(c)
	body := s.formatContentBody(c, matched)

	s.logger.Info("Sending notification email",
		"to", to,
		"content_id", c.ID,
		"matched", matched)

	return s.provider.Send(ctx, to, subject, body)
}
