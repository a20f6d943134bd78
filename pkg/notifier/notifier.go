// Package notifier contains the core domain types for the keyword notification service.
package notifier

import (
	"slices"
	"time"
)

// MaxPhraseWords is the largest number of words a subscribed phrase may contain.
const MaxPhraseWords = 3

// Content is a published item that subscribers are matched against.
type Content struct {
	CreatedAt   time.Time `json:"created_at"`   // Publication timestamp
	ID          string    `json:"id"`           // Globally unique, assigned by the publisher
	Title       string    `json:"title"`        // Short headline
	Body        string    `json:"body"`         // Main text, may be HTML
	PublisherID string    `json:"publisher_id"` // Owner of the item
	Keywords    []string  `json:"keywords"`     // Lower-cased, never empty once published
}

// Clone returns a deep copy of the content.
func (c *Content) Clone() *Content {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Keywords = slices.Clone(c.Keywords)
	return &cp
}

// Subscription aggregates every phrase a subscriber is interested in.
type Subscription struct {
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	SubscriberID string    `json:"subscriber_id"`
	Phrases      []string  `json:"phrases"` // Sorted, normalized, never empty
	Active       bool      `json:"active"`
}

// Clone returns a deep copy of the subscription.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Phrases = slices.Clone(s.Phrases)
	return &cp
}

// Has reports whether the phrase is part of the subscription.
func (s *Subscription) Has(phrase string) bool {
	_, found := slices.BinarySearch(s.Phrases, phrase)
	return found
}

// Contact maps a subscriber to the address notifications are mailed to.
type Contact struct {
	UpdatedAt    time.Time `json:"updated_at"`
	SubscriberID string    `json:"subscriber_id"`
	Email        string    `json:"email"`
}
