// Package registry owns the mapping from subscriber to subscribed phrases.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/im7mortal/kmutex"

	"keyword-notifier/keywords"
	"keyword-notifier/pkg/notifier"
)

// Store interface for subscription persistence.
type Store interface {
	LoadSubscription(ctx context.Context, subscriberID string) (*notifier.Subscription, error)
	SaveSubscription(ctx context.Context, sub *notifier.Subscription) error
	DeleteSubscription(ctx context.Context, subscriberID string) error
}

// Registry serializes writers per subscriber and serves readers from an
// in-memory snapshot. Snapshots are replaced wholesale, never mutated, so a
// reader sees either the old or the new phrase set.
type Registry struct {
	store  Store
	logger *slog.Logger
	locks  *kmutex.Kmutex
	now    func() time.Time

	mu    sync.RWMutex
	cache map[string]*notifier.Subscription // subscribers with at least one phrase
}

// New creates a registry backed by store.
func New(store Store, logger *slog.Logger) *Registry {
	return &Registry{
		store:  store,
		logger: logger,
		locks:  kmutex.New(),
		now:    time.Now,
		cache:  make(map[string]*notifier.Subscription),
	}
}

// NormalizePhrase lower-cases and trims phrase and collapses inner whitespace.
// It fails if the result is empty or has more than three words.
func NormalizePhrase(phrase string) (string, error) {
	words := strings.Fields(keywords.Lower(phrase))
	if len(words) == 0 {
		return "", notifier.Invalid("phrase", "must not be empty")
	}
	if len(words) > notifier.MaxPhraseWords {
		return "", notifier.Invalid("phrase", fmt.Sprintf("must have at most %d words, got %d", notifier.MaxPhraseWords, len(words)))
	}
	return strings.Join(words, " "), nil
}

// AddPhrase subscribes subscriberID to phrase. Adding a phrase that is already
// present succeeds without writing.
func (r *Registry) AddPhrase(ctx context.Context, subscriberID, phrase string) error {
	if subscriberID == "" {
		return notifier.Invalid("subscriber", "must not be empty")
	}
	norm, err := NormalizePhrase(phrase)
	if err != nil {
		return err
	}

	r.locks.Lock(subscriberID)
	defer r.locks.Unlock(subscriberID)

	cur, err := r.current(ctx, subscriberID)
	if err != nil {
		return err
	}
	if cur != nil && cur.Has(norm) {
		r.logger.Debug("Phrase already subscribed", "subscriber", subscriberID, "phrase", norm)
		return nil
	}

	now := r.now()
	next := cur.Clone()
	if next == nil {
		next = &notifier.Subscription{
			SubscriberID: subscriberID,
			CreatedAt:    now,
			Active:       true,
		}
	}
	next.Phrases = append(next.Phrases, norm)
	slices.Sort(next.Phrases)
	next.UpdatedAt = now

	if err := r.store.SaveSubscription(ctx, next); err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	r.swap(subscriberID, next)

	r.logger.Info("Phrase subscribed", "subscriber", subscriberID, "phrase", norm, "phrase_count", len(next.Phrases))
	return nil
}

// RemovePhrase unsubscribes subscriberID from phrase. It returns false when
// the phrase was not subscribed. Removing the last phrase deletes the record.
func (r *Registry) RemovePhrase(ctx context.Context, subscriberID, phrase string) (bool, error) {
	norm, err := NormalizePhrase(phrase)
	if err != nil || subscriberID == "" {
		return false, nil
	}

	r.locks.Lock(subscriberID)
	defer r.locks.Unlock(subscriberID)

	cur, err := r.current(ctx, subscriberID)
	if err != nil {
		return false, err
	}
	if cur == nil || !cur.Has(norm) {
		return false, nil
	}

	next := cur.Clone()
	next.Phrases = slices.DeleteFunc(next.Phrases, func(p string) bool { return p == norm })
	next.UpdatedAt = r.now()

	if len(next.Phrases) == 0 {
		if err := r.store.DeleteSubscription(ctx, subscriberID); err != nil && !notifier.IsNotFound(err) {
			return false, fmt.Errorf("delete subscription: %w", err)
		}
		r.swap(subscriberID, nil)
		r.logger.Info("Last phrase removed, subscription deleted", "subscriber", subscriberID, "phrase", norm)
		return true, nil
	}

	if err := r.store.SaveSubscription(ctx, next); err != nil {
		return false, fmt.Errorf("save subscription: %w", err)
	}
	r.swap(subscriberID, next)

	r.logger.Info("Phrase unsubscribed", "subscriber", subscriberID, "phrase", norm, "phrase_count", len(next.Phrases))
	return true, nil
}

// ListPhrases returns a sorted copy of the subscriber's phrases.
func (r *Registry) ListPhrases(ctx context.Context, subscriberID string) ([]string, error) {
	r.mu.RLock()
	sub, ok := r.cache[subscriberID]
	r.mu.RUnlock()
	if ok {
		return phrasesOf(sub), nil
	}

	r.locks.Lock(subscriberID)
	defer r.locks.Unlock(subscriberID)

	sub, err := r.current(ctx, subscriberID)
	if err != nil {
		return nil, err
	}
	return phrasesOf(sub), nil
}

// current returns the cached snapshot, loading it from the store on a miss.
// Callers must hold the subscriber's key lock.
func (r *Registry) current(ctx context.Context, subscriberID string) (*notifier.Subscription, error) {
	r.mu.RLock()
	sub, ok := r.cache[subscriberID]
	r.mu.RUnlock()
	if ok {
		return sub, nil
	}

	sub, err := r.store.LoadSubscription(ctx, subscriberID)
	if err != nil {
		if !notifier.IsNotFound(err) {
			return nil, fmt.Errorf("load subscription: %w", err)
		}
		sub = nil
	}
	if sub != nil && len(sub.Phrases) == 0 {
		sub = nil
	}
	if sub != nil {
		sub = sub.Clone()
		slices.Sort(sub.Phrases)
	}
	r.swap(subscriberID, sub)
	return sub, nil
}

// swap replaces the cached snapshot. A nil sub evicts the entry so that
// lookups of unknown ids never grow the cache.
func (r *Registry) swap(subscriberID string, sub *notifier.Subscription) {
	r.mu.Lock()
	if sub == nil {
		delete(r.cache, subscriberID)
	} else {
		r.cache[subscriberID] = sub
	}
	r.mu.Unlock()
}

func phrasesOf(sub *notifier.Subscription) []string {
	if sub == nil {
		return []string{}
	}
	return slices.Clone(sub.Phrases)
}
