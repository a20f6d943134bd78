// Package storage persists content, subscriptions and contacts as JSON objects
// in Google Cloud Storage or, for local development, in a directory.
package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
	"google.golang.org/api/iterator"

	"keyword-notifier/pkg/notifier"
)

const (
	kindContent      = "content"
	kindSubscription = "sub"
	kindContact      = "contact"
)

// Store handles persistence.
type Store struct {
	client    *storage.Client
	logger    *slog.Logger
	localPath string
	bucket    string
	salt      []byte
}

// New creates a new storage handler. When localPath is set the client and bucket are ignored.
func New(client *storage.Client, bucket string, localPath string, salt []byte, logger *slog.Logger) *Store {
	return &Store{
		client:    client,
		logger:    logger,
		salt:      salt,
		localPath: localPath,
		bucket:    bucket,
	}
}

// ObjectKey derives a stable object name for an identifier. Identifiers are
// hashed with the secret salt so user input never reaches a file path.
func (s *Store) ObjectKey(kind, id string) string {
	h := hmac.New(sha256.New, s.salt)
	h.Write([]byte(id))
	return fmt.Sprintf("%s-%s.json", kind, hex.EncodeToString(h.Sum(nil)))
}

// SaveContent stores a content item.
func (s *Store) SaveContent(ctx context.Context, c *notifier.Content) error {
	return s.save(ctx, s.ObjectKey(kindContent, c.ID), c)
}

// LoadContent loads a content item by id.
func (s *Store) LoadContent(ctx context.Context, id string) (*notifier.Content, error) {
	var c notifier.Content
	if err := s.load(ctx, s.ObjectKey(kindContent, id), &c); err != nil {
		return nil, fmt.Errorf("content %s: %w", id, err)
	}
	return &c, nil
}

// DeleteContent removes a content item.
func (s *Store) DeleteContent(ctx context.Context, id string) error {
	return s.delete(ctx, s.ObjectKey(kindContent, id))
}

// ListContent returns every stored content item, oldest first.
func (s *Store) ListContent(ctx context.Context) ([]*notifier.Content, error) {
	keys, err := s.list(ctx, kindContent+"-")
	if err != nil {
		return nil, err
	}

	var out []*notifier.Content
	for _, key := range keys {
		var c notifier.Content
		if err := s.load(ctx, key, &c); err != nil {
			s.logger.Warn("Failed to load content", "key", key, "error", err)
			continue
		}
		out = append(out, &c)
	}

	slices.SortStableFunc(out, func(a, b *notifier.Content) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

// ContentByPublisher returns every item owned by publisherID, oldest first.
func (s *Store) ContentByPublisher(ctx context.Context, publisherID string) ([]*notifier.Content, error) {
	all, err := s.ListContent(ctx)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(c *notifier.Content) bool {
		return c.PublisherID != publisherID
	}), nil
}

// SaveSubscription stores a subscriber's aggregate subscription.
func (s *Store) SaveSubscription(ctx context.Context, sub *notifier.Subscription) error {
	return s.save(ctx, s.ObjectKey(kindSubscription, sub.SubscriberID), sub)
}

// LoadSubscription loads a subscriber's aggregate subscription.
func (s *Store) LoadSubscription(ctx context.Context, subscriberID string) (*notifier.Subscription, error) {
	var sub notifier.Subscription
	if err := s.load(ctx, s.ObjectKey(kindSubscription, subscriberID), &sub); err != nil {
		return nil, fmt.Errorf("subscription %s: %w", subscriberID, err)
	}
	return &sub, nil
}

// DeleteSubscription removes a subscriber's aggregate subscription.
func (s *Store) DeleteSubscription(ctx context.Context, subscriberID string) error {
	return s.delete(ctx, s.ObjectKey(kindSubscription, subscriberID))
}

// SaveContact stores a subscriber's contact address.
func (s *Store) SaveContact(ctx context.Context, c *notifier.Contact) error {
	return s.save(ctx, s.ObjectKey(kindContact, c.SubscriberID), c)
}

// LoadContact loads a subscriber's contact address.
func (s *Store) LoadContact(ctx context.Context, subscriberID string) (*notifier.Contact, error) {
	var c notifier.Contact
	if err := s.load(ctx, s.ObjectKey(kindContact, subscriberID), &c); err != nil {
		return nil, fmt.Errorf("contact %s: %w", subscriberID, err)
	}
	return &c, nil
}

func (s *Store) save(ctx context.Context, key string, v any) error {
	s.logger.Debug("Saving object", "key", key)

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}

	// Local filesystem storage
	if s.localPath != "" {
		filePath := filepath.Join(s.localPath, key)
		if err := os.WriteFile(filePath, data, 0o600); err != nil {
			return fmt.Errorf("write to local storage: %w", err)
		}
		s.logger.Debug("Object saved to local storage", "path", filePath)
		return nil
	}

	// Cloud Storage with retry logic for reliability
	err = retry.Do(
		func() error {
			w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					s.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close storage writer: %w", closeErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying save operation after error", "attempt", n, "key", key, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("save after retries: %w", err)
	}

	s.logger.Debug("Object saved", "key", key)
	return nil
}

func (s *Store) load(ctx context.Context, key string, v any) error {
	var data []byte

	// Local filesystem storage
	if s.localPath != "" {
		var err error
		data, err = os.ReadFile(filepath.Join(s.localPath, key))
		if err != nil {
			if os.IsNotExist(err) {
				return notifier.ErrNotFound
			}
			return fmt.Errorf("read from local storage: %w", err)
		}
	} else {
		// Cloud Storage with retry logic for reliability
		var readData []byte
		notFound := false
		err := retry.Do(
			func() error {
				r, openErr := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
				if openErr != nil {
					// Don't retry on "not found" errors
					if errors.Is(openErr, storage.ErrObjectNotExist) {
						notFound = true
						return retry.Unrecoverable(openErr)
					}
					return fmt.Errorf("open storage reader: %w", openErr)
				}
				defer func() {
					if closeErr := r.Close(); closeErr != nil {
						s.logger.Warn("Failed to close storage reader", "error", closeErr)
					}
				}()

				var readErr error
				readData, readErr = io.ReadAll(r)
				if readErr != nil {
					return fmt.Errorf("read from storage: %w", readErr)
				}
				return nil
			},
			retry.Attempts(3),
			retry.Delay(time.Second),
			retry.MaxDelay(2*time.Minute),
			retry.MaxJitter(10*time.Second),
			retry.Context(ctx),
			retry.OnRetry(func(n uint, retryErr error) {
				s.logger.Info("Retrying load operation after error", "attempt", n, "key", key, "error", retryErr)
			}),
		)
		if notFound {
			return notifier.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load after retries: %w", err)
		}
		data = readData
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

// delete removes an object. Deleting a missing object reports ErrNotFound.
func (s *Store) delete(ctx context.Context, key string) error {
	s.logger.Debug("Deleting object", "key", key)

	// Local filesystem storage
	if s.localPath != "" {
		filePath := filepath.Join(s.localPath, key)
		if err := os.Remove(filePath); err != nil {
			if os.IsNotExist(err) {
				return notifier.ErrNotFound
			}
			return fmt.Errorf("delete from local storage: %w", err)
		}
		return nil
	}

	// Cloud Storage with retry logic for reliability
	notFound := false
	err := retry.Do(
		func() error {
			if deleteErr := s.client.Bucket(s.bucket).Object(key).Delete(ctx); deleteErr != nil {
				if errors.Is(deleteErr, storage.ErrObjectNotExist) {
					notFound = true
					return retry.Unrecoverable(deleteErr)
				}
				return fmt.Errorf("delete from storage: %w", deleteErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying delete operation after error", "attempt", n, "key", key, "error", retryErr)
		}),
	)
	if notFound {
		return notifier.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete after retries: %w", err)
	}
	return nil
}

func (s *Store) list(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	// Local filesystem storage
	if s.localPath != "" {
		entries, err := os.ReadDir(s.localPath)
		if err != nil {
			return nil, fmt.Errorf("read local storage directory: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			keys = append(keys, entry.Name())
		}
		return keys, nil
	}

	// Cloud Storage
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{
		Prefix: prefix,
	})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate storage: %w", err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}
