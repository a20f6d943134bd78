// Package server handles HTTP endpoints and request routing.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"keyword-notifier/pkg/notifier"
	"keyword-notifier/session"
)

const maxBodyBytes = 1 << 20

// Sessions interface for the subscriber session lifecycle.
type Sessions interface {
	Start(subscriberID string) (*session.Session, error)
	Get(subscriberID string) (*session.Session, bool)
	Close(subscriberID string) error
}

// Registry interface for subscription phrases when no session is running.
type Registry interface {
	AddPhrase(ctx context.Context, subscriberID, phrase string) error
	RemovePhrase(ctx context.Context, subscriberID, phrase string) (bool, error)
	ListPhrases(ctx context.Context, subscriberID string) ([]string, error)
}

// Publisher interface for the publishing side.
type Publisher interface {
	Publish(ctx context.Context, c *notifier.Content) (*notifier.Content, error)
	Draft(title, body string, drop ...string) ([]string, error)
	DeleteContent(ctx context.Context, id, requester string) error
	UpdateKeywords(ctx context.Context, id, requester string, keywords []string) (*notifier.Content, error)
	ContentByPublisher(ctx context.Context, publisherID string) ([]*notifier.Content, error)
	AllContent(ctx context.Context) ([]*notifier.Content, error)
}

// Contacts interface for registering subscriber mail addresses.
type Contacts interface {
	Register(ctx context.Context, subscriberID, email string) error
}

// Server handles HTTP requests.
type Server struct {
	sessions  Sessions
	registry  Registry
	publisher Publisher
	contacts  Contacts
	limiter   *rateLimiter
	logger    *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Sessions  Sessions
	Registry  Registry
	Publisher Publisher
	Contacts  Contacts
	Logger    *slog.Logger
	// PublishLimit is the number of publishes allowed per client IP per hour.
	PublishLimit int
}

// New creates a new HTTP server handler.
func New(cfg *Config) *Server {
	limit := cfg.PublishLimit
	if limit <= 0 {
		limit = defaultPublishLimit
	}
	return &Server{
		sessions:  cfg.Sessions,
		registry:  cfg.Registry,
		publisher: cfg.Publisher,
		contacts:  cfg.Contacts,
		limiter:   newRateLimiter(limit, time.Hour),
		logger:    cfg.Logger,
	}
}

// Handler returns the routes of the service.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/subscriptions", s.handleSubscriptions)
	mux.HandleFunc("/notifications", s.handleNotifications)
	mux.HandleFunc("/matches", s.handleMatches)
	mux.HandleFunc("/contacts", s.handleContacts)
	mux.HandleFunc("/drafts", s.handleDrafts)
	mux.HandleFunc("/content", s.handleContent)
	return mux
}

// HTTPServer returns an http.Server for the routes, configured with timeouts
// to prevent resource exhaustion.
func (s *Server) HTTPServer(port string) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,  // Time to read request headers and body
		WriteTimeout:      30 * time.Second,  // Time to write response
		IdleTimeout:       120 * time.Second, // Time to keep connection alive between requests
		ReadHeaderTimeout: 5 * time.Second,   // Time to read request headers only
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, `{"status":"healthy"}`); err != nil {
		s.logger.Warn("Failed to write health response", "error", err)
		return
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}

// writeError maps the error taxonomy onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *notifier.ValidationError
	switch {
	case errors.As(err, &ve):
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: ve.Error()})
	case errors.Is(err, notifier.ErrUnauthorized):
		s.writeJSON(w, http.StatusForbidden, errorResponse{Error: "not allowed"})
	case errors.Is(err, notifier.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, session.ErrManagerClosed):
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "shutting down"})
	default:
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

// requireQuery reads a required query parameter, writing a 400 if it is missing.
func (s *Server) requireQuery(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing " + name})
		return "", false
	}
	return v, true
}
