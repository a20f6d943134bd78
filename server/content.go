package server

import (
	"net/http"
	"strings"

	"keyword-notifier/pkg/notifier"
)

type draftRequest struct {
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Drop  []string `json:"drop"`
}

type keywordsResponse struct {
	Keywords []string `json:"keywords"`
}

func (s *Server) handleDrafts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}
	var req draftRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	kws, err := s.publisher.Draft(req.Title, req.Body, req.Drop...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, keywordsResponse{Keywords: kws})
}

type publishRequest struct {
	Publisher string   `json:"publisher"`
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Keywords  []string `json:"keywords"`
}

type keywordsRequest struct {
	Keywords []string `json:"keywords"`
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.publish(w, r)

	case http.MethodGet:
		var (
			items []*notifier.Content
			err   error
		)
		if pub := r.URL.Query().Get("publisher"); pub != "" {
			items, err = s.publisher.ContentByPublisher(r.Context(), pub)
		} else {
			items, err = s.publisher.AllContent(r.Context())
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if items == nil {
			items = []*notifier.Content{}
		}
		s.writeJSON(w, http.StatusOK, items)

	case http.MethodPatch:
		id, pub, ok := s.ownerQuery(w, r)
		if !ok {
			return
		}
		var req keywordsRequest
		if !s.decodeJSON(w, r, &req) {
			return
		}
		c, err := s.publisher.UpdateKeywords(r.Context(), id, pub, req.Keywords)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, c)

	case http.MethodDelete:
		id, pub, ok := s.ownerQuery(w, r)
		if !ok {
			return
		}
		if err := s.publisher.DeleteContent(r.Context(), id, pub); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w, "GET, POST, PATCH, DELETE")
	}
}

func (s *Server) publish(w http.ResponseWriter, r *http.Request) {
	// Rate limiting by IP
	ip := clientIP(r)
	if !s.limiter.allow(ip) {
		s.logger.Warn("Rate limit exceeded", "ip", ip)
		http.Error(w, "Too many requests. Please try again later.", http.StatusTooManyRequests)
		return
	}

	var req publishRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	kws := req.Keywords
	if len(kws) == 0 {
		suggested, err := s.publisher.Draft(req.Title, req.Body)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		kws = suggested
	}

	c, err := s.publisher.Publish(r.Context(), &notifier.Content{
		Title:       req.Title,
		Body:        req.Body,
		PublisherID: strings.TrimSpace(req.Publisher),
		Keywords:    kws,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, c)
}

func (s *Server) ownerQuery(w http.ResponseWriter, r *http.Request) (id, publisher string, ok bool) {
	if id, ok = s.requireQuery(w, r, "id"); !ok {
		return "", "", false
	}
	if publisher, ok = s.requireQuery(w, r, "publisher"); !ok {
		return "", "", false
	}
	return id, publisher, true
}
