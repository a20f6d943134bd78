package server

import (
	"net/http"
	"strings"

	"keyword-notifier/pkg/notifier"
	"keyword-notifier/registry"
	"keyword-notifier/session"
)

type sessionRequest struct {
	Subscriber string `json:"subscriber"`
}

type sessionResponse struct {
	Subscriber string `json:"subscriber"`
	State      string `json:"state"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req sessionRequest
		if !s.decodeJSON(w, r, &req) {
			return
		}
		sess, err := s.sessions.Start(strings.TrimSpace(req.Subscriber))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, sessionResponse{Subscriber: sess.SubscriberID(), State: sess.State().String()})

	case http.MethodDelete:
		id, ok := s.requireQuery(w, r, "subscriber")
		if !ok {
			return
		}
		if err := s.sessions.Close(id); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w, "POST, DELETE")
	}
}

type subscriptionRequest struct {
	Subscriber string `json:"subscriber"`
	Phrase     string `json:"phrase"`
}

type phrasesResponse struct {
	Subscriber string   `json:"subscriber"`
	Phrases    []string `json:"phrases"`
}

// running returns the subscriber's session if it is consuming.
func (s *Server) running(id string) (*session.Session, bool) {
	sess, ok := s.sessions.Get(id)
	if !ok || !sess.Alive() {
		return nil, false
	}
	return sess, true
}

func (s *Server) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		id, ok := s.requireQuery(w, r, "subscriber")
		if !ok {
			return
		}
		s.writePhrases(w, r, id)

	case http.MethodPost:
		var req subscriptionRequest
		if !s.decodeJSON(w, r, &req) {
			return
		}
		id := strings.TrimSpace(req.Subscriber)
		if id == "" {
			s.writeError(w, r, notifier.Invalid("subscriber", "must not be empty"))
			return
		}
		if _, err := registry.NormalizePhrase(req.Phrase); err != nil {
			s.writeError(w, r, err)
			return
		}

		if sess, ok := s.running(id); ok {
			if !sess.AddSubscription(ctx, req.Phrase) {
				s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "could not add subscription"})
				return
			}
		} else if err := s.registry.AddPhrase(ctx, id, req.Phrase); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.logger.Info("Subscription added", "subscriber", id, "phrase", req.Phrase)
		s.writePhrases(w, r, id)

	case http.MethodDelete:
		id, ok := s.requireQuery(w, r, "subscriber")
		if !ok {
			return
		}
		phrase, ok := s.requireQuery(w, r, "phrase")
		if !ok {
			return
		}

		var removed bool
		if sess, ok := s.running(id); ok {
			removed = sess.RemoveSubscription(ctx, phrase)
		} else {
			var err error
			if removed, err = s.registry.RemovePhrase(ctx, id, phrase); err != nil {
				s.writeError(w, r, err)
				return
			}
		}
		if !removed {
			s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "not subscribed"})
			return
		}
		s.logger.Info("Subscription removed", "subscriber", id, "phrase", phrase)
		s.writePhrases(w, r, id)

	default:
		methodNotAllowed(w, "GET, POST, DELETE")
	}
}

func (s *Server) writePhrases(w http.ResponseWriter, r *http.Request, id string) {
	var phrases []string
	if sess, ok := s.running(id); ok {
		phrases = sess.ActiveKeywords(r.Context())
	} else {
		var err error
		if phrases, err = s.registry.ListPhrases(r.Context(), id); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, phrasesResponse{Subscriber: id, Phrases: phrases})
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}
	id, ok := s.requireQuery(w, r, "subscriber")
	if !ok {
		return
	}
	sess, ok := s.running(id)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "no running session"})
		return
	}
	s.writeJSON(w, http.StatusOK, sess.Notifications())
}

func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}
	id, ok := s.requireQuery(w, r, "subscriber")
	if !ok {
		return
	}

	phrases, err := s.registry.ListPhrases(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	contents, err := s.publisher.AllContent(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, session.Search(contents, phrases))
}

type contactRequest struct {
	Subscriber string `json:"subscriber"`
	Email      string `json:"email"`
}

func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}
	var req contactRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := s.contacts.Register(r.Context(), strings.TrimSpace(req.Subscriber), req.Email); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
