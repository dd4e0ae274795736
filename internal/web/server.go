// Package web exposes the pipeline over a JSON HTTP API.
package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/intentlab/vdip/internal/model"
	"github.com/intentlab/vdip/internal/pipeline"
)

// Server provides the HTTP handlers and state.
type Server struct {
	manager *pipeline.Manager
}

// NewServer creates a new API server over the session manager.
func NewServer(manager *pipeline.Manager) (*Server, error) {
	return &Server{manager: manager}, nil
}

// Routes returns the router for the API.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /intents", s.handleSubmit)
	mux.HandleFunc("GET /sessions", s.handleList)
	mux.HandleFunc("GET /sessions/{id}", s.handleGet)
	mux.HandleFunc("GET /sessions/{id}/events", s.handleEvents)
	mux.HandleFunc("POST /sessions/{id}/abort", s.handleAbort)
	return mux
}

type submitRequest struct {
	Text        string `json:"text"`
	TopologyRef string `json:"topology_ref"`
	MaxAttempts int    `json:"max_attempts,omitempty"`
}

type submitResponse struct {
	SessionID string `json:"session_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id, err := s.manager.Submit(r.Context(), req.Text, req.TopologyRef, req.MaxAttempts)
	if err != nil {
		if errors.Is(err, model.ErrCapacityExceeded) {
			w.Header().Set("Retry-After", "5")
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{SessionID: id})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.manager.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.manager.Get(r.Context(), id); err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	events, err := s.manager.Events(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	err := s.manager.Abort(r.Context(), r.PathValue("id"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "abort requested"})
	case errors.Is(err, model.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, model.ErrSessionClosed):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
