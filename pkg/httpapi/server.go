// Package httpapi exposes a paint registry over HTTP for inspection and
// manual edits.
package httpapi

import (
	"context"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/chatpaint/paints/pkg/logger"
	"github.com/chatpaint/paints/pkg/models"
)

const maxDescriptionBytes = 1 << 20

// Registry is the part of *paints.Registry served by the API.
type Registry interface {
	GetPaint(user string) (*models.Paint, bool)
	Paint(id string) (*models.Paint, bool)
	Len() (paints, users int)
	AddPaint(ctx context.Context, description []byte) bool
	AssignPaintToUser(paintID, user string) bool
	ClearPaintFromUser(paintID, user string) bool
}

// Reloader refetches the bulk cosmetics payload. *paints.Loader satisfies it.
type Reloader interface {
	Load(ctx context.Context) error
}

type Server struct {
	registry Registry
	reloader Reloader
	logger   logger.Logger
	router   *mux.Router
}

// New builds the API. reloader may be nil, in which case POST /reload is not
// routed.
func New(registry Registry, reloader Reloader, log logger.Logger) *Server {
	s := &Server{
		registry: registry,
		reloader: reloader,
		logger:   logger.OrNop(log),
		router:   mux.NewRouter(),
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/paints", s.handleAddPaint).Methods(http.MethodPost)
	s.router.HandleFunc("/paints/{id}", s.handleGetPaint).Methods(http.MethodGet)
	s.router.HandleFunc("/users/{user}/paint", s.handleGetUserPaint).Methods(http.MethodGet)
	s.router.HandleFunc("/users/{user}/paint/{id}", s.handleAssign).Methods(http.MethodPut)
	s.router.HandleFunc("/users/{user}/paint/{id}", s.handleClear).Methods(http.MethodDelete)
	if reloader != nil {
		s.router.HandleFunc("/reload", s.handleReload).Methods(http.MethodPost)
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	paints, users := s.registry.Len()
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"paints": paints,
		"users":  users,
	})
}

func (s *Server) handleGetPaint(w http.ResponseWriter, r *http.Request) {
	paint, ok := s.registry.Paint(mux.Vars(r)["id"])
	if !ok {
		respondError(w, http.StatusNotFound, "paint not found")
		return
	}
	respondJSON(w, http.StatusOK, paint)
}

func (s *Server) handleGetUserPaint(w http.ResponseWriter, r *http.Request) {
	paint, ok := s.registry.GetPaint(mux.Vars(r)["user"])
	if !ok {
		respondError(w, http.StatusNotFound, "user has no paint")
		return
	}
	respondJSON(w, http.StatusOK, paint)
}

// handleAddPaint accepts one paint description. Known ids and unparseable
// descriptions are accepted but not added.
func (s *Server) handleAddPaint(w http.ResponseWriter, r *http.Request) {
	description, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDescriptionBytes))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "description too large")
		return
	}
	if !json.Valid(description) {
		respondError(w, http.StatusBadRequest, "description is not valid JSON")
		return
	}

	added := s.registry.AddPaint(r.Context(), description)
	s.logger.Info("paint submitted over http", "added", added)
	respondJSON(w, http.StatusAccepted, map[string]bool{"added": added})
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if !s.registry.AssignPaintToUser(vars["id"], vars["user"]) {
		respondError(w, http.StatusNotFound, "paint not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if !s.registry.ClearPaintFromUser(vars["id"], vars["user"]) {
		respondError(w, http.StatusNotFound, "user does not have this paint")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.reloader.Load(r.Context()); err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.handleHealth(w, r)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(response)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
