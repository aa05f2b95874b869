// Package api exposes the core's UI-boundary operations over HTTP. It is a
// thin mapping layer: every mutation goes through the core service, reads go
// straight to the store.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cardpilot/cardpilot/internal/core"
	"github.com/cardpilot/cardpilot/internal/model"
)

// maxRequestBody is the maximum allowed request body size (1 MB).
const maxRequestBody int64 = 1 << 20

// Reader provides the read access the handlers need.
type Reader interface {
	GetCard(ctx context.Context, id string) (*model.Card, error)
	ListCards(ctx context.Context, f model.CardFilter) ([]model.Card, error)
	GetDeck(ctx context.Context, id string) (*model.Deck, error)
	ListDecks(ctx context.Context) ([]model.Deck, error)
	ListReviewLogsByCard(ctx context.Context, cardID string) ([]model.ReviewLog, error)
}

// Server holds the HTTP handlers and dependencies.
type Server struct {
	core       *core.Service
	reader     Reader
	corsOrigin string
	mux        *http.ServeMux
}

// New creates a new API server.
func New(c *core.Service, r Reader, corsOrigin string) *Server {
	srv := &Server{core: c, reader: r, corsOrigin: corsOrigin, mux: http.NewServeMux()}
	srv.routes()
	return srv
}

// Handler returns the root http.Handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(limitBody(jsonContent(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/decks", s.handleCreateDeck)
	s.mux.HandleFunc("GET /api/decks", s.handleListDecks)
	s.mux.HandleFunc("GET /api/decks/{id}", s.handleGetDeck)
	s.mux.HandleFunc("PATCH /api/decks/{id}/target", s.handleSetTarget)
	s.mux.HandleFunc("GET /api/decks/{id}/counts", s.handleDeckCounts)
	s.mux.HandleFunc("GET /api/decks/{id}/cards", s.handleListCards)
	s.mux.HandleFunc("GET /api/decks/{id}/suggestions", s.handleListSuggestions)

	s.mux.HandleFunc("POST /api/cards", s.handleCreateCard)
	s.mux.HandleFunc("GET /api/cards/{id}", s.handleGetCard)
	s.mux.HandleFunc("PATCH /api/cards/{id}", s.handleUpdateCard)
	s.mux.HandleFunc("DELETE /api/cards/{id}", s.handleDeleteCard)
	s.mux.HandleFunc("GET /api/cards/{id}/artwork", s.handleGetArtwork)
	s.mux.HandleFunc("GET /api/cards/{id}/reviews", s.handleListReviews)
	s.mux.HandleFunc("POST /api/cards/{id}/grade", s.handleGradeCard)
	s.mux.HandleFunc("POST /api/cards/{id}/archive", s.handleArchiveCard)
	s.mux.HandleFunc("POST /api/cards/{id}/unarchive", s.handleUnarchiveCard)

	s.mux.HandleFunc("POST /api/suggestions/{id}/accept", s.handleAcceptSuggestion)
	s.mux.HandleFunc("POST /api/suggestions/{id}/reject", s.handleRejectSuggestion)
	s.mux.HandleFunc("POST /api/suggestions/{id}/skip", s.handleSkipSuggestion)

	s.mux.HandleFunc("PUT /api/review-session", s.handleReviewSession)
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	origin := s.corsOrigin
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// limitBody restricts the request body to maxRequestBody bytes.
func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		next.ServeHTTP(w, r)
	})
}

func jsonContent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
