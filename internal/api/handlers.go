package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/cardpilot/cardpilot/internal/model"
)

// cardResponse augments a card with the derived artwork flag; artwork bytes
// themselves are served from a dedicated endpoint.
type cardResponse struct {
	model.Card
	HasArtwork bool `json:"has_artwork"`
}

func toCardResponse(c model.Card) cardResponse {
	return cardResponse{Card: c, HasArtwork: c.HasArtwork()}
}

func toCardResponses(cards []model.Card) []cardResponse {
	out := make([]cardResponse, 0, len(cards))
	for _, c := range cards {
		out = append(out, toCardResponse(c))
	}
	return out
}

// writeServiceError maps core/store errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, model.ErrDuplicateCard):
		writeError(w, http.StatusConflict, "duplicate card")
	case errors.Is(err, model.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, model.ErrArtworkMissing):
		writeError(w, http.StatusConflict, "artwork missing")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// ---------------------------------------------------------------------------
// Decks
// ---------------------------------------------------------------------------

type createDeckRequest struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	SuggestionTarget int    `json:"suggestion_target"`
}

func (s *Server) handleCreateDeck(w http.ResponseWriter, r *http.Request) {
	var req createDeckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.SuggestionTarget < 0 {
		writeError(w, http.StatusBadRequest, "suggestion_target must be >= 0")
		return
	}

	deck, err := s.core.CreateDeck(r.Context(), req.Name, req.Description, req.SuggestionTarget)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, deck)
}

func (s *Server) handleListDecks(w http.ResponseWriter, r *http.Request) {
	decks, err := s.reader.ListDecks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list decks")
		return
	}
	if decks == nil {
		decks = []model.Deck{}
	}
	writeJSON(w, http.StatusOK, decks)
}

func (s *Server) handleGetDeck(w http.ResponseWriter, r *http.Request) {
	deck, err := s.reader.GetDeck(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deck)
}

type setTargetRequest struct {
	Target int `json:"target"`
}

func (s *Server) handleSetTarget(w http.ResponseWriter, r *http.Request) {
	var req setTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Target < 0 {
		writeError(w, http.StatusBadRequest, "target must be >= 0")
		return
	}
	if err := s.core.SetDeckSuggestionTarget(r.Context(), r.PathValue("id"), req.Target); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"target": req.Target})
}

func (s *Server) handleDeckCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := s.core.DeckCounts(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	filter := model.CardFilter{DeckID: r.PathValue("id")}
	for _, st := range splitComma(r.URL.Query().Get("state")) {
		state := model.LifecycleState(st)
		if !state.IsValid() {
			writeError(w, http.StatusBadRequest, "unknown state "+st)
			return
		}
		filter.States = append(filter.States, state)
	}

	cards, err := s.reader.ListCards(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list cards")
		return
	}
	writeJSON(w, http.StatusOK, toCardResponses(cards))
}

func (s *Server) handleListSuggestions(w http.ResponseWriter, r *http.Request) {
	cards, err := s.core.VisibleSuggestions(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list suggestions")
		return
	}
	writeJSON(w, http.StatusOK, toCardResponses(cards))
}

// ---------------------------------------------------------------------------
// Cards
// ---------------------------------------------------------------------------

type cardRequest struct {
	DeckID        string `json:"deck_id"`
	Front         string `json:"front"`
	Back          string `json:"back"`
	ItemType      string `json:"item_type"`
	ArtworkPrompt string `json:"artwork_prompt"`
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var req cardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.DeckID == "" || req.Front == "" {
		writeError(w, http.StatusBadRequest, "deck_id and front are required")
		return
	}
	if req.ItemType == "" {
		req.ItemType = "fact"
	}

	card, err := s.core.CreateCard(r.Context(), req.DeckID, req.Front, req.Back, req.ItemType, req.ArtworkPrompt)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCardResponse(*card))
}

func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	card, err := s.reader.GetCard(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardResponse(*card))
}

func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	var req cardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Front == "" {
		writeError(w, http.StatusBadRequest, "front is required")
		return
	}
	if req.ItemType == "" {
		req.ItemType = "fact"
	}

	card, err := s.core.UpdateCardContent(r.Context(), r.PathValue("id"), req.Front, req.Back, req.ItemType, req.ArtworkPrompt)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardResponse(*card))
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	if err := s.core.DeleteCard(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetArtwork(w http.ResponseWriter, r *http.Request) {
	card, err := s.reader.GetCard(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !card.HasArtwork() {
		writeError(w, http.StatusNotFound, "no artwork")
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(card.Artwork))
	w.WriteHeader(http.StatusOK)
	w.Write(card.Artwork)
}

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	logs, err := s.reader.ListReviewLogsByCard(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list reviews")
		return
	}
	if logs == nil {
		logs = []model.ReviewLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

type gradeRequest struct {
	Grade     string `json:"grade"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

func (s *Server) handleGradeCard(w http.ResponseWriter, r *http.Request) {
	var req gradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	grade, err := model.ParseGrade(req.Grade)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	card, err := s.core.GradeCard(r.Context(), r.PathValue("id"), grade, time.Duration(req.ElapsedMs)*time.Millisecond)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardResponse(*card))
}

func (s *Server) handleArchiveCard(w http.ResponseWriter, r *http.Request) {
	card, err := s.core.ArchiveCard(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardResponse(*card))
}

func (s *Server) handleUnarchiveCard(w http.ResponseWriter, r *http.Request) {
	card, err := s.core.UnarchiveCard(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardResponse(*card))
}

// ---------------------------------------------------------------------------
// Suggestions
// ---------------------------------------------------------------------------

func (s *Server) handleAcceptSuggestion(w http.ResponseWriter, r *http.Request) {
	card, err := s.core.AcceptSuggestion(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardResponse(*card))
}

func (s *Server) handleRejectSuggestion(w http.ResponseWriter, r *http.Request) {
	if err := s.core.RejectSuggestion(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSkipSuggestion(w http.ResponseWriter, r *http.Request) {
	if err := s.core.SkipSuggestion(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Review session
// ---------------------------------------------------------------------------

type reviewSessionRequest struct {
	Active bool `json:"active"`
}

func (s *Server) handleReviewSession(w http.ResponseWriter, r *http.Request) {
	var req reviewSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.core.SetReviewInProgress(req.Active)
	writeJSON(w, http.StatusOK, map[string]bool{"active": req.Active})
}
