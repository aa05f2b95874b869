// Package core owns every mutation of decks and cards. All writes funnel
// through one mutex so at most one write touches a deck's card collection at
// a time; long-running collaborator calls happen outside the lock and rejoin
// it briefly to apply their results.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cardpilot/cardpilot/internal/dedup"
	"github.com/cardpilot/cardpilot/internal/gen"
	"github.com/cardpilot/cardpilot/internal/model"
	"github.com/cardpilot/cardpilot/internal/scheduler"
	"github.com/cardpilot/cardpilot/internal/store"
)

// Service is the single-writer execution context for the whole system.
type Service struct {
	mu    sync.Mutex
	store store.Repository
	guard *Guard
	now   func() time.Time
}

// New creates a Service.
func New(st store.Repository, guard *Guard) *Service {
	return &Service{store: st, guard: guard, now: time.Now}
}

// Guard returns the review guard shared with the background workers.
func (s *Service) Guard() *Guard {
	return s.guard
}

// ---------------------------------------------------------------------------
// Foreground (UI boundary) operations
// ---------------------------------------------------------------------------

// GradeCard applies a review grade to an active card: it runs the scheduler,
// bumps the review counters and records a history entry. The card update and
// its scheduler transition are atomic with respect to other grading
// operations.
func (s *Service) GradeCard(ctx context.Context, id string, g model.Grade, elapsed time.Duration) (*model.Card, error) {
	if !g.IsValid() {
		return nil, fmt.Errorf("grade %d: %w", int(g), model.ErrInvalidTransition)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	card, err := s.store.GetCard(ctx, id)
	if err != nil {
		return nil, err
	}
	if card.State != model.StateActive {
		return nil, fmt.Errorf("grade %s card: %w", card.State, model.ErrInvalidTransition)
	}

	now := s.now()
	next := scheduler.Schedule(scheduler.State{
		EaseFactor:   card.EaseFactor,
		IntervalDays: card.IntervalDays,
		Repetitions:  card.Repetitions,
		Due:          card.Due,
	}, g, now)

	updated := *card
	updated.EaseFactor = next.EaseFactor
	updated.IntervalDays = next.IntervalDays
	updated.Repetitions = next.Repetitions
	updated.Due = next.Due
	updated.ReviewCount++
	t := now
	updated.LastReviewed = &t
	updated.UpdatedAt = now

	if err := s.store.UpdateCard(ctx, updated); err != nil {
		return nil, fmt.Errorf("persist grading: %w", err)
	}

	// History is best effort: losing one log entry never blocks grading.
	log := model.ReviewLog{
		ID:         uuid.New().String(),
		CardID:     id,
		Grade:      g,
		ElapsedMs:  elapsed.Milliseconds(),
		ReviewedAt: now,
	}
	if err := s.store.CreateReviewLog(ctx, log); err != nil {
		slog.Warn("record review log", "card_id", id, "error", err)
	}

	return &updated, nil
}

// AcceptSuggestion converts a visible suggestion into a brand-new active
// card and deletes the suggestion original.
func (s *Service) AcceptSuggestion(ctx context.Context, id string) (*model.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, err := s.store.GetCard(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	accepted := *card
	if err := accepted.Accept(); err != nil {
		return nil, fmt.Errorf("accept %s card: %w", card.State, err)
	}
	accepted.ID = uuid.New().String()
	accepted.CreatedAt = now
	accepted.UpdatedAt = now

	if err := s.store.CreateCard(ctx, accepted); err != nil {
		return nil, fmt.Errorf("create accepted card: %w", err)
	}
	if err := s.store.DeleteCard(ctx, id); err != nil {
		// Roll back so acceptance never half-applies.
		if delErr := s.store.DeleteCard(ctx, accepted.ID); delErr != nil {
			slog.Error("rollback accepted card", "card_id", accepted.ID, "error", delErr)
		}
		return nil, fmt.Errorf("delete suggestion original: %w", err)
	}
	return &accepted, nil
}

// RejectSuggestion records the decline in the deck's rejection history, then
// deletes the suggestion. The record is written first so the content can
// never be re-suggested even if the delete needs a retry.
func (s *Service) RejectSuggestion(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, err := s.store.GetCard(ctx, id)
	if err != nil {
		return err
	}
	if !card.State.IsSuggestion() {
		return fmt.Errorf("reject %s card: %w", card.State, model.ErrInvalidTransition)
	}

	rec := model.RejectionRecord{
		ID:         uuid.New().String(),
		DeckID:     card.DeckID,
		Front:      dedup.Normalize(card.Front),
		ItemType:   dedup.Normalize(card.ItemType),
		RejectedAt: s.now(),
	}
	if err := s.store.CreateRejection(ctx, rec); err != nil {
		return fmt.Errorf("record rejection: %w", err)
	}
	if err := s.store.DeleteCard(ctx, id); err != nil {
		return fmt.Errorf("delete rejected suggestion: %w", err)
	}
	return nil
}

// SkipSuggestion leaves the suggestion untouched; the queue keeps its
// creation order and the client simply moves on. The call still validates
// that the target is a visible suggestion.
func (s *Service) SkipSuggestion(ctx context.Context, id string) error {
	card, err := s.store.GetCard(ctx, id)
	if err != nil {
		return err
	}
	if card.State != model.StateSuggestionVisible {
		return fmt.Errorf("skip %s card: %w", card.State, model.ErrInvalidTransition)
	}
	return nil
}

// SetReviewInProgress engages or releases the review guard.
func (s *Service) SetReviewInProgress(v bool) {
	s.guard.Set(v)
}

// SetDeckSuggestionTarget updates the deck's suggestion target. 0 disables
// the pipeline for the deck.
func (s *Service) SetDeckSuggestionTarget(ctx context.Context, deckID string, target int) error {
	if target < 0 {
		return fmt.Errorf("suggestion target must be >= 0, got %d", target)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.SetDeckSuggestionTarget(ctx, deckID, target)
}

// VisibleSuggestions returns the deck's reviewable suggestion queue in
// creation order.
func (s *Service) VisibleSuggestions(ctx context.Context, deckID string) ([]model.Card, error) {
	return s.store.ListCards(ctx, model.CardFilter{
		DeckID: deckID,
		States: []model.LifecycleState{model.StateSuggestionVisible},
	})
}

// DeckCounts returns the due/new/suggestion counts the UI renders for a deck.
func (s *Service) DeckCounts(ctx context.Context, deckID string) (model.DeckCounts, error) {
	return s.store.DeckCounts(ctx, deckID, s.now())
}

// CreateDeck creates a new deck.
func (s *Service) CreateDeck(ctx context.Context, name, description string, target int) (*model.Deck, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("deck name is required")
	}
	if target < 0 {
		return nil, fmt.Errorf("suggestion target must be >= 0, got %d", target)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	deck := model.NewDeck(uuid.New().String(), name, description, s.now())
	deck.SuggestionTarget = target
	if err := s.store.CreateDeck(ctx, deck); err != nil {
		return nil, err
	}
	return &deck, nil
}

// CreateCard authors a new active card after a duplicate check against the
// deck's active cards.
func (s *Service) CreateCard(ctx context.Context, deckID, front, back, itemType, artworkPrompt string) (*model.Card, error) {
	if strings.TrimSpace(front) == "" {
		return nil, fmt.Errorf("front is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.store.GetDeck(ctx, deckID); err != nil {
		return nil, fmt.Errorf("deck %s: %w", deckID, err)
	}
	active, err := s.store.ListCards(ctx, model.CardFilter{
		DeckID: deckID,
		States: []model.LifecycleState{model.StateActive},
	})
	if err != nil {
		return nil, err
	}
	if dedup.IsDuplicate(active, front, itemType, "") {
		return nil, model.ErrDuplicateCard
	}

	card := model.NewCard(uuid.New().String(), deckID, front, back, itemType, s.now())
	card.ArtworkPrompt = artworkPrompt
	if err := s.store.CreateCard(ctx, card); err != nil {
		return nil, err
	}
	return &card, nil
}

// UpdateCardContent edits a card's content. Editing the artwork prompt
// resets the enrichment failure counter so the card becomes retryable.
// The duplicate check excludes the card itself.
func (s *Service) UpdateCardContent(ctx context.Context, id, front, back, itemType, artworkPrompt string) (*model.Card, error) {
	if strings.TrimSpace(front) == "" {
		return nil, fmt.Errorf("front is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	card, err := s.store.GetCard(ctx, id)
	if err != nil {
		return nil, err
	}
	active, err := s.store.ListCards(ctx, model.CardFilter{
		DeckID: card.DeckID,
		States: []model.LifecycleState{model.StateActive},
	})
	if err != nil {
		return nil, err
	}
	if dedup.IsDuplicate(active, front, itemType, card.ID) {
		return nil, model.ErrDuplicateCard
	}

	updated := *card
	updated.Front = front
	updated.Back = back
	updated.ItemType = itemType
	if artworkPrompt != card.ArtworkPrompt {
		updated.ArtworkPrompt = artworkPrompt
		updated.ResetEnrichmentFailures()
	}
	updated.UpdatedAt = s.now()

	if err := s.store.UpdateCard(ctx, updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteCard removes a card and its review history.
func (s *Service) DeleteCard(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.DeleteCard(ctx, id)
}

// ArchiveCard moves a card to ARCHIVED.
func (s *Service) ArchiveCard(ctx context.Context, id string) (*model.Card, error) {
	return s.transition(ctx, id, func(c *model.Card, now time.Time) error {
		return c.Archive(now)
	})
}

// UnarchiveCard restores an archived card to ACTIVE.
func (s *Service) UnarchiveCard(ctx context.Context, id string) (*model.Card, error) {
	return s.transition(ctx, id, func(c *model.Card, _ time.Time) error {
		return c.Unarchive()
	})
}

func (s *Service) transition(ctx context.Context, id string, fn func(*model.Card, time.Time) error) (*model.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, err := s.store.GetCard(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	updated := *card
	if err := fn(&updated, now); err != nil {
		return nil, err
	}
	updated.UpdatedAt = now
	if err := s.store.UpdateCard(ctx, updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// ---------------------------------------------------------------------------
// Worker rejoin operations
// ---------------------------------------------------------------------------

// PersistCandidates filters a batch of generated candidates and stores the
// survivors as pending suggestions. The guard is re-checked here, at the
// moment of persistence: a review session that opened after generation
// started still defers the whole batch. Returns how many were persisted.
func (s *Service) PersistCandidates(ctx context.Context, deck model.Deck, cands []gen.Candidate) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.guard.Engaged() {
		return 0, nil // deferred, not dropped: next cycle retries
	}

	active, err := s.store.ListCards(ctx, model.CardFilter{
		DeckID: deck.ID,
		States: []model.LifecycleState{model.StateActive},
	})
	if err != nil {
		return 0, err
	}
	rejections, err := s.store.ListRejectionsByDeck(ctx, deck.ID)
	if err != nil {
		return 0, err
	}

	persisted := 0
	for _, cand := range cands {
		if strings.TrimSpace(cand.ArtworkPrompt) == "" {
			// A suggestion with no way to acquire artwork can never
			// reach the visible queue.
			slog.Debug("discard candidate without artwork prompt", "deck_id", deck.ID, "front", cand.Front)
			continue
		}
		if dedup.IsDuplicate(active, cand.Front, cand.ItemType, "") {
			continue
		}
		if dedup.WasRejected(rejections, cand.Front, cand.ItemType) {
			continue
		}

		card := model.NewSuggestion(
			uuid.New().String(), deck.ID,
			cand.Front, cand.Back, cand.ItemType,
			cand.ArtworkPrompt, cand.Context, cand.Category,
			s.now(),
		)
		if err := s.store.CreateCard(ctx, card); err != nil {
			return persisted, fmt.Errorf("persist candidate: %w", err)
		}
		persisted++
	}
	return persisted, nil
}

// AttachArtwork stores generated artwork on a card. A pending suggestion is
// promoted in the same write unless the guard is engaged, in which case the
// artwork is kept and promotion is deferred to a later pass.
func (s *Service) AttachArtwork(ctx context.Context, id string, artwork []byte) (promoted bool, err error) {
	if len(artwork) == 0 {
		return false, fmt.Errorf("empty artwork")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	card, err := s.store.GetCard(ctx, id)
	if err != nil {
		return false, err
	}

	updated := *card
	updated.Artwork = artwork
	if updated.State == model.StateSuggestionPending && !s.guard.Engaged() {
		if err := updated.Promote(); err != nil {
			return false, err
		}
		promoted = true
	}
	updated.UpdatedAt = s.now()

	if err := s.store.UpdateCard(ctx, updated); err != nil {
		return false, fmt.Errorf("persist artwork: %w", err)
	}
	return promoted, nil
}

// PromotePending promotes a pending suggestion that already carries artwork.
// With the guard engaged, or if the card moved on since the caller looked,
// this is a quiet no-op.
func (s *Service) PromotePending(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.guard.Engaged() {
		return false, nil
	}
	card, err := s.store.GetCard(ctx, id)
	if err != nil {
		return false, err
	}
	if card.State != model.StateSuggestionPending {
		return false, nil
	}

	updated := *card
	if err := updated.Promote(); err != nil {
		return false, err
	}
	updated.UpdatedAt = s.now()
	if err := s.store.UpdateCard(ctx, updated); err != nil {
		return false, fmt.Errorf("persist promotion: %w", err)
	}
	return true, nil
}

// RecordEnrichmentFailure bumps a card's failure counter, auto-archiving
// suggestions that hit the threshold. Returns whether the card archived.
func (s *Service) RecordEnrichmentFailure(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, err := s.store.GetCard(ctx, id)
	if err != nil {
		return false, err
	}

	now := s.now()
	updated := *card
	archived := updated.RecordEnrichmentFailure(now)
	updated.UpdatedAt = now

	if err := s.store.UpdateCard(ctx, updated); err != nil {
		return false, fmt.Errorf("persist failure: %w", err)
	}
	if archived {
		slog.Info("suggestion auto-archived after repeated enrichment failures",
			"card_id", id, "failures", updated.FailureCount)
	}
	return archived, nil
}
