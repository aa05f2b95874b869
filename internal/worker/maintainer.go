// Package worker holds the two periodic background loops of the suggestion
// pipeline: the count maintainer, which keeps each deck's suggestion total at
// its target, and the enrichment worker, which acquires artwork and promotes
// pending suggestions. Both are plain polling loops constructed with injected
// dependencies and stopped through context cancellation.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/cardpilot/cardpilot/internal/core"
	"github.com/cardpilot/cardpilot/internal/gen"
	"github.com/cardpilot/cardpilot/internal/model"
)

// DeckSource provides the reads the maintainer needs.
type DeckSource interface {
	ListDecks(ctx context.Context) ([]model.Deck, error)
	CountSuggestions(ctx context.Context, deckID string) (int, error)
	ListCards(ctx context.Context, f model.CardFilter) ([]model.Card, error)
}

// CandidateSink persists filtered candidates on the serialized write path.
type CandidateSink interface {
	PersistCandidates(ctx context.Context, deck model.Deck, cands []gen.Candidate) (int, error)
}

// Maintainer tops up every deck's suggestion count to its target.
type Maintainer struct {
	decks DeckSource
	gen   gen.CandidateGenerator
	sink  CandidateSink
	guard *core.Guard

	interval time.Duration
	// batchDelay separates consecutive generator batches. It is a quota
	// constraint on the collaborator, not a tuning knob.
	batchDelay time.Duration
}

// NewMaintainer creates a suggestion count maintainer.
func NewMaintainer(decks DeckSource, g gen.CandidateGenerator, sink CandidateSink, guard *core.Guard, interval, batchDelay time.Duration) *Maintainer {
	return &Maintainer{
		decks:      decks,
		gen:        g,
		sink:       sink,
		guard:      guard,
		interval:   interval,
		batchDelay: batchDelay,
	}
}

// Start begins the polling loop. It blocks until ctx is cancelled.
func (m *Maintainer) Start(ctx context.Context) {
	slog.Info("count maintainer started", "interval", m.interval.String())
	for {
		select {
		case <-ctx.Done():
			slog.Info("count maintainer stopped")
			return
		default:
		}

		if err := m.runOnce(ctx); err != nil && ctx.Err() == nil {
			slog.Error("count maintainer pass failed", "error", err)
		}
		sleep(ctx, m.interval)
	}
}

// runOnce performs a single maintenance pass over all decks.
func (m *Maintainer) runOnce(ctx context.Context) error {
	if m.guard.Engaged() {
		return nil // whole pass deferred while the user reviews
	}

	decks, err := m.decks.ListDecks(ctx)
	if err != nil {
		return err
	}

	first := true
	for _, deck := range decks {
		if deck.SuggestionTarget <= 0 {
			continue
		}
		if m.guard.Engaged() {
			return nil
		}

		total, err := m.decks.CountSuggestions(ctx, deck.ID)
		if err != nil {
			slog.Error("count suggestions", "deck_id", deck.ID, "error", err)
			continue
		}
		shortfall := deck.SuggestionTarget - total
		if shortfall <= 0 {
			continue
		}

		// Rate limit between consecutive generator batches.
		if !first {
			sleep(ctx, m.batchDelay)
			if ctx.Err() != nil {
				return nil
			}
		}
		first = false

		if err := m.fillDeck(ctx, deck, shortfall); err != nil {
			slog.Error("fill deck", "deck_id", deck.ID, "error", err)
		}
	}
	return nil
}

func (m *Maintainer) fillDeck(ctx context.Context, deck model.Deck, shortfall int) error {
	fronts, err := m.existingFronts(ctx, deck.ID)
	if err != nil {
		return err
	}

	cands, err := m.gen.GenerateCandidates(ctx, gen.CandidateRequest{
		DeckName:       deck.Name,
		DeckContext:    deck.Description,
		ExistingFronts: fronts,
		Count:          shortfall,
	})
	if err != nil {
		// Collaborator failure yields zero candidates this cycle.
		slog.Warn("candidate generation failed", "deck_id", deck.ID, "error", err)
		return nil
	}

	persisted, err := m.sink.PersistCandidates(ctx, deck, cands)
	if err != nil {
		return err
	}
	slog.Info("suggestions topped up", "deck_id", deck.ID,
		"requested", shortfall, "generated", len(cands), "persisted", persisted)
	return nil
}

func (m *Maintainer) existingFronts(ctx context.Context, deckID string) ([]string, error) {
	cards, err := m.decks.ListCards(ctx, model.CardFilter{DeckID: deckID})
	if err != nil {
		return nil, err
	}
	fronts := make([]string, 0, len(cards))
	for _, c := range cards {
		fronts = append(fronts, c.Front)
	}
	return fronts, nil
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
