package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/cardpilot/cardpilot/internal/gen"
	"github.com/cardpilot/cardpilot/internal/model"
)

// CardSource provides the reads the enricher needs.
type CardSource interface {
	ListCards(ctx context.Context, f model.CardFilter) ([]model.Card, error)
}

// EnrichmentOps are the serialized write operations the enricher rejoins
// after each collaborator call. Guard checks happen inside them, at apply
// time, so a review session that opened mid-generation still defers the
// promotion.
type EnrichmentOps interface {
	PromotePending(ctx context.Context, id string) (bool, error)
	AttachArtwork(ctx context.Context, id string, artwork []byte) (bool, error)
	RecordEnrichmentFailure(ctx context.Context, id string) (bool, error)
}

// Enricher acquires artwork for cards that lack it and promotes pending
// suggestions once artwork is attached.
type Enricher struct {
	cards    CardSource
	artwork  gen.ArtworkGenerator
	ops      EnrichmentOps
	interval time.Duration
}

// NewEnricher creates an enrichment worker.
func NewEnricher(cards CardSource, artwork gen.ArtworkGenerator, ops EnrichmentOps, interval time.Duration) *Enricher {
	return &Enricher{cards: cards, artwork: artwork, ops: ops, interval: interval}
}

// Start begins the polling loop. It blocks until ctx is cancelled.
func (e *Enricher) Start(ctx context.Context) {
	slog.Info("enrichment worker started", "interval", e.interval.String())
	for {
		select {
		case <-ctx.Done():
			slog.Info("enrichment worker stopped")
			return
		default:
		}

		if err := e.runOnce(ctx); err != nil && ctx.Err() == nil {
			slog.Error("enrichment pass failed", "error", err)
		}
		sleep(ctx, e.interval)
	}
}

// runOnce performs a single enrichment pass: first flush promotions deferred
// by an earlier review session, then work through cards missing artwork in
// priority order.
func (e *Enricher) runOnce(ctx context.Context) error {
	if err := e.promoteDeferred(ctx); err != nil {
		return err
	}

	scan, err := e.scanOrder(ctx)
	if err != nil {
		return err
	}

	for _, card := range scan {
		if ctx.Err() != nil {
			return nil
		}
		// Conditions may have changed since the scan; cheap re-check.
		if !card.EligibleForEnrichment() {
			continue
		}
		e.enrich(ctx, card)
	}
	return nil
}

// promoteDeferred promotes pending suggestions that already carry artwork,
// the ones whose promotion was blocked by the guard when enrichment finished.
func (e *Enricher) promoteDeferred(ctx context.Context) error {
	pending, err := e.cards.ListCards(ctx, model.CardFilter{
		States: []model.LifecycleState{model.StateSuggestionPending},
	})
	if err != nil {
		return err
	}
	for _, card := range pending {
		if !card.HasArtwork() {
			continue
		}
		promoted, err := e.ops.PromotePending(ctx, card.ID)
		if err != nil {
			slog.Error("promote pending suggestion", "card_id", card.ID, "error", err)
			continue
		}
		if promoted {
			slog.Info("deferred promotion applied", "card_id", card.ID)
		}
	}
	return nil
}

// scanOrder returns enrichment candidates in the fixed priority order:
// active cards first, then pending suggestions, then visible suggestions
// still missing artwork.
func (e *Enricher) scanOrder(ctx context.Context) ([]model.Card, error) {
	var scan []model.Card
	for _, state := range []model.LifecycleState{
		model.StateActive,
		model.StateSuggestionPending,
		model.StateSuggestionVisible,
	} {
		cards, err := e.cards.ListCards(ctx, model.CardFilter{
			States:         []model.LifecycleState{state},
			MissingArtwork: true,
		})
		if err != nil {
			return nil, err
		}
		scan = append(scan, cards...)
	}
	return scan, nil
}

func (e *Enricher) enrich(ctx context.Context, card model.Card) {
	artwork, err := e.artwork.GenerateArtwork(ctx, card.ArtworkPrompt)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Warn("artwork generation failed", "card_id", card.ID, "error", err)
		if _, recErr := e.ops.RecordEnrichmentFailure(ctx, card.ID); recErr != nil {
			slog.Error("record enrichment failure", "card_id", card.ID, "error", recErr)
		}
		return
	}

	promoted, err := e.ops.AttachArtwork(ctx, card.ID, artwork)
	if err != nil {
		slog.Error("attach artwork", "card_id", card.ID, "error", err)
		return
	}
	slog.Info("artwork attached", "card_id", card.ID, "promoted", promoted)
}
