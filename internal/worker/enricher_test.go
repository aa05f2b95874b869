package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cardpilot/cardpilot/internal/model"
)

// mockCardSource serves cards grouped by state, honoring MissingArtwork.
type mockCardSource struct {
	cards []model.Card
}

func (m *mockCardSource) ListCards(_ context.Context, f model.CardFilter) ([]model.Card, error) {
	var out []model.Card
	for _, c := range m.cards {
		match := false
		for _, st := range f.States {
			if c.State == st {
				match = true
				break
			}
		}
		if !match {
			continue
		}
		if f.MissingArtwork && c.HasArtwork() {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// mockArtwork returns canned bytes or a canned error per prompt.
type mockArtwork struct {
	prompts []string
	art     []byte
	err     error
}

func (m *mockArtwork) GenerateArtwork(_ context.Context, prompt string) ([]byte, error) {
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return nil, m.err
	}
	return m.art, nil
}

// mockOps records every write-path call.
type mockOps struct {
	promoted []string
	attached []string
	failed   []string

	promoteResult bool
}

func (m *mockOps) PromotePending(_ context.Context, id string) (bool, error) {
	m.promoted = append(m.promoted, id)
	return m.promoteResult, nil
}

func (m *mockOps) AttachArtwork(_ context.Context, id string, _ []byte) (bool, error) {
	m.attached = append(m.attached, id)
	return true, nil
}

func (m *mockOps) RecordEnrichmentFailure(_ context.Context, id string) (bool, error) {
	m.failed = append(m.failed, id)
	return false, nil
}

var enrichNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func pendingCard(id string, withArt bool) model.Card {
	c := model.NewSuggestion(id, "deck-1", "front "+id, "back", "word", "prompt "+id, "", "", enrichNow)
	if withArt {
		c.Artwork = []byte("art")
	}
	return c
}

func activeCard(id, prompt string) model.Card {
	c := model.NewCard(id, "deck-1", "front "+id, "back", "word", enrichNow)
	c.ArtworkPrompt = prompt
	return c
}

func TestEnricher_GeneratesAndAttaches(t *testing.T) {
	src := &mockCardSource{cards: []model.Card{activeCard("card-1", "a red apple")}}
	art := &mockArtwork{art: []byte("png")}
	ops := &mockOps{}

	e := NewEnricher(src, art, ops, time.Minute)
	if err := e.runOnce(context.Background()); err != nil {
		t.Fatalf("runOnce: %v", err)
	}

	if len(art.prompts) != 1 || art.prompts[0] != "a red apple" {
		t.Errorf("prompts = %v", art.prompts)
	}
	if len(ops.attached) != 1 || ops.attached[0] != "card-1" {
		t.Errorf("attached = %v", ops.attached)
	}
	if len(ops.failed) != 0 {
		t.Errorf("failures recorded = %v", ops.failed)
	}
}

func TestEnricher_RecordsFailures(t *testing.T) {
	src := &mockCardSource{cards: []model.Card{pendingCard("sugg-1", false)}}
	art := &mockArtwork{err: errors.New("generation backend down")}
	ops := &mockOps{}

	e := NewEnricher(src, art, ops, time.Minute)
	if err := e.runOnce(context.Background()); err != nil {
		t.Fatalf("runOnce: %v", err)
	}

	if len(ops.failed) != 1 || ops.failed[0] != "sugg-1" {
		t.Errorf("failed = %v, want [sugg-1]", ops.failed)
	}
	if len(ops.attached) != 0 {
		t.Errorf("attached = %v, want none", ops.attached)
	}
}

func TestEnricher_PromotesDeferredFirst(t *testing.T) {
	// A pending suggestion that already has artwork was blocked by a review
	// session; the next pass promotes it without calling the generator.
	src := &mockCardSource{cards: []model.Card{pendingCard("sugg-1", true)}}
	art := &mockArtwork{art: []byte("png")}
	ops := &mockOps{promoteResult: true}

	e := NewEnricher(src, art, ops, time.Minute)
	if err := e.runOnce(context.Background()); err != nil {
		t.Fatalf("runOnce: %v", err)
	}

	if len(ops.promoted) != 1 || ops.promoted[0] != "sugg-1" {
		t.Errorf("promoted = %v, want [sugg-1]", ops.promoted)
	}
	if len(art.prompts) != 0 {
		t.Errorf("generator called for a card that already has artwork: %v", art.prompts)
	}
}

func TestEnricher_SkipsIneligibleCards(t *testing.T) {
	noPrompt := model.NewCard("card-np", "deck-1", "front", "back", "word", enrichNow)

	wornOut := activeCard("card-wo", "prompt")
	wornOut.FailureCount = model.MaxEnrichmentFailures

	src := &mockCardSource{cards: []model.Card{noPrompt, wornOut}}
	art := &mockArtwork{art: []byte("png")}
	ops := &mockOps{}

	e := NewEnricher(src, art, ops, time.Minute)
	if err := e.runOnce(context.Background()); err != nil {
		t.Fatalf("runOnce: %v", err)
	}

	if len(art.prompts) != 0 {
		t.Errorf("generator called for ineligible cards: %v", art.prompts)
	}
}

func TestEnricher_ActiveCardsScannedBeforeSuggestions(t *testing.T) {
	src := &mockCardSource{cards: []model.Card{
		pendingCard("sugg-1", false),
		activeCard("card-1", "prompt one"),
	}}
	art := &mockArtwork{art: []byte("png")}
	ops := &mockOps{}

	e := NewEnricher(src, art, ops, time.Minute)
	if err := e.runOnce(context.Background()); err != nil {
		t.Fatalf("runOnce: %v", err)
	}

	if len(ops.attached) != 2 {
		t.Fatalf("attached = %v, want 2 cards", ops.attached)
	}
	if ops.attached[0] != "card-1" || ops.attached[1] != "sugg-1" {
		t.Errorf("attach order = %v, want active card first", ops.attached)
	}
}

func TestEnricher_StartStopsOnCancel(t *testing.T) {
	e := NewEnricher(&mockCardSource{}, &mockArtwork{}, &mockOps{}, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after context cancellation")
	}
}
