package model

import (
	"testing"
	"time"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestSuggestion() Card {
	return NewSuggestion("card-1", "deck-1", "la mesa", "the table", "word",
		"a wooden table", "kitchen vocabulary", "furniture", testNow)
}

func TestPromote_RequiresArtwork(t *testing.T) {
	c := newTestSuggestion()

	if err := c.Promote(); err != ErrArtworkMissing {
		t.Fatalf("Promote without artwork: err = %v, want ErrArtworkMissing", err)
	}
	if c.State != StateSuggestionPending {
		t.Fatalf("state changed to %s on failed promote", c.State)
	}

	c.Artwork = []byte("png-bytes")
	if err := c.Promote(); err != nil {
		t.Fatalf("Promote with artwork: %v", err)
	}
	if c.State != StateSuggestionVisible {
		t.Fatalf("state = %s, want %s", c.State, StateSuggestionVisible)
	}
}

func TestPromote_OnlyFromPending(t *testing.T) {
	c := NewCard("card-1", "deck-1", "front", "back", "fact", testNow)
	c.Artwork = []byte("png-bytes")

	if err := c.Promote(); err != ErrInvalidTransition {
		t.Fatalf("Promote on active card: err = %v, want ErrInvalidTransition", err)
	}
}

func TestAccept_ClearsSuggestionMetadata(t *testing.T) {
	c := newTestSuggestion()
	c.Artwork = []byte("png-bytes")
	c.FailureCount = 2
	if err := c.Promote(); err != nil {
		t.Fatalf("Promote: %v", err)
	}

	if err := c.Accept(); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if c.State != StateActive {
		t.Errorf("state = %s, want %s", c.State, StateActive)
	}
	if c.SuggestionContext != "" || c.SuggestionCategory != "" {
		t.Errorf("suggestion metadata not cleared: %q %q", c.SuggestionContext, c.SuggestionCategory)
	}
	if c.EaseFactor != DefaultEaseFactor || c.IntervalDays != 0 || c.Repetitions != 0 || c.Due != nil {
		t.Errorf("scheduling state not reset: %+v", c)
	}
	if c.FailureCount != 2 {
		t.Errorf("FailureCount = %d, want preserved 2", c.FailureCount)
	}
}

func TestAccept_OnlyFromVisible(t *testing.T) {
	c := newTestSuggestion()
	if err := c.Accept(); err != ErrInvalidTransition {
		t.Fatalf("Accept on pending suggestion: err = %v, want ErrInvalidTransition", err)
	}
}

func TestArchiveUnarchive(t *testing.T) {
	c := NewCard("card-1", "deck-1", "front", "back", "fact", testNow)

	if err := c.Archive(testNow); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if c.State != StateArchived {
		t.Fatalf("state = %s, want %s", c.State, StateArchived)
	}
	if c.ArchivedAt == nil || !c.ArchivedAt.Equal(testNow) {
		t.Fatalf("ArchivedAt = %v, want %v", c.ArchivedAt, testNow)
	}

	if err := c.Archive(testNow); err != ErrInvalidTransition {
		t.Fatalf("double Archive: err = %v, want ErrInvalidTransition", err)
	}

	if err := c.Unarchive(); err != nil {
		t.Fatalf("Unarchive: %v", err)
	}
	if c.State != StateActive {
		t.Fatalf("state = %s, want %s", c.State, StateActive)
	}
	if c.ArchivedAt != nil {
		t.Fatalf("ArchivedAt = %v, want nil", c.ArchivedAt)
	}

	if err := c.Unarchive(); err != ErrInvalidTransition {
		t.Fatalf("Unarchive on active card: err = %v, want ErrInvalidTransition", err)
	}
}

func TestRecordEnrichmentFailure_AutoArchivesSuggestions(t *testing.T) {
	c := newTestSuggestion()

	for i := 1; i < MaxEnrichmentFailures; i++ {
		if archived := c.RecordEnrichmentFailure(testNow); archived {
			t.Fatalf("failure %d triggered auto-archive early", i)
		}
	}
	if !c.RecordEnrichmentFailure(testNow) {
		t.Fatal("third failure did not auto-archive suggestion")
	}
	if c.State != StateArchived {
		t.Fatalf("state = %s, want %s", c.State, StateArchived)
	}
	if c.FailureCount != MaxEnrichmentFailures {
		t.Fatalf("FailureCount = %d, want %d", c.FailureCount, MaxEnrichmentFailures)
	}
	if c.LastFailureAt == nil {
		t.Fatal("LastFailureAt not stamped")
	}
}

func TestRecordEnrichmentFailure_ActiveCardsNeverAutoArchive(t *testing.T) {
	c := NewCard("card-1", "deck-1", "front", "back", "fact", testNow)
	c.ArtworkPrompt = "a red apple"

	for i := 0; i < MaxEnrichmentFailures+2; i++ {
		if archived := c.RecordEnrichmentFailure(testNow); archived {
			t.Fatalf("active card auto-archived on failure %d", i+1)
		}
	}
	if c.State != StateActive {
		t.Fatalf("state = %s, want %s", c.State, StateActive)
	}
}

func TestEligibleForEnrichment(t *testing.T) {
	now := testNow

	active := NewCard("c1", "d1", "f", "b", "fact", now)
	active.ArtworkPrompt = "prompt"
	if !active.EligibleForEnrichment() {
		t.Error("active card with prompt and no artwork should be eligible")
	}

	noPrompt := NewCard("c2", "d1", "f", "b", "fact", now)
	if noPrompt.EligibleForEnrichment() {
		t.Error("card without prompt should not be eligible")
	}

	hasArt := NewCard("c3", "d1", "f", "b", "fact", now)
	hasArt.ArtworkPrompt = "prompt"
	hasArt.Artwork = []byte("png")
	if hasArt.EligibleForEnrichment() {
		t.Error("card with artwork should not be eligible")
	}

	wornOut := NewCard("c4", "d1", "f", "b", "fact", now)
	wornOut.ArtworkPrompt = "prompt"
	wornOut.FailureCount = MaxEnrichmentFailures
	if wornOut.EligibleForEnrichment() {
		t.Error("active card at failure limit should not be eligible")
	}

	wornOut.ResetEnrichmentFailures()
	if !wornOut.EligibleForEnrichment() {
		t.Error("card should be eligible again after failure reset")
	}
	if wornOut.LastFailureAt != nil {
		t.Error("LastFailureAt not cleared by reset")
	}

	archived := NewCard("c5", "d1", "f", "b", "fact", now)
	archived.ArtworkPrompt = "prompt"
	if err := archived.Archive(now); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if archived.EligibleForEnrichment() {
		t.Error("archived card should never be eligible")
	}

	suggestion := newTestSuggestion()
	if !suggestion.EligibleForEnrichment() {
		t.Error("pending suggestion with prompt should be eligible")
	}
	suggestion.FailureCount = MaxEnrichmentFailures - 1
	if !suggestion.EligibleForEnrichment() {
		t.Error("suggestion below failure limit should stay eligible")
	}
}

func TestLifecycleState_IsValid(t *testing.T) {
	for _, s := range []LifecycleState{StateActive, StateSuggestionPending, StateSuggestionVisible, StateArchived} {
		if !s.IsValid() {
			t.Errorf("%s reported invalid", s)
		}
	}
	if LifecycleState("DELETED").IsValid() {
		t.Error("unknown state reported valid")
	}
}

func TestParseGrade(t *testing.T) {
	cases := map[string]Grade{
		"again": Again,
		"hard":  Hard,
		"good":  Good,
		"easy":  Easy,
	}
	for in, want := range cases {
		g, err := ParseGrade(in)
		if err != nil {
			t.Errorf("ParseGrade(%q): %v", in, err)
			continue
		}
		if g != want {
			t.Errorf("ParseGrade(%q) = %v, want %v", in, g, want)
		}
		if g.String() != in {
			t.Errorf("Grade.String() = %q, want %q", g.String(), in)
		}
	}

	if _, err := ParseGrade("perfect"); err == nil {
		t.Error("ParseGrade accepted unknown grade")
	}
}
