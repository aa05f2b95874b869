package model

import "time"

// LifecycleState is the authoritative lifecycle state of a card. There is no
// separate archived flag; ARCHIVED is a state like any other.
type LifecycleState string

const (
	StateActive            LifecycleState = "ACTIVE"
	StateSuggestionPending LifecycleState = "SUGGESTION_PENDING"
	StateSuggestionVisible LifecycleState = "SUGGESTION_VISIBLE"
	StateArchived          LifecycleState = "ARCHIVED"
)

// IsValid reports whether s is one of the four defined lifecycle states.
func (s LifecycleState) IsValid() bool {
	switch s {
	case StateActive, StateSuggestionPending, StateSuggestionVisible, StateArchived:
		return true
	}
	return false
}

// IsSuggestion reports whether s is one of the two suggestion states.
func (s LifecycleState) IsSuggestion() bool {
	return s == StateSuggestionPending || s == StateSuggestionVisible
}

// Scheduling defaults and bounds.
const (
	DefaultEaseFactor = 2.5
	MinEaseFactor     = 1.3
	MaxEaseFactor     = 2.5
)

// MaxEnrichmentFailures is the number of recorded artwork failures after
// which a suggestion is auto-archived and an active card stops being retried.
const MaxEnrichmentFailures = 3

// Card is a single learning unit owned by exactly one deck.
type Card struct {
	ID       string `json:"id"`
	DeckID   string `json:"deck_id"`
	Front    string `json:"front"`
	Back     string `json:"back"`
	ItemType string `json:"item_type"`

	ArtworkPrompt string `json:"artwork_prompt,omitempty"`
	Artwork       []byte `json:"-"`

	// Scheduling state. Due is nil for cards that were never studied; such
	// cards are due immediately.
	EaseFactor   float64    `json:"ease_factor"`
	IntervalDays int        `json:"interval_days"`
	Repetitions  int        `json:"repetitions"`
	Due          *time.Time `json:"due,omitempty"`
	ReviewCount  int        `json:"review_count"`
	LastReviewed *time.Time `json:"last_reviewed,omitempty"`

	State      LifecycleState `json:"state"`
	ArchivedAt *time.Time     `json:"archived_at,omitempty"`

	// Suggestion metadata carried while the card is in a suggestion state.
	SuggestionContext  string `json:"suggestion_context,omitempty"`
	SuggestionCategory string `json:"suggestion_category,omitempty"`

	// Failure bookkeeping persists across lifecycle transitions so the
	// auto-archive history survives state changes.
	FailureCount  int        `json:"failure_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CardFilter holds query parameters for listing cards.
type CardFilter struct {
	DeckID string
	States []LifecycleState
	// MissingArtwork narrows the result to cards without artwork bytes.
	MissingArtwork bool
}

// NewCard creates a user-authored active card with default scheduling state.
func NewCard(id, deckID, front, back, itemType string, now time.Time) Card {
	return Card{
		ID:         id,
		DeckID:     deckID,
		Front:      front,
		Back:       back,
		ItemType:   itemType,
		EaseFactor: DefaultEaseFactor,
		State:      StateActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// NewSuggestion creates a pipeline-generated card in the SUGGESTION_PENDING
// state. Suggestions never carry meaningful scheduling state.
func NewSuggestion(id, deckID, front, back, itemType, artworkPrompt, context, category string, now time.Time) Card {
	c := NewCard(id, deckID, front, back, itemType, now)
	c.ArtworkPrompt = artworkPrompt
	c.State = StateSuggestionPending
	c.SuggestionContext = context
	c.SuggestionCategory = category
	return c
}

// HasArtwork reports whether artwork bytes are attached.
func (c *Card) HasArtwork() bool {
	return len(c.Artwork) > 0
}

// Promote moves a pending suggestion to the visible queue. It is only legal
// once artwork is attached.
func (c *Card) Promote() error {
	if c.State != StateSuggestionPending {
		return ErrInvalidTransition
	}
	if len(c.Artwork) == 0 {
		return ErrArtworkMissing
	}
	c.State = StateSuggestionVisible
	return nil
}

// Accept converts a visible suggestion into an active card. Suggestion
// metadata is cleared; scheduling fields stay at their reset defaults so the
// card starts as "new". Failure counters are intentionally kept.
func (c *Card) Accept() error {
	if c.State != StateSuggestionVisible {
		return ErrInvalidTransition
	}
	c.State = StateActive
	c.SuggestionContext = ""
	c.SuggestionCategory = ""
	c.EaseFactor = DefaultEaseFactor
	c.IntervalDays = 0
	c.Repetitions = 0
	c.Due = nil
	return nil
}

// Archive moves the card to ARCHIVED from any non-archived state. The
// archival timestamp is stamped only if not already set.
func (c *Card) Archive(now time.Time) error {
	if c.State == StateArchived {
		return ErrInvalidTransition
	}
	c.State = StateArchived
	if c.ArchivedAt == nil {
		t := now
		c.ArchivedAt = &t
	}
	return nil
}

// Unarchive restores an archived card to ACTIVE and clears the archival
// timestamp.
func (c *Card) Unarchive() error {
	if c.State != StateArchived {
		return ErrInvalidTransition
	}
	c.State = StateActive
	c.ArchivedAt = nil
	return nil
}

// RecordEnrichmentFailure increments the failure counter and stamps the
// failure time. When the counter reaches MaxEnrichmentFailures while the card
// is in a suggestion state, the card archives itself. The returned bool
// reports whether the auto-archive fired.
func (c *Card) RecordEnrichmentFailure(now time.Time) bool {
	c.FailureCount++
	t := now
	c.LastFailureAt = &t
	if c.FailureCount >= MaxEnrichmentFailures && c.State.IsSuggestion() {
		c.State = StateArchived
		if c.ArchivedAt == nil {
			c.ArchivedAt = &t
		}
		return true
	}
	return false
}

// ResetEnrichmentFailures zeroes the failure counter. Invoked when the user
// edits the artwork prompt, making the card retryable again.
func (c *Card) ResetEnrichmentFailures() {
	c.FailureCount = 0
	c.LastFailureAt = nil
}

// EligibleForEnrichment reports whether the enrichment worker may attempt
// artwork generation for this card. Archived cards are never retried; active
// cards stop being retried after MaxEnrichmentFailures; suggestions stay
// eligible until the auto-archive threshold fires.
func (c *Card) EligibleForEnrichment() bool {
	if c.ArtworkPrompt == "" || len(c.Artwork) > 0 {
		return false
	}
	switch c.State {
	case StateArchived:
		return false
	case StateActive:
		return c.FailureCount < MaxEnrichmentFailures
	default:
		return c.State.IsSuggestion()
	}
}
