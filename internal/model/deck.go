package model

import "time"

// Deck owns an ordered-by-creation collection of cards, a suggestion target
// and the deck's rejection history. A target of 0 disables the suggestion
// pipeline for the deck.
type Deck struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	SuggestionTarget int       `json:"suggestion_target"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewDeck creates a deck with the suggestion pipeline disabled.
func NewDeck(id, name, description string, now time.Time) Deck {
	return Deck{
		ID:          id,
		Name:        name,
		Description: description,
		CreatedAt:   now,
	}
}

// DeckCounts holds the per-deck numbers the UI renders next to a deck.
type DeckCounts struct {
	Due         int `json:"due"`
	New         int `json:"new"`
	Suggestions int `json:"suggestions"`
}

// RejectionRecord remembers a declined suggestion so the same content is
// never re-suggested for the deck. Records do not expire; pruning is a
// deployment policy, not a core invariant.
type RejectionRecord struct {
	ID         string    `json:"id"`
	DeckID     string    `json:"deck_id"`
	Front      string    `json:"front"` // stored normalized
	ItemType   string    `json:"item_type"`
	RejectedAt time.Time `json:"rejected_at"`
}

// ReviewLog records a single grading event for a card.
type ReviewLog struct {
	ID         string    `json:"id"`
	CardID     string    `json:"card_id"`
	Grade      Grade     `json:"grade"`
	ElapsedMs  int64     `json:"elapsed_ms"`
	ReviewedAt time.Time `json:"reviewed_at"`
}
