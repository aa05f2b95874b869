package store

import (
	"context"
	"time"

	"github.com/cardpilot/cardpilot/internal/model"
)

// CardReader provides read access to cards.
type CardReader interface {
	GetCard(ctx context.Context, id string) (*model.Card, error)
	ListCards(ctx context.Context, f model.CardFilter) ([]model.Card, error)
	// CountSuggestions returns the number of cards in either suggestion
	// state for the deck.
	CountSuggestions(ctx context.Context, deckID string) (int, error)
	// DeckCounts returns the due/new/suggestion numbers the UI renders.
	DeckCounts(ctx context.Context, deckID string, now time.Time) (model.DeckCounts, error)
}

// CardWriter provides write access to cards.
type CardWriter interface {
	CreateCard(ctx context.Context, c model.Card) error
	UpdateCard(ctx context.Context, c model.Card) error
	DeleteCard(ctx context.Context, id string) error
}

// DeckStore provides access to deck persistence.
type DeckStore interface {
	CreateDeck(ctx context.Context, d model.Deck) error
	GetDeck(ctx context.Context, id string) (*model.Deck, error)
	ListDecks(ctx context.Context) ([]model.Deck, error)
	SetDeckSuggestionTarget(ctx context.Context, id string, target int) error
}

// RejectionStore provides access to the per-deck rejection history.
type RejectionStore interface {
	CreateRejection(ctx context.Context, r model.RejectionRecord) error
	ListRejectionsByDeck(ctx context.Context, deckID string) ([]model.RejectionRecord, error)
}

// ReviewLogStore provides access to review history.
type ReviewLogStore interface {
	CreateReviewLog(ctx context.Context, l model.ReviewLog) error
	ListReviewLogsByCard(ctx context.Context, cardID string) ([]model.ReviewLog, error)
}

// Repository combines all persistence operations the core requires.
type Repository interface {
	CardReader
	CardWriter
	DeckStore
	RejectionStore
	ReviewLogStore
}
