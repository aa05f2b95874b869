package model

import "errors"

var (
	// ErrInvalidTransition is returned when a lifecycle transition is not
	// legal from the card's current state.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrArtworkMissing is returned when promoting a suggestion that has no
	// artwork attached.
	ErrArtworkMissing = errors.New("artwork missing")

	// ErrDuplicateCard is returned when creating or editing a card would
	// collide with an existing active card in the same deck.
	ErrDuplicateCard = errors.New("duplicate card")
)
