// Package dedup decides whether candidate content repeats something the deck
// already has or something the user already declined. It operates on slices
// the caller fetched, so it stays free of store dependencies.
package dedup

import (
	"strings"

	"github.com/cardpilot/cardpilot/internal/model"
)

// Normalize trims surrounding whitespace and case-folds a value for
// comparison and storage in rejection records.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsDuplicate reports whether an active card in cards already carries the
// given front value and item type. Suggestion and archived cards are not a
// duplicate-detection surface. excludingID, when non-empty, skips that card
// so editing a card in place never matches itself.
func IsDuplicate(cards []model.Card, front, itemType, excludingID string) bool {
	nf := Normalize(front)
	nt := Normalize(itemType)
	for _, c := range cards {
		if c.State != model.StateActive {
			continue
		}
		if excludingID != "" && c.ID == excludingID {
			continue
		}
		if Normalize(c.Front) == nf && Normalize(c.ItemType) == nt {
			return true
		}
	}
	return false
}

// WasRejected reports whether the deck's rejection history contains an exact
// (normalized front, item type) match.
func WasRejected(records []model.RejectionRecord, front, itemType string) bool {
	nf := Normalize(front)
	nt := Normalize(itemType)
	for _, r := range records {
		if Normalize(r.Front) == nf && Normalize(r.ItemType) == nt {
			return true
		}
	}
	return false
}
