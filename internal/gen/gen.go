// Package gen holds the clients for the two generative collaborators: the
// content generator that proposes candidate cards and the artwork generator
// that produces image bytes for a prompt. Both have real HTTP implementations
// and stubs for keyless development and tests.
package gen

import "context"

// Candidate is a proposed card returned by the content generator. Candidates
// without an artwork prompt are discarded by the pipeline: they could never
// reach the visible queue.
type Candidate struct {
	Front         string `json:"front"`
	Back          string `json:"back"`
	ItemType      string `json:"item_type"`
	ArtworkPrompt string `json:"artwork_prompt"`
	Context       string `json:"context"`
	Category      string `json:"category"`
}

// CandidateRequest describes what the count maintainer needs from the
// content generator for one deck.
type CandidateRequest struct {
	DeckName    string
	DeckContext string
	// ExistingFronts summarises the deck's current content so the
	// generator avoids proposing repeats.
	ExistingFronts []string
	Count          int
}

// CandidateGenerator produces candidate card content for a deck.
type CandidateGenerator interface {
	GenerateCandidates(ctx context.Context, req CandidateRequest) ([]Candidate, error)
}

// ArtworkGenerator produces image bytes for a prompt, or fails.
type ArtworkGenerator interface {
	GenerateArtwork(ctx context.Context, prompt string) ([]byte, error)
}
