package gen

import (
	"context"
	"fmt"
)

// StubCandidateGenerator returns synthetic candidates (for development and
// testing without an API key).
type StubCandidateGenerator struct {
	// Sequence numbers fronts across calls so stub candidates never repeat.
	seq int
}

func (g *StubCandidateGenerator) GenerateCandidates(_ context.Context, req CandidateRequest) ([]Candidate, error) {
	out := make([]Candidate, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		g.seq++
		out = append(out, Candidate{
			Front:         fmt.Sprintf("Stub card %d for %s", g.seq, req.DeckName),
			Back:          fmt.Sprintf("Stub answer %d", g.seq),
			ItemType:      "fact",
			ArtworkPrompt: fmt.Sprintf("A simple illustration, variant %d", g.seq),
			Context:       "Generated by the stub candidate generator.",
			Category:      "stub",
		})
	}
	return out, nil
}

// StubArtworkGenerator returns a fixed PNG-ish byte blob, or a configured
// error (for testing the failure path).
type StubArtworkGenerator struct {
	Err error
}

func (g *StubArtworkGenerator) GenerateArtwork(_ context.Context, prompt string) ([]byte, error) {
	if g.Err != nil {
		return nil, g.Err
	}
	return []byte("stub-artwork: " + prompt), nil
}
