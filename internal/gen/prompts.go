package gen

import (
	"fmt"
	"strings"
)

// maxExistingFronts caps how much deck content is echoed into the prompt.
const maxExistingFronts = 200

func buildCandidatePrompt(req CandidateRequest) string {
	existing := req.ExistingFronts
	if len(existing) > maxExistingFronts {
		existing = existing[:maxExistingFronts]
	}
	return fmt.Sprintf(`You are a flashcard author. Propose %d new cards for the deck "%s".

Deck context: %s

Output ONLY a valid JSON array with this exact structure (no markdown, no explanation):
[{"front": "...", "back": "...", "item_type": "...", "artwork_prompt": "...", "context": "...", "category": "..."}]

Rules:
- front: the prompt side, short and unambiguous
- back: the answer side
- item_type: a short kind label such as "vocab", "fact" or "concept"
- artwork_prompt: a concrete visual description suitable for an image generator; REQUIRED for every card
- context: one sentence on why this card fits the deck
- category: a single-word topic bucket
- Never repeat any of the existing card fronts listed below

Existing card fronts:
%s`, req.Count, req.DeckName, req.DeckContext, strings.Join(existing, "\n"))
}
