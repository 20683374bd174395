// Package toxicity implements the toxicity analysis plug-point named in
// spec §9's design notes: a small heuristic word-count scorer behind a
// narrow interface, so a real classifier can be substituted later without
// touching callers.
package toxicity

import "strings"

// Scorer scores text for toxicity in [0,1].
type Scorer interface {
	Score(text string) float64
}

// HeuristicScorer counts occurrences of a small closed word list. It is
// intentionally simple; a production deployment would swap in a trained
// classifier behind the same Scorer interface.
type HeuristicScorer struct {
	words []string
}

var defaultWords = []string{
	"idiot", "stupid", "hate", "kill", "worthless", "shut up", "dumb",
}

func NewHeuristicScorer() *HeuristicScorer {
	return &HeuristicScorer{words: defaultWords}
}

func (h *HeuristicScorer) Score(text string) float64 {
	lower := strings.ToLower(text)
	hits := 0
	for _, w := range h.words {
		hits += strings.Count(lower, w)
	}
	if hits == 0 {
		return 0
	}
	score := 0.3 + 0.15*float64(hits)
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// Result is the contract output for the /toxicity/analyze endpoint.
type Result struct {
	Score   float64 `json:"score"`
	IsToxic bool    `json:"is_toxic"`
}

// Analyze scores text with s and applies threshold to produce IsToxic.
func Analyze(s Scorer, text string, threshold float64) Result {
	score := s.Score(text)
	return Result{Score: score, IsToxic: score >= threshold}
}
