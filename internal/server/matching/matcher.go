// Package matching selects a recipient for a newly submitted letter.
//
// Selection is a pure function over snapshots passed in by the caller: it
// performs no I/O and holds no locks, so policies can be unit-tested
// against constructed pools.
package matching

import (
	"github.com/driftletter/driftletter/internal/server/models"
)

// Candidate is one registered user considered for delivery.
type Candidate struct {
	ID          string
	Preferences models.Preferences

	// Received is the candidate's received-letter count, used as the
	// primary tie-break to spread load across equally scored recipients.
	Received int64
}

// Scorer is the pluggable matching policy. The exact business rules for
// pairing letters with readers are a product decision; the engine only
// requires that Exclude and Score are deterministic for a given input.
type Scorer interface {
	// Exclude reports a hard veto: the candidate must never receive
	// this letter.
	Exclude(letter *models.Letter, c Candidate) bool

	// Score rates how well the letter fits the candidate's stated
	// preferences. Higher is better.
	Score(letter *models.Letter, c Candidate) int
}

// Matcher chooses recipients using a Scorer.
type Matcher struct {
	scorer Scorer
}

// New builds a Matcher. A nil scorer selects the default policy.
func New(scorer Scorer) *Matcher {
	if scorer == nil {
		scorer = DefaultScorer{}
	}
	return &Matcher{scorer: scorer}
}

// Select picks the recipient for letter from pool, excluding the sender
// and hard-vetoed candidates. It returns false when nobody is eligible.
//
// Among the highest-scoring candidates the winner is the one with the
// fewest received letters, then the lexicographically smallest ID, so the
// same input state always yields the same choice.
func (m *Matcher) Select(letter *models.Letter, pool []Candidate) (string, bool) {
	var best Candidate
	bestScore := 0
	found := false

	for _, c := range pool {
		if c.ID == letter.SenderID {
			continue
		}
		if m.scorer.Exclude(letter, c) {
			continue
		}

		score := m.scorer.Score(letter, c)
		if !found || score > bestScore || (score == bestScore && lessLoaded(c, best)) {
			best = c
			bestScore = score
			found = true
		}
	}

	if !found {
		return "", false
	}
	return best.ID, true
}

func lessLoaded(a, b Candidate) bool {
	if a.Received != b.Received {
		return a.Received < b.Received
	}
	return a.ID < b.ID
}
