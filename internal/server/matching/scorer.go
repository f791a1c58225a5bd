package matching

import "github.com/driftletter/driftletter/internal/server/models"

// Tag keys recognized by the default policy.
const (
	TagEmotion = "emotion"
	TagTopic   = "topic"
)

// customExcludePrefix lets clients express exclusions through the
// preference overflow bag, e.g. {"exclude:politics": "true"}.
const customExcludePrefix = "exclude:"

// DefaultScorer is the built-in matching policy.
//
// Hard exclusions: a letter whose "topic" tag appears in the candidate's
// ExcludeTopics (or as an exclude:<topic> custom key) is vetoed.
// Soft affinity: a candidate whose preferred emotion equals the letter's
// "emotion" tag scores above candidates with no stated preference;
// a candidate preferring a different emotion scores below them.
type DefaultScorer struct{}

func (DefaultScorer) Exclude(letter *models.Letter, c Candidate) bool {
	topic := letter.Tags[TagTopic]
	if topic == "" {
		return false
	}
	for _, t := range c.Preferences.ExcludeTopics {
		if t == topic {
			return true
		}
	}
	if v, ok := c.Preferences.Custom[customExcludePrefix+topic]; ok && v != "false" {
		return true
	}
	return false
}

func (DefaultScorer) Score(letter *models.Letter, c Candidate) int {
	want := c.Preferences.Emotion
	if want == "" {
		return 0
	}
	if want == letter.Tags[TagEmotion] {
		return 1
	}
	return -1
}
