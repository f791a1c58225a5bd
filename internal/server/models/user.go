package models

import "time"

// Preferences is the typed view of a user's matching preferences.
// Recognized keys get dedicated fields; anything else the client sends
// rides in Custom and is ignored by the default matching policy.
type Preferences struct {
	// Emotion is the tone the user would like to receive, matched
	// softly against a letter's "emotion" tag.
	Emotion string `json:"emotion,omitempty"`

	// ExcludeTopics lists topics the user refuses to receive. A letter
	// whose "topic" tag is listed here is never delivered to this user.
	ExcludeTopics []string `json:"exclude_topics,omitempty"`

	// Custom is the overflow bag for client-side extensibility.
	Custom map[string]string `json:"custom,omitempty"`
}

// User is a pseudonymous participant, keyed by an opaque client-issued ID.
// The ID is treated as untrusted but stable; no format is assumed beyond
// non-emptiness and a length bound.
type User struct {
	ID          string
	Preferences Preferences
	CreatedAt   time.Time
}
