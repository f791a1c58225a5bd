package models

import "time"

// Submission records the binding between a client-supplied idempotency
// token and the letter it produced. It enables safe retries: a retried
// submission with the same token resolves to the original letter instead
// of creating a duplicate.
type Submission struct {
	Token     string
	LetterID  string
	CreatedAt time.Time
}
