package models

import "time"

// RecipientState is the delivery state of a letter.
//
// Valid transitions are waiting→assigned and waiting→rejected; assigned
// and rejected are terminal. The pairing with Letter.RecipientID makes
// the tagged value: RecipientID is set iff the state is assigned.
type RecipientState string

const (
	// StateWaiting means the letter has not yet been assigned to
	// any recipient.
	StateWaiting RecipientState = "waiting"

	// StateAssigned means the letter was delivered to a specific user.
	StateAssigned RecipientState = "assigned"

	// StateRejected means no eligible recipient was found.
	StateRejected RecipientState = "rejected"
)

// Letter is a single sender-to-recipient text submission tracked through
// its delivery lifecycle.
type Letter struct {
	ID       string
	SenderID string
	Title    string
	Content  string

	// Tags are the letter's declared attributes (e.g. "emotion",
	// "topic") that the matcher scores against recipient preferences.
	Tags map[string]string

	RecipientState RecipientState
	RecipientID    string

	// DateSent is set once at creation and never changes.
	DateSent time.Time
}

// Terminal reports whether the letter has reached a final delivery state.
func (l *Letter) Terminal() bool {
	return l.RecipientState == StateAssigned || l.RecipientState == StateRejected
}
