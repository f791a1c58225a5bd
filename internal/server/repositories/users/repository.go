// Package users provides persistence for pseudonymous user records:
// get-or-create registration, preference storage, and the append-only
// sent/received letter lists.
package users

import (
	"context"

	"github.com/driftletter/driftletter/internal/server/models"
)

// Direction tells which of a user's letter lists an entry belongs to.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

type Repository interface {
	// Ensure registers the user if absent and returns the stored record.
	// Existing records are returned unchanged. Idempotent.
	Ensure(ctx context.Context, userID string) (*models.User, error)

	// Get returns the user or common.ErrorNotFound.
	Get(ctx context.Context, userID string) (*models.User, error)

	// Exists reports presence without creating anything.
	Exists(ctx context.Context, userID string) (bool, error)

	// All returns a snapshot of every registered user.
	All(ctx context.Context) ([]*models.User, error)

	// SetPreferences replaces the user's preference set.
	// Returns common.ErrorNotFound for unknown users.
	SetPreferences(ctx context.Context, userID string, prefs models.Preferences) error

	// AppendLetter appends letterID to the user's sent or received list.
	// Appending an already-present ID is a no-op, which makes retries safe.
	AppendLetter(ctx context.Context, userID, letterID string, dir Direction) error

	// LetterIDs returns the user's sent or received letter IDs in
	// append order.
	LetterIDs(ctx context.Context, userID string, dir Direction) ([]string, error)

	// ReceivedCounts returns the number of received letters per user,
	// used by the matcher's load-balancing tie-break. Users with no
	// received letters may be absent from the map.
	ReceivedCounts(ctx context.Context) (map[string]int64, error)
}
