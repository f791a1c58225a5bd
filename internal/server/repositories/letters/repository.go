// Package letters provides persistence for letter records and their
// guarded delivery-state transitions.
package letters

import (
	"context"

	"github.com/driftletter/driftletter/internal/server/models"
)

type Repository interface {
	// Create persists a new letter exactly as given. Returns
	// common.ErrorAlreadyExists if the ID is taken; callers retry with
	// a fresh ID.
	Create(ctx context.Context, letter *models.Letter) error

	// Get returns the letter or common.ErrorNotFound.
	Get(ctx context.Context, letterID string) (*models.Letter, error)

	// Assign transitions waiting→assigned(recipientID). Any letter not
	// currently waiting yields common.ErrorInvalidTransition, which
	// guards against double assignment under races.
	Assign(ctx context.Context, letterID, recipientID string) error

	// Reject transitions waiting→rejected, same guard as Assign.
	Reject(ctx context.Context, letterID string) error

	// SelectWaiting returns all letters still waiting for a recipient,
	// oldest first. Used by the reconciliation pass.
	SelectWaiting(ctx context.Context) ([]*models.Letter, error)
}
