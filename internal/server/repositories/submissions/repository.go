// Package submissions provides the idempotency-token ledger used to
// deduplicate retried letter submissions.
package submissions

import (
	"context"

	"github.com/driftletter/driftletter/internal/server/models"
)

type Repository interface {
	// Claim atomically binds the token to letterID if the token is
	// unclaimed, and returns the bound letter ID either way. The caller
	// compares the result with its own letter ID to learn whether it
	// won the claim.
	Claim(ctx context.Context, token, letterID string) (string, error)

	// Get returns the submission record or common.ErrorNotFound.
	Get(ctx context.Context, token string) (*models.Submission, error)
}
