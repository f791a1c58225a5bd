package submissions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/driftletter/driftletter/internal/common"
	"github.com/driftletter/driftletter/internal/dbx"
	"github.com/driftletter/driftletter/internal/server/models"
)

// PostgresRepository implements the token ledger over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Claim inserts the binding if the token is free, then reads back whoever
// won. Both statements are individually atomic; a concurrent claimant
// simply observes the winner's letter ID on the read.
func (r *PostgresRepository) Claim(ctx context.Context, token, letterID string) (string, error) {
	query :=
		`INSERT INTO submissions (token, letter_id)
		 VALUES ($1, $2)
		 ON CONFLICT (token) DO NOTHING
		 `

	if _, err := r.db.ExecContext(ctx, query, token, letterID); err != nil {
		return "", fmt.Errorf("db error: %w", err)
	}

	sub, err := r.Get(ctx, token)
	if err != nil {
		return "", err
	}
	return sub.LetterID, nil
}

func (r *PostgresRepository) Get(ctx context.Context, token string) (*models.Submission, error) {
	query :=
		`SELECT token, letter_id, created_at FROM submissions
		 WHERE token = $1
		 `

	sub := &models.Submission{}
	err := r.db.QueryRowContext(ctx, query, token).Scan(&sub.Token, &sub.LetterID, &sub.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return sub, nil
}
