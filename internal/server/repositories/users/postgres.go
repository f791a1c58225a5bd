package users

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/driftletter/driftletter/internal/common"
	"github.com/driftletter/driftletter/internal/dbx"
	"github.com/driftletter/driftletter/internal/server/models"
)

// PostgresRepository implements user storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Ensure inserts the user if absent and returns the stored record. The
// insert-if-absent and the read are each atomic, so concurrent Ensure
// calls for the same ID converge on a single row.
func (r *PostgresRepository) Ensure(ctx context.Context, userID string) (*models.User, error) {

	query :=
		`INSERT INTO users (id, preferences)
		 VALUES ($1, '{}')
		 ON CONFLICT (id) DO NOTHING
		 `

	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return r.Get(ctx, userID)
}

func (r *PostgresRepository) Get(ctx context.Context, userID string) (*models.User, error) {
	query :=
		`SELECT id, preferences, created_at FROM users
		 WHERE id = $1
		 `

	user := &models.User{}
	var prefs []byte
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&user.ID, &prefs, &user.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if err := json.Unmarshal(prefs, &user.Preferences); err != nil {
		return nil, fmt.Errorf("preferences decode error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) Exists(ctx context.Context, userID string) (bool, error) {
	query :=
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)
		 `

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return exists, nil
}

func (r *PostgresRepository) All(ctx context.Context) ([]*models.User, error) {
	query :=
		`SELECT id, preferences, created_at FROM users
		 ORDER BY id
		 `

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select users: %w", err)
	}
	defer rows.Close()

	var result []*models.User
	for rows.Next() {
		var item models.User
		var prefs []byte
		if err := rows.Scan(&item.ID, &prefs, &item.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(prefs, &item.Preferences); err != nil {
			return nil, fmt.Errorf("preferences decode error: %w", err)
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SetPreferences replaces the stored preference set. Returns
// common.ErrorNotFound when no row was updated.
func (r *PostgresRepository) SetPreferences(ctx context.Context, userID string, prefs models.Preferences) error {
	encoded, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("preferences encode error: %w", err)
	}

	query :=
		`UPDATE users SET preferences = $2
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, userID, encoded)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// AppendLetter appends an entry to the user's sent/received list. The
// composite key makes duplicate appends a no-op, so concurrent retries
// never lose or double-count an entry.
func (r *PostgresRepository) AppendLetter(ctx context.Context, userID, letterID string, dir Direction) error {
	query :=
		`INSERT INTO user_letters (user_id, letter_id, direction)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, letter_id, direction) DO NOTHING
		 `

	if _, err := r.db.ExecContext(ctx, query, userID, letterID, string(dir)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) LetterIDs(ctx context.Context, userID string, dir Direction) ([]string, error) {
	query :=
		`SELECT letter_id FROM user_letters
		 WHERE user_id = $1 AND direction = $2
		 ORDER BY seq
		 `

	rows, err := r.db.QueryContext(ctx, query, userID, string(dir))
	if err != nil {
		return nil, fmt.Errorf("failed to select letter ids: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) ReceivedCounts(ctx context.Context) (map[string]int64, error) {
	query :=
		`SELECT user_id, count(*) FROM user_letters
		 WHERE direction = 'received'
		 GROUP BY user_id
		 `

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select received counts: %w", err)
	}
	defer rows.Close()

	result := make(map[string]int64)
	for rows.Next() {
		var id string
		var n int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		result[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
