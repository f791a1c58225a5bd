package letters

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

// PostgresRepository implements letter storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, letter *models.Letter) error {
	tags, err := json.Marshal(letter.Tags)
	if err != nil {
		return fmt.Errorf("tags encode error: %w", err)
	}

	query :=
		`INSERT INTO letters (id, sender_id, title, content, tags, recipient_state, date_sent)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING
		 `

	res, err := r.db.ExecContext(ctx, query,
		letter.ID, letter.SenderID, letter.Title, letter.Content, tags,
		string(letter.RecipientState), letter.DateSent)
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
		return common.ErrorAlreadyExists
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) Get(ctx context.Context, letterID string) (*models.Letter, error) {
	query :=
		`SELECT id, sender_id, title, content, tags, recipient_state, recipient_id, date_sent FROM letters
		 WHERE id = $1
		 `

	return r.scanOne(r.db.QueryRowContext(ctx, query, letterID))
}

// Assign flips a waiting letter to assigned. The state guard lives in the
// WHERE clause so the check and the write are a single atomic statement;
// zero affected rows means the letter is missing or already terminal.
func (r *PostgresRepository) Assign(ctx context.Context, letterID, recipientID string) error {
	query :=
		`UPDATE letters SET recipient_state = 'assigned', recipient_id = $2
		 WHERE id = $1 AND recipient_state = 'waiting'
		 `

	return r.transition(ctx, query, letterID, recipientID)
}

// Reject flips a waiting letter to rejected, with the same guard as Assign.
func (r *PostgresRepository) Reject(ctx context.Context, letterID string) error {
	query :=
		`UPDATE letters SET recipient_state = 'rejected'
		 WHERE id = $1 AND recipient_state = 'waiting'
		 `

	return r.transition(ctx, query, letterID)
}

func (r *PostgresRepository) transition(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
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
		// Distinguish a missing letter from one already terminal.
		letterID, _ := args[0].(string)
		if _, err := r.Get(ctx, letterID); err != nil {
			return err
		}
		return common.ErrorInvalidTransition
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) SelectWaiting(ctx context.Context) ([]*models.Letter, error) {
	query :=
		`SELECT id, sender_id, title, content, tags, recipient_state, recipient_id, date_sent FROM letters
		 WHERE recipient_state = 'waiting'
		 ORDER BY date_sent
		 `

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select letters: %w", err)
	}
	defer rows.Close()

	var result []*models.Letter
	for rows.Next() {
		item, err := scanLetter(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Letter, error) {
	letter, err := scanLetter(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return letter, nil
}

func scanLetter(scan func(dest ...any) error) (*models.Letter, error) {
	letter := &models.Letter{}
	var tags []byte
	var state string
	var recipientID sql.NullString

	if err := scan(&letter.ID, &letter.SenderID, &letter.Title, &letter.Content,
		&tags, &state, &recipientID, &letter.DateSent); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(tags, &letter.Tags); err != nil {
		return nil, fmt.Errorf("tags decode error: %w", err)
	}
	letter.RecipientState = models.RecipientState(state)
	letter.RecipientID = recipientID.String

	return letter, nil
}
