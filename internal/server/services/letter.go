package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/driftletter/driftletter/internal/common"
	"github.com/driftletter/driftletter/internal/server/config"
	"github.com/driftletter/driftletter/internal/server/models"
	"github.com/driftletter/driftletter/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// createAttempts bounds ID regeneration on the astronomically unlikely
// collision of two random 128-bit identifiers.
const createAttempts = 3

// LetterService is the ledger surface: it validates submission content,
// mints letter records in the waiting state, and exposes reads.
type LetterService struct {
	db              *sql.DB
	repomanager     repomanager.RepositoryManager
	maxTitleBytes   int
	maxContentBytes int
}

// NewLetterService constructs a LetterService using repositories and server config.
func NewLetterService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *LetterService {
	return &LetterService{
		db:              db,
		repomanager:     m,
		maxTitleBytes:   cfg.MaxTitleBytes,
		maxContentBytes: cfg.MaxContentBytes,
	}
}

// Validate checks submission content against the configured size bounds.
// Content beyond the checks stays opaque to the server.
func (s *LetterService) Validate(title, content string) error {
	if content == "" {
		return fmt.Errorf("%w: empty content", common.ErrorInvalidInput)
	}
	if len(title) > s.maxTitleBytes {
		return fmt.Errorf("%w: title exceeds %d bytes", common.ErrorInvalidInput, s.maxTitleBytes)
	}
	if len(content) > s.maxContentBytes {
		return fmt.Errorf("%w: content exceeds %d bytes", common.ErrorInvalidInput, s.maxContentBytes)
	}
	return nil
}

// NewWaiting builds an unpersisted letter record with a fresh random ID,
// the waiting state, and the creation timestamp. DateSent is set here
// exactly once.
func (s *LetterService) NewWaiting(senderID, title, content string, tags map[string]string) *models.Letter {
	if tags == nil {
		tags = map[string]string{}
	}
	return &models.Letter{
		ID:             uuid.NewString(),
		SenderID:       senderID,
		Title:          title,
		Content:        content,
		Tags:           tags,
		RecipientState: models.StateWaiting,
		DateSent:       time.Now(),
	}
}

// Create persists the letter exactly as built. Callers that pinned the ID
// (idempotency resume) handle common.ErrorAlreadyExists themselves.
func (s *LetterService) Create(ctx context.Context, letter *models.Letter) error {
	repo := s.repomanager.Letters(s.db)
	if err := repo.Create(ctx, letter); err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return err
		}
		return fmt.Errorf("error creating letter: %w", err)
	}
	return nil
}

// CreateFresh validates and persists a brand-new letter, regenerating the
// ID on a collision.
func (s *LetterService) CreateFresh(ctx context.Context, senderID, title, content string, tags map[string]string) (*models.Letter, error) {
	if err := s.Validate(title, content); err != nil {
		return nil, err
	}

	letter := s.NewWaiting(senderID, title, content, tags)
	for attempt := 0; ; attempt++ {
		err := s.Create(ctx, letter)
		if err == nil {
			return letter, nil
		}
		if !errors.Is(err, common.ErrorAlreadyExists) || attempt+1 >= createAttempts {
			return nil, fmt.Errorf("error creating letter: %w", err)
		}
		letter.ID = uuid.NewString()
	}
}

// Get returns the letter or common.ErrorNotFound.
func (s *LetterService) Get(ctx context.Context, letterID string) (*models.Letter, error) {
	repo := s.repomanager.Letters(s.db)
	return repo.Get(ctx, letterID)
}

// Waiting lists letters still awaiting a recipient, oldest first.
func (s *LetterService) Waiting(ctx context.Context) ([]*models.Letter, error) {
	repo := s.repomanager.Letters(s.db)
	waiting, err := repo.SelectWaiting(ctx)
	if err != nil {
		return nil, fmt.Errorf("error selecting waiting letters: %w", err)
	}
	return waiting, nil
}
