// Package services contains server-side business logic. This file
// implements UserService: registration on first contact, the side-effect
// free existence check, preference management, and letter history reads.
package services

import (
	"database/sql"
	"fmt"

	"context"

	"github.com/driftletter/driftletter/internal/common"
	"github.com/driftletter/driftletter/internal/server/config"
	"github.com/driftletter/driftletter/internal/server/models"
	"github.com/driftletter/driftletter/internal/server/repositories/repomanager"
	"github.com/driftletter/driftletter/internal/server/repositories/users"
)

// UserService manages pseudonymous user records keyed by the opaque
// client-issued ID.
type UserService struct {
	db             *sql.DB
	repomanager    repomanager.RepositoryManager
	maxUserIDBytes int
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *UserService {
	return &UserService{
		db:             db,
		repomanager:    m,
		maxUserIDBytes: cfg.MaxUserIDBytes,
	}
}

// ValidateUserID checks the only two things the server assumes about
// client-issued IDs: non-emptiness and the length bound.
func (s *UserService) ValidateUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: empty user id", common.ErrorInvalidInput)
	}
	if len(userID) > s.maxUserIDBytes {
		return fmt.Errorf("%w: user id exceeds %d bytes", common.ErrorInvalidInput, s.maxUserIDBytes)
	}
	return nil
}

// Ensure registers the user if unknown and returns the record. New users
// start with empty preferences and empty letter lists. Idempotent.
func (s *UserService) Ensure(ctx context.Context, userID string) (*models.User, error) {
	if err := s.ValidateUserID(userID); err != nil {
		return nil, err
	}
	repo := s.repomanager.Users(s.db)
	u, err := repo.Ensure(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error ensuring user: %w", err)
	}
	return u, nil
}

// Exists reports whether the user is registered. It never creates a
// record; the client startup identity check depends on that.
func (s *UserService) Exists(ctx context.Context, userID string) (bool, error) {
	if err := s.ValidateUserID(userID); err != nil {
		return false, err
	}
	repo := s.repomanager.Users(s.db)
	exists, err := repo.Exists(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("error checking user: %w", err)
	}
	return exists, nil
}

// GetPreferences returns the user's stored preference set, or
// common.ErrorNotFound for unknown users.
func (s *UserService) GetPreferences(ctx context.Context, userID string) (models.Preferences, error) {
	if err := s.ValidateUserID(userID); err != nil {
		return models.Preferences{}, err
	}
	repo := s.repomanager.Users(s.db)
	u, err := repo.Get(ctx, userID)
	if err != nil {
		return models.Preferences{}, err
	}
	return u.Preferences, nil
}

// SetPreferences replaces the preference set, registering the user first
// if needed.
func (s *UserService) SetPreferences(ctx context.Context, userID string, prefs models.Preferences) error {
	if err := s.ValidateUserID(userID); err != nil {
		return err
	}
	repo := s.repomanager.Users(s.db)
	if _, err := repo.Ensure(ctx, userID); err != nil {
		return fmt.Errorf("error ensuring user: %w", err)
	}
	if err := repo.SetPreferences(ctx, userID, prefs); err != nil {
		return fmt.Errorf("error saving preferences: %w", err)
	}
	return nil
}

// SentLetterIDs returns the IDs of letters the user sent, in send order.
func (s *UserService) SentLetterIDs(ctx context.Context, userID string) ([]string, error) {
	return s.letterIDs(ctx, userID, users.DirectionSent)
}

// ReceivedLetterIDs returns the IDs of letters delivered to the user, in
// delivery order.
func (s *UserService) ReceivedLetterIDs(ctx context.Context, userID string) ([]string, error) {
	return s.letterIDs(ctx, userID, users.DirectionReceived)
}

func (s *UserService) letterIDs(ctx context.Context, userID string, dir users.Direction) ([]string, error) {
	if err := s.ValidateUserID(userID); err != nil {
		return nil, err
	}
	repo := s.repomanager.Users(s.db)
	exists, err := repo.Exists(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error checking user: %w", err)
	}
	if !exists {
		return nil, common.ErrorNotFound
	}
	ids, err := repo.LetterIDs(ctx, userID, dir)
	if err != nil {
		return nil, fmt.Errorf("error reading letter ids: %w", err)
	}
	return ids, nil
}
