package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/driftletter/driftletter/internal/common"
	"github.com/driftletter/driftletter/internal/dbx"
	"github.com/driftletter/driftletter/internal/logging"
	"github.com/driftletter/driftletter/internal/server/matching"
	"github.com/driftletter/driftletter/internal/server/models"
	"github.com/driftletter/driftletter/internal/server/repositories/repomanager"
	"github.com/driftletter/driftletter/internal/server/repositories/users"
)

// SubmitRequest carries one letter submission through the coordinator.
// Token is the client-generated idempotency token; when present, retries
// with the same token resolve to the originally created letter.
type SubmitRequest struct {
	SenderID string
	Token    string
	Title    string
	Content  string
	Tags     map[string]string
}

// DeliveryService coordinates one submission end to end: register the
// sender if unknown, persist the letter in the waiting state, pick a
// recipient, and update letter and user records consistently.
//
// Step ordering is the crash discipline: the letter is created waiting
// before any other mutation, and the terminal transition plus the
// sent/received bookkeeping commit as one transaction. A crash in between
// leaves only a waiting letter, which Reconcile later finishes.
type DeliveryService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	letters     *LetterService
	usersvc     *UserService
	matcher     *matching.Matcher
	logger      logging.Logger
}

// NewDeliveryService constructs the coordinator on top of the user and
// letter services and a matcher.
func NewDeliveryService(db *sql.DB, m repomanager.RepositoryManager,
	ls *LetterService, us *UserService, matcher *matching.Matcher, logger logging.Logger) *DeliveryService {
	return &DeliveryService{
		db:          db,
		repomanager: m,
		letters:     ls,
		usersvc:     us,
		matcher:     matcher,
		logger:      logger.With("module", "delivery"),
	}
}

// Submit is the only entry point creating letters. It returns the letter
// in its final state for this attempt: assigned, rejected, or (if a store
// step failed after creation) still waiting inside the wrapped error.
func (s *DeliveryService) Submit(ctx context.Context, req SubmitRequest) (*models.Letter, error) {
	if err := s.usersvc.ValidateUserID(req.SenderID); err != nil {
		return nil, err
	}
	if err := s.letters.Validate(req.Title, req.Content); err != nil {
		return nil, err
	}

	if _, err := s.usersvc.Ensure(ctx, req.SenderID); err != nil {
		return nil, s.fail(err)
	}

	letter, err := s.createOnce(ctx, req)
	if err != nil {
		return nil, err
	}
	if letter.Terminal() {
		// A previous attempt with this token already finished.
		return letter, nil
	}

	return s.deliver(ctx, letter)
}

// createOnce creates the letter record, deduplicating by idempotency
// token. The token is bound to a letter ID before the letter row is
// written, so a crash in between leaves the token pointing at an ID the
// retry resumes with; at most one letter ever exists per token.
func (s *DeliveryService) createOnce(ctx context.Context, req SubmitRequest) (*models.Letter, error) {
	if req.Token == "" {
		letter, err := s.letters.CreateFresh(ctx, req.SenderID, req.Title, req.Content, req.Tags)
		if err != nil {
			return nil, s.fail(err)
		}
		return letter, nil
	}

	letter := s.letters.NewWaiting(req.SenderID, req.Title, req.Content, req.Tags)

	subsRepo := s.repomanager.Submissions(s.db)
	boundID, err := subsRepo.Claim(ctx, req.Token, letter.ID)
	if err != nil {
		return nil, s.fail(err)
	}

	if boundID != letter.ID {
		existing, err := s.letters.Get(ctx, boundID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, s.fail(err)
		}
		// The claim exists but its letter was never written (crash
		// between claim and create). Resume with the bound ID.
		letter.ID = boundID
	}

	if err := s.letters.Create(ctx, letter); err != nil {
		if !errors.Is(err, common.ErrorAlreadyExists) {
			return nil, s.fail(err)
		}
		// A concurrent retry of the same token got here first.
		existing, gerr := s.letters.Get(ctx, letter.ID)
		if gerr != nil {
			return nil, s.fail(gerr)
		}
		if existing.SenderID != req.SenderID {
			return nil, s.fail(fmt.Errorf("%w: letter id collision", common.ErrorInternal))
		}
		return existing, nil
	}
	return letter, nil
}

// deliver runs the match over a pool snapshot and commits the outcome.
// Safe to call repeatedly for the same letter: the state transition is
// guarded and the list appends are idempotent.
func (s *DeliveryService) deliver(ctx context.Context, letter *models.Letter) (*models.Letter, error) {
	pool, err := s.snapshotPool(ctx)
	if err != nil {
		return nil, s.fail(err)
	}

	recipientID, matched := s.matcher.Select(letter, pool)

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		lettersRepo := s.repomanager.Letters(tx)
		usersRepo := s.repomanager.Users(tx)

		if matched {
			if err := lettersRepo.Assign(ctx, letter.ID, recipientID); err != nil {
				return err
			}
			if err := usersRepo.AppendLetter(ctx, letter.SenderID, letter.ID, users.DirectionSent); err != nil {
				return err
			}
			return usersRepo.AppendLetter(ctx, recipientID, letter.ID, users.DirectionReceived)
		}

		if err := lettersRepo.Reject(ctx, letter.ID); err != nil {
			return err
		}
		return usersRepo.AppendLetter(ctx, letter.SenderID, letter.ID, users.DirectionSent)
	})

	if err != nil && !errors.Is(err, common.ErrorInvalidTransition) {
		return nil, s.fail(err)
	}
	if errors.Is(err, common.ErrorInvalidTransition) {
		// A concurrent attempt finished this letter first; its
		// transaction also covered the bookkeeping.
		s.logger.Info(ctx, "letter already finalized by concurrent attempt", "letterId", letter.ID)
	} else if matched {
		s.logger.Info(ctx, "letter assigned", "letterId", letter.ID, "recipientId", recipientID)
	} else {
		s.logger.Info(ctx, "letter rejected, no eligible recipient", "letterId", letter.ID)
	}

	final, err := s.letters.Get(ctx, letter.ID)
	if err != nil {
		return nil, s.fail(err)
	}
	return final, nil
}

// Reconcile re-runs matching for every waiting letter. It is the recovery
// path for submissions interrupted after letter creation, runs at startup
// and on a timer, and is idempotent: repeating it cannot change an
// already-terminal letter or duplicate a list entry.
func (s *DeliveryService) Reconcile(ctx context.Context) (int, error) {
	waiting, err := s.letters.Waiting(ctx)
	if err != nil {
		return 0, err
	}

	finished := 0
	for _, letter := range waiting {
		if _, err := s.deliver(ctx, letter); err != nil {
			s.logger.Error(ctx, "reconcile delivery failed", "letterId", letter.ID, "error", err.Error())
			continue
		}
		finished++
	}

	if len(waiting) > 0 {
		s.logger.Info(ctx, "reconcile pass complete", "waiting", len(waiting), "finished", finished)
	}
	return finished, nil
}

func (s *DeliveryService) snapshotPool(ctx context.Context) ([]matching.Candidate, error) {
	repo := s.repomanager.Users(s.db)

	all, err := repo.All(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := repo.ReceivedCounts(ctx)
	if err != nil {
		return nil, err
	}

	pool := make([]matching.Candidate, 0, len(all))
	for _, u := range all {
		pool = append(pool, matching.Candidate{
			ID:          u.ID,
			Preferences: u.Preferences,
			Received:    counts[u.ID],
		})
	}
	return pool, nil
}

func (s *DeliveryService) fail(err error) error {
	return fmt.Errorf("%w: %w", common.ErrorSubmissionFailed, err)
}
