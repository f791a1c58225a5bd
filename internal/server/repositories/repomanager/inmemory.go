package repomanager

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/driftletter/driftletter/internal/common"
	"github.com/driftletter/driftletter/internal/dbx"
	"github.com/driftletter/driftletter/internal/server/models"
	"github.com/driftletter/driftletter/internal/server/repositories/letters"
	"github.com/driftletter/driftletter/internal/server/repositories/submissions"
	"github.com/driftletter/driftletter/internal/server/repositories/users"
)

// InMemoryRepositoryManager keeps all records in process memory behind a
// single mutex, which trivially linearizes per-key operations. It backs
// tests and DSN-less development runs; nothing survives a restart.
type InMemoryRepositoryManager struct {
	store *memoryStore
}

// NewInMemoryRepositoryManager constructs an empty in-memory manager.
func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{store: newMemoryStore()}
}

func (m *InMemoryRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	return nil
}

// The DBTX argument is accepted for interface compatibility and ignored;
// all vended repositories share the manager's store.
func (m *InMemoryRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return &memoryUsers{store: m.store}
}

func (m *InMemoryRepositoryManager) Letters(db dbx.DBTX) letters.Repository {
	return &memoryLetters{store: m.store}
}

func (m *InMemoryRepositoryManager) Submissions(db dbx.DBTX) submissions.Repository {
	return &memorySubmissions{store: m.store}
}

type listEntry struct {
	letterID  string
	direction users.Direction
}

type memoryStore struct {
	mu          sync.Mutex
	users       map[string]models.User
	userLetters map[string][]listEntry
	letters     map[string]models.Letter
	submissions map[string]models.Submission
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:       make(map[string]models.User),
		userLetters: make(map[string][]listEntry),
		letters:     make(map[string]models.Letter),
		submissions: make(map[string]models.Submission),
	}
}

// --- users ---

type memoryUsers struct {
	store *memoryStore
}

func (r *memoryUsers) Ensure(ctx context.Context, userID string) (*models.User, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		u = models.User{ID: userID, CreatedAt: time.Now()}
		s.users[userID] = u
	}
	return copyUser(u), nil
}

func (r *memoryUsers) Get(ctx context.Context, userID string) (*models.User, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return copyUser(u), nil
}

func (r *memoryUsers) Exists(ctx context.Context, userID string) (bool, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.users[userID]
	return ok, nil
}

func (r *memoryUsers) All(ctx context.Context) ([]*models.User, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		result = append(result, copyUser(u))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *memoryUsers) SetPreferences(ctx context.Context, userID string, prefs models.Preferences) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return common.ErrorNotFound
	}
	u.Preferences = prefs
	s.users[userID] = u
	return nil
}

func (r *memoryUsers) AppendLetter(ctx context.Context, userID, letterID string, dir users.Direction) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.userLetters[userID] {
		if e.letterID == letterID && e.direction == dir {
			return nil
		}
	}
	s.userLetters[userID] = append(s.userLetters[userID], listEntry{letterID: letterID, direction: dir})
	return nil
}

func (r *memoryUsers) LetterIDs(ctx context.Context, userID string, dir users.Direction) ([]string, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []string
	for _, e := range s.userLetters[userID] {
		if e.direction == dir {
			result = append(result, e.letterID)
		}
	}
	return result, nil
}

func (r *memoryUsers) ReceivedCounts(ctx context.Context) (map[string]int64, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make(map[string]int64)
	for userID, entries := range s.userLetters {
		for _, e := range entries {
			if e.direction == users.DirectionReceived {
				result[userID]++
			}
		}
	}
	return result, nil
}

// --- letters ---

type memoryLetters struct {
	store *memoryStore
}

func (r *memoryLetters) Create(ctx context.Context, letter *models.Letter) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.letters[letter.ID]; ok {
		return common.ErrorAlreadyExists
	}
	s.letters[letter.ID] = *copyLetter(*letter)
	return nil
}

func (r *memoryLetters) Get(ctx context.Context, letterID string) (*models.Letter, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.letters[letterID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return copyLetter(l), nil
}

func (r *memoryLetters) Assign(ctx context.Context, letterID, recipientID string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.letters[letterID]
	if !ok {
		return common.ErrorNotFound
	}
	if l.RecipientState != models.StateWaiting {
		return common.ErrorInvalidTransition
	}
	l.RecipientState = models.StateAssigned
	l.RecipientID = recipientID
	s.letters[letterID] = l
	return nil
}

func (r *memoryLetters) Reject(ctx context.Context, letterID string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.letters[letterID]
	if !ok {
		return common.ErrorNotFound
	}
	if l.RecipientState != models.StateWaiting {
		return common.ErrorInvalidTransition
	}
	l.RecipientState = models.StateRejected
	s.letters[letterID] = l
	return nil
}

func (r *memoryLetters) SelectWaiting(ctx context.Context) ([]*models.Letter, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.Letter
	for _, l := range s.letters {
		if l.RecipientState == models.StateWaiting {
			result = append(result, copyLetter(l))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].DateSent.Equal(result[j].DateSent) {
			return result[i].ID < result[j].ID
		}
		return result[i].DateSent.Before(result[j].DateSent)
	})
	return result, nil
}

// --- submissions ---

type memorySubmissions struct {
	store *memoryStore
}

func (r *memorySubmissions) Claim(ctx context.Context, token, letterID string) (string, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub, ok := s.submissions[token]; ok {
		return sub.LetterID, nil
	}
	s.submissions[token] = models.Submission{Token: token, LetterID: letterID, CreatedAt: time.Now()}
	return letterID, nil
}

func (r *memorySubmissions) Get(ctx context.Context, token string) (*models.Submission, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.submissions[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	out := sub
	return &out, nil
}

// --- copy helpers (records never alias store memory) ---

func copyUser(u models.User) *models.User {
	out := u
	out.Preferences = copyPreferences(u.Preferences)
	return &out
}

func copyPreferences(p models.Preferences) models.Preferences {
	out := p
	if p.ExcludeTopics != nil {
		out.ExcludeTopics = append([]string(nil), p.ExcludeTopics...)
	}
	if p.Custom != nil {
		out.Custom = make(map[string]string, len(p.Custom))
		for k, v := range p.Custom {
			out.Custom[k] = v
		}
	}
	return out
}

func copyLetter(l models.Letter) *models.Letter {
	out := l
	if l.Tags != nil {
		out.Tags = make(map[string]string, len(l.Tags))
		for k, v := range l.Tags {
			out.Tags[k] = v
		}
	}
	return &out
}
