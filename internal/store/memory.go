// internal/store/memory.go
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"visa-tracker/internal/models"
)

// MemoryStore is a mutex-guarded in-memory Store. It backs tests and local
// development; the insertion-order slice mirrors what the Postgres store
// offers through its serial primary key.
type MemoryStore struct {
	mu sync.Mutex

	applications map[string]*models.Application // keyed by user ID
	appOrder     []string                       // user IDs in insertion order
	users        map[string]*models.User        // keyed by user ID

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		applications: make(map[string]*models.Application),
		users:        make(map[string]*models.User),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the store's time source. Test hook.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) SaveApplication(_ context.Context, app *models.Application) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stored := *app
	if stored.Status == "" {
		stored.Status = models.StatusPending
	}

	if existing, ok := s.applications[app.UserID]; ok {
		// Overwrite in place: identity and creation time survive the update.
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
		if !now.After(existing.UpdatedAt) {
			now = existing.UpdatedAt.Add(time.Nanosecond)
		}
		stored.UpdatedAt = now
		s.applications[app.UserID] = &stored
		out := stored
		return &out, nil
	}

	stored.ID = uuid.New().String()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.applications[app.UserID] = &stored
	s.appOrder = append(s.appOrder, app.UserID)
	out := stored
	return &out, nil
}

func (s *MemoryStore) FindApplicationByUserID(_ context.Context, userID string) (*models.Application, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.applications[userID]
	if !ok {
		return nil, false, nil
	}
	out := *app
	return &out, true, nil
}

func (s *MemoryStore) GetApplications(_ context.Context) ([]models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Application, 0, len(s.appOrder))
	for _, userID := range s.appOrder {
		out = append(out, *s.applications[userID])
	}
	return out, nil
}

func (s *MemoryStore) SaveUser(_ context.Context, user *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *user
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	if stored.Role == "" {
		stored.Role = models.RoleUser
	}
	s.users[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (s *MemoryStore) FindUserByID(_ context.Context, id string) (*models.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, false, nil
	}
	out := *user
	return &out, true, nil
}

func (s *MemoryStore) FindUserByEmail(_ context.Context, email string) (*models.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Exact match, case preserved.
	for _, user := range s.users {
		if user.Email == email {
			out := *user
			return &out, true, nil
		}
	}
	return nil, false, nil
}
