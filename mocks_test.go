package accounts_test

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockIdentityProvider implements accounts.IdentityProvider
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) Name() string {
	return "mock"
}

func (m *MockIdentityProvider) ListUsers(ctx context.Context, pageToken string, limit int) (*accounts.UserPage, error) {
	args := m.Called(ctx, pageToken, limit)
	page, _ := args.Get(0).(*accounts.UserPage)
	return page, args.Error(1)
}

func (m *MockIdentityProvider) ListUserGroups(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	if fn, ok := args.Get(0).(func(context.Context, string) []string); ok {
		return fn(ctx, userID), args.Error(1)
	}
	groups, _ := args.Get(0).([]string)
	return groups, args.Error(1)
}

func (m *MockIdentityProvider) AddUserToGroup(ctx context.Context, userID, group string) error {
	return m.Called(ctx, userID, group).Error(0)
}

func (m *MockIdentityProvider) RemoveUserFromGroup(ctx context.Context, userID, group string) error {
	return m.Called(ctx, userID, group).Error(0)
}

func (m *MockIdentityProvider) DisableUser(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *MockIdentityProvider) DeleteUser(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

// memoryProfiles is an in-memory accounts.ProfileStore with the same
// version check as the bun store.
type memoryProfiles struct {
	mu       sync.Mutex
	byUUID   map[string]*accounts.Profile
	updates  int
	failWith error
}

func newMemoryProfiles(profiles ...*accounts.Profile) *memoryProfiles {
	s := &memoryProfiles{byUUID: map[string]*accounts.Profile{}}
	for _, p := range profiles {
		s.put(p)
	}
	return s
}

func (s *memoryProfiles) put(p *accounts.Profile) *accounts.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Version == 0 {
		p.Version = 1
	}
	p.EnsureStatus()
	cp := *p
	s.byUUID[p.UUID] = &cp
	return p
}

func (s *memoryProfiles) get(id string) *accounts.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byUUID[id]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

func (s *memoryProfiles) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

func (s *memoryProfiles) FindByUUID(_ context.Context, id string) (*accounts.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byUUID[id]
	if !ok {
		return nil, accounts.ProfileNotFound(id, nil)
	}
	cp := *p
	return &cp, nil
}

func (s *memoryProfiles) Update(_ context.Context, id uuid.UUID, version int64, update accounts.ProfileUpdate) (*accounts.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return nil, s.failWith
	}

	for _, p := range s.byUUID {
		if p.ID != id {
			continue
		}
		if p.Version != version {
			return nil, accounts.NewError(accounts.ErrConcurrentUpdate, nil, nil)
		}
		update.Apply(p)
		p.Version++
		p.UpdatedAt = time.Now()
		s.updates++
		cp := *p
		return &cp, nil
	}
	return nil, accounts.ProfileNotFound(id.String(), nil)
}

type recordingSink struct {
	mu     sync.Mutex
	events []accounts.ActivityEvent
}

func (r *recordingSink) Record(_ context.Context, event accounts.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingSink) Events() []accounts.ActivityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]accounts.ActivityEvent(nil), r.events...)
}
