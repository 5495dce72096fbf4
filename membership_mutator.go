package accounts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-accounts/lock"
)

// StatusResult describes what SetStatus changed.
type StatusResult struct {
	UserID  string
	Added   []Group
	Removed []Group
	Profile *Profile
}

// Changed reports whether any provider group was mutated.
func (r *StatusResult) Changed() bool {
	return r != nil && (len(r.Added) > 0 || len(r.Removed) > 0)
}

// MembershipMutatorOption customizes a MembershipMutator.
type MembershipMutatorOption func(*MembershipMutator)

func WithMutatorGroupNames(names GroupNames) MembershipMutatorOption {
	return func(m *MembershipMutator) {
		m.groups = names.orDefault()
	}
}

func WithMutatorLocker(locker Locker) MembershipMutatorOption {
	return func(m *MembershipMutator) {
		if locker != nil {
			m.locker = locker
		}
	}
}

func WithMutatorActivitySink(sink ActivitySink) MembershipMutatorOption {
	return func(m *MembershipMutator) {
		m.activity = normalizeActivitySink(sink)
	}
}

func WithMutatorLogger(logger Logger) MembershipMutatorOption {
	return func(m *MembershipMutator) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithMutatorClock(clock func() time.Time) MembershipMutatorOption {
	return func(m *MembershipMutator) {
		if clock != nil {
			m.now = clock
		}
	}
}

// MembershipMutator sets a single user's admin and developer membership in
// the provider and mirrors it onto the profile.
type MembershipMutator struct {
	provider IdentityProvider
	profiles ProfileStore
	groups   GroupNames
	locker   Locker
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

// NewMembershipMutator creates a mutator over provider and profiles.
func NewMembershipMutator(provider IdentityProvider, profiles ProfileStore, opts ...MembershipMutatorOption) *MembershipMutator {
	m := &MembershipMutator{
		provider: provider,
		profiles: profiles,
		groups:   DefaultGroupNames(),
		locker:   lock.NewMemory(),
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

// SetStatus converges provider membership to the requested flags, issuing at
// most one add or remove per group, then overwrites the profile flags.
// Calling it again with the same flags issues no group mutation.
func (m *MembershipMutator) SetStatus(ctx context.Context, userID string, isAdmin, isDeveloper bool) (*StatusResult, error) {
	return m.setStatus(ctx, nil, userID, Membership{IsAdmin: isAdmin, IsDeveloper: isDeveloper})
}

// SetStatusAs runs SetStatus on behalf of caller, refusing changes to the
// caller's own flags.
func (m *MembershipMutator) SetStatusAs(ctx context.Context, caller *Caller, userID string, isAdmin, isDeveloper bool) (*StatusResult, error) {
	if err := AuthorizeStatusChange(caller, userID); err != nil {
		return nil, err
	}
	return m.setStatus(ctx, caller, userID, Membership{IsAdmin: isAdmin, IsDeveloper: isDeveloper})
}

func (m *MembershipMutator) setStatus(ctx context.Context, caller *Caller, userID string, desired Membership) (*StatusResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ValidationError(fmt.Errorf("userId: cannot be blank"))
	}

	unlock, err := m.locker.Lock(ctx, userLockKey(userID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	names, err := m.provider.ListUserGroups(ctx, userID)
	if err != nil {
		return nil, err
	}
	current := m.groups.Resolve(names)

	result := &StatusResult{UserID: userID}
	for _, group := range Groups() {
		want, have := desired.Has(group), current.Has(group)
		switch {
		case want && !have:
			if err := m.provider.AddUserToGroup(ctx, userID, m.groups.Name(group)); err != nil {
				return nil, err
			}
			result.Added = append(result.Added, group)
		case !want && have:
			if err := m.provider.RemoveUserFromGroup(ctx, userID, m.groups.Name(group)); err != nil {
				return nil, err
			}
			result.Removed = append(result.Removed, group)
		}
	}

	profile, err := m.profiles.FindByUUID(ctx, userID)
	if err != nil {
		return nil, err
	}

	updated, err := m.profiles.Update(ctx, profile.ID, profile.Version, ProfileUpdate{
		IsAdmin:     boolPtr(desired.IsAdmin),
		IsDeveloper: boolPtr(desired.IsDeveloper),
	})
	if err != nil {
		return nil, err
	}
	result.Profile = updated

	if result.Changed() {
		recordActivity(ctx, m.activity, m.logger, m.now, ActivityEvent{
			EventType: ActivityEventMembershipChanged,
			Actor:     ActorFromCaller(caller),
			UserID:    userID,
			Metadata: map[string]any{
				"added":        result.Added,
				"removed":      result.Removed,
				"is_admin":     desired.IsAdmin,
				"is_developer": desired.IsDeveloper,
			},
		})
	}

	return result, nil
}
