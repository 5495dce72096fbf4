package accounts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-accounts/lock"
)

// SoftDeleteRequest asks for an account to be deactivated.
type SoftDeleteRequest struct {
	TargetID     string
	Caller       *Caller
	IsSelfDelete bool
}

// HardDeleteRequest asks for an account to be removed from the provider.
type HardDeleteRequest struct {
	TargetID string
	Caller   *Caller
}

// TransitionResult reports the outcome of a lifecycle transition.
type TransitionResult struct {
	UserID         string
	From           DeletionState
	To             DeletionState
	Profile        *Profile
	ProfileUpdated bool
}

// TransitionContext is passed into hooks.
type TransitionContext struct {
	Actor   ActorRef
	Profile *Profile
	From    DeletionState
	To      DeletionState
}

// TransitionHook runs around the provider call. A before hook error aborts
// the transition. After hook errors are logged.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// LifecycleOption customizes a LifecycleManager.
type LifecycleOption func(*LifecycleManager)

// WithLifecycleClock injects a custom clock (useful for tests).
func WithLifecycleClock(clock func() time.Time) LifecycleOption {
	return func(l *LifecycleManager) {
		if clock != nil {
			l.now = clock
		}
	}
}

// WithLifecycleActivitySink sets the ActivitySink used to publish lifecycle events.
func WithLifecycleActivitySink(sink ActivitySink) LifecycleOption {
	return func(l *LifecycleManager) {
		l.activity = normalizeActivitySink(sink)
	}
}

// WithLifecycleLocker sets the per user locker.
func WithLifecycleLocker(locker Locker) LifecycleOption {
	return func(l *LifecycleManager) {
		if locker != nil {
			l.locker = locker
		}
	}
}

// WithLifecycleLogger overrides the logger used for hook and sink failures.
func WithLifecycleLogger(logger Logger) LifecycleOption {
	return func(l *LifecycleManager) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithBeforeTransitionHook adds a hook executed before the provider call.
func WithBeforeTransitionHook(h TransitionHook) LifecycleOption {
	return func(l *LifecycleManager) {
		if h != nil {
			l.beforeHooks = append(l.beforeHooks, h)
		}
	}
}

// WithAfterTransitionHook adds a hook executed once the profile is written.
func WithAfterTransitionHook(h TransitionHook) LifecycleOption {
	return func(l *LifecycleManager) {
		if h != nil {
			l.afterHooks = append(l.afterHooks, h)
		}
	}
}

// LifecycleManager moves accounts from live to soft deleted to hard deleted.
// Profiles are never physically removed.
type LifecycleManager struct {
	provider    IdentityProvider
	profiles    ProfileStore
	locker      Locker
	activity    ActivitySink
	logger      Logger
	now         func() time.Time
	beforeHooks []TransitionHook
	afterHooks  []TransitionHook
}

// NewLifecycleManager creates a manager over provider and profiles.
func NewLifecycleManager(provider IdentityProvider, profiles ProfileStore, opts ...LifecycleOption) *LifecycleManager {
	l := &LifecycleManager{
		provider: provider,
		profiles: profiles,
		locker:   lock.NewMemory(),
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	return l
}

// SoftDelete disables the provider account and marks the profile deleted.
// Repeating it disables the account again but keeps the original deletion
// timestamp and actor.
func (l *LifecycleManager) SoftDelete(ctx context.Context, req SoftDeleteRequest) (*TransitionResult, error) {
	target := strings.TrimSpace(req.TargetID)
	if target == "" {
		return nil, ValidationError(fmt.Errorf("userId: cannot be blank"))
	}

	if err := AuthorizeSoftDelete(req.Caller, target, req.IsSelfDelete); err != nil {
		return nil, err
	}

	unlock, err := l.locker.Lock(ctx, userLockKey(target))
	if err != nil {
		return nil, err
	}
	defer unlock()

	profile, err := l.profiles.FindByUUID(ctx, target)
	if err != nil {
		return nil, err
	}

	tc := TransitionContext{
		Actor:   ActorFromCaller(req.Caller),
		Profile: profile,
		From:    profile.DeletionState(),
		To:      DeletionStateSoftDeleted,
	}

	if err := l.runBefore(ctx, tc); err != nil {
		return nil, err
	}

	if err := l.provider.DisableUser(ctx, target); err != nil {
		return nil, err
	}

	result := &TransitionResult{
		UserID:  target,
		From:    tc.From,
		To:      tc.To,
		Profile: profile,
	}

	if !profile.IsDeleted {
		now := l.now().UTC()
		status := ProfileStatusInactive
		updated, err := l.profiles.Update(ctx, profile.ID, profile.Version, ProfileUpdate{
			Status:    &status,
			IsDeleted: boolPtr(true),
			DeletedAt: timePtr(now),
			DeletedBy: stringPtr(req.Caller.Subject),
		})
		if err != nil {
			return nil, err
		}
		result.Profile = updated
		result.ProfileUpdated = true
	}

	tc.Profile = result.Profile
	l.runAfter(ctx, tc)

	recordActivity(ctx, l.activity, l.logger, l.now, ActivityEvent{
		EventType: ActivityEventSoftDeleted,
		Actor:     tc.Actor,
		UserID:    target,
		From:      tc.From,
		To:        tc.To,
		Metadata: map[string]any{
			"self_delete":     req.IsSelfDelete,
			"profile_updated": result.ProfileUpdated,
		},
	})

	return result, nil
}

// HardDelete permanently removes the provider account. The caller must be
// elevated and may not target themselves; both are checked before any
// provider call. Deletion provenance is only back filled when missing.
func (l *LifecycleManager) HardDelete(ctx context.Context, req HardDeleteRequest) (*TransitionResult, error) {
	target := strings.TrimSpace(req.TargetID)
	if target == "" {
		return nil, ValidationError(fmt.Errorf("userId: cannot be blank"))
	}

	if err := AuthorizeHardDelete(req.Caller, target); err != nil {
		return nil, err
	}

	unlock, err := l.locker.Lock(ctx, userLockKey(target))
	if err != nil {
		return nil, err
	}
	defer unlock()

	profile, err := l.profiles.FindByUUID(ctx, target)
	if err != nil {
		return nil, err
	}

	tc := TransitionContext{
		Actor:   ActorFromCaller(req.Caller),
		Profile: profile,
		From:    profile.DeletionState(),
		To:      DeletionStateHardDeleted,
	}

	if err := l.runBefore(ctx, tc); err != nil {
		return nil, err
	}

	if err := l.provider.DeleteUser(ctx, target); err != nil {
		return nil, err
	}

	result := &TransitionResult{
		UserID:  target,
		From:    tc.From,
		To:      tc.To,
		Profile: profile,
	}

	update := backfillDeletion(profile, req.Caller.Subject, l.now().UTC())
	if !update.IsZero() {
		updated, err := l.profiles.Update(ctx, profile.ID, profile.Version, update)
		if err != nil {
			return nil, err
		}
		result.Profile = updated
		result.ProfileUpdated = true
	}

	tc.Profile = result.Profile
	l.runAfter(ctx, tc)

	recordActivity(ctx, l.activity, l.logger, l.now, ActivityEvent{
		EventType: ActivityEventHardDeleted,
		Actor:     tc.Actor,
		UserID:    target,
		From:      tc.From,
		To:        tc.To,
		Metadata: map[string]any{
			"profile_updated": result.ProfileUpdated,
		},
	})

	return result, nil
}

// backfillDeletion returns the fields a hard delete still has to set.
func backfillDeletion(profile *Profile, actor string, now time.Time) ProfileUpdate {
	update := ProfileUpdate{}
	if !profile.IsDeleted {
		update.IsDeleted = boolPtr(true)
	}
	if profile.DeletedAt == nil {
		update.DeletedAt = timePtr(now)
	}
	if profile.DeletedBy == nil {
		update.DeletedBy = stringPtr(actor)
	}
	return update
}

func (l *LifecycleManager) runBefore(ctx context.Context, tc TransitionContext) error {
	for _, hook := range l.beforeHooks {
		if err := hook(ctx, tc); err != nil {
			return err
		}
	}
	return nil
}

func (l *LifecycleManager) runAfter(ctx context.Context, tc TransitionContext) {
	for _, hook := range l.afterHooks {
		if err := hook(ctx, tc); err != nil {
			l.logger.Error("after transition hook failed",
				"user_id", tc.Profile.UUID,
				"to", tc.To,
				"error", err,
			)
		}
	}
}
