package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-accounts/lock"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSyncPageSize    = 60
	DefaultSyncConcurrency = 4
)

// GroupReconcilerOption customizes a GroupReconciler.
type GroupReconcilerOption func(*GroupReconciler)

// WithReconcilerPageSize sets how many users are listed per page.
func WithReconcilerPageSize(size int) GroupReconcilerOption {
	return func(r *GroupReconciler) {
		if size > 0 {
			r.pageSize = size
		}
	}
}

// WithReconcilerConcurrency bounds how many users of a page are reconciled at once.
func WithReconcilerConcurrency(n int) GroupReconcilerOption {
	return func(r *GroupReconciler) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithReconcilerGroupNames overrides the provider group names.
func WithReconcilerGroupNames(names GroupNames) GroupReconcilerOption {
	return func(r *GroupReconciler) {
		r.groups = names.orDefault()
	}
}

// WithReconcilerLocker sets the per user locker.
func WithReconcilerLocker(locker Locker) GroupReconcilerOption {
	return func(r *GroupReconciler) {
		if locker != nil {
			r.locker = locker
		}
	}
}

// WithReconcilerActivitySink sets the sink notified when a run completes.
func WithReconcilerActivitySink(sink ActivitySink) GroupReconcilerOption {
	return func(r *GroupReconciler) {
		r.activity = normalizeActivitySink(sink)
	}
}

// WithReconcilerLogger overrides the logger.
func WithReconcilerLogger(logger Logger) GroupReconcilerOption {
	return func(r *GroupReconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithReconcilerClock injects a custom clock (useful for tests).
func WithReconcilerClock(clock func() time.Time) GroupReconcilerOption {
	return func(r *GroupReconciler) {
		if clock != nil {
			r.now = clock
		}
	}
}

// GroupReconciler copies provider group membership onto profiles.
type GroupReconciler struct {
	provider    IdentityProvider
	profiles    ProfileStore
	groups      GroupNames
	locker      Locker
	pageSize    int
	concurrency int
	activity    ActivitySink
	logger      Logger
	now         func() time.Time
}

// NewGroupReconciler creates a reconciler over provider and profiles.
func NewGroupReconciler(provider IdentityProvider, profiles ProfileStore, opts ...GroupReconcilerOption) *GroupReconciler {
	r := &GroupReconciler{
		provider:    provider,
		profiles:    profiles,
		groups:      DefaultGroupNames(),
		locker:      lock.NewMemory(),
		pageSize:    DefaultSyncPageSize,
		concurrency: DefaultSyncConcurrency,
		activity:    noopActivitySink{},
		logger:      defLogger{},
		now:         time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

// SyncAll walks every provider user and reconciles the profile flags.
// Per user failures are collected in the report. A page listing failure is
// recorded and ends the walk. The returned error is only set when ctx is done.
func (r *GroupReconciler) SyncAll(ctx context.Context) (*SyncReport, error) {
	report := &SyncReport{Errors: []string{}}
	started := r.now()

	token := ""
	for page := 0; ; page++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		users, err := r.provider.ListUsers(ctx, token, r.pageSize)
		if err != nil {
			r.logger.Error("sync list users failed", "page", page, "error", err)
			report.Errors = append(report.Errors, fmt.Sprintf("list users page %d: %v", page, err))
			break
		}

		batch := r.reconcilePage(ctx, users.Users)
		batch.Reduce(report)

		if users.NextToken == "" {
			break
		}
		token = users.NextToken
	}

	r.logger.Info("sync completed",
		"processed", report.Processed,
		"updated", report.UpdatedCount,
		"errors", len(report.Errors),
	)

	recordActivity(ctx, r.activity, r.logger, r.now, ActivityEvent{
		EventType: ActivityEventSyncCompleted,
		Actor:     ActorRef{Type: ActorTypeSystem},
		Metadata: map[string]any{
			"processed":   report.Processed,
			"updated":     report.UpdatedCount,
			"errors":      len(report.Errors),
			"duration_ms": r.now().Sub(started).Milliseconds(),
		},
	})

	return report, ctx.Err()
}

func (r *GroupReconciler) reconcilePage(ctx context.Context, users []ProviderUser) *BatchResult {
	batch := NewBatchResult(len(users))

	g := &errgroup.Group{}
	g.SetLimit(r.concurrency)

	for i, user := range users {
		g.Go(func() error {
			updated, err := r.SyncUser(ctx, user.ID)
			batch.Set(i, ItemResult{UserID: user.ID, Updated: updated, Err: err})
			return nil
		})
	}

	_ = g.Wait()
	return batch
}

// SyncUser reconciles a single user and reports whether the profile changed.
// Only flags that differ are written.
func (r *GroupReconciler) SyncUser(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, ValidationError(fmt.Errorf("user id is required"))
	}

	unlock, err := r.locker.Lock(ctx, userLockKey(userID))
	if err != nil {
		return false, err
	}
	defer unlock()

	names, err := r.provider.ListUserGroups(ctx, userID)
	if err != nil {
		return false, err
	}
	desired := r.groups.Resolve(names)

	profile, err := r.profiles.FindByUUID(ctx, userID)
	if err != nil {
		return false, err
	}

	update := desired.Diff(profile.Membership())
	if update.IsZero() {
		return false, nil
	}

	if _, err := r.profiles.Update(ctx, profile.ID, profile.Version, update); err != nil {
		return false, err
	}

	r.logger.Debug("profile flags reconciled",
		"user_id", userID,
		"is_admin", desired.IsAdmin,
		"is_developer", desired.IsDeveloper,
	)
	return true, nil
}
