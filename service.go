package accounts

import (
	"errors"
	"time"

	"github.com/goliatone/go-accounts/lock"
)

// ServiceConfig holds the collaborators shared by every component.
type ServiceConfig struct {
	Provider  IdentityProvider
	Profiles  ProfileStore
	Validator Authenticator
	Groups    GroupNames
	Locker    Locker
	Activity  ActivitySink
	Logger    Logger
	Clock     func() time.Time

	SyncPageSize    int
	SyncConcurrency int
}

// Service bundles the components behind the HTTP controller and CLI.
type Service struct {
	Validator  Authenticator
	Reconciler *GroupReconciler
	Mutator    *MembershipMutator
	Lifecycle  *LifecycleManager
}

// NewService wires every component against the same provider, store and
// locker so per user serialization spans all operations.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Provider == nil {
		return nil, errors.New("service: identity provider is required")
	}
	if cfg.Profiles == nil {
		return nil, errors.New("service: profile store is required")
	}

	groups := cfg.Groups.orDefault()
	if err := groups.Validate(); err != nil {
		return nil, err
	}

	locker := cfg.Locker
	if locker == nil {
		locker = lock.NewMemory()
	}

	reconciler := NewGroupReconciler(cfg.Provider, cfg.Profiles,
		WithReconcilerGroupNames(groups),
		WithReconcilerLocker(locker),
		WithReconcilerActivitySink(cfg.Activity),
		WithReconcilerLogger(cfg.Logger),
		WithReconcilerClock(cfg.Clock),
		WithReconcilerPageSize(cfg.SyncPageSize),
		WithReconcilerConcurrency(cfg.SyncConcurrency),
	)

	mutator := NewMembershipMutator(cfg.Provider, cfg.Profiles,
		WithMutatorGroupNames(groups),
		WithMutatorLocker(locker),
		WithMutatorActivitySink(cfg.Activity),
		WithMutatorLogger(cfg.Logger),
		WithMutatorClock(cfg.Clock),
	)

	lifecycle := NewLifecycleManager(cfg.Provider, cfg.Profiles,
		WithLifecycleLocker(locker),
		WithLifecycleActivitySink(cfg.Activity),
		WithLifecycleLogger(cfg.Logger),
		WithLifecycleClock(cfg.Clock),
	)

	return &Service{
		Validator:  cfg.Validator,
		Reconciler: reconciler,
		Mutator:    mutator,
		Lifecycle:  lifecycle,
	}, nil
}
