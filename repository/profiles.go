package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-accounts"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ProfileStore persists profiles with Bun and guards writes with an
// optimistic version column.
type ProfileStore struct {
	repository.Repository[*accounts.Profile]
	db  *bun.DB
	now func() time.Time
}

var _ accounts.ProfileStore = (*ProfileStore)(nil)

// ProfileStoreOption customizes a ProfileStore.
type ProfileStoreOption func(*ProfileStore)

// WithProfileStoreClock injects a custom clock (useful for tests).
func WithProfileStoreClock(clock func() time.Time) ProfileStoreOption {
	return func(s *ProfileStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewProfileStore creates a store over db.
func NewProfileStore(db *bun.DB, opts ...ProfileStoreOption) *ProfileStore {
	repo := repository.NewRepository[*accounts.Profile](db, repository.ModelHandlers[*accounts.Profile]{
		NewRecord: func() *accounts.Profile { return &accounts.Profile{} },
		GetID: func(p *accounts.Profile) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *accounts.Profile, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
		GetIdentifier: func() string {
			return "uuid"
		},
	})

	store := &ProfileStore{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	return store
}

// Migrate creates the profiles table when missing.
func (s *ProfileStore) Migrate(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*accounts.Profile)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// Create inserts profile, filling id, status and version defaults.
func (s *ProfileStore) Create(ctx context.Context, profile *accounts.Profile, criteria ...repository.InsertCriteria) (*accounts.Profile, error) {
	return s.CreateTx(ctx, s.db, profile, criteria...)
}

// CreateTx inserts profile inside tx.
func (s *ProfileStore) CreateTx(ctx context.Context, tx bun.IDB, profile *accounts.Profile, criteria ...repository.InsertCriteria) (*accounts.Profile, error) {
	if profile == nil {
		return nil, accounts.ValidationError(errors.New("profile is required"))
	}
	s.prepareDefaults(profile)
	return s.Repository.CreateTx(ctx, tx, profile, criteria...)
}

// FindByUUID returns the profile linked to the external subject.
func (s *ProfileStore) FindByUUID(ctx context.Context, id string) (*accounts.Profile, error) {
	return s.findByUUID(ctx, s.db, id)
}

func (s *ProfileStore) findByUUID(ctx context.Context, tx bun.IDB, id string) (*accounts.Profile, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, accounts.ProfileNotFound(id, repository.NewRecordNotFound())
	}

	record, err := s.Repository.GetByIdentifierTx(ctx, tx, id)
	if err != nil {
		if repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows) {
			return nil, accounts.ProfileNotFound(id, repository.NewRecordNotFound().WithMetadata(map[string]any{
				"uuid": id,
			}))
		}
		return nil, err
	}

	return record, nil
}

// Update writes the set fields of update when the stored version equals
// version, bumping it. A stale version yields a concurrent update error.
func (s *ProfileStore) Update(ctx context.Context, id uuid.UUID, version int64, update accounts.ProfileUpdate) (*accounts.Profile, error) {
	var updated *accounts.Profile

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current := &accounts.Profile{}
		if err := tx.NewSelect().Model(current).Where("?TableAlias.id = ?", id).Limit(1).Scan(ctx); err != nil {
			if repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows) {
				return accounts.ProfileNotFound(id.String(), err)
			}
			return err
		}

		if current.Version != version {
			return staleVersion(current, version)
		}

		record := *current
		update.Apply(&record)
		record.Version = version + 1
		record.UpdatedAt = s.now().UTC()

		columns := append(update.Columns(), "version", "updated_at")
		res, err := tx.NewUpdate().
			Model(&record).
			Column(columns...).
			Where("id = ?", id).
			Where("version = ?", version).
			Exec(ctx)
		if err != nil {
			return err
		}

		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return staleVersion(current, version)
		}

		updated = &record
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (s *ProfileStore) prepareDefaults(profile *accounts.Profile) {
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	profile.EnsureStatus()
	if profile.Version == 0 {
		profile.Version = 1
	}
	now := s.now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = now
	}
}

func staleVersion(current *accounts.Profile, version int64) error {
	return accounts.NewError(accounts.ErrConcurrentUpdate, nil, map[string]any{
		"uuid":             current.UUID,
		"expected_version": version,
		"current_version":  current.Version,
	})
}
