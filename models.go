package accounts

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ProfileStatus is the account status mirrored from the identity provider.
type ProfileStatus string

const (
	ProfileStatusActive    ProfileStatus = "active"
	ProfileStatusInactive  ProfileStatus = "inactive"
	ProfileStatusSuspended ProfileStatus = "suspended"
)

// DeletionState describes where an account sits in the deletion lifecycle.
type DeletionState string

const (
	DeletionStateLive        DeletionState = "live"
	DeletionStateSoftDeleted DeletionState = "soft_deleted"
	DeletionStateHardDeleted DeletionState = "hard_deleted"
)

// Profile is the internal record linked to an external identity by UUID.
type Profile struct {
	bun.BaseModel `bun:"table:profiles,alias:prf"`
	ID            uuid.UUID     `bun:"id,pk,nullzero,type:uuid" json:"id"`
	UUID          string        `bun:"uuid,notnull,unique" json:"uuid"`
	Email         string        `bun:"email" json:"email,omitempty"`
	Status        ProfileStatus `bun:"status,notnull" json:"status"`
	IsAdmin       bool          `bun:"is_admin,notnull" json:"isAdmin"`
	IsDeveloper   bool          `bun:"is_developer,notnull" json:"isDeveloper"`
	IsDeleted     bool          `bun:"is_deleted,notnull" json:"isDeleted"`
	DeletedAt     *time.Time    `bun:"deleted_at,nullzero" json:"deletedAt,omitempty"`
	DeletedBy     *string       `bun:"deleted_by,nullzero" json:"deletedBy,omitempty"`
	Version       int64         `bun:"version,notnull" json:"version"`
	CreatedAt     time.Time     `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt     time.Time     `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}

// EnsureStatus defaults an empty status to active.
func (p *Profile) EnsureStatus() {
	if p == nil {
		return
	}
	if p.Status == "" {
		p.Status = ProfileStatusActive
	}
}

// DeletionState derives the lifecycle state from the persisted flags.
func (p *Profile) DeletionState() DeletionState {
	if p != nil && p.IsDeleted {
		return DeletionStateSoftDeleted
	}
	return DeletionStateLive
}

// Membership returns the group flags stored on the profile.
func (p *Profile) Membership() Membership {
	if p == nil {
		return Membership{}
	}
	return Membership{IsAdmin: p.IsAdmin, IsDeveloper: p.IsDeveloper}
}

// ProfileUpdate is a partial write; only non nil fields are applied.
type ProfileUpdate struct {
	Status      *ProfileStatus
	IsAdmin     *bool
	IsDeveloper *bool
	IsDeleted   *bool
	DeletedAt   *time.Time
	DeletedBy   *string
}

// IsZero reports whether the update carries no changes.
func (u ProfileUpdate) IsZero() bool {
	return len(u.Columns()) == 0
}

// Columns lists the profile columns touched by the update.
func (u ProfileUpdate) Columns() []string {
	columns := []string{}
	if u.Status != nil {
		columns = append(columns, "status")
	}
	if u.IsAdmin != nil {
		columns = append(columns, "is_admin")
	}
	if u.IsDeveloper != nil {
		columns = append(columns, "is_developer")
	}
	if u.IsDeleted != nil {
		columns = append(columns, "is_deleted")
	}
	if u.DeletedAt != nil {
		columns = append(columns, "deleted_at")
	}
	if u.DeletedBy != nil {
		columns = append(columns, "deleted_by")
	}
	return columns
}

// Apply copies the set fields onto profile.
func (u ProfileUpdate) Apply(profile *Profile) {
	if profile == nil {
		return
	}
	if u.Status != nil {
		profile.Status = *u.Status
	}
	if u.IsAdmin != nil {
		profile.IsAdmin = *u.IsAdmin
	}
	if u.IsDeveloper != nil {
		profile.IsDeveloper = *u.IsDeveloper
	}
	if u.IsDeleted != nil {
		profile.IsDeleted = *u.IsDeleted
	}
	if u.DeletedAt != nil {
		at := *u.DeletedAt
		profile.DeletedAt = &at
	}
	if u.DeletedBy != nil {
		by := *u.DeletedBy
		profile.DeletedBy = &by
	}
}

// Group is the closed set of privileged groups this service manages.
type Group string

const (
	GroupAdmin     Group = "admin"
	GroupDeveloper Group = "developer"
)

// Groups lists every managed group in a stable order.
func Groups() []Group {
	return []Group{GroupAdmin, GroupDeveloper}
}

// GroupNames maps managed groups to the names used by the identity provider.
type GroupNames struct {
	Admin     string
	Developer string
}

// DefaultGroupNames returns the provider names used when none are configured.
func DefaultGroupNames() GroupNames {
	return GroupNames{
		Admin:     string(GroupAdmin),
		Developer: string(GroupDeveloper),
	}
}

// Validate ensures both names are set and distinct.
func (n GroupNames) Validate() error {
	admin := strings.TrimSpace(n.Admin)
	developer := strings.TrimSpace(n.Developer)
	if admin == "" || developer == "" {
		return errors.New("group names: admin and developer names are required")
	}
	if admin == developer {
		return errors.New("group names: admin and developer names must differ")
	}
	return nil
}

// Name returns the provider name for g.
func (n GroupNames) Name(g Group) string {
	switch g {
	case GroupAdmin:
		return n.Admin
	case GroupDeveloper:
		return n.Developer
	}
	return ""
}

// Parse maps a provider group name back to a managed group.
func (n GroupNames) Parse(name string) (Group, bool) {
	switch name {
	case n.Admin:
		return GroupAdmin, true
	case n.Developer:
		return GroupDeveloper, true
	}
	return "", false
}

// Resolve derives membership flags from provider group names. Unknown
// groups are ignored.
func (n GroupNames) Resolve(names []string) Membership {
	m := Membership{}
	for _, name := range names {
		group, ok := n.Parse(name)
		if !ok {
			continue
		}
		m = m.With(group, true)
	}
	return m
}

func (n GroupNames) orDefault() GroupNames {
	if n.Admin == "" && n.Developer == "" {
		return DefaultGroupNames()
	}
	return n
}

// Membership holds the derived admin and developer flags.
type Membership struct {
	IsAdmin     bool
	IsDeveloper bool
}

// Has reports membership in g.
func (m Membership) Has(g Group) bool {
	switch g {
	case GroupAdmin:
		return m.IsAdmin
	case GroupDeveloper:
		return m.IsDeveloper
	}
	return false
}

// With returns a copy of m with g set to member.
func (m Membership) With(g Group, member bool) Membership {
	switch g {
	case GroupAdmin:
		m.IsAdmin = member
	case GroupDeveloper:
		m.IsDeveloper = member
	}
	return m
}

// Diff returns the minimal update moving current to m.
func (m Membership) Diff(current Membership) ProfileUpdate {
	update := ProfileUpdate{}
	if m.IsAdmin != current.IsAdmin {
		update.IsAdmin = boolPtr(m.IsAdmin)
	}
	if m.IsDeveloper != current.IsDeveloper {
		update.IsDeveloper = boolPtr(m.IsDeveloper)
	}
	return update
}

func boolPtr(v bool) *bool {
	return &v
}

func stringPtr(v string) *string {
	return &v
}

func timePtr(v time.Time) *time.Time {
	return &v
}
