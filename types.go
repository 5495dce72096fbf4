package accounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Logger is the structured logger used across the package. Args are
// key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ProviderUser is a user as listed by the identity provider.
type ProviderUser struct {
	// ID is the stable external subject, matching Profile.UUID.
	ID       string
	Username string
	Email    string
	Status   string
}

// UserPage is one page of provider users. An empty NextToken ends the walk.
type UserPage struct {
	Users     []ProviderUser
	NextToken string
}

// IdentityProvider is the external directory owning credentials and groups.
type IdentityProvider interface {
	Name() string
	ListUsers(ctx context.Context, pageToken string, limit int) (*UserPage, error)
	ListUserGroups(ctx context.Context, userID string) ([]string, error)
	AddUserToGroup(ctx context.Context, userID, group string) error
	RemoveUserFromGroup(ctx context.Context, userID, group string) error
	DisableUser(ctx context.Context, userID string) error
	DeleteUser(ctx context.Context, userID string) error
}

// ProfileStore persists profiles. Update must only succeed when the stored
// version equals version, and must bump it.
type ProfileStore interface {
	FindByUUID(ctx context.Context, uuid string) (*Profile, error)
	Update(ctx context.Context, id uuid.UUID, version int64, update ProfileUpdate) (*Profile, error)
}

// Locker serializes work per key. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Authenticator verifies bearer headers and returns the calling identity.
type Authenticator interface {
	Validate(ctx context.Context, bearerHeader string, requireElevated bool) (*Caller, error)
}

func userLockKey(userID string) string {
	return "accounts:user:" + userID
}

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Println("[DBG] ACCOUNTS " + format(msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Println("[INF] ACCOUNTS " + format(msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Println("[WRN] ACCOUNTS " + format(msg, args...))
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Println("[ERR] ACCOUNTS " + format(msg, args...))
}

func format(msg string, args ...any) string {
	if len(args) == 0 {
		return msg
	}
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
			continue
		}
		fmt.Fprintf(&b, " %v", args[i])
	}
	return b.String()
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
