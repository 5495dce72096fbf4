package auth0

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/auth0/go-auth0"
	"github.com/auth0/go-auth0/management"
	"github.com/goliatone/go-accounts"
)

const ProviderName = "auth0"

// UserAPI is the subset of the management user endpoints used by the adapter.
type UserAPI interface {
	List(ctx context.Context, opts ...management.RequestOption) (*management.UserList, error)
	Roles(ctx context.Context, id string, opts ...management.RequestOption) (*management.RoleList, error)
	AssignRoles(ctx context.Context, id string, roles []*management.Role, opts ...management.RequestOption) error
	RemoveRoles(ctx context.Context, id string, roles []*management.Role, opts ...management.RequestOption) error
	Update(ctx context.Context, id string, u *management.User, opts ...management.RequestOption) error
	Delete(ctx context.Context, id string, opts ...management.RequestOption) error
}

// RoleAPI is the subset of the management role endpoints used by the adapter.
type RoleAPI interface {
	List(ctx context.Context, opts ...management.RequestOption) (*management.RoleList, error)
}

// IdentityProvider implements accounts.IdentityProvider on Auth0. Groups
// map to roles by name and disabling a user blocks it.
type IdentityProvider struct {
	users UserAPI
	roles RoleAPI
}

var _ accounts.IdentityProvider = (*IdentityProvider)(nil)

// New creates the adapter, building a management client when cfg.Client is nil.
func New(ctx context.Context, cfg Config) (*IdentityProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("auth0 management: %w", err)
	}

	client := cfg.Client
	if client == nil {
		var err error
		client, err = management.New(
			strings.TrimSpace(cfg.Domain),
			management.WithClientCredentials(ctx, cfg.ClientID, cfg.ClientSecret),
		)
		if err != nil {
			return nil, fmt.Errorf("auth0 management: failed to create client: %w", err)
		}
	}

	return NewWithAPI(client.User, client.Role), nil
}

// NewWithAPI creates the adapter over explicit endpoint clients.
func NewWithAPI(users UserAPI, roles RoleAPI) *IdentityProvider {
	return &IdentityProvider{users: users, roles: roles}
}

// Name implements accounts.IdentityProvider.
func (p *IdentityProvider) Name() string {
	return ProviderName
}

// ListUsers implements accounts.IdentityProvider. Page tokens are page numbers.
func (p *IdentityProvider) ListUsers(ctx context.Context, pageToken string, limit int) (*accounts.UserPage, error) {
	page := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil || n < 0 {
			return nil, accounts.WrapProviderError(ProviderName, "User.List", "", fmt.Errorf("invalid page token %q", pageToken))
		}
		page = n
	}
	if limit <= 0 {
		limit = accounts.DefaultSyncPageSize
	}

	list, err := p.users.List(ctx, management.Page(page), management.PerPage(limit))
	if err != nil {
		return nil, accounts.WrapProviderError(ProviderName, "User.List", "", err)
	}

	out := &accounts.UserPage{
		Users: make([]accounts.ProviderUser, 0, len(list.Users)),
	}
	for _, u := range list.Users {
		status := "active"
		if u.GetBlocked() {
			status = "blocked"
		}
		out.Users = append(out.Users, accounts.ProviderUser{
			ID:       u.GetID(),
			Username: u.GetUsername(),
			Email:    u.GetEmail(),
			Status:   status,
		})
	}
	if list.HasNext() {
		out.NextToken = strconv.Itoa(page + 1)
	}

	return out, nil
}

// ListUserGroups implements accounts.IdentityProvider.
func (p *IdentityProvider) ListUserGroups(ctx context.Context, userID string) ([]string, error) {
	groups := []string{}
	for page := 0; ; page++ {
		list, err := p.users.Roles(ctx, userID, management.Page(page), management.PerPage(50))
		if err != nil {
			return nil, accounts.WrapProviderError(ProviderName, "User.Roles", userID, err)
		}
		for _, role := range list.Roles {
			if name := role.GetName(); name != "" {
				groups = append(groups, name)
			}
		}
		if !list.HasNext() {
			break
		}
	}
	return groups, nil
}

// AddUserToGroup implements accounts.IdentityProvider.
func (p *IdentityProvider) AddUserToGroup(ctx context.Context, userID, group string) error {
	role, err := p.findRole(ctx, group)
	if err != nil {
		return accounts.WrapProviderError(ProviderName, "User.AssignRoles", userID, err)
	}
	err = p.users.AssignRoles(ctx, userID, []*management.Role{role})
	return accounts.WrapProviderError(ProviderName, "User.AssignRoles", userID, err)
}

// RemoveUserFromGroup implements accounts.IdentityProvider.
func (p *IdentityProvider) RemoveUserFromGroup(ctx context.Context, userID, group string) error {
	role, err := p.findRole(ctx, group)
	if err != nil {
		return accounts.WrapProviderError(ProviderName, "User.RemoveRoles", userID, err)
	}
	err = p.users.RemoveRoles(ctx, userID, []*management.Role{role})
	return accounts.WrapProviderError(ProviderName, "User.RemoveRoles", userID, err)
}

// DisableUser implements accounts.IdentityProvider.
func (p *IdentityProvider) DisableUser(ctx context.Context, userID string) error {
	err := p.users.Update(ctx, userID, &management.User{Blocked: auth0.Bool(true)})
	return accounts.WrapProviderError(ProviderName, "User.Update", userID, err)
}

// DeleteUser implements accounts.IdentityProvider.
func (p *IdentityProvider) DeleteUser(ctx context.Context, userID string) error {
	err := p.users.Delete(ctx, userID)
	return accounts.WrapProviderError(ProviderName, "User.Delete", userID, err)
}

func (p *IdentityProvider) findRole(ctx context.Context, name string) (*management.Role, error) {
	list, err := p.roles.List(ctx, management.Parameter("name_filter", name))
	if err != nil {
		return nil, err
	}
	for _, role := range list.Roles {
		if role.GetName() == name {
			return role, nil
		}
	}
	return nil, fmt.Errorf("role %q not found", name)
}
