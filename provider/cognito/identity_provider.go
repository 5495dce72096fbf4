// Package cognito adapts an AWS Cognito user pool to accounts.IdentityProvider.
package cognito

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/goliatone/go-accounts"
	gocache "github.com/patrickmn/go-cache"
)

const (
	ProviderName = "cognito"

	// MaxPageSize is the largest page ListUsers accepts.
	MaxPageSize = 60

	subAttribute   = "sub"
	emailAttribute = "email"
)

// API is the subset of the Cognito client used by the adapter.
type API interface {
	ListUsers(ctx context.Context, params *cip.ListUsersInput, optFns ...func(*cip.Options)) (*cip.ListUsersOutput, error)
	AdminListGroupsForUser(ctx context.Context, params *cip.AdminListGroupsForUserInput, optFns ...func(*cip.Options)) (*cip.AdminListGroupsForUserOutput, error)
	AdminAddUserToGroup(ctx context.Context, params *cip.AdminAddUserToGroupInput, optFns ...func(*cip.Options)) (*cip.AdminAddUserToGroupOutput, error)
	AdminRemoveUserFromGroup(ctx context.Context, params *cip.AdminRemoveUserFromGroupInput, optFns ...func(*cip.Options)) (*cip.AdminRemoveUserFromGroupOutput, error)
	AdminDisableUser(ctx context.Context, params *cip.AdminDisableUserInput, optFns ...func(*cip.Options)) (*cip.AdminDisableUserOutput, error)
	AdminDeleteUser(ctx context.Context, params *cip.AdminDeleteUserInput, optFns ...func(*cip.Options)) (*cip.AdminDeleteUserOutput, error)
}

// IdentityProvider implements accounts.IdentityProvider for one user pool.
// User ids are the Cognito sub; usernames are resolved and cached.
type IdentityProvider struct {
	api       API
	poolID    string
	usernames *gocache.Cache
}

var _ accounts.IdentityProvider = (*IdentityProvider)(nil)

// New loads the default AWS configuration for cfg.Region and creates the adapter.
func New(ctx context.Context, cfg Config) (*IdentityProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("cognito: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("cognito: load aws config: %w", err)
	}

	return NewWithAPI(cip.NewFromConfig(awsCfg), cfg), nil
}

// NewWithAPI creates the adapter over an existing client.
func NewWithAPI(api API, cfg Config) *IdentityProvider {
	ttl := cfg.UsernameCacheTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &IdentityProvider{
		api:       api,
		poolID:    strings.TrimSpace(cfg.UserPoolID),
		usernames: gocache.New(ttl, time.Minute),
	}
}

// Name implements accounts.IdentityProvider.
func (p *IdentityProvider) Name() string {
	return ProviderName
}

// ListUsers implements accounts.IdentityProvider.
func (p *IdentityProvider) ListUsers(ctx context.Context, pageToken string, limit int) (*accounts.UserPage, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}

	input := &cip.ListUsersInput{
		UserPoolId: aws.String(p.poolID),
		Limit:      aws.Int32(int32(limit)),
	}
	if pageToken != "" {
		input.PaginationToken = aws.String(pageToken)
	}

	out, err := p.api.ListUsers(ctx, input)
	if err != nil {
		return nil, accounts.WrapProviderError(ProviderName, "ListUsers", "", err)
	}

	page := &accounts.UserPage{
		Users:     make([]accounts.ProviderUser, 0, len(out.Users)),
		NextToken: aws.ToString(out.PaginationToken),
	}
	for _, u := range out.Users {
		user := toProviderUser(u)
		if user.ID == "" {
			continue
		}
		p.usernames.Set(user.ID, user.Username, gocache.DefaultExpiration)
		page.Users = append(page.Users, user)
	}

	return page, nil
}

// ListUserGroups implements accounts.IdentityProvider.
func (p *IdentityProvider) ListUserGroups(ctx context.Context, userID string) ([]string, error) {
	username, err := p.username(ctx, userID)
	if err != nil {
		return nil, err
	}

	groups := []string{}
	var next *string
	for {
		out, err := p.api.AdminListGroupsForUser(ctx, &cip.AdminListGroupsForUserInput{
			UserPoolId: aws.String(p.poolID),
			Username:   aws.String(username),
			Limit:      aws.Int32(MaxPageSize),
			NextToken:  next,
		})
		if err != nil {
			return nil, accounts.WrapProviderError(ProviderName, "AdminListGroupsForUser", userID, err)
		}

		for _, g := range out.Groups {
			if name := aws.ToString(g.GroupName); name != "" {
				groups = append(groups, name)
			}
		}

		if aws.ToString(out.NextToken) == "" {
			break
		}
		next = out.NextToken
	}

	return groups, nil
}

// AddUserToGroup implements accounts.IdentityProvider.
func (p *IdentityProvider) AddUserToGroup(ctx context.Context, userID, group string) error {
	username, err := p.username(ctx, userID)
	if err != nil {
		return err
	}

	_, err = p.api.AdminAddUserToGroup(ctx, &cip.AdminAddUserToGroupInput{
		UserPoolId: aws.String(p.poolID),
		Username:   aws.String(username),
		GroupName:  aws.String(group),
	})
	return accounts.WrapProviderError(ProviderName, "AdminAddUserToGroup", userID, err)
}

// RemoveUserFromGroup implements accounts.IdentityProvider.
func (p *IdentityProvider) RemoveUserFromGroup(ctx context.Context, userID, group string) error {
	username, err := p.username(ctx, userID)
	if err != nil {
		return err
	}

	_, err = p.api.AdminRemoveUserFromGroup(ctx, &cip.AdminRemoveUserFromGroupInput{
		UserPoolId: aws.String(p.poolID),
		Username:   aws.String(username),
		GroupName:  aws.String(group),
	})
	return accounts.WrapProviderError(ProviderName, "AdminRemoveUserFromGroup", userID, err)
}

// DisableUser implements accounts.IdentityProvider.
func (p *IdentityProvider) DisableUser(ctx context.Context, userID string) error {
	username, err := p.username(ctx, userID)
	if err != nil {
		return err
	}

	_, err = p.api.AdminDisableUser(ctx, &cip.AdminDisableUserInput{
		UserPoolId: aws.String(p.poolID),
		Username:   aws.String(username),
	})
	return accounts.WrapProviderError(ProviderName, "AdminDisableUser", userID, err)
}

// DeleteUser implements accounts.IdentityProvider.
func (p *IdentityProvider) DeleteUser(ctx context.Context, userID string) error {
	username, err := p.username(ctx, userID)
	if err != nil {
		return err
	}

	_, err = p.api.AdminDeleteUser(ctx, &cip.AdminDeleteUserInput{
		UserPoolId: aws.String(p.poolID),
		Username:   aws.String(username),
	})
	if err != nil {
		return accounts.WrapProviderError(ProviderName, "AdminDeleteUser", userID, err)
	}

	p.usernames.Delete(userID)
	return nil
}

// username resolves the Cognito username for a sub.
func (p *IdentityProvider) username(ctx context.Context, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if v, ok := p.usernames.Get(userID); ok {
		if name, ok := v.(string); ok && name != "" {
			return name, nil
		}
	}

	out, err := p.api.ListUsers(ctx, &cip.ListUsersInput{
		UserPoolId: aws.String(p.poolID),
		Filter:     aws.String(fmt.Sprintf("%s = %q", subAttribute, userID)),
		Limit:      aws.Int32(1),
	})
	if err != nil {
		return "", accounts.WrapProviderError(ProviderName, "ListUsers", userID, err)
	}

	if len(out.Users) == 0 {
		return "", accounts.WrapProviderError(ProviderName, "ListUsers", userID,
			fmt.Errorf("no user with sub %s", userID))
	}

	name := aws.ToString(out.Users[0].Username)
	p.usernames.Set(userID, name, gocache.DefaultExpiration)
	return name, nil
}

func toProviderUser(u types.UserType) accounts.ProviderUser {
	user := accounts.ProviderUser{
		Username: aws.ToString(u.Username),
		Status:   string(u.UserStatus),
	}
	for _, attr := range u.Attributes {
		switch aws.ToString(attr.Name) {
		case subAttribute:
			user.ID = aws.ToString(attr.Value)
		case emailAttribute:
			user.Email = aws.ToString(attr.Value)
		}
	}
	return user
}
