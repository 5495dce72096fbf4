package cognito

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) ListUsers(ctx context.Context, params *cip.ListUsersInput, _ ...func(*cip.Options)) (*cip.ListUsersOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*cip.ListUsersOutput)
	return out, args.Error(1)
}

func (m *MockAPI) AdminListGroupsForUser(ctx context.Context, params *cip.AdminListGroupsForUserInput, _ ...func(*cip.Options)) (*cip.AdminListGroupsForUserOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*cip.AdminListGroupsForUserOutput)
	return out, args.Error(1)
}

func (m *MockAPI) AdminAddUserToGroup(ctx context.Context, params *cip.AdminAddUserToGroupInput, _ ...func(*cip.Options)) (*cip.AdminAddUserToGroupOutput, error) {
	args := m.Called(ctx, params)
	return &cip.AdminAddUserToGroupOutput{}, args.Error(0)
}

func (m *MockAPI) AdminRemoveUserFromGroup(ctx context.Context, params *cip.AdminRemoveUserFromGroupInput, _ ...func(*cip.Options)) (*cip.AdminRemoveUserFromGroupOutput, error) {
	args := m.Called(ctx, params)
	return &cip.AdminRemoveUserFromGroupOutput{}, args.Error(0)
}

func (m *MockAPI) AdminDisableUser(ctx context.Context, params *cip.AdminDisableUserInput, _ ...func(*cip.Options)) (*cip.AdminDisableUserOutput, error) {
	args := m.Called(ctx, params)
	return &cip.AdminDisableUserOutput{}, args.Error(0)
}

func (m *MockAPI) AdminDeleteUser(ctx context.Context, params *cip.AdminDeleteUserInput, _ ...func(*cip.Options)) (*cip.AdminDeleteUserOutput, error) {
	args := m.Called(ctx, params)
	return &cip.AdminDeleteUserOutput{}, args.Error(0)
}

func cognitoUser(username, sub, email string) types.UserType {
	return types.UserType{
		Username:   aws.String(username),
		UserStatus: types.UserStatusTypeConfirmed,
		Attributes: []types.AttributeType{
			{Name: aws.String("sub"), Value: aws.String(sub)},
			{Name: aws.String("email"), Value: aws.String(email)},
		},
	}
}

func newProvider(api API) *IdentityProvider {
	return NewWithAPI(api, Config{Region: "us-east-1", UserPoolID: "us-east-1_pool"})
}

func TestConfig_IssuerAndJWKS(t *testing.T) {
	cfg := Config{Region: "eu-west-1", UserPoolID: "eu-west-1_abc"}
	assert.Equal(t, "https://cognito-idp.eu-west-1.amazonaws.com/eu-west-1_abc", cfg.IssuerURL())
	assert.Equal(t, "https://cognito-idp.eu-west-1.amazonaws.com/eu-west-1_abc/.well-known/jwks.json", cfg.JWKSURL())

	cfg.Issuer = "http://localhost:9229/pool/"
	assert.Equal(t, "http://localhost:9229/pool", cfg.IssuerURL())

	assert.Error(t, Config{}.Validate())
	assert.NoError(t, Config{Region: "r", UserPoolID: "p"}.Validate())
}

func TestIdentityProvider_ListUsersMapsSubAndToken(t *testing.T) {
	api := &MockAPI{}
	api.On("ListUsers", mock.Anything, mock.MatchedBy(func(in *cip.ListUsersInput) bool {
		return aws.ToString(in.PaginationToken) == "tok-1" && aws.ToInt32(in.Limit) == 60
	})).Return(&cip.ListUsersOutput{
		Users: []types.UserType{
			cognitoUser("alice", "sub-a", "a@example.com"),
			cognitoUser("bob", "sub-b", "b@example.com"),
		},
		PaginationToken: aws.String("tok-2"),
	}, nil).Once()

	p := newProvider(api)
	page, err := p.ListUsers(context.Background(), "tok-1", 100)
	require.NoError(t, err)

	require.Len(t, page.Users, 2)
	assert.Equal(t, "sub-a", page.Users[0].ID)
	assert.Equal(t, "alice", page.Users[0].Username)
	assert.Equal(t, "a@example.com", page.Users[0].Email)
	assert.Equal(t, "CONFIRMED", page.Users[0].Status)
	assert.Equal(t, "tok-2", page.NextToken)
	api.AssertExpectations(t)
}

func TestIdentityProvider_ListUserGroupsUsesCachedUsername(t *testing.T) {
	api := &MockAPI{}
	api.On("ListUsers", mock.Anything, mock.Anything).Return(&cip.ListUsersOutput{
		Users: []types.UserType{cognitoUser("alice", "sub-a", "a@example.com")},
	}, nil).Once()

	api.On("AdminListGroupsForUser", mock.Anything, mock.MatchedBy(func(in *cip.AdminListGroupsForUserInput) bool {
		return aws.ToString(in.Username) == "alice" && in.NextToken == nil
	})).Return(&cip.AdminListGroupsForUserOutput{
		Groups:    []types.GroupType{{GroupName: aws.String("admin")}},
		NextToken: aws.String("next"),
	}, nil).Once()

	api.On("AdminListGroupsForUser", mock.Anything, mock.MatchedBy(func(in *cip.AdminListGroupsForUserInput) bool {
		return aws.ToString(in.NextToken) == "next"
	})).Return(&cip.AdminListGroupsForUserOutput{
		Groups: []types.GroupType{{GroupName: aws.String("developer")}},
	}, nil).Once()

	p := newProvider(api)
	_, err := p.ListUsers(context.Background(), "", 60)
	require.NoError(t, err)

	groups, err := p.ListUserGroups(context.Background(), "sub-a")
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "developer"}, groups)
	api.AssertExpectations(t)
}

func TestIdentityProvider_ResolvesUsernameBySub(t *testing.T) {
	api := &MockAPI{}
	api.On("ListUsers", mock.Anything, mock.MatchedBy(func(in *cip.ListUsersInput) bool {
		return aws.ToString(in.Filter) == `sub = "sub-z"`
	})).Return(&cip.ListUsersOutput{
		Users: []types.UserType{cognitoUser("zed", "sub-z", "z@example.com")},
	}, nil).Once()

	api.On("AdminDisableUser", mock.Anything, mock.MatchedBy(func(in *cip.AdminDisableUserInput) bool {
		return aws.ToString(in.Username) == "zed" && aws.ToString(in.UserPoolId) == "us-east-1_pool"
	})).Return(nil).Once()

	api.On("AdminAddUserToGroup", mock.Anything, mock.MatchedBy(func(in *cip.AdminAddUserToGroupInput) bool {
		return aws.ToString(in.Username) == "zed" && aws.ToString(in.GroupName) == "admin"
	})).Return(nil).Once()

	p := newProvider(api)
	require.NoError(t, p.DisableUser(context.Background(), "sub-z"))
	require.NoError(t, p.AddUserToGroup(context.Background(), "sub-z", "admin"))
	api.AssertExpectations(t)
}

func TestIdentityProvider_WrapsSDKErrors(t *testing.T) {
	api := &MockAPI{}
	api.On("ListUsers", mock.Anything, mock.Anything).Return(&cip.ListUsersOutput{
		Users: []types.UserType{cognitoUser("alice", "sub-a", "a@example.com")},
	}, nil).Once()
	api.On("AdminDeleteUser", mock.Anything, mock.Anything).Return(errors.New("throttled")).Once()

	p := newProvider(api)
	err := p.DeleteUser(context.Background(), "sub-a")
	require.Error(t, err)
	assert.True(t, accounts.HasTextCode(err, accounts.TextCodeProviderError))
	assert.Contains(t, err.Error(), "throttled")
}

func TestIdentityProvider_UnknownSubIsProviderError(t *testing.T) {
	api := &MockAPI{}
	api.On("ListUsers", mock.Anything, mock.Anything).Return(&cip.ListUsersOutput{}, nil).Once()

	p := newProvider(api)
	err := p.RemoveUserFromGroup(context.Background(), "ghost", "admin")
	require.Error(t, err)
	assert.True(t, accounts.HasTextCode(err, accounts.TextCodeProviderError))
	api.AssertNotCalled(t, "AdminRemoveUserFromGroup", mock.Anything, mock.Anything)
}
