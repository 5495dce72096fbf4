package accounts_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/jwks"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIssuer = "https://cognito-idp.us-east-1.amazonaws.com/us-east-1_test"

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type tokenFixture struct {
	key       *rsa.PrivateKey
	kid       string
	server    *httptest.Server
	validator *accounts.TokenValidator
}

func newTokenFixture(t *testing.T, opts ...accounts.TokenValidatorOption) *tokenFixture {
	t.Helper()

	privateKey, jwksJSON, kid := newTestJWKS(t)
	server := newJWKSServer(jwksJSON)
	t.Cleanup(server.Close)

	keys, err := jwks.New(jwks.Config{URL: server.URL + "/.well-known/jwks.json"})
	require.NoError(t, err)

	opts = append([]accounts.TokenValidatorOption{
		accounts.WithTokenValidatorClock(func() time.Time { return testNow }),
	}, opts...)

	validator, err := accounts.NewTokenValidator(accounts.TokenValidatorConfig{
		Issuer: testIssuer,
		KeySet: keys,
	}, opts...)
	require.NoError(t, err)

	return &tokenFixture{key: privateKey, kid: kid, server: server, validator: validator}
}

func (f *tokenFixture) bearer(t *testing.T, claims jwt.MapClaims) string {
	return "Bearer " + signToken(t, f.key, f.kid, claims)
}

func validClaims(subject string, groups ...string) jwt.MapClaims {
	claims := jwt.MapClaims{
		"sub": subject,
		"iss": testIssuer,
		"exp": testNow.Add(time.Hour).Unix(),
	}
	if groups != nil {
		claims["cognito:groups"] = groups
	}
	return claims
}

func assertTextCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var rich *goerrors.Error
	require.True(t, goerrors.As(err, &rich), "expected rich error, got %T: %v", err, err)
	assert.Equal(t, code, rich.TextCode, "error: %v", err)
}

func TestTokenValidator_AdminTokenReturnsCaller(t *testing.T) {
	f := newTokenFixture(t)

	caller, err := f.validator.Validate(context.Background(), f.bearer(t, validClaims("abc", "admin")), true)
	require.NoError(t, err)

	assert.Equal(t, "abc", caller.Subject)
	assert.True(t, caller.IsAdmin)
	assert.False(t, caller.IsDeveloper)
	assert.Equal(t, []string{"admin"}, caller.Groups)
}

func TestTokenValidator_TamperedSignatureFails(t *testing.T) {
	f := newTokenFixture(t)
	token := signToken(t, f.key, f.kid, validClaims("abc", "admin"))

	parts := strings.Split(token, ".")
	sig := []byte(parts[2])
	if sig[10] == 'A' {
		sig[10] = 'B'
	} else {
		sig[10] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err := f.validator.Validate(context.Background(), "Bearer "+tampered, false)
	assertTextCode(t, err, accounts.TextCodeTokenBadSignature)
}

func TestTokenValidator_ForeignKeyWithKnownKidFails(t *testing.T) {
	f := newTokenFixture(t)

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	token := signToken(t, other, f.kid, validClaims("abc", "admin"))
	_, err = f.validator.Validate(context.Background(), "Bearer "+token, false)
	assertTextCode(t, err, accounts.TextCodeTokenBadSignature)
}

func TestTokenValidator_TamperedPayloadFails(t *testing.T) {
	f := newTokenFixture(t)
	token := signToken(t, f.key, f.kid, validClaims("abc"))

	forged, err := json.Marshal(validClaims("abc", "admin"))
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + base64.RawURLEncoding.EncodeToString(forged) + "." + parts[2]

	_, err = f.validator.Validate(context.Background(), "Bearer "+tampered, false)
	assertTextCode(t, err, accounts.TextCodeTokenBadSignature)
}

func TestTokenValidator_IssuerMismatch(t *testing.T) {
	f := newTokenFixture(t)

	claims := validClaims("abc", "admin")
	claims["iss"] = testIssuer + "/"

	_, err := f.validator.Validate(context.Background(), f.bearer(t, claims), false)
	assertTextCode(t, err, accounts.TextCodeTokenIssuerMismatch)
}

func TestTokenValidator_ExpiryBoundary(t *testing.T) {
	f := newTokenFixture(t)

	tests := []struct {
		name    string
		exp     time.Time
		expired bool
	}{
		{name: "exactly now", exp: testNow, expired: true},
		{name: "in the past", exp: testNow.Add(-time.Minute), expired: true},
		{name: "one second ahead", exp: testNow.Add(time.Second), expired: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := validClaims("abc")
			claims["exp"] = tt.exp.Unix()

			caller, err := f.validator.Validate(context.Background(), f.bearer(t, claims), false)
			if tt.expired {
				assertTextCode(t, err, accounts.TextCodeTokenExpired)
				assert.True(t, accounts.IsTokenExpiredError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "abc", caller.Subject)
		})
	}
}

func TestTokenValidator_HeaderErrors(t *testing.T) {
	f := newTokenFixture(t)

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{name: "empty", header: "", code: accounts.TextCodeTokenMissingOrMalformed},
		{name: "basic scheme", header: "Basic YWJjOmRlZg==", code: accounts.TextCodeTokenMissingOrMalformed},
		{name: "bearer without token", header: "Bearer ", code: accounts.TextCodeTokenMissingOrMalformed},
		{name: "two segments", header: "Bearer abc.def", code: accounts.TextCodeTokenMalformedStructure},
		{name: "four segments", header: "Bearer a.b.c.d", code: accounts.TextCodeTokenMalformedStructure},
		{name: "bad encoding", header: "Bearer !!!.@@@.###", code: accounts.TextCodeTokenMalformedStructure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.validator.Validate(context.Background(), tt.header, false)
			assertTextCode(t, err, tt.code)
			assert.True(t, accounts.IsTokenError(err))
		})
	}
}

func TestTokenValidator_RejectsNonRS256(t *testing.T) {
	f := newTokenFixture(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims("abc", "admin"))
	token.Header["kid"] = f.kid
	signed, err := token.SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	_, err = f.validator.Validate(context.Background(), "Bearer "+signed, false)
	assertTextCode(t, err, accounts.TextCodeTokenMalformedStructure)
}

func TestTokenValidator_MistypedClaimsFailClosed(t *testing.T) {
	f := newTokenFixture(t)

	tests := []struct {
		name   string
		mutate func(jwt.MapClaims)
	}{
		{name: "missing sub", mutate: func(c jwt.MapClaims) { delete(c, "sub") }},
		{name: "numeric sub", mutate: func(c jwt.MapClaims) { c["sub"] = 42 }},
		{name: "missing iss", mutate: func(c jwt.MapClaims) { delete(c, "iss") }},
		{name: "missing exp", mutate: func(c jwt.MapClaims) { delete(c, "exp") }},
		{name: "string exp", mutate: func(c jwt.MapClaims) { c["exp"] = "tomorrow" }},
		{name: "groups as string", mutate: func(c jwt.MapClaims) { c["cognito:groups"] = "admin" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := validClaims("abc", "admin")
			tt.mutate(claims)

			_, err := f.validator.Validate(context.Background(), f.bearer(t, claims), false)
			assertTextCode(t, err, accounts.TextCodeTokenMalformedStructure)
		})
	}
}

func TestTokenValidator_UnknownKid(t *testing.T) {
	f := newTokenFixture(t)

	token := signToken(t, f.key, "rotated-away", validClaims("abc"))
	_, err := f.validator.Validate(context.Background(), "Bearer "+token, false)
	assertTextCode(t, err, accounts.TextCodeTokenUnknownKey)
}

func TestTokenValidator_KeySetUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	keys, err := jwks.New(jwks.Config{URL: server.URL})
	require.NoError(t, err)

	validator, err := accounts.NewTokenValidator(accounts.TokenValidatorConfig{
		Issuer: testIssuer,
		KeySet: keys,
	}, accounts.WithTokenValidatorClock(func() time.Time { return testNow }))
	require.NoError(t, err)

	privateKey, _, kid := newTestJWKS(t)
	token := signToken(t, privateKey, kid, validClaims("abc"))

	_, err = validator.Validate(context.Background(), "Bearer "+token, false)
	assertTextCode(t, err, accounts.TextCodeTokenKeySetUnavailable)
}

type staticKeySet struct {
	err error
}

func (s staticKeySet) Key(context.Context, string) (any, error) {
	return nil, s.err
}

func TestTokenValidator_KeySetErrorsMapToKinds(t *testing.T) {
	privateKey, _, kid := newTestJWKS(t)
	token := "Bearer " + signToken(t, privateKey, kid, validClaims("abc"))

	tests := []struct {
		err  error
		code string
	}{
		{err: jwks.ErrKeyNotFound, code: accounts.TextCodeTokenUnknownKey},
		{err: jwks.ErrUnavailable, code: accounts.TextCodeTokenKeySetUnavailable},
		{err: errors.New("dial tcp: timeout"), code: accounts.TextCodeTokenKeySetUnavailable},
	}

	for _, tt := range tests {
		validator, err := accounts.NewTokenValidator(accounts.TokenValidatorConfig{
			Issuer: testIssuer,
			KeySet: staticKeySet{err: tt.err},
		}, accounts.WithTokenValidatorClock(func() time.Time { return testNow }))
		require.NoError(t, err)

		_, err = validator.Validate(context.Background(), token, false)
		assertTextCode(t, err, tt.code)
	}
}

func TestTokenValidator_ElevationRequired(t *testing.T) {
	f := newTokenFixture(t)

	caller, err := f.validator.Validate(context.Background(), f.bearer(t, validClaims("abc", "billing")), false)
	require.NoError(t, err)
	assert.False(t, caller.IsElevated())

	_, err = f.validator.Validate(context.Background(), f.bearer(t, validClaims("abc", "billing")), true)
	assertTextCode(t, err, accounts.TextCodeTokenInsufficientPrivilege)

	_, err = f.validator.Validate(context.Background(), f.bearer(t, validClaims("abc")), true)
	assertTextCode(t, err, accounts.TextCodeTokenInsufficientPrivilege)
}

func TestTokenValidator_GroupsClaimFallback(t *testing.T) {
	f := newTokenFixture(t)

	claims := validClaims("dev-1")
	claims["groups"] = []string{"developer"}

	caller, err := f.validator.Validate(context.Background(), f.bearer(t, claims), true)
	require.NoError(t, err)
	assert.False(t, caller.IsAdmin)
	assert.True(t, caller.IsDeveloper)
}

func TestTokenValidator_CustomGroupNames(t *testing.T) {
	privateKey, jwksJSON, kid := newTestJWKS(t)
	server := newJWKSServer(jwksJSON)
	t.Cleanup(server.Close)

	keys, err := jwks.New(jwks.Config{URL: server.URL + "/.well-known/jwks.json"})
	require.NoError(t, err)

	validator, err := accounts.NewTokenValidator(accounts.TokenValidatorConfig{
		Issuer: testIssuer,
		KeySet: keys,
		Groups: accounts.GroupNames{Admin: "ops-admins", Developer: "engineers"},
	}, accounts.WithTokenValidatorClock(func() time.Time { return testNow }))
	require.NoError(t, err)

	token := signToken(t, privateKey, kid, validClaims("abc", "admin", "engineers"))
	caller, err := validator.Validate(context.Background(), "Bearer "+token, false)
	require.NoError(t, err)
	assert.False(t, caller.IsAdmin)
	assert.True(t, caller.IsDeveloper)
}

func TestNewTokenValidator_RequiresIssuerAndKeys(t *testing.T) {
	_, err := accounts.NewTokenValidator(accounts.TokenValidatorConfig{KeySet: staticKeySet{}})
	assert.Error(t, err)

	_, err = accounts.NewTokenValidator(accounts.TokenValidatorConfig{Issuer: testIssuer})
	assert.Error(t, err)

	_, err = accounts.NewTokenValidator(accounts.TokenValidatorConfig{
		Issuer: testIssuer,
		KeySet: staticKeySet{},
		Groups: accounts.GroupNames{Admin: "same", Developer: "same"},
	})
	assert.Error(t, err)
}

func newTestJWKS(t *testing.T) (*rsa.PrivateKey, []byte, string) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	kid := "test-key"
	jwk := map[string]any{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": kid,
		"n":   base64.RawURLEncoding.EncodeToString(privateKey.PublicKey.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(privateKey.PublicKey.E)).Bytes()),
	}

	data, err := json.Marshal(map[string]any{
		"keys": []map[string]any{jwk},
	})
	require.NoError(t, err)

	return privateKey, data, kid
}

func newJWKSServer(jwks []byte) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/.well-known/jwks.json", "/":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(jwks)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.Claims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(key)
	require.NoError(t, err)

	return signed
}
