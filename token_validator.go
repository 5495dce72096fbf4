package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-accounts/jwks"
	goerrors "github.com/goliatone/go-errors"
)

const bearerPrefix = "Bearer "

// DefaultGroupClaims are the claim names read for group membership, in order.
var DefaultGroupClaims = []string{"cognito:groups", "groups"}

// KeySet resolves verification keys by key id.
type KeySet interface {
	Key(ctx context.Context, kid string) (any, error)
}

// Caller is the identity extracted from a verified token.
type Caller struct {
	Subject     string
	IsAdmin     bool
	IsDeveloper bool
	Groups      []string
}

// IsElevated reports whether the caller is an admin or a developer.
func (c *Caller) IsElevated() bool {
	return c != nil && (c.IsAdmin || c.IsDeveloper)
}

// TokenValidatorConfig configures a TokenValidator.
type TokenValidatorConfig struct {
	// Issuer must match the token iss claim exactly.
	Issuer string
	KeySet KeySet
	Groups GroupNames
	// GroupClaims overrides DefaultGroupClaims.
	GroupClaims []string
}

// TokenValidatorOption customizes a TokenValidator.
type TokenValidatorOption func(*TokenValidator)

// WithTokenValidatorClock injects a custom clock (useful for tests).
func WithTokenValidatorClock(clock func() time.Time) TokenValidatorOption {
	return func(v *TokenValidator) {
		if clock != nil {
			v.now = clock
		}
	}
}

// WithTokenValidatorLogger overrides the logger.
func WithTokenValidatorLogger(logger Logger) TokenValidatorOption {
	return func(v *TokenValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// TokenValidator verifies RS256 bearer tokens against a remote key set.
type TokenValidator struct {
	issuer      string
	keys        KeySet
	groups      GroupNames
	groupClaims []string
	parser      *jwt.Parser
	now         func() time.Time
	logger      Logger
}

// NewTokenValidator creates a validator for cfg.
func NewTokenValidator(cfg TokenValidatorConfig, opts ...TokenValidatorOption) (*TokenValidator, error) {
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, errors.New("token validator: issuer is required")
	}
	if cfg.KeySet == nil {
		return nil, errors.New("token validator: key set is required")
	}

	groups := cfg.Groups.orDefault()
	if err := groups.Validate(); err != nil {
		return nil, err
	}

	claims := cfg.GroupClaims
	if len(claims) == 0 {
		claims = DefaultGroupClaims
	}

	v := &TokenValidator{
		issuer:      issuer,
		keys:        cfg.KeySet,
		groups:      groups,
		groupClaims: claims,
		parser:      jwt.NewParser(),
		now:         time.Now,
		logger:      defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}

	return v, nil
}

type tokenHeader struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	Typ string `json:"typ,omitempty"`
}

// TokenClaims holds the decoded payload fields this service relies on.
type TokenClaims struct {
	Subject string
	Issuer  string
	Expiry  int64
	Groups  []string
}

type payloadClaims struct {
	Subject *string `json:"sub"`
	Issuer  *string `json:"iss"`
	Expiry  *int64  `json:"exp"`
}

// Validate authenticates bearerHeader. When requireElevated is true the
// caller must belong to the admin or developer group.
func (v *TokenValidator) Validate(ctx context.Context, bearerHeader string, requireElevated bool) (*Caller, error) {
	caller, err := v.validate(ctx, bearerHeader)
	if err != nil {
		v.logger.Debug("token rejected", "error", err)
		return nil, err
	}

	if requireElevated && !caller.IsElevated() {
		return nil, NewError(ErrInsufficientPrivilege, nil, map[string]any{
			"subject": caller.Subject,
		})
	}

	return caller, nil
}

func (v *TokenValidator) validate(ctx context.Context, bearerHeader string) (*Caller, error) {
	if !strings.HasPrefix(bearerHeader, bearerPrefix) {
		return nil, NewError(ErrTokenMissingOrMalformed, nil, nil)
	}

	raw := strings.TrimSpace(bearerHeader[len(bearerPrefix):])
	if raw == "" {
		return nil, NewError(ErrTokenMissingOrMalformed, nil, nil)
	}

	segments := strings.Split(raw, ".")
	if len(segments) != 3 {
		return nil, NewError(ErrTokenMalformedStructure, nil, map[string]any{
			"segments": len(segments),
		})
	}

	header, err := v.decodeHeader(segments[0])
	if err != nil {
		return nil, err
	}

	claims, err := v.decodeClaims(segments[1])
	if err != nil {
		return nil, err
	}

	if claims.Issuer != v.issuer {
		return nil, NewError(ErrTokenIssuerMismatch, nil, map[string]any{
			"issuer": claims.Issuer,
		})
	}

	if claims.Expiry <= v.now().Unix() {
		return nil, NewError(ErrTokenExpired, nil, map[string]any{
			"exp": claims.Expiry,
		})
	}

	key, err := v.keys.Key(ctx, header.Kid)
	if err != nil {
		return nil, keyError(header.Kid, err)
	}

	if err := v.verifySignature(segments, key); err != nil {
		return nil, err
	}

	membership := v.groups.Resolve(claims.Groups)
	return &Caller{
		Subject:     claims.Subject,
		IsAdmin:     membership.IsAdmin,
		IsDeveloper: membership.IsDeveloper,
		Groups:      claims.Groups,
	}, nil
}

func (v *TokenValidator) decodeHeader(segment string) (*tokenHeader, error) {
	data, err := v.parser.DecodeSegment(segment)
	if err != nil {
		return nil, malformed("header encoding", err)
	}

	header := &tokenHeader{}
	if err := json.Unmarshal(data, header); err != nil {
		return nil, malformed("header json", err)
	}

	if header.Alg != jwt.SigningMethodRS256.Alg() {
		return nil, NewError(ErrTokenMalformedStructure, nil, map[string]any{
			"reason": "unexpected alg",
			"alg":    header.Alg,
		})
	}

	return header, nil
}

func (v *TokenValidator) decodeClaims(segment string) (*TokenClaims, error) {
	data, err := v.parser.DecodeSegment(segment)
	if err != nil {
		return nil, malformed("payload encoding", err)
	}

	typed := payloadClaims{}
	if err := json.Unmarshal(data, &typed); err != nil {
		return nil, malformed("payload claims", err)
	}
	if typed.Subject == nil || *typed.Subject == "" || typed.Issuer == nil || typed.Expiry == nil {
		return nil, NewError(ErrTokenMalformedStructure, nil, map[string]any{
			"reason": "missing required claim",
		})
	}

	rawClaims := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &rawClaims); err != nil {
		return nil, malformed("payload object", err)
	}

	groups := []string{}
	for _, name := range v.groupClaims {
		value, ok := rawClaims[name]
		if !ok || string(value) == "null" {
			continue
		}
		if err := json.Unmarshal(value, &groups); err != nil {
			return nil, malformed("groups claim", err)
		}
		break
	}

	return &TokenClaims{
		Subject: *typed.Subject,
		Issuer:  *typed.Issuer,
		Expiry:  *typed.Expiry,
		Groups:  groups,
	}, nil
}

func (v *TokenValidator) verifySignature(segments []string, key any) error {
	signature, err := v.parser.DecodeSegment(segments[2])
	if err != nil {
		return NewError(ErrTokenBadSignature, err, nil)
	}

	signed := segments[0] + "." + segments[1]
	if err := jwt.SigningMethodRS256.Verify(signed, signature, key); err != nil {
		return NewError(ErrTokenBadSignature, err, nil)
	}
	return nil
}

func keyError(kid string, err error) *goerrors.Error {
	metadata := map[string]any{"kid": kid}
	if errors.Is(err, jwks.ErrKeyNotFound) {
		return NewError(ErrTokenUnknownKey, err, metadata)
	}
	return NewError(ErrTokenKeySetUnavailable, err, metadata)
}

func malformed(reason string, err error) *goerrors.Error {
	return NewError(ErrTokenMalformedStructure, err, map[string]any{
		"reason": reason,
	})
}
