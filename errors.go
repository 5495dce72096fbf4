package accounts

import (
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeTokenMissingOrMalformed    = "TOKEN_MISSING_OR_MALFORMED"
	TextCodeTokenMalformedStructure    = "TOKEN_MALFORMED_STRUCTURE"
	TextCodeTokenIssuerMismatch        = "TOKEN_ISSUER_MISMATCH"
	TextCodeTokenExpired               = "TOKEN_EXPIRED"
	TextCodeTokenKeySetUnavailable     = "TOKEN_KEY_SET_UNAVAILABLE"
	TextCodeTokenUnknownKey            = "TOKEN_UNKNOWN_KEY"
	TextCodeTokenBadSignature          = "TOKEN_BAD_SIGNATURE"
	TextCodeTokenInsufficientPrivilege = "TOKEN_INSUFFICIENT_PRIVILEGE"

	TextCodeForbiddenSelfDelete       = "FORBIDDEN_SELF_DELETE"
	TextCodeForbiddenSelfHardDelete   = "FORBIDDEN_SELF_HARD_DELETE"
	TextCodeForbiddenNotOwner         = "FORBIDDEN_NOT_OWNER"
	TextCodeForbiddenSelfStatusChange = "FORBIDDEN_SELF_STATUS_CHANGE"

	TextCodeProfileNotFound  = "PROFILE_NOT_FOUND"
	TextCodeProviderError    = "PROVIDER_ERROR"
	TextCodeValidation       = "VALIDATION_ERROR"
	TextCodeConcurrentUpdate = "CONCURRENT_UPDATE"
)

// ErrTokenMissingOrMalformed is returned when the Authorization header is absent
// or does not carry a bearer token.
var ErrTokenMissingOrMalformed = goerrors.New("missing or malformed authorization header", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMissingOrMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformedStructure is returned when the token cannot be decoded.
var ErrTokenMalformedStructure = goerrors.New("token structure is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformedStructure).
	WithCode(goerrors.CodeUnauthorized)

var ErrTokenIssuerMismatch = goerrors.New("token issuer mismatch", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenIssuerMismatch).
	WithCode(goerrors.CodeUnauthorized)

var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenKeySetUnavailable is returned when the signing key set could not be fetched.
var ErrTokenKeySetUnavailable = goerrors.New("signing key set unavailable", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenKeySetUnavailable).
	WithCode(goerrors.CodeUnauthorized)

var ErrTokenUnknownKey = goerrors.New("token signing key is unknown", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenUnknownKey).
	WithCode(goerrors.CodeUnauthorized)

var ErrTokenBadSignature = goerrors.New("token signature verification failed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenBadSignature).
	WithCode(goerrors.CodeUnauthorized)

// ErrInsufficientPrivilege is returned when an elevated caller is required.
var ErrInsufficientPrivilege = goerrors.New("admin or developer privileges required", goerrors.CategoryAuthz).
	WithTextCode(TextCodeTokenInsufficientPrivilege).
	WithCode(goerrors.CodeForbidden)

var ErrSelfDeleteForbidden = goerrors.New("developer accounts cannot deactivate themselves", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbiddenSelfDelete).
	WithCode(goerrors.CodeForbidden)

var ErrSelfHardDelete = goerrors.New("Cannot hard delete your own account", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbiddenSelfHardDelete).
	WithCode(goerrors.CodeForbidden)

// ErrNotAccountOwner is returned when a self delete targets another account.
var ErrNotAccountOwner = goerrors.New("can only deactivate your own account", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbiddenNotOwner).
	WithCode(goerrors.CodeForbidden)

var ErrSelfStatusChange = goerrors.New("cannot change your own admin status", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbiddenSelfStatusChange).
	WithCode(goerrors.CodeForbidden)

// ErrProfileNotFound is returned when no profile matches the external subject.
var ErrProfileNotFound = goerrors.New("profile not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeProfileNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrProviderFailure wraps any failure reported by the external identity provider.
var ErrProviderFailure = goerrors.New("identity provider request failed", goerrors.CategoryOperation).
	WithTextCode(TextCodeProviderError).
	WithCode(goerrors.CodeInternal)

var ErrValidation = goerrors.New("invalid request", goerrors.CategoryValidation).
	WithTextCode(TextCodeValidation).
	WithCode(goerrors.CodeBadRequest)

// ErrConcurrentUpdate is returned when a profile changed between read and write.
var ErrConcurrentUpdate = goerrors.New("profile was modified concurrently", goerrors.CategoryConflict).
	WithTextCode(TextCodeConcurrentUpdate).
	WithCode(goerrors.CodeConflict)

// NewError clones base, attaching source and metadata. Sentinels are never mutated.
func NewError(base *goerrors.Error, source error, metadata map[string]any) *goerrors.Error {
	clone := base.Clone()
	if clone == nil {
		clone = goerrors.New(base.Message, base.Category).
			WithTextCode(base.TextCode).
			WithCode(base.Code)
	}
	if source != nil {
		clone.Source = source
	}
	if len(metadata) > 0 {
		clone = clone.WithMetadata(metadata)
	}
	return clone
}

// HasTextCode reports whether err is a rich error carrying code.
func HasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.TextCode == code
	}
	return false
}

// IsTokenError reports whether err belongs to the authentication token family.
func IsTokenError(err error) bool {
	for _, code := range []string{
		TextCodeTokenMissingOrMalformed,
		TextCodeTokenMalformedStructure,
		TextCodeTokenIssuerMismatch,
		TextCodeTokenExpired,
		TextCodeTokenKeySetUnavailable,
		TextCodeTokenUnknownKey,
		TextCodeTokenBadSignature,
		TextCodeTokenInsufficientPrivilege,
	} {
		if HasTextCode(err, code) {
			return true
		}
	}
	return false
}

// WrapProviderError converts a raw provider SDK error into a ProviderError.
// The provider message is kept so callers can surface it.
func WrapProviderError(provider, operation, userID string, err error) error {
	if err == nil {
		return nil
	}
	if HasTextCode(err, TextCodeProviderError) {
		return err
	}

	metadata := map[string]any{
		"provider":  provider,
		"operation": operation,
	}
	if userID != "" {
		metadata["user_id"] = userID
	}

	wrapped := NewError(ErrProviderFailure, err, metadata)
	wrapped.Message = fmt.Sprintf("%s %s: %v", provider, operation, err)
	return wrapped
}

// ProfileNotFound builds a not found error for the given subject.
func ProfileNotFound(uuid string, source error) error {
	return NewError(ErrProfileNotFound, source, map[string]any{
		"uuid": uuid,
	})
}

// ValidationError builds a validation error carrying the underlying message.
func ValidationError(err error) error {
	wrapped := NewError(ErrValidation, err, nil)
	if err != nil {
		wrapped.Message = err.Error()
	}
	return wrapped
}

// IsTokenExpiredError reports whether err signals an expired token.
func IsTokenExpiredError(err error) bool {
	return HasTextCode(err, TextCodeTokenExpired)
}

// IsProfileNotFound reports whether err signals a missing profile.
func IsProfileNotFound(err error) bool {
	return HasTextCode(err, TextCodeProfileNotFound)
}
