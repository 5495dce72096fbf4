package cognito

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

// Config holds the Cognito user pool settings.
type Config struct {
	// Region is the AWS region of the user pool (e.g. "us-east-1").
	Region string

	// UserPoolID is the pool identifier (e.g. "us-east-1_AbCdEf").
	UserPoolID string

	// Issuer overrides the default issuer URL (optional).
	// Default: "https://cognito-idp.{Region}.amazonaws.com/{UserPoolID}".
	Issuer string

	// UsernameCacheTTL is how long a sub to username mapping is reused.
	// Default: 15 minutes.
	UsernameCacheTTL time.Duration
}

// Validate checks the required fields.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Region, validation.Required),
		validation.Field(&c.UserPoolID, validation.Required),
	)
}

// IssuerURL returns the token issuer for the pool, without a trailing slash.
func (c Config) IssuerURL() string {
	if issuer := strings.TrimSpace(c.Issuer); issuer != "" {
		return strings.TrimSuffix(issuer, "/")
	}
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s",
		strings.TrimSpace(c.Region),
		strings.TrimSpace(c.UserPoolID),
	)
}

// JWKSURL returns the key set endpoint for the pool.
func (c Config) JWKSURL() string {
	return c.IssuerURL() + "/.well-known/jwks.json"
}
