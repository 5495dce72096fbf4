package auth0

import (
	"fmt"
	"strings"

	"github.com/auth0/go-auth0/management"
	validation "github.com/go-ozzo/ozzo-validation"
)

// Config holds the Auth0 management API settings.
type Config struct {
	// Domain is the Auth0 tenant domain (e.g., "example.us.auth0.com").
	Domain string

	// ClientID is the M2M application client ID.
	ClientID string

	// ClientSecret is the M2M application client secret.
	ClientSecret string

	// Client is an existing management client (optional).
	Client *management.Management
}

// Validate checks the fields needed to build a client.
func (c Config) Validate() error {
	if c.Client != nil {
		return nil
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.Domain, validation.Required),
		validation.Field(&c.ClientID, validation.Required),
		validation.Field(&c.ClientSecret, validation.Required),
	)
}

// IssuerURL returns the token issuer for the tenant.
func (c Config) IssuerURL() string {
	domain := strings.TrimSpace(c.Domain)
	if domain == "" {
		return ""
	}
	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		return strings.TrimSuffix(domain, "/") + "/"
	}
	return fmt.Sprintf("https://%s/", strings.TrimSuffix(domain, "/"))
}

// JWKSURL returns the tenant key set endpoint.
func (c Config) JWKSURL() string {
	issuer := c.IssuerURL()
	if issuer == "" {
		return ""
	}
	return issuer + ".well-known/jwks.json"
}
