// Package auth0 implements accounts.IdentityProvider on the Auth0 Management API.
//
// Managed groups map to Auth0 roles with the same name. Disabling a user sets
// the blocked flag; list page tokens are page numbers.
package auth0
