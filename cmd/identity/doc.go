// Package identity resolves who is on the other end of a portal session.
//
// It verifies session tokens (cmd/security/token), loads the user's profile from the
// users collection, and hands callers a Principal.
package identity
