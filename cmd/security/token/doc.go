// Package token issues and verifies the signed session tokens clients present when
// opening a portal session.
//
// Format: base64url(user id) "." expiry (unix seconds) "." hex(HMAC-SHA256(key, first two parts)).
//
// Environment:
// - CAMPUS_TOKEN_HMAC_KEY: the signing key.
// Policy:
//   - If RequireTokenHMAC=true, callers MUST enforce a minimum key size (>= 32 bytes).
package token
