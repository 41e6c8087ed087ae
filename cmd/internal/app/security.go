package app

import (
	"errors"

	"github.com/raj783e/campus/cmd/security/token"
)

// ValidateSecurityConfig enforces the portal's security policy at startup.
//
// Fail fast: a server that can neither verify session tokens nor trust claimed
// user ids would reject every hello.
func ValidateSecurityConfig(cfg Config) error {
	_, err := token.HMACKeyFromEnv(token.MinKeyBytes)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, token.ErrHMACKeyMissing):
		if cfg.RequireTokenHMAC {
			return errors.New("security policy: CAMPUS_REQUIRE_TOKEN_HMAC=true but CAMPUS_TOKEN_HMAC_KEY is missing")
		}
		if !cfg.AuthDevInsecure {
			return errors.New("security policy: set CAMPUS_TOKEN_HMAC_KEY or enable CAMPUS_AUTH_DEV_INSECURE")
		}
		return nil
	case errors.Is(err, token.ErrHMACKeyTooShort):
		return errors.New("security policy: CAMPUS_TOKEN_HMAC_KEY is too short (min 32 bytes)")
	default:
		return err
	}
}

// NewTokenSigner returns the session token signer, or nil when no key is configured
// (dev-insecure mode only; ValidateSecurityConfig rejects the other cases).
func NewTokenSigner() (*token.Signer, error) {
	key, err := token.HMACKeyFromEnv(token.MinKeyBytes)
	if errors.Is(err, token.ErrHMACKeyMissing) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return token.NewSigner(string(key), token.MinKeyBytes)
}
