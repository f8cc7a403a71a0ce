package core

import "time"

// Token is a bearer token for the finance API.
// Tokens are replaced, never modified.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// NewToken returns a token for accessToken which expires lifetime after now.
func NewToken(accessToken string, now time.Time, lifetime time.Duration) Token {
	return Token{AccessToken: accessToken, ExpiresAt: now.Add(lifetime)}
}

// Usable reports whether the token can be presented at now.
// A token is usable strictly before its expiry instant.
func (t Token) Usable(now time.Time) bool {
	return t.AccessToken != "" && now.Before(t.ExpiresAt)
}

// Remaining returns the time left until expiry, which is negative for expired tokens.
func (t Token) Remaining(now time.Time) time.Duration {
	return t.ExpiresAt.Sub(now)
}
