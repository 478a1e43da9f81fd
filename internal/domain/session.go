package domain

import "time"

// ============================================================
// Sessions
// ============================================================

// Session is an authenticated subject together with the bearer token that
// proves it. It is passed explicitly to every call that needs it.
type Session struct {
	ID          string    `json:"id"`
	Subject     Subject   `json:"subject"`
	AccessToken string    `json:"-"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Active reports whether the session carries a token that has not expired.
// A zero ExpiresAt means the expiry is unknown to the holder (e.g. a token
// pasted on the command line) and is left for the issuer to enforce.
func (s *Session) Active(now time.Time) bool {
	if s == nil || s.AccessToken == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

// LoginRequest is the payload of POST /api/v1/auth/login.
type LoginRequest struct {
	Scope     Scope  `json:"scope"`
	SubjectID string `json:"subject_id"`
	Name      string `json:"name"`
}

// LoginResponse is returned after a successful login.
type LoginResponse struct {
	AccessToken string  `json:"access_token"`
	TokenType   string  `json:"token_type"`
	ExpiresIn   int     `json:"expires_in"`
	Subject     Subject `json:"subject"`
	Name        string  `json:"name"`
}
