package shared

import "errors"

var (
	// ErrNotFound reports a missing session user or account.
	ErrNotFound = errors.New("shared: not found")
	// ErrInvalidCredentials is returned for a bad username or password.
	ErrInvalidCredentials = errors.New("shared: invalid credentials")
	// ErrCSRFTokenMissing means the request carried no CSRF token.
	ErrCSRFTokenMissing = errors.New("shared: csrf token missing")
	// ErrCSRFTokenMismatch means the token does not belong to the session.
	ErrCSRFTokenMismatch = errors.New("shared: csrf token mismatch")
)
