package authn

import "errors"

// Sentinel errors returned by authentication operations. Handlers map these
// onto problem documents; anything unrecognized becomes a 500.
var (
	// ErrUnauthenticated is returned when credentials are missing or wrong.
	// Wrong-email and wrong-password cases are deliberately indistinguishable.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrInvalidToken is returned for malformed, tampered or unknown tokens
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned for structurally valid but expired tokens
	ErrTokenExpired = errors.New("token expired")

	// ErrUserInactive is returned when the account is disabled
	ErrUserInactive = errors.New("user account is inactive")

	// ErrConflict is returned when a unique constraint is violated,
	// typically a duplicate email
	ErrConflict = errors.New("resource already exists")

	// ErrNotFound is returned when a requested record does not exist
	ErrNotFound = errors.New("not found")
)
