package auth

import "errors"

var (
	ErrNotFound            = errors.New("auth: account not found")
	ErrDuplicateEmail      = errors.New("auth: email already exists")
	ErrInvalidInput        = errors.New("auth: invalid input")
	ErrInvalidCredential   = errors.New("auth: invalid credential")
	ErrInvalidRefreshToken = errors.New("auth: invalid refresh token")
	ErrInvalidResetCode    = errors.New("auth: reset code is invalid or has expired")
	ErrRateLimited         = errors.New("auth: too many attempts")
)

// ErrInvalidToken indicates a token failed signature or claim validation.
var ErrInvalidToken = errors.New("auth: invalid token")

// ErrTokenExpired indicates a signature-valid token past its expiry. Kept
// distinct from ErrInvalidToken so clients can decide whether a refresh
// attempt is worthwhile.
var ErrTokenExpired = errors.New("auth: token expired")
