package token

import "errors"

var (
	// ErrTokenGeneration indicates signing failed
	ErrTokenGeneration = errors.New("failed to generate token")

	// ErrTokenInvalid indicates a bad signature or a binding mismatch
	ErrTokenInvalid = errors.New("invalid token")

	// ErrTokenExpired indicates the token passed its expiry
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenAlreadyUsed indicates the single-use token was consumed
	ErrTokenAlreadyUsed = errors.New("token already used")
)
