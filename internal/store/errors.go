package store

import "errors"

var (
	// ErrRecordNotFound wraps GORM's not found error for consistency
	ErrRecordNotFound = errors.New("record not found")

	// ErrInvalidTransition is returned by the conditional transition methods
	// when the request was not in the expected source state (0 rows updated).
	ErrInvalidTransition = errors.New("request not in expected state")

	// ErrTokenAlreadyUsed is returned by ConsumeToken when the token was
	// already consumed by a concurrent download (0 rows updated).
	ErrTokenAlreadyUsed = errors.New("download token already consumed")

	// ErrPromoExhausted is returned by IncrementPromoUsage when the code has
	// no remaining uses.
	ErrPromoExhausted = errors.New("promo code has no remaining uses")
)
