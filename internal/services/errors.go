package services

import "errors"

var (
	// ErrUnknownArtifact is returned when the requested device type or
	// firmware version is not available in the registry.
	ErrUnknownArtifact = errors.New("unknown device type or firmware version")

	// ErrNotFound is returned when no flash request matches the payment hash.
	ErrNotFound = errors.New("flash request not found")

	// ErrInvalidTransition is returned when an operation is attempted from
	// the wrong lifecycle state.
	ErrInvalidTransition = errors.New("operation not allowed in current state")

	// ErrArtifactMissing is returned when the registry entry vanished after
	// the token was issued.
	ErrArtifactMissing = errors.New("firmware artifact no longer available")

	// ErrUpstreamPayment is returned when LNbits fails to mint the invoice.
	ErrUpstreamPayment = errors.New("upstream invoice creation failed")

	// ErrPromoInvalid is returned for an unknown, inactive or exhausted
	// promo code, or one applied to a zero discount.
	ErrPromoInvalid = errors.New("invalid promo code")
)
