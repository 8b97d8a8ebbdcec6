// Package token mints and verifies the single-use download credentials that
// gate firmware retrieval. A token is an HS256 JWT binding a payment hash to
// one (device type, version) artifact for a short window. The service is a
// pure verifier: single-use enforcement lives in the store's conditional
// update, which the download path runs before streaming.
package token

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the verified contents of a download token.
type Claims struct {
	PaymentHash     string
	DeviceType      string
	FirmwareVersion string
	IssuedAt        time.Time
	ExpiresAt       time.Time
}

// Service signs and verifies download tokens with a process-wide secret
// established at startup. Construct one instance and pass it to every
// caller that needs it; the key is never rotated mid-process.
type Service struct {
	secret []byte
	ttl    time.Duration
	issuer string

	// now is swappable for tests
	now func() time.Time
}

func NewService(secret string, ttl time.Duration, issuer string) *Service {
	return &Service{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: issuer,
		now:    time.Now,
	}
}

// Mint produces a signed token binding the payment hash to one artifact,
// valid for the service TTL from now.
func (s *Service) Mint(paymentHash, deviceType, firmwareVersion string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := jwt.MapClaims{
		"payment_hash": paymentHash,
		"device":       deviceType,
		"version":      firmwareVersion,
		"iat":          now.Unix(),
		"exp":          expiresAt.Unix(),
		"iss":          s.issuer,
		"jti":          uuid.New().String(),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}
	return signed, expiresAt, nil
}

// ExtractPaymentHash verifies the candidate's signature and returns its
// payment_hash claim, so the download path can locate the owning request
// before running the full binding checks in Validate. Expired tokens still
// resolve here; expiry is reported by Validate against the stored state.
func (s *Service) ExtractPaymentHash(candidate string) (string, error) {
	parsed, err := jwt.Parse(candidate, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil && !errors.Is(err, jwt.ErrTokenExpired) {
		return "", ErrTokenInvalid
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrTokenInvalid
	}
	paymentHash, _ := mapClaims["payment_hash"].(string)
	if paymentHash == "" {
		return "", ErrTokenInvalid
	}
	return paymentHash, nil
}

// Validate verifies a candidate token against the stored request. The
// token's own claims are never trusted alone: the signature must verify,
// the expiry must not have passed, the claims must match the request the
// caller looked up, the candidate must be the very token the request was
// issued, and the stored single-use flag must still be clear.
func (s *Service) Validate(req *models.FlashRequest, candidate string) (*Claims, error) {
	parsed, err := jwt.Parse(candidate, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}

	paymentHash, _ := mapClaims["payment_hash"].(string)
	device, _ := mapClaims["device"].(string)
	version, _ := mapClaims["version"].(string)
	exp, ok := mapClaims["exp"].(float64)
	if !ok {
		return nil, ErrTokenInvalid
	}
	iat, _ := mapClaims["iat"].(float64)

	// Binding checks against the stored request
	if paymentHash != req.PaymentHash ||
		device != req.DeviceType ||
		version != req.FirmwareVersion {
		return nil, ErrTokenInvalid
	}
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(req.Token)) != 1 {
		return nil, ErrTokenInvalid
	}

	// The stored expiry is authoritative over the claim
	if req.TokenLapsed(s.now()) {
		return nil, ErrTokenExpired
	}
	if req.TokenUsed {
		return nil, ErrTokenAlreadyUsed
	}

	return &Claims{
		PaymentHash:     paymentHash,
		DeviceType:      device,
		FirmwareVersion: version,
		IssuedAt:        time.Unix(int64(iat), 0),
		ExpiresAt:       time.Unix(int64(exp), 0),
	}, nil
}
