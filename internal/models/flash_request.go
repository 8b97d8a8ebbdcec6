package models

import (
	"time"
)

// Flash request status values. A request only ever moves forward through
// pending -> paid -> token_issued -> downloaded -> completed, or into the
// terminal expired state from pending, paid or token_issued.
const (
	StatusPending     = "pending"
	StatusPaid        = "paid"
	StatusTokenIssued = "token_issued"
	StatusDownloaded  = "downloaded"
	StatusCompleted   = "completed"
	StatusExpired     = "expired"
)

// statusRank orders the forward states for monotonicity checks. Terminal
// expired is not ranked; it absorbs any non-terminal state.
var statusRank = map[string]int{
	StatusPending:     0,
	StatusPaid:        1,
	StatusTokenIssued: 2,
	StatusDownloaded:  3,
	StatusCompleted:   4,
}

// StatusRank returns the position of a forward state in the lifecycle
// ordering, or -1 for expired/unknown states.
func StatusRank(status string) int {
	if rank, ok := statusRank[status]; ok {
		return rank
	}
	return -1
}

// FlashRequest is one user-initiated flash attempt, keyed by the payment
// hash assigned by LNbits at invoice creation.
type FlashRequest struct {
	PaymentHash     string     `gorm:"primaryKey"     json:"payment_hash"`
	Bolt11          string     `gorm:"not null"       json:"bolt11"` // invoice payload handed to the caller
	DeviceType      string     `gorm:"not null;index" json:"device_type"`
	FirmwareVersion string     `gorm:"not null"       json:"firmware_version"`
	WalletID        string     `gorm:"not null"       json:"wallet_id"`
	AmountSats      int64      `gorm:"not null"       json:"amount_sats"` // frozen at creation, never revised
	Status          string     `gorm:"not null;default:'pending';index" json:"status"`
	Token           string     `json:"-"` // set at most once, when the payment settles
	TokenExpiresAt  *time.Time `json:"token_expires_at,omitempty"`
	TokenUsed       bool       `gorm:"not null;default:false" json:"token_used"`
	CreatedAt       time.Time  `json:"created_at"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	DownloadedAt    *time.Time `json:"downloaded_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// IsTerminal reports whether no further transition is possible.
func (r *FlashRequest) IsTerminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusExpired
}

// TokenLapsed reports whether an issued token has passed its expiry.
func (r *FlashRequest) TokenLapsed(now time.Time) bool {
	return r.TokenExpiresAt != nil && now.After(*r.TokenExpiresAt)
}
