package models

import "time"

// Well-known setting keys.
const (
	SettingPriceSats = "price_sats"
	SettingWalletID  = "wallet_id"
)

// Setting is a key-value configuration row (price, receiving wallet).
type Setting struct {
	Key       string `gorm:"primaryKey"`
	Value     string `gorm:"not null"`
	UpdatedAt time.Time
}
