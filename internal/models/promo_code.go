package models

import "time"

// PromoCode grants a percentage discount on flash invoices. A code with a
// 100 percent discount produces a free flash that is marked paid immediately.
type PromoCode struct {
	ID              string    `gorm:"primaryKey"            json:"id"`
	Code            string    `gorm:"uniqueIndex;not null"  json:"code"`
	DiscountPercent int       `gorm:"not null"              json:"discount_percent"` // 1-100
	MaxUses         int       `gorm:"not null"              json:"max_uses"`
	UsedCount       int       `gorm:"not null;default:0"    json:"used_count"`
	Active          bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt       time.Time `json:"created_at"`
}

// Exhausted reports whether the code has reached its usage limit.
func (p *PromoCode) Exhausted() bool {
	return p.UsedCount >= p.MaxUses
}
