package models

import "time"

// Bulletin is a news item shown on the public flashing page.
type Bulletin struct {
	ID        string    `gorm:"primaryKey"                  json:"id"`
	Message   string    `gorm:"not null"                    json:"message"`
	Active    bool      `gorm:"not null;default:true;index" json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
