package models

import "time"

// RateLimitWindow holds the fixed-window counter for one (identifier, endpoint)
// pair. Exactly one row exists per key and it is updated in place.
type RateLimitWindow struct {
	Identifier   string    `gorm:"primaryKey;size:191" json:"identifier"`
	Endpoint     string    `gorm:"primaryKey;size:191" json:"endpoint"`
	RequestCount int       `gorm:"not null" json:"request_count"`
	WindowStart  time.Time `gorm:"index;not null" json:"window_start"`
}

func (RateLimitWindow) TableName() string { return "rate_limit_windows" }
