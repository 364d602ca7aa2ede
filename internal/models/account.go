package models

import (
	"time"

	"gorm.io/datatypes"
)

// AccountKind tags which account table an identity belongs to.
type AccountKind string

const (
	// KindDiner marks a diner account.
	KindDiner AccountKind = "diner"
	// KindEatery marks an eatery account.
	KindEatery AccountKind = "eatery"
)

// Valid reports whether k is a known account kind.
func (k AccountKind) Valid() bool {
	return k == KindDiner || k == KindEatery
}

// AccountRef identifies an authenticated account of either kind.
type AccountRef struct {
	ID   uint64
	Kind AccountKind
}

// IsDiner reports whether the reference points at a diner account.
func (r AccountRef) IsDiner() bool { return r.Kind == KindDiner }

// Diner represents a customer account.
type Diner struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Email    string `gorm:"type:text;not null;uniqueIndex"` // Login email.
	Password string `gorm:"type:text;not null"`             // Hashed password.
	Name     string `gorm:"type:text;not null"`             // Display name.
	Avatar   string `gorm:"type:text"`                      // Avatar URL or data URI.

	RecommendTags datatypes.JSONSlice[string] `gorm:"type:jsonb"` // Tags collected from liked eateries.
	Visited       datatypes.JSONSlice[string] `gorm:"type:jsonb"` // Names of eateries the diner interacted with.
	Blacklist     datatypes.JSONSlice[uint64] `gorm:"type:jsonb"` // Eatery IDs hidden from recommendations.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// Eatery represents a restaurant account.
type Eatery struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Email    string `gorm:"type:text;not null;uniqueIndex"` // Login email.
	Password string `gorm:"type:text;not null"`             // Hashed password.
	Name     string `gorm:"type:text;not null;index"`       // Display name.
	Contact  string `gorm:"type:varchar(10)"`               // Phone number, at most 10 characters.
	Address  string `gorm:"type:text"`                      // Street address.
	Avatar   string `gorm:"type:text"`                      // Avatar URL or data URI.

	Latitude  float64 `gorm:"not null;default:0"` // Latitude rounded to 6 places.
	Longitude float64 `gorm:"not null;default:0"` // Longitude rounded to 6 places.

	Description string                      `gorm:"type:text"`  // Free-form description.
	Cuisine     string                      `gorm:"type:text"`  // Cuisine label.
	Pricing     string                      `gorm:"type:text"`  // Price band, e.g. "$$".
	Tags        datatypes.JSONSlice[string] `gorm:"type:jsonb"` // Search and recommendation tags.
	Images      datatypes.JSONSlice[string] `gorm:"type:jsonb"` // Image URLs.
	Menu        datatypes.JSON              `gorm:"type:jsonb"` // Menu categories and items.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
