package models

import "time"

// Review is a top-level review or a reply in an eatery's thread.
type Review struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	EateryID uint64  `gorm:"not null;index"` // Eatery being reviewed.
	ParentID *uint64 `gorm:"index"`          // Parent review; nil for top-level reviews.

	AuthorID   uint64      `gorm:"not null;index"`            // Author account ID.
	AuthorKind AccountKind `gorm:"type:varchar(16);not null"` // Author account kind.

	Rating      *float64 `gorm:"type:decimal(3,1)"` // Star rating; nil for replies.
	Title       string   `gorm:"type:text"`         // Short title.
	Description string   `gorm:"type:text"`         // Body text.

	PostedAt time.Time `gorm:"not null;index"`         // Client-supplied post time.
	Edited   bool      `gorm:"not null;default:false"` // Set once the review is edited.
	Deleted  bool      `gorm:"not null;default:false"` // Tombstone flag.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// EateryReviewer records that a diner has reviewed an eatery at least once.
type EateryReviewer struct {
	EateryID uint64 `gorm:"primaryKey"` // Reviewed eatery.
	DinerID  uint64 `gorm:"primaryKey"` // Reviewing diner.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // First review timestamp.
}
