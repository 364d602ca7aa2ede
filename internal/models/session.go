package models

import "time"

// Session backs a signed token; deleting it revokes the token.
type Session struct {
	ID string `gorm:"type:varchar(36);primaryKey"` // Session UUID embedded in the token.

	AccountID uint64      `gorm:"not null;index"`            // Owner account ID.
	Kind      AccountKind `gorm:"type:varchar(16);not null"` // Owner account kind.

	ExpiresAt time.Time `gorm:"not null;index"`          // Session expiry.
	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// PasswordReset is an emailed reset code awaiting use.
type PasswordReset struct {
	Code string `gorm:"type:varchar(36);primaryKey"` // Reset code sent to the account email.

	AccountID uint64      `gorm:"not null;index"`            // Account being reset.
	Kind      AccountKind `gorm:"type:varchar(16);not null"` // Account kind.

	ExpiresAt time.Time `gorm:"not null"`                // Code expiry.
	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
