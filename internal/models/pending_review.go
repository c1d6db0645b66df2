package models

import (
	"time"

	"github.com/google/uuid"
)

// PendingReview holds a review submission that arrived without authentication.
// The anonymous client receives a one-shot token and is sent to login; a
// successful login or signup carrying the token replays the submission with
// the authenticated user as author. Rows expire and are swept periodically.
type PendingReview struct {
	BaseModel
	TokenHash string    `json:"-" gorm:"type:text;not null;uniqueIndex"`
	ListingID uuid.UUID `json:"listingID" gorm:"type:uuid;not null;index"`
	Rating    int       `json:"rating" gorm:"not null"`
	Comment   string    `json:"comment" gorm:"type:varchar(500);not null"`
	ReturnTo  string    `json:"returnTo" gorm:"type:text;not null"`
	ExpiresAt time.Time `json:"expiresAt" gorm:"not null;index"`
}
