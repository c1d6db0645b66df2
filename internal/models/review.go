package models

import "github.com/google/uuid"

type Review struct {
	BaseModel
	Rating    int       `json:"rating" gorm:"not null"`
	Comment   string    `json:"comment" gorm:"type:varchar(500);not null"`
	ListingID uuid.UUID `json:"listingID" gorm:"type:uuid;not null;index"`
	AuthorID  uuid.UUID `json:"authorID" gorm:"type:uuid;not null;index"`

	Author User `json:"author,omitempty" gorm:"foreignKey:AuthorID;references:ID"`
}
