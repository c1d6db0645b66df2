package models

import "github.com/google/uuid"

const (
	// DefaultImageKey marks a listing without a custom image. It never refers
	// to a real stored object and must never be deleted from storage.
	DefaultImageKey = "default.jpg"
	DefaultImageURL = "https://images.pexels.com/photos/12883028/pexels-photo-12883028.jpeg"
)

type Listing struct {
	BaseModel
	Title       string    `json:"title" gorm:"type:varchar(100);not null"`
	Description string    `json:"description" gorm:"type:text;not null"`
	Price       float64   `json:"price" gorm:"not null"`
	Location    string    `json:"location" gorm:"type:varchar(100);not null"`
	Country     string    `json:"country" gorm:"type:varchar(60);not null"`
	ImageURL    string    `json:"imageURL" gorm:"type:text;not null"`
	ImageKey    string    `json:"imageKey" gorm:"type:text;not null;default:'default.jpg'"`
	Longitude   float64   `json:"longitude" gorm:"not null;default:0"`
	Latitude    float64   `json:"latitude" gorm:"not null;default:0"`
	OwnerID     uuid.UUID `json:"ownerID" gorm:"type:uuid;not null;index"`

	Owner   User     `json:"owner,omitempty" gorm:"foreignKey:OwnerID;references:ID"`
	Reviews []Review `json:"reviews,omitempty" gorm:"foreignKey:ListingID"`
}

func (l *Listing) HasCustomImage() bool {
	return l.ImageKey != "" && l.ImageKey != DefaultImageKey
}

func (l *Listing) ApplyDefaultImage() {
	if l.ImageKey == "" {
		l.ImageKey = DefaultImageKey
	}
	if l.ImageURL == "" {
		l.ImageURL = DefaultImageURL
	}
}
