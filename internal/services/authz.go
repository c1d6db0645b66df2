package services

import (
	"github.com/google/uuid"
	"github.com/heavenly/backend/internal/models"
)

type Action string

const (
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// Owned is implemented by resources that carry a controlling user reference:
// a listing is controlled by its owner, a review by its author.
type Owned interface {
	ControlledBy(userID uuid.UUID) bool
}

type OwnedListing struct{ *models.Listing }

func (o OwnedListing) ControlledBy(userID uuid.UUID) bool {
	return o.Listing != nil && o.Listing.OwnerID == userID
}

type OwnedReview struct{ *models.Review }

func (o OwnedReview) ControlledBy(userID uuid.UUID) bool {
	return o.Review != nil && o.Review.AuthorID == userID
}

// Can is the single permission decision point. Admins bypass ownership for
// every action; everyone else must control the resource.
func Can(user *models.User, _ Action, resource Owned) bool {
	if user == nil {
		return false
	}
	if user.Role == models.UserRoleAdmin {
		return true
	}
	return resource.ControlledBy(user.ID)
}
