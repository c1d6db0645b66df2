package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/heavenly/backend/internal/models"
	"github.com/heavenly/backend/internal/storage"
	"github.com/heavenly/backend/pkg/logger"
	"gorm.io/gorm"
)

var ErrSelfDeletion = errors.New("cannot delete own account")

// CascadeService owns every multi-record delete path. Single listing deletes,
// admin review deletes, and admin user deletes all go through here so the
// cascade rules live in one place instead of persistence hooks.
//
// The steps are not wrapped in a transaction; a failure partway leaves the
// earlier steps committed, with log lines as the only diagnostic.
type CascadeService struct {
	DB      *gorm.DB
	Storage storage.ObjectStore
}

func NewCascadeService(db *gorm.DB, store storage.ObjectStore) *CascadeService {
	return &CascadeService{DB: db, Storage: store}
}

// DeleteListing removes a listing together with its stored image and every
// review attached to it, regardless of who authored them. The reserved default
// image key is never deleted; a storage failure is logged and swallowed so the
// records still go away.
func (s *CascadeService) DeleteListing(ctx context.Context, listing *models.Listing) error {
	if listing.HasCustomImage() && s.Storage != nil {
		if err := s.Storage.Delete(ctx, listing.ImageKey); err != nil {
			logger.Error("listing_image_delete_failed", err, map[string]interface{}{
				"listing_id": listing.ID.String(),
				"image_key":  listing.ImageKey,
			})
		}
	}

	if err := s.DB.Where("listing_id = ?", listing.ID).Delete(&models.Review{}).Error; err != nil {
		return err
	}

	return s.DB.Delete(&models.Listing{}, "id = ?", listing.ID).Error
}

// DeleteReview removes a single review record.
func (s *CascadeService) DeleteReview(ctx context.Context, reviewID uuid.UUID) error {
	return s.DB.Delete(&models.Review{}, "id = ?", reviewID).Error
}

// DeleteUser removes a user and all their data: every listing they own (each
// deleted individually so the listing cascade fires and takes other users'
// reviews on it along), every review they authored anywhere, and finally the
// user row. Self-deletion is refused.
func (s *CascadeService) DeleteUser(ctx context.Context, actorID uuid.UUID, target *models.User) error {
	if target.ID == actorID {
		return ErrSelfDeletion
	}

	var listings []models.Listing
	if err := s.DB.Where("owner_id = ?", target.ID).Find(&listings).Error; err != nil {
		return err
	}
	for i := range listings {
		if err := s.DeleteListing(ctx, &listings[i]); err != nil {
			logger.Error("user_cascade_listing_failed", err, map[string]interface{}{
				"user_id":    target.ID.String(),
				"listing_id": listings[i].ID.String(),
			})
			return err
		}
	}

	if err := s.DB.Where("author_id = ?", target.ID).Delete(&models.Review{}).Error; err != nil {
		return err
	}

	if err := s.DB.Delete(&models.User{}, "id = ?", target.ID).Error; err != nil {
		return err
	}

	logger.Info("user_cascade_deleted", map[string]interface{}{
		"user_id":  target.ID.String(),
		"username": target.Username,
		"listings": len(listings),
	})
	return nil
}
