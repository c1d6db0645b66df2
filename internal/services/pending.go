package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/heavenly/backend/internal/models"
	"github.com/heavenly/backend/pkg/logger"
	"gorm.io/gorm"
)

const pendingTokenBytes = 32

// PendingReviewService stores review submissions that arrived without a
// session so they can be replayed once the submitter authenticates. Tokens are
// single use and stored hashed; rows expire after the configured TTL.
type PendingReviewService struct {
	DB  *gorm.DB
	TTL time.Duration
}

func NewPendingReviewService(db *gorm.DB, ttl time.Duration) *PendingReviewService {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &PendingReviewService{DB: db, TTL: ttl}
}

// Capture stores the attempted submission and returns the raw token handed to
// the anonymous client. Only the hash is persisted.
func (s *PendingReviewService) Capture(ctx context.Context, listingID uuid.UUID, rating int, comment string) (string, error) {
	raw := make([]byte, pendingTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	token := hex.EncodeToString(raw)

	row := models.PendingReview{
		TokenHash: hashPendingToken(token),
		ListingID: listingID,
		Rating:    rating,
		Comment:   comment,
		ReturnTo:  fmt.Sprintf("/listings/%s", listingID),
		ExpiresAt: time.Now().Add(s.TTL),
	}

	if err := s.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return "", err
	}

	logger.Info("pending_review_captured", map[string]interface{}{
		"listing_id": listingID.String(),
		"expires_at": row.ExpiresAt.UTC().Format(time.RFC3339),
	})
	return token, nil
}

// Consume resolves and removes the pending record for the given raw token.
// The row is cleared whether or not the caller ends up creating a review, so
// a token can only ever be replayed once. Expired or unknown tokens yield
// (nil, false).
func (s *PendingReviewService) Consume(ctx context.Context, token string) (*models.PendingReview, bool) {
	if token == "" {
		return nil, false
	}

	var row models.PendingReview
	err := s.DB.WithContext(ctx).
		Where("token_hash = ?", hashPendingToken(token)).
		First(&row).Error
	if err != nil {
		return nil, false
	}

	s.DB.WithContext(ctx).Delete(&models.PendingReview{}, "id = ?", row.ID)

	if time.Now().After(row.ExpiresAt) {
		logger.Info("pending_review_expired", map[string]interface{}{
			"listing_id": row.ListingID.String(),
		})
		return nil, false
	}

	return &row, true
}

// StartSweeper periodically removes expired rows left behind by clients that
// never came back to authenticate.
func (s *PendingReviewService) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			result := s.DB.Where("expires_at < ?", time.Now()).Delete(&models.PendingReview{})
			if result.Error != nil {
				logger.Error("pending_review_sweep_failed", result.Error, nil)
			} else if result.RowsAffected > 0 {
				logger.Info("pending_review_swept", map[string]interface{}{
					"removed": result.RowsAffected,
				})
			}
		}
	}()
}

func hashPendingToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
