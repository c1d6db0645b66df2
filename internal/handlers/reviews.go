package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/heavenly/backend/internal/middleware"
	"github.com/heavenly/backend/internal/models"
	"github.com/heavenly/backend/internal/services"
	"github.com/heavenly/backend/pkg/logger"
	"github.com/heavenly/backend/pkg/utils"
	"gorm.io/gorm"
)

type ReviewsHandler struct {
	DB      *gorm.DB
	Pending *services.PendingReviewService
	Cascade *services.CascadeService
	Audit   *services.AuditService
}

func NewReviewsHandler(db *gorm.DB, pending *services.PendingReviewService, cascade *services.CascadeService, audit *services.AuditService) *ReviewsHandler {
	return &ReviewsHandler{DB: db, Pending: pending, Cascade: cascade, Audit: audit}
}

type createReviewRequest struct {
	Rating  int    `json:"rating" form:"rating"`
	Comment string `json:"comment" form:"comment"`
}

// Create handles both authenticated and anonymous submissions. Anonymous
// payloads are captured as a pending review and answered with 401 plus a
// one-shot token so the submission survives the trip through login.
func (h *ReviewsHandler) Create(c *fiber.Ctx) error {
	listingID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid listing id")
	}

	var req createReviewRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		token, captureErr := h.Pending.Capture(c.Context(), listingID, req.Rating, req.Comment)
		if captureErr != nil {
			logger.Error("pending_review_capture_failed", captureErr, map[string]interface{}{
				"listing_id": listingID.String(),
			})
			return utils.Error(c, fiber.StatusUnauthorized, "you must be signed in first")
		}
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success":      false,
			"error":        "you must be signed in first",
			"pendingToken": token,
			"redirectTo":   "/login",
		})
	}

	var listing models.Listing
	if err := h.DB.First(&listing, "id = ?", listingID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "listing not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching listing")
	}

	if msg := validateReviewPayload(req.Rating, req.Comment); msg != "" {
		return utils.Error(c, fiber.StatusBadRequest, msg)
	}

	review := models.Review{
		Rating:    req.Rating,
		Comment:   strings.TrimSpace(req.Comment),
		ListingID: listing.ID,
		AuthorID:  currentUser.ID,
	}

	if err := h.DB.Create(&review).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating review")
	}

	logger.InfoWithUser(currentUser.ID.String(), "review_created", map[string]interface{}{
		"review_id":  review.ID.String(),
		"listing_id": listing.ID.String(),
		"rating":     review.Rating,
	})
	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "review.create",
		ResourceType: "review",
		ResourceID:   &review.ID,
		Details:      map[string]interface{}{"listing_id": listing.ID.String()},
		IPAddress:    c.IP(),
	})

	return utils.Success(c, fiber.StatusCreated, review)
}

func (h *ReviewsHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	listingID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid listing id")
	}
	reviewID, err := parseUUID(c.Params("reviewId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid review id")
	}

	var review models.Review
	if err := h.DB.First(&review, "id = ?", reviewID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "review not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching review")
	}

	if review.ListingID != listingID {
		return utils.Error(c, fiber.StatusNotFound, "review not found")
	}

	if !services.Can(currentUser, services.ActionDelete, services.OwnedReview{Review: &review}) {
		return utils.Error(c, fiber.StatusForbidden, "you do not have permission to do that")
	}

	if err := h.Cascade.DeleteReview(c.Context(), review.ID); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting review")
	}

	logger.InfoWithUser(currentUser.ID.String(), "review_deleted", map[string]interface{}{
		"review_id":  review.ID.String(),
		"listing_id": listingID.String(),
	})
	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "review.delete",
		ResourceType: "review",
		ResourceID:   &review.ID,
		Details:      map[string]interface{}{"listing_id": listingID.String()},
		IPAddress:    c.IP(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "successfully deleted the review"})
}
