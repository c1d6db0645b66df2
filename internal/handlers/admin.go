package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/heavenly/backend/internal/middleware"
	"github.com/heavenly/backend/internal/models"
	"github.com/heavenly/backend/internal/services"
	"github.com/heavenly/backend/pkg/logger"
	"github.com/heavenly/backend/pkg/utils"
	"gorm.io/gorm"
)

type AdminHandler struct {
	DB      *gorm.DB
	Cascade *services.CascadeService
	Audit   *services.AuditService
}

func NewAdminHandler(db *gorm.DB, cascade *services.CascadeService, audit *services.AuditService) *AdminHandler {
	return &AdminHandler{DB: db, Cascade: cascade, Audit: audit}
}

const dashboardRecentLimit = 5

func (h *AdminHandler) Dashboard(c *fiber.Ctx) error {
	var totalUsers, totalListings, totalReviews int64
	if err := h.DB.Model(&models.User{}).Count(&totalUsers).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting users")
	}
	if err := h.DB.Model(&models.Listing{}).Count(&totalListings).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting listings")
	}
	if err := h.DB.Model(&models.Review{}).Count(&totalReviews).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting reviews")
	}

	var recentUsers []models.User
	var recentListings []models.Listing
	var recentReviews []models.Review
	h.DB.Order("created_at DESC").Limit(dashboardRecentLimit).Find(&recentUsers)
	h.DB.Preload("Owner").Order("created_at DESC").Limit(dashboardRecentLimit).Find(&recentListings)
	h.DB.Preload("Author").Order("created_at DESC").Limit(dashboardRecentLimit).Find(&recentReviews)

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"totalUsers":     totalUsers,
		"totalListings":  totalListings,
		"totalReviews":   totalReviews,
		"recentUsers":    recentUsers,
		"recentListings": recentListings,
		"recentReviews":  recentReviews,
	})
}

func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	query := h.DB.Model(&models.User{})
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		pattern := likePattern(search)
		query = query.Where("LOWER(username) LIKE ? ESCAPE '\\' OR LOWER(email) LIKE ? ESCAPE '\\'", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting users")
	}

	var users []models.User
	if err := utils.ApplyPagination(query.Order("created_at DESC"), p).Find(&users).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing users")
	}

	return utils.Paginated(c, users, p.Page, p.Limit, total)
}

func (h *AdminHandler) DeleteUser(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	userID, err := parseUUID(c.Params("userId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var target models.User
	if err := h.DB.First(&target, "id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching user")
	}

	if err := h.Cascade.DeleteUser(c.Context(), currentUser.ID, &target); err != nil {
		if err == services.ErrSelfDeletion {
			return utils.Error(c, fiber.StatusBadRequest, "you cannot delete your own admin account")
		}
		logger.ErrorWithUser(currentUser.ID.String(), "admin_user_delete_failed", err, map[string]interface{}{
			"target_id": target.ID.String(),
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting user")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "admin.user_delete",
		ResourceType: "user",
		ResourceID:   &target.ID,
		Details:      map[string]interface{}{"username": target.Username},
		IPAddress:    c.IP(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"message": "user \"" + target.Username + "\" and all their data deleted",
	})
}

func (h *AdminHandler) ListListings(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	query := h.DB.Model(&models.Listing{})
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		pattern := likePattern(search)
		query = query.Where("LOWER(title) LIKE ? ESCAPE '\\' OR LOWER(location) LIKE ? ESCAPE '\\' OR LOWER(country) LIKE ? ESCAPE '\\'", pattern, pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting listings")
	}

	var listings []models.Listing
	if err := utils.ApplyPagination(query.Preload("Owner").Order("created_at DESC"), p).Find(&listings).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing listings")
	}

	return utils.Paginated(c, listings, p.Page, p.Limit, total)
}

type adminReview struct {
	models.Review
	Listing *adminReviewListing `json:"listing,omitempty"`
}

type adminReviewListing struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
}

func (h *AdminHandler) ListReviews(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	query := h.DB.Model(&models.Review{})
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		query = query.Where("LOWER(comment) LIKE ? ESCAPE '\\'", likePattern(search))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting reviews")
	}

	var reviews []models.Review
	if err := utils.ApplyPagination(query.Preload("Author").Order("created_at DESC"), p).Find(&reviews).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing reviews")
	}

	// Attach the owning listing's title for the admin table.
	listingIDs := make([]uuid.UUID, 0, len(reviews))
	for _, r := range reviews {
		listingIDs = append(listingIDs, r.ListingID)
	}
	titles := map[uuid.UUID]string{}
	if len(listingIDs) > 0 {
		var listings []models.Listing
		if err := h.DB.Select("id", "title").Where("id IN ?", listingIDs).Find(&listings).Error; err == nil {
			for _, l := range listings {
				titles[l.ID] = l.Title
			}
		}
	}

	items := make([]adminReview, 0, len(reviews))
	for _, r := range reviews {
		item := adminReview{Review: r}
		if title, ok := titles[r.ListingID]; ok {
			item.Listing = &adminReviewListing{ID: r.ListingID, Title: title}
		}
		items = append(items, item)
	}

	return utils.Paginated(c, items, p.Page, p.Limit, total)
}

func (h *AdminHandler) DeleteReview(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
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

	if err := h.Cascade.DeleteReview(c.Context(), review.ID); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting review")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "admin.review_delete",
		ResourceType: "review",
		ResourceID:   &review.ID,
		Details:      map[string]interface{}{"listing_id": review.ListingID.String()},
		IPAddress:    c.IP(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "review deleted"})
}
