package handlers

import (
	"net/mail"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/heavenly/backend/internal/middleware"
	"github.com/heavenly/backend/internal/models"
	"github.com/heavenly/backend/internal/services"
	"github.com/heavenly/backend/pkg/logger"
	"github.com/heavenly/backend/pkg/utils"
	"gorm.io/gorm"
)

type AuthHandler struct {
	DB      *gorm.DB
	Pending *services.PendingReviewService
	Audit   *services.AuditService
}

func NewAuthHandler(db *gorm.DB, pending *services.PendingReviewService, audit *services.AuditService) *AuthHandler {
	return &AuthHandler{DB: db, Pending: pending, Audit: audit}
}

type registerRequest struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	PendingToken string `json:"pendingToken"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if l := len(req.Username); l < 3 || l > 30 {
		return utils.Error(c, fiber.StatusBadRequest, "username must be between 3 and 30 characters")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid email")
	}
	if len(req.Password) < 8 {
		return utils.Error(c, fiber.StatusBadRequest, "password must be at least 8 characters")
	}

	var existing models.User
	if err := h.DB.First(&existing, "username = ? OR email = ?", req.Username, req.Email).Error; err == nil {
		return utils.Error(c, fiber.StatusConflict, "username or email already registered")
	} else if err != gorm.ErrRecordNotFound {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking existing user")
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to hash password")
	}

	user := models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: passwordHash,
		Role:         models.UserRoleUser,
	}

	if err := h.DB.Create(&user).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating user")
	}

	logger.Info("user_registered", map[string]interface{}{
		"user_id":  user.ID.String(),
		"username": user.Username,
	})
	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "user.register",
		ResourceType: "user",
		ResourceID:   &user.ID,
		Details:      map[string]interface{}{"username": user.Username},
		IPAddress:    c.IP(),
	})

	token, err := utils.GenerateToken(&user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	payload := fiber.Map{"token": token, "user": user}
	if replay := h.replayPendingReview(c, &user, req.PendingToken); replay != nil {
		payload["pendingReview"] = replay
	}

	return utils.Success(c, fiber.StatusCreated, payload)
}

type loginRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	PendingToken string `json:"pendingToken"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Username = strings.TrimSpace(req.Username)

	if req.Username == "" || req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "username and password are required")
	}

	var user models.User
	if err := h.DB.First(&user, "username = ?", req.Username).Error; err != nil {
		logger.Warn("login_failed", map[string]interface{}{
			"username": req.Username,
			"ip":       c.IP(),
			"reason":   "user_not_found",
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid username or password")
	}

	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		logger.Warn("login_failed", map[string]interface{}{
			"username": req.Username,
			"ip":       c.IP(),
			"reason":   "bad_password",
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid username or password")
	}

	token, err := utils.GenerateToken(&user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "user.login",
		ResourceType: "user",
		ResourceID:   &user.ID,
		IPAddress:    c.IP(),
	})

	payload := fiber.Map{"token": token, "user": user}
	if replay := h.replayPendingReview(c, &user, req.PendingToken); replay != nil {
		payload["pendingReview"] = replay
	}

	return utils.Success(c, fiber.StatusOK, payload)
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if user := middleware.GetCurrentUser(c); user != nil {
		h.Audit.LogAsync(services.AuditEntry{
			UserID:       &user.ID,
			Action:       "user.logout",
			ResourceType: "user",
			ResourceID:   &user.ID,
			IPAddress:    c.IP(),
		})
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "logged you out"})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return utils.Success(c, fiber.StatusOK, user)
}

// replayPendingReview turns a deferred anonymous review submission into a real
// review now that the submitter is known. The stored payload goes through the
// same validation as a direct submission; on any failure the pending state is
// discarded without retry and the caller is pointed back at the listing.
func (h *AuthHandler) replayPendingReview(c *fiber.Ctx, user *models.User, token string) fiber.Map {
	if token == "" {
		return nil
	}

	pending, ok := h.Pending.Consume(c.Context(), token)
	if !ok {
		return fiber.Map{"status": "discarded", "reason": "token expired or unknown"}
	}

	result := fiber.Map{
		"listingID":  pending.ListingID.String(),
		"redirectTo": pending.ReturnTo,
	}

	if msg := validateReviewPayload(pending.Rating, pending.Comment); msg != "" {
		result["status"] = "discarded"
		result["reason"] = msg
		return result
	}

	var listing models.Listing
	if err := h.DB.First(&listing, "id = ?", pending.ListingID).Error; err != nil {
		result["status"] = "discarded"
		result["reason"] = "listing not found"
		return result
	}

	review := models.Review{
		Rating:    pending.Rating,
		Comment:   strings.TrimSpace(pending.Comment),
		ListingID: listing.ID,
		AuthorID:  user.ID,
	}
	if err := h.DB.Create(&review).Error; err != nil {
		logger.Error("pending_review_replay_failed", err, map[string]interface{}{
			"listing_id": listing.ID.String(),
			"user_id":    user.ID.String(),
		})
		result["status"] = "discarded"
		result["reason"] = "failed creating review"
		return result
	}

	logger.InfoWithUser(user.ID.String(), "pending_review_replayed", map[string]interface{}{
		"review_id":  review.ID.String(),
		"listing_id": listing.ID.String(),
	})
	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "review.create",
		ResourceType: "review",
		ResourceID:   &review.ID,
		Details:      map[string]interface{}{"listing_id": listing.ID.String(), "deferred": true},
		IPAddress:    c.IP(),
	})

	result["status"] = "created"
	result["review"] = review
	return result
}
