package handlers

import (
	"fmt"
	"mime"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/heavenly/backend/internal/geo"
	"github.com/heavenly/backend/internal/middleware"
	"github.com/heavenly/backend/internal/models"
	"github.com/heavenly/backend/internal/services"
	"github.com/heavenly/backend/internal/storage"
	"github.com/heavenly/backend/pkg/logger"
	"github.com/heavenly/backend/pkg/utils"
	"gorm.io/gorm"
)

type ListingsHandler struct {
	DB      *gorm.DB
	Storage storage.ObjectStore
	Geo     geo.Geocoder
	Cascade *services.CascadeService
	Audit   *services.AuditService
}

func NewListingsHandler(db *gorm.DB, store storage.ObjectStore, geocoder geo.Geocoder, cascade *services.CascadeService, audit *services.AuditService) *ListingsHandler {
	return &ListingsHandler{DB: db, Storage: store, Geo: geocoder, Cascade: cascade, Audit: audit}
}

const listingSearchColumns = "LOWER(title) LIKE ? ESCAPE '\\' OR LOWER(location) LIKE ? ESCAPE '\\' OR LOWER(country) LIKE ? ESCAPE '\\' OR LOWER(description) LIKE ? ESCAPE '\\'"

func (h *ListingsHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	query := h.DB.Model(&models.Listing{})
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		pattern := likePattern(q)
		query = query.Where(listingSearchColumns, pattern, pattern, pattern, pattern)
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

func (h *ListingsHandler) Get(c *fiber.Ctx) error {
	listingID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid listing id")
	}

	var listing models.Listing
	err = h.DB.Preload("Owner").Preload("Reviews.Author").First(&listing, "id = ?", listingID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "listing not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching listing")
	}

	return utils.Success(c, fiber.StatusOK, listing)
}

type createListingRequest struct {
	Title       string  `json:"title" form:"title"`
	Description string  `json:"description" form:"description"`
	Price       float64 `json:"price" form:"price"`
	Location    string  `json:"location" form:"location"`
	Country     string  `json:"country" form:"country"`
	ImageURL    string  `json:"imageURL" form:"imageURL"`
}

func (h *ListingsHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req createListingRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.ImageURL = strings.TrimSpace(req.ImageURL)

	if msg := validateListingFields(req.Title, req.Description, req.Price, req.Location, req.Country, req.ImageURL); msg != "" {
		return utils.Error(c, fiber.StatusBadRequest, msg)
	}

	listing := models.Listing{
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Price:       req.Price,
		Location:    strings.TrimSpace(req.Location),
		Country:     strings.TrimSpace(req.Country),
		ImageURL:    req.ImageURL,
		OwnerID:     currentUser.ID,
	}

	if fileHeader, err := c.FormFile("image"); err == nil && fileHeader != nil {
		objectName, publicURL, uploadErr := h.uploadImage(c, fileHeader)
		if uploadErr != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed uploading image")
		}
		listing.ImageKey = objectName
		listing.ImageURL = publicURL
	}
	listing.ApplyDefaultImage()

	// Geocoding is best effort: any failure already degraded to the zero point.
	point := h.Geo.Geocode(c.Context(), geocodeQuery(listing.Location, listing.Country))
	listing.Longitude = point.Longitude
	listing.Latitude = point.Latitude

	if err := h.DB.Create(&listing).Error; err != nil {
		if listing.HasCustomImage() && h.Storage != nil {
			_ = h.Storage.Delete(c.Context(), listing.ImageKey)
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating listing")
	}

	logger.InfoWithUser(currentUser.ID.String(), "listing_created", map[string]interface{}{
		"listing_id": listing.ID.String(),
		"title":      listing.Title,
	})
	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "listing.create",
		ResourceType: "listing",
		ResourceID:   &listing.ID,
		Details:      map[string]interface{}{"title": listing.Title},
		IPAddress:    c.IP(),
	})

	return utils.Success(c, fiber.StatusCreated, listing)
}

type updateListingRequest struct {
	Title       *string  `json:"title" form:"title"`
	Description *string  `json:"description" form:"description"`
	Price       *float64 `json:"price" form:"price"`
	Location    *string  `json:"location" form:"location"`
	Country     *string  `json:"country" form:"country"`
	ImageURL    *string  `json:"imageURL" form:"imageURL"`
}

func (h *ListingsHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	listingID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid listing id")
	}

	var listing models.Listing
	if err := h.DB.First(&listing, "id = ?", listingID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "listing not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching listing")
	}

	if !services.Can(currentUser, services.ActionEdit, services.OwnedListing{Listing: &listing}) {
		return utils.Error(c, fiber.StatusForbidden, "you do not have permission to do that")
	}

	var req updateListingRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	previousLocation := listing.Location
	previousCountry := listing.Country

	if req.Title != nil {
		listing.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		listing.Description = strings.TrimSpace(*req.Description)
	}
	if req.Price != nil {
		listing.Price = *req.Price
	}
	if req.Location != nil {
		listing.Location = strings.TrimSpace(*req.Location)
	}
	if req.Country != nil {
		listing.Country = strings.TrimSpace(*req.Country)
	}

	externalImageURL := ""
	if req.ImageURL != nil && strings.TrimSpace(*req.ImageURL) != "" {
		externalImageURL = strings.TrimSpace(*req.ImageURL)
	}

	if msg := validateListingFields(listing.Title, listing.Description, listing.Price, listing.Location, listing.Country, externalImageURL); msg != "" {
		return utils.Error(c, fiber.StatusBadRequest, msg)
	}

	fileHeader, fileErr := c.FormFile("image")
	hasUpload := fileErr == nil && fileHeader != nil

	if hasUpload || externalImageURL != "" {
		// A replaced image releases the previous stored object first; the
		// reserved default key is never deleted.
		if listing.HasCustomImage() && h.Storage != nil {
			if err := h.Storage.Delete(c.Context(), listing.ImageKey); err != nil {
				logger.Error("listing_image_replace_delete_failed", err, map[string]interface{}{
					"listing_id": listing.ID.String(),
					"image_key":  listing.ImageKey,
				})
			}
		}
	}

	switch {
	case hasUpload:
		objectName, publicURL, uploadErr := h.uploadImage(c, fileHeader)
		if uploadErr != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed uploading image")
		}
		listing.ImageKey = objectName
		listing.ImageURL = publicURL
	case externalImageURL != "":
		listing.ImageKey = models.DefaultImageKey
		listing.ImageURL = externalImageURL
	}

	if listing.Location != previousLocation || listing.Country != previousCountry {
		point := h.Geo.Geocode(c.Context(), geocodeQuery(listing.Location, listing.Country))
		listing.Longitude = point.Longitude
		listing.Latitude = point.Latitude
	}

	if err := h.DB.Save(&listing).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating listing")
	}

	logger.InfoWithUser(currentUser.ID.String(), "listing_updated", map[string]interface{}{
		"listing_id": listing.ID.String(),
	})
	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "listing.update",
		ResourceType: "listing",
		ResourceID:   &listing.ID,
		IPAddress:    c.IP(),
	})

	return utils.Success(c, fiber.StatusOK, listing)
}

func (h *ListingsHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	listingID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid listing id")
	}

	var listing models.Listing
	if err := h.DB.First(&listing, "id = ?", listingID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "listing not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching listing")
	}

	if !services.Can(currentUser, services.ActionDelete, services.OwnedListing{Listing: &listing}) {
		return utils.Error(c, fiber.StatusForbidden, "you do not have permission to do that")
	}

	if err := h.Cascade.DeleteListing(c.Context(), &listing); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting listing")
	}

	logger.InfoWithUser(currentUser.ID.String(), "listing_deleted", map[string]interface{}{
		"listing_id": listing.ID.String(),
		"title":      listing.Title,
	})
	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "listing.delete",
		ResourceType: "listing",
		ResourceID:   &listing.ID,
		Details:      map[string]interface{}{"title": listing.Title},
		IPAddress:    c.IP(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "successfully deleted the listing"})
}

func (h *ListingsHandler) uploadImage(c *fiber.Ctx, fileHeader *multipart.FileHeader) (string, string, error) {
	stream, err := fileHeader.Open()
	if err != nil {
		return "", "", err
	}
	defer stream.Close()

	filename := filepath.Base(strings.TrimSpace(fileHeader.Filename))
	if filename == "" || filename == "." {
		filename = "image"
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(filename))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	objectName := fmt.Sprintf("listings/%s/%s", uuid.New().String(), filename)
	if err := h.Storage.Upload(c.Context(), objectName, stream, fileHeader.Size, contentType); err != nil {
		return "", "", err
	}

	return objectName, h.Storage.PublicURL(objectName), nil
}
