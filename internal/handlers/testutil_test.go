package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/heavenly/backend/internal/database"
	"github.com/heavenly/backend/internal/geo"
	"github.com/heavenly/backend/internal/middleware"
	"github.com/heavenly/backend/internal/models"
	"github.com/heavenly/backend/internal/services"
	"github.com/heavenly/backend/pkg/logger"
	"github.com/heavenly/backend/pkg/utils"
	"gorm.io/gorm"
)

type testEnv struct {
	app     *fiber.App
	db      *gorm.DB
	store   *fakeObjectStore
	geo     *stubGeocoder
	pending *services.PendingReviewService
}

// fakeObjectStore records uploads and deletes so cascade behavior is
// observable without a running MinIO.
type fakeObjectStore struct {
	mu       sync.Mutex
	Objects  map[string][]byte
	Deleted  []string
	Uploaded []string
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{Objects: map[string][]byte{}}
}

func (f *fakeObjectStore) Upload(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, _ := io.ReadAll(reader)
	f.Objects[objectName] = data
	f.Uploaded = append(f.Uploaded, objectName)
	return nil
}

func (f *fakeObjectStore) Delete(_ context.Context, objectName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Objects, objectName)
	f.Deleted = append(f.Deleted, objectName)
	return nil
}

func (f *fakeObjectStore) PublicURL(objectName string) string {
	return "http://storage.test/heavenly-listings/" + objectName
}

func (f *fakeObjectStore) deletedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Deleted...)
}

// stubGeocoder returns a fixed point, or the zero point when failing is set.
type stubGeocoder struct {
	mu      sync.Mutex
	point   geo.Point
	failing bool
	queries []string
}

func (s *stubGeocoder) Geocode(_ context.Context, query string) geo.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	if s.failing {
		return geo.Point{}
	}
	return s.point
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		logger.Init()
		utils.ConfigureJWT("test-secret", 24)
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	store := newFakeObjectStore()
	geocoder := &stubGeocoder{point: geo.Point{Longitude: -118.78, Latitude: 34.03}}

	auditService := services.NewAuditService(db)
	cascadeService := services.NewCascadeService(db, store)
	pendingService := services.NewPendingReviewService(db, 15*time.Minute)

	authHandler := NewAuthHandler(db, pendingService, auditService)
	listingsHandler := NewListingsHandler(db, store, geocoder, cascadeService, auditService)
	reviewsHandler := NewReviewsHandler(db, pendingService, cascadeService, auditService)
	adminHandler := NewAdminHandler(db, cascadeService, auditService)
	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 20 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Post("/logout", authMiddleware.RequireAuth, authHandler.Logout)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)

	listingRoutes := api.Group("/listings")
	listingRoutes.Get("/", listingsHandler.List)
	listingRoutes.Post("/", authMiddleware.RequireAuth, listingsHandler.Create)
	listingRoutes.Get("/:id", listingsHandler.Get)
	listingRoutes.Put("/:id", authMiddleware.RequireAuth, listingsHandler.Update)
	listingRoutes.Delete("/:id", authMiddleware.RequireAuth, listingsHandler.Delete)

	listingRoutes.Post("/:id/reviews", authMiddleware.OptionalAuth, reviewsHandler.Create)
	listingRoutes.Delete("/:id/reviews/:reviewId", authMiddleware.RequireAuth, reviewsHandler.Delete)

	adminRoutes := api.Group("/admin", authMiddleware.RequireAuth, middleware.AdminOnly)
	adminRoutes.Get("/dashboard", adminHandler.Dashboard)
	adminRoutes.Get("/users", adminHandler.ListUsers)
	adminRoutes.Delete("/users/:userId", adminHandler.DeleteUser)
	adminRoutes.Get("/listings", adminHandler.ListListings)
	adminRoutes.Get("/reviews", adminHandler.ListReviews)
	adminRoutes.Delete("/reviews/:reviewId", adminHandler.DeleteReview)

	return &testEnv{app: app, db: db, store: store, geo: geocoder, pending: pendingService}
}

func createTestUser(t *testing.T, db *gorm.DB, username, email, password string, role models.UserRole) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return user, token
}

func createTestListing(t *testing.T, db *gorm.DB, owner *models.User, title string) *models.Listing {
	t.Helper()

	listing := &models.Listing{
		Title:       title,
		Description: "a perfectly serviceable place to stay",
		Price:       120,
		Location:    "Malibu",
		Country:     "United States",
	}
	listing.OwnerID = owner.ID
	listing.ApplyDefaultImage()
	if err := db.Create(listing).Error; err != nil {
		t.Fatalf("failed creating test listing: %v", err)
	}
	return listing
}

func createTestReview(t *testing.T, db *gorm.DB, listing *models.Listing, author *models.User, comment string) *models.Review {
	t.Helper()

	review := &models.Review{
		Rating:    4,
		Comment:   comment,
		ListingID: listing.ID,
		AuthorID:  author.ID,
	}
	if err := db.Create(review).Error; err != nil {
		t.Fatalf("failed creating test review: %v", err)
	}
	return review
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}

func countRows(t *testing.T, db *gorm.DB, model any, query string, args ...any) int64 {
	t.Helper()
	var count int64
	q := db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Count(&count).Error; err != nil {
		t.Fatalf("failed counting rows: %v", err)
	}
	return count
}
