package handlers

import (
	"net/http"
	"testing"

	"github.com/heavenly/backend/internal/models"
)

func TestListingCreate(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env.db, "maya", "maya@test.com", "password123", models.UserRoleUser)

	validPayload := map[string]any{
		"title":       "Beach Bungalow",
		"description": "a sunny bungalow right on the sand",
		"price":       250.0,
		"location":    "Malibu",
		"country":     "United States",
	}

	t.Run("valid submission creates listing with owner and point", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/listings/", validPayload, authHeaders(token))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusCreated)

		data := body["data"].(map[string]any)
		if data["title"] != "Beach Bungalow" {
			t.Fatalf("unexpected title %v", data["title"])
		}
		if data["longitude"].(float64) != -118.78 || data["latitude"].(float64) != 34.03 {
			t.Fatalf("expected geocoded point, got %v/%v", data["longitude"], data["latitude"])
		}
		if data["imageKey"] != models.DefaultImageKey {
			t.Fatalf("expected default image key, got %v", data["imageKey"])
		}

		var listing models.Listing
		if err := env.db.First(&listing, "title = ?", "Beach Bungalow").Error; err != nil {
			t.Fatalf("listing not persisted: %v", err)
		}
		if listing.Price <= 0 {
			t.Fatalf("expected positive price, got %f", listing.Price)
		}
	})

	t.Run("geocoding failure still creates listing at zero point", func(t *testing.T) {
		env.geo.failing = true
		defer func() { env.geo.failing = false }()

		payload := map[string]any{
			"title":       "Nowhere Cabin",
			"description": "so remote the geocoder gives up",
			"price":       80.0,
			"location":    "Xyzzyville",
			"country":     "Atlantis",
		}
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/listings/", payload, authHeaders(token))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusCreated)

		data := body["data"].(map[string]any)
		if data["longitude"].(float64) != 0 || data["latitude"].(float64) != 0 {
			t.Fatalf("expected zero point fallback, got %v/%v", data["longitude"], data["latitude"])
		}
	})

	t.Run("empty title is rejected with no record", func(t *testing.T) {
		payload := map[string]any{
			"title":       "",
			"description": "description long enough to pass",
			"price":       99.0,
			"location":    "Oslo",
			"country":     "Norway",
		}
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/listings/", payload, authHeaders(token))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "title must be between 3 and 100 characters")

		if n := countRows(t, env.db, &models.Listing{}, "location = ?", "Oslo"); n != 0 {
			t.Fatalf("expected no listing created, found %d", n)
		}
	})

	t.Run("non-positive price is rejected", func(t *testing.T) {
		payload := map[string]any{
			"title":       "Free Palace",
			"description": "suspiciously affordable accommodation",
			"price":       0.0,
			"location":    "Oslo",
			"country":     "Norway",
		}
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/listings/", payload, authHeaders(token))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "price must be a positive number")
	})

	t.Run("malformed image URL is rejected", func(t *testing.T) {
		payload := map[string]any{
			"title":       "Picture House",
			"description": "the photo link does not even parse",
			"price":       60.0,
			"location":    "Oslo",
			"country":     "Norway",
			"imageURL":    "not a url",
		}
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/listings/", payload, authHeaders(token))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "image URL must be a valid URL")
	})

	t.Run("unauthenticated create is rejected", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/listings/", validPayload, nil)
		assertStatus(t, resp, http.StatusUnauthorized)
	})
}

func TestListingUpdate(t *testing.T) {
	env := setupTestEnv(t)
	owner, ownerToken := createTestUser(t, env.db, "olive", "olive@test.com", "password123", models.UserRoleUser)
	_, strangerToken := createTestUser(t, env.db, "sid", "sid@test.com", "password123", models.UserRoleUser)
	_, adminToken := createTestUser(t, env.db, "root", "root@test.com", "password123", models.UserRoleAdmin)

	t.Run("owner updates fields", func(t *testing.T) {
		listing := createTestListing(t, env.db, owner, "Old Title Cottage")
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/listings/"+listing.ID.String(), map[string]any{
			"title": "New Title Cottage",
			"price": 300.0,
		}, authHeaders(ownerToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		data := body["data"].(map[string]any)
		if data["title"] != "New Title Cottage" {
			t.Fatalf("expected updated title, got %v", data["title"])
		}
	})

	t.Run("non-owner is forbidden and listing unchanged", func(t *testing.T) {
		listing := createTestListing(t, env.db, owner, "Guarded Cottage")
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/listings/"+listing.ID.String(), map[string]any{
			"title": "Hijacked Cottage",
		}, authHeaders(strangerToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusForbidden)
		assertEnvelopeError(t, body, "you do not have permission to do that")

		var reloaded models.Listing
		if err := env.db.First(&reloaded, "id = ?", listing.ID).Error; err != nil {
			t.Fatalf("listing disappeared: %v", err)
		}
		if reloaded.Title != "Guarded Cottage" {
			t.Fatalf("listing was modified by non-owner: %q", reloaded.Title)
		}
	})

	t.Run("admin bypasses ownership", func(t *testing.T) {
		listing := createTestListing(t, env.db, owner, "Admin Reachable Cottage")
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/listings/"+listing.ID.String(), map[string]any{
			"title": "Admin Touched Cottage",
		}, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusOK)
	})

	t.Run("location change triggers re-geocode", func(t *testing.T) {
		listing := createTestListing(t, env.db, owner, "Relocating Cottage")
		before := len(env.geo.queries)

		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/listings/"+listing.ID.String(), map[string]any{
			"location": "Reykjavik",
			"country":  "Iceland",
		}, authHeaders(ownerToken))
		assertStatus(t, resp, http.StatusOK)

		if len(env.geo.queries) != before+1 {
			t.Fatalf("expected one geocode call, got %d", len(env.geo.queries)-before)
		}
		if got := env.geo.queries[len(env.geo.queries)-1]; got != "Reykjavik, Iceland" {
			t.Fatalf("unexpected geocode query %q", got)
		}
	})

	t.Run("title-only change does not re-geocode", func(t *testing.T) {
		listing := createTestListing(t, env.db, owner, "Stationary Cottage")
		before := len(env.geo.queries)

		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/listings/"+listing.ID.String(), map[string]any{
			"title": "Still Stationary Cottage",
		}, authHeaders(ownerToken))
		assertStatus(t, resp, http.StatusOK)

		if len(env.geo.queries) != before {
			t.Fatalf("expected no geocode call, got %d", len(env.geo.queries)-before)
		}
	})

	t.Run("replacing a stored image deletes the previous object", func(t *testing.T) {
		listing := createTestListing(t, env.db, owner, "Pictured Cottage")
		listing.ImageKey = "listings/abc/old.jpg"
		listing.ImageURL = "http://storage.test/heavenly-listings/listings/abc/old.jpg"
		if err := env.db.Save(listing).Error; err != nil {
			t.Fatalf("failed seeding image key: %v", err)
		}

		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/listings/"+listing.ID.String(), map[string]any{
			"imageURL": "https://example.com/new.jpg",
		}, authHeaders(ownerToken))
		assertStatus(t, resp, http.StatusOK)

		deleted := env.store.deletedKeys()
		if len(deleted) == 0 || deleted[len(deleted)-1] != "listings/abc/old.jpg" {
			t.Fatalf("expected previous object deleted, got %v", deleted)
		}
	})

	t.Run("default image key is never deleted from storage", func(t *testing.T) {
		listing := createTestListing(t, env.db, owner, "Plain Cottage")
		before := len(env.store.deletedKeys())

		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/listings/"+listing.ID.String(), map[string]any{
			"imageURL": "https://example.com/fresh.jpg",
		}, authHeaders(ownerToken))
		assertStatus(t, resp, http.StatusOK)

		if got := len(env.store.deletedKeys()); got != before {
			t.Fatalf("expected no storage delete for default key, got %d new", got-before)
		}
	})

	t.Run("missing listing is not found", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/listings/00000000-0000-0000-0000-000000000000", map[string]any{
			"title": "Ghost Cottage",
		}, authHeaders(ownerToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusNotFound)
		assertEnvelopeError(t, body, "listing not found")
	})
}

func TestListingDelete(t *testing.T) {
	env := setupTestEnv(t)
	owner, ownerToken := createTestUser(t, env.db, "dana", "dana@test.com", "password123", models.UserRoleUser)
	reviewer, _ := createTestUser(t, env.db, "rhea", "rhea@test.com", "password123", models.UserRoleUser)
	_, strangerToken := createTestUser(t, env.db, "sly", "sly@test.com", "password123", models.UserRoleUser)

	t.Run("delete removes listing, its reviews and stored image", func(t *testing.T) {
		listing := createTestListing(t, env.db, owner, "Doomed Cottage")
		listing.ImageKey = "listings/doomed/photo.jpg"
		if err := env.db.Save(listing).Error; err != nil {
			t.Fatalf("failed seeding image key: %v", err)
		}
		createTestReview(t, env.db, listing, reviewer, "lovely stay, shame about the demolition")
		createTestReview(t, env.db, listing, owner, "my own place deserves five stars")

		resp := performRequest(t, env.app, http.MethodDelete, "/api/listings/"+listing.ID.String(), nil, authHeaders(ownerToken))
		assertStatus(t, resp, http.StatusOK)

		if n := countRows(t, env.db, &models.Listing{}, "id = ?", listing.ID); n != 0 {
			t.Fatalf("listing still present")
		}
		if n := countRows(t, env.db, &models.Review{}, "listing_id = ?", listing.ID); n != 0 {
			t.Fatalf("expected no reviews referencing deleted listing, found %d", n)
		}

		deleted := env.store.deletedKeys()
		if len(deleted) == 0 || deleted[len(deleted)-1] != "listings/doomed/photo.jpg" {
			t.Fatalf("expected stored image deleted, got %v", deleted)
		}
	})

	t.Run("non-owner delete is forbidden", func(t *testing.T) {
		listing := createTestListing(t, env.db, owner, "Sturdy Cottage")
		resp := performRequest(t, env.app, http.MethodDelete, "/api/listings/"+listing.ID.String(), nil, authHeaders(strangerToken))
		assertStatus(t, resp, http.StatusForbidden)

		if n := countRows(t, env.db, &models.Listing{}, "id = ?", listing.ID); n != 1 {
			t.Fatalf("listing should survive forbidden delete")
		}
	})

	t.Run("missing listing is not found", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodDelete, "/api/listings/00000000-0000-0000-0000-000000000000", nil, authHeaders(ownerToken))
		assertStatus(t, resp, http.StatusNotFound)
	})
}

func TestListingSearch(t *testing.T) {
	env := setupTestEnv(t)
	owner, _ := createTestUser(t, env.db, "searcher", "searcher@test.com", "password123", models.UserRoleUser)

	plain := createTestListing(t, env.db, owner, "Quiet Forest Hut")
	cpp := createTestListing(t, env.db, owner, "The C++ Hackers Retreat")
	percent := createTestListing(t, env.db, owner, "100% Occupancy Hostel")

	t.Run("plain substring match is case-insensitive", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/listings/?q=forest", nil, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		data := body["data"].([]any)
		if len(data) != 1 {
			t.Fatalf("expected 1 result, got %d", len(data))
		}
		if data[0].(map[string]any)["id"] != plain.ID.String() {
			t.Fatalf("wrong listing matched")
		}
	})

	t.Run("regex metacharacters match literally", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/listings/?q=C%2B%2B", nil, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		data := body["data"].([]any)
		if len(data) != 1 {
			t.Fatalf("expected 1 result for C++, got %d", len(data))
		}
		if data[0].(map[string]any)["id"] != cpp.ID.String() {
			t.Fatalf("wrong listing matched for C++")
		}
	})

	t.Run("LIKE wildcards match literally", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/listings/?q=100%25", nil, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		data := body["data"].([]any)
		if len(data) != 1 {
			t.Fatalf("expected 1 result for 100%%, got %d", len(data))
		}
		if data[0].(map[string]any)["id"] != percent.ID.String() {
			t.Fatalf("wrong listing matched for 100%%")
		}
	})

	t.Run("no match returns empty list", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/listings/?q=zeppelin", nil, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		if data := body["data"].([]any); len(data) != 0 {
			t.Fatalf("expected empty result, got %d", len(data))
		}
	})
}

func TestListingGet(t *testing.T) {
	env := setupTestEnv(t)
	owner, _ := createTestUser(t, env.db, "getter", "getter@test.com", "password123", models.UserRoleUser)
	reviewer, _ := createTestUser(t, env.db, "critic", "critic@test.com", "password123", models.UserRoleUser)

	listing := createTestListing(t, env.db, owner, "Visible Cottage")
	createTestReview(t, env.db, listing, reviewer, "short but heartfelt praise")

	t.Run("returns listing with owner and reviews", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/listings/"+listing.ID.String(), nil, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)

		data := body["data"].(map[string]any)
		ownerData, ok := data["owner"].(map[string]any)
		if !ok || ownerData["username"] != "getter" {
			t.Fatalf("expected preloaded owner, got %v", data["owner"])
		}
		reviews, ok := data["reviews"].([]any)
		if !ok || len(reviews) != 1 {
			t.Fatalf("expected 1 preloaded review, got %v", data["reviews"])
		}
		author := reviews[0].(map[string]any)["author"].(map[string]any)
		if author["username"] != "critic" {
			t.Fatalf("expected preloaded review author")
		}
	})

	t.Run("missing id returns 404", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/listings/00000000-0000-0000-0000-000000000000", nil, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusNotFound)
		assertEnvelopeError(t, body, "listing not found")
	})
}
