package handlers

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

// escapeLike neutralizes LIKE metacharacters so user queries match literally.
// Without it a search for "100%" or "C++" behaves as a wildcard pattern or
// differs across databases; every search path must go through here.
func escapeLike(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, `%`, `\%`)
	value = strings.ReplaceAll(value, `_`, `\_`)
	return value
}

func likePattern(query string) string {
	return "%" + strings.ToLower(escapeLike(strings.TrimSpace(query))) + "%"
}

// validateReviewPayload applies the same bounds to direct submissions and
// pending-review replays. Returns an empty string when the payload is valid.
func validateReviewPayload(rating int, comment string) string {
	if rating < 1 || rating > 5 {
		return "rating must be between 1 and 5"
	}
	trimmed := strings.TrimSpace(comment)
	if len(trimmed) < 5 {
		return "comment must be at least 5 characters"
	}
	if len(trimmed) > 500 {
		return "comment cannot exceed 500 characters"
	}
	return ""
}

func validateListingFields(title, description string, price float64, location, country, imageURL string) string {
	if l := len(strings.TrimSpace(title)); l < 3 || l > 100 {
		return "title must be between 3 and 100 characters"
	}
	if l := len(strings.TrimSpace(description)); l < 10 || l > 1000 {
		return "description must be between 10 and 1000 characters"
	}
	if price <= 0 {
		return "price must be a positive number"
	}
	if l := len(strings.TrimSpace(location)); l < 2 || l > 100 {
		return "location must be between 2 and 100 characters"
	}
	if l := len(strings.TrimSpace(country)); l < 2 || l > 60 {
		return "country must be between 2 and 60 characters"
	}
	if imageURL != "" {
		parsed, err := url.ParseRequestURI(imageURL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return "image URL must be a valid URL"
		}
	}
	return ""
}

func geocodeQuery(location, country string) string {
	return fmt.Sprintf("%s, %s", strings.TrimSpace(location), strings.TrimSpace(country))
}
