package service

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/noah-isme/learnhub-api/internal/models"
)

var (
	richTextPolicy  = bluemonday.UGCPolicy()
	plainTextPolicy = bluemonday.StrictPolicy()
	slugInvalid     = regexp.MustCompile(`[^a-z0-9]+`)
)

// sanitizeRich keeps safe formatting markup in user supplied HTML.
func sanitizeRich(input string) string {
	return strings.TrimSpace(richTextPolicy.Sanitize(input))
}

// sanitizePlain strips every tag.
func sanitizePlain(input string) string {
	return strings.TrimSpace(plainTextPolicy.Sanitize(input))
}

func slugify(title string) string {
	slug := slugInvalid.ReplaceAllString(strings.ToLower(strings.TrimSpace(title)), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 80 {
		slug = strings.TrimRight(slug[:80], "-")
	}
	if slug == "" {
		slug = "course"
	}
	return slug
}

func isOwnerOrAdmin(actor *models.JWTClaims, ownerID string) bool {
	return actor != nil && (actor.IsAdmin() || actor.UserID == ownerID)
}
