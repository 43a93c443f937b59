package middleware

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/mathieu-neron/toptabled/internal/model"
)

// Field length limits matching database schema constraints.
const (
	MaxUserIDLen = 64 // identity header
	MaxTagLen    = 40 // restaurants.*_tag
	MaxTags      = 20 // per selection
	MaxPage      = 1000
)

var (
	// userIDRe matches UUIDs and the short numeric ids of demo accounts.
	userIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	// tagRe matches facet tags: letters, digits, spaces and a little punctuation.
	tagRe = regexp.MustCompile(`^[\p{L}\p{N} &'._-]+$`)
)

// ErrorResponse is a helper that returns a standard API error response.
func ErrorResponse(c fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": message,
		},
	})
}

// ValidateItemID checks that an item ID is a UUID, the restaurants key.
func ValidateItemID(id string) (string, string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", "itemId is required"
	}
	u, err := uuid.Parse(id)
	if err != nil || len(id) != 36 {
		return "", "itemId must be a UUID"
	}
	return u.String(), ""
}

// ValidateUserID checks the identity header. An empty id is valid and means
// anonymous.
func ValidateUserID(id string) (string, string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ""
	}
	if len(id) > MaxUserIDLen {
		return "", "userId must be at most 64 characters"
	}
	if !userIDRe.MatchString(id) {
		return "", "userId contains invalid characters"
	}
	return id, ""
}

// ValidateTagList parses the comma-separated tags parameter. Blank entries
// are dropped.
func ValidateTagList(raw string) ([]string, string) {
	if strings.TrimSpace(raw) == "" {
		return nil, ""
	}
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if len(t) > MaxTagLen {
			return nil, "tags must be at most 40 characters each"
		}
		if !tagRe.MatchString(t) {
			return nil, "tags contain invalid characters"
		}
		tags = append(tags, t)
	}
	if len(tags) > MaxTags {
		return nil, "at most 20 tags may be selected"
	}
	return tags, ""
}

// ValidateDirection accepts "up" and "down", case-insensitively.
func ValidateDirection(raw string) (model.Direction, string) {
	d := model.Direction(strings.ToLower(strings.TrimSpace(raw)))
	if !d.Valid() {
		return "", "direction must be up or down"
	}
	return d, ""
}

// ValidatePage parses a zero-based page number; empty means 0.
func ValidatePage(raw string) (int, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, ""
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > MaxPage {
		return 0, "page must be an integer between 0 and 1000"
	}
	return n, ""
}
