package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/intake-desk/internal/api/dto"
	apperrors "github.com/spec-kit/intake-desk/pkg/util/errorutil"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// bind parses the JSON body into req and runs its validation tags.
func bind(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return dto.Validate(req)
}

func parseIntQuery(c *fiber.Ctx, key string, defaultVal int) int {
	if val := c.Query(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return defaultVal
}

func parseBoolQuery(c *fiber.Ctx, key string) *bool {
	if val := c.Query(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return &parsed
		}
	}
	return nil
}

func parsePage(c *fiber.Ctx) (limit, offset int) {
	limit = parseIntQuery(c, "limit", defaultPageSize)
	if limit == 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	return limit, parseIntQuery(c, "offset", 0)
}

// splitQuery reads a comma separated query value.
func splitQuery(c *fiber.Ctx, key string) []string {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func optionalQuery(c *fiber.Ctx, key string) *string {
	if val := strings.TrimSpace(c.Query(key)); val != "" {
		return &val
	}
	return nil
}
