package http

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/spec-kit/intake-desk/internal/config"
	"github.com/spec-kit/intake-desk/internal/observability"
	apperrors "github.com/spec-kit/intake-desk/pkg/util/errorutil"
)

// MiddlewareConfig tunes the global middleware chain.
type MiddlewareConfig struct {
	Timeout   time.Duration
	RateLimit config.RateLimitConfig
}

// RegisterMiddlewares attaches global middlewares such as error handling and logging.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, cfg MiddlewareConfig) {
	app.Use(requestid.New())
	app.Use(observability.RequestLogger(logger, metrics))
	app.Use(errorHandlingMiddleware(logger, metrics))
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			logger.Error("panic recovered", zap.Any("panic", e), zap.String("path", c.Path()))
		},
	}))
	if cfg.Timeout > 0 {
		app.Use(requestTimeoutMiddleware(cfg.Timeout))
	}
	if cfg.RateLimit.Max > 0 {
		app.Use(limiter.New(limiter.Config{
			Next:       skipRateLimit,
			Max:        cfg.RateLimit.Max,
			Expiration: cfg.RateLimit.Window(),
			LimitReached: func(*fiber.Ctx) error {
				return apperrors.NewRateLimited()
			},
		}))
	}
}

// skipRateLimit exempts channel deliveries and probes.
func skipRateLimit(c *fiber.Ctx) bool {
	path := c.Path()
	return strings.HasPrefix(path, "/api/webhook") || strings.HasPrefix(path, "/health") || path == "/metrics"
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if err == nil {
			return nil
		}
		domainErr := toDomainError(err)
		metrics.RecordError(c.Path(), c.Method(), domainErr.Code)
		body := fiber.Map{
			"code":    domainErr.Code,
			"message": domainErr.Message,
		}
		if len(domainErr.Details) > 0 {
			body["details"] = domainErr.Details
		}
		if domainErr.HTTPStatus >= fiber.StatusInternalServerError {
			logger.Error("request failed", zap.String("code", domainErr.Code), zap.Error(domainErr))
		}
		return c.Status(domainErr.HTTPStatus).JSON(fiber.Map{"error": body})
	}
}

// toDomainError keeps fiber's own errors (unknown route, bad method) at their status.
func toDomainError(err error) *apperrors.DomainError {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := apperrors.CodeInternal
		switch fe.Code {
		case fiber.StatusNotFound:
			code = apperrors.CodeNotFound
		case fiber.StatusBadRequest:
			code = apperrors.CodeValidation
		case fiber.StatusMethodNotAllowed:
			code = "METHOD_NOT_ALLOWED"
		}
		return apperrors.NewDomainError(code, fe.Message, fe.Code, nil)
	}
	return apperrors.ToDomainError(err)
}
