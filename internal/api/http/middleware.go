package http

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/deskops/helpdesk-sla/internal/observability"
	apperrors "github.com/deskops/helpdesk-sla/pkg/util/errorutil"
)

// FeatureGate answers whether a tenant may use a feature.
type FeatureGate interface {
	Enabled(ctx context.Context, tenantID, feature string) (bool, error)
}

// RegisterMiddlewares attaches global middlewares such as error handling and logging.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) {
	app.Use(observability.RequestLogger(logger, metrics))
	app.Use(errorHandlingMiddleware(logger, metrics))
	if timeout > 0 {
		app.Use(requestTimeoutMiddleware(timeout))
	}
}

// RequireFeature rejects requests when tenantID is not entitled to feature.
// Gate failures are reported as internal errors rather than granting access.
func RequireFeature(gate FeatureGate, tenantID, feature string, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		enabled, err := gate.Enabled(c.UserContext(), tenantID, feature)
		if err != nil {
			logger.Error("entitlement check failed",
				zap.String("tenant_id", tenantID),
				zap.String("feature", feature),
				zap.Error(err))
			return apperrors.NewInternalError(err)
		}
		if !enabled {
			return apperrors.NewFeatureDisabled(feature)
		}
		return c.Next()
	}
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
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
			if err != nil {
				domainErr := toDomainError(err)
				path := c.Path()
				if route := c.Route(); route != nil && route.Path != "" {
					path = route.Path
				}
				metrics.RecordError(path, c.Method(), domainErr.Code)
				response := fiber.Map{"error": fiber.Map{
					"code":    domainErr.Code,
					"message": domainErr.Message,
				}}
				if len(domainErr.Details) > 0 {
					response["error"].(fiber.Map)["details"] = domainErr.Details
				}
				if domainErr.HTTPStatus >= 500 {
					logger.Error("request failed", zap.Error(domainErr))
				}
				c.Status(domainErr.HTTPStatus)
				_ = c.JSON(response)
				err = nil
			}
		}()
		return c.Next()
	}
}

// toDomainError also covers errors raised by fiber itself, such as unknown
// routes or oversized bodies.
func toDomainError(err error) *apperrors.DomainError {
	if fe, ok := err.(*fiber.Error); ok {
		code := "INTERNAL_ERROR"
		switch fe.Code {
		case http.StatusNotFound:
			code = "NOT_FOUND"
		case http.StatusMethodNotAllowed:
			code = "METHOD_NOT_ALLOWED"
		case http.StatusUnauthorized:
			code = "UNAUTHORIZED"
		case http.StatusForbidden:
			code = "FORBIDDEN"
		default:
			if fe.Code < 500 {
				code = "VALIDATION_FAILED"
			}
		}
		return apperrors.NewDomainError(code, fe.Message, fe.Code, nil)
	}
	return apperrors.ToDomainError(err)
}
