// internal/api/middleware.go
package api

import (
	stderrors "errors"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/gofiber/fiber/v2"

	"visa-tracker/internal/common/auth"
	"visa-tracker/internal/common/errors"
	"visa-tracker/internal/common/logger"
)

const identityKey = "identity"

// errorHandlingMiddleware converts StandardError values returned by handlers
// into JSON responses and recovers panics into a 500.
func errorHandlingMiddleware(log logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered", map[string]interface{}{
					"panic": r,
					"stack": string(debug.Stack()),
				})
				err = fiber.NewError(http.StatusInternalServerError, "internal error")
			}
			if err != nil {
				status, body := errorResponse(err)
				if status >= http.StatusInternalServerError {
					log.WithError(err).Error("request failed", map[string]interface{}{
						"path":   c.Path(),
						"method": c.Method(),
					})
				}
				c.Status(status)
				_ = c.JSON(body)
				err = nil
			}
		}()
		return c.Next()
	}
}

func errorResponse(err error) (int, fiber.Map) {
	code := errors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case errors.ErrCodeNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeValidationFailed:
		status = http.StatusBadRequest
	case errors.ErrCodeUnauthorized:
		status = http.StatusUnauthorized
	case errors.ErrCodeDeliveryFailed:
		status = http.StatusBadGateway
	case errors.ErrCodeStorageUnavailable:
		status = http.StatusServiceUnavailable
	}

	if code == "" {
		if fe, ok := err.(*fiber.Error); ok {
			return fe.Code, fiber.Map{"error": fiber.Map{
				"code": "INTERNAL", "message": fe.Message,
			}}
		}
		return status, fiber.Map{"error": fiber.Map{
			"code": "INTERNAL", "message": "internal error",
		}}
	}

	var std *errors.StandardError
	stderrors.As(err, &std)
	body := fiber.Map{"error": fiber.Map{
		"code":    std.Code,
		"message": std.Message,
	}}
	if std.Details != "" {
		body["error"].(fiber.Map)["details"] = std.Details
	}
	return status, body
}

// authMiddleware verifies the bearer token against the identity provider and
// stores the resolved identity in the request locals.
func authMiddleware(verifier auth.TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return errors.NewUnauthorizedError("missing bearer token")
		}

		identity, err := verifier.VerifyToken(c.UserContext(), token)
		if err != nil {
			return err
		}

		c.Locals(identityKey, identity)
		return c.Next()
	}
}

// identityFromCtx returns the verified identity stored by authMiddleware.
func identityFromCtx(c *fiber.Ctx) (*auth.Identity, bool) {
	identity, ok := c.Locals(identityKey).(*auth.Identity)
	return identity, ok
}

// requireAdmin resolves the caller's user record by the identity's email and
// rejects non-admins. The email match is exact, casing included.
func requireAdmin(h *Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, ok := identityFromCtx(c)
		if !ok {
			return errors.NewUnauthorizedError("missing identity")
		}

		user, found, err := h.store.FindUserByEmail(c.UserContext(), identity.Email)
		if err != nil {
			return err
		}
		if !found || !user.IsAdmin() {
			return errors.NewUnauthorizedError("admin role required")
		}
		return c.Next()
	}
}
