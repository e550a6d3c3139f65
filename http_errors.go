package auth

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// NewErrorHandler renders the error pages. Anonymous visitors are sent to
// the login page instead.
func NewErrorHandler(a *RouteAuthenticator) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var ferr *fiber.Error
		if errors.As(err, &ferr) {
			code = ferr.Code
		}

		view := errorView(code)
		if view == "" {
			return c.Status(code).SendString(statusMessage(code))
		}

		if code >= fiber.StatusInternalServerError {
			a.Logger.Error("request failed", "path", c.Path(), "error", err)
		}

		if _, ok := CurrentUser(c); !ok {
			return c.Redirect("/login", fiber.StatusFound)
		}

		data := a.templateHelpers(c, func(key string) string { return c.Get(key) })
		data["status"] = code
		if err := c.Status(code).Render(view, data); err != nil {
			a.Logger.Error("failed to render error page", "view", view, "error", err)
			return c.Status(code).SendString(statusMessage(code))
		}
		return nil
	}
}

func errorView(code int) string {
	switch {
	case code == fiber.StatusForbidden:
		return "errors/403"
	case code == fiber.StatusNotFound:
		return "errors/404"
	case code >= fiber.StatusInternalServerError:
		return "errors/500"
	default:
		return ""
	}
}

func statusMessage(code int) string {
	if msg := fiber.NewError(code).Message; msg != "" {
		return msg
	}
	return strconv.Itoa(code)
}
