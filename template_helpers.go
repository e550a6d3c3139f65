package auth

import (
	"maps"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-auth-starter/middleware/csrf"
	"github.com/goliatone/go-router"
)

// TemplateUserKey is the template variable holding the current user
var TemplateUserKey = "current_user"

// DatetimeLayout is used by format_datetime
const DatetimeLayout = "2006-01-02 15:04:05"

// FormatDatetime formats t in timezone tz, falling back to UTC when tz
// can't be loaded.
func FormatDatetime(t time.Time, tz string) string {
	loc, err := time.LoadLocation(tz)
	if err != nil || tz == "" {
		loc = time.UTC
	}
	return t.In(loc).Format(DatetimeLayout)
}

// AjaxHeader is set to "true" by our scripts
const AjaxHeader = "X-WITH-AJAX"

// FlashLocalsKey is where the flash middleware leaves the incoming message
const FlashLocalsKey = "flash"

// TemplateHelpers returns the per request globals mixed into every view:
// the current user, CSRF helpers, the pending flash and translation.
func (a *RouteAuthenticator) TemplateHelpers(ctx router.Context) map[string]any {
	return a.templateHelpers(ctx, ctx.Header)
}

func (a *RouteAuthenticator) templateHelpers(c Locals, header func(string) string) map[string]any {
	locale := a.translator.Locale(c, header(fiber.HeaderAcceptLanguage))

	helpers := map[string]any{
		"is_authenticated": false,
		"flash":            c.Locals(FlashLocalsKey),
		"locale":           locale,
		"languages":        a.translator.Languages(),
		"t":                a.translator.Func(locale),
		"is_ajax":          header(AjaxHeader) == "true",
		"site_name":        a.siteName,
		"default_timezone": a.defaultTimezone,
		"hashid":           a.hashid,
	}

	if user, ok := CurrentUser(c); ok {
		helpers[TemplateUserKey] = user
		helpers["is_authenticated"] = true
	}

	maps.Copy(helpers, csrf.TemplateHelpers(c, csrf.DefaultContextKey))

	return helpers
}

func (a *RouteAuthenticator) hashid(id int64) string {
	if a.codec == nil {
		return ""
	}
	h, err := a.codec.Encode(id)
	if err != nil {
		a.Logger.Warn("failed to encode hashid", "error", err)
		return ""
	}
	return h
}
