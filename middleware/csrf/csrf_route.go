package csrf

import "github.com/goliatone/go-router"

// RouteConfig controls the token bootstrap endpoint
type RouteConfig struct {
	// Path of the endpoint, /csrf by default
	Path string
	// ContextKey is the locals key where the middleware stored the token
	ContextKey string
	// RouteName defaults to auth.csrf.get
	RouteName string
}

// RegisterRoutes registers a GET endpoint that returns the session token
// with its field and header names. The CSRF middleware must run first.
func RegisterRoutes[T any](app router.Router[T], cfg ...RouteConfig) {
	conf := RouteConfig{Path: "/csrf", ContextKey: DefaultContextKey, RouteName: "auth.csrf.get"}
	if len(cfg) > 0 {
		if cfg[0].Path != "" {
			conf.Path = cfg[0].Path
		}
		if cfg[0].ContextKey != "" {
			conf.ContextKey = cfg[0].ContextKey
		}
		if cfg[0].RouteName != "" {
			conf.RouteName = cfg[0].RouteName
		}
	}
	app.Get(conf.Path, tokenHandler(conf)).SetName(conf.RouteName)
}

func tokenHandler(cfg RouteConfig) router.HandlerFunc {
	return func(ctx router.Context) error {
		helpers := TemplateHelpers(ctx, cfg.ContextKey)
		token, _ := helpers["csrf_token"].(string)
		if token == "" {
			return ctx.JSON(router.StatusUnauthorized, map[string]string{
				"error": ErrTokenMissing.Error(),
			})
		}

		ctx.SetHeader("Cache-Control", "no-store, max-age=0")
		ctx.SetHeader("Pragma", "no-cache")
		ctx.SetHeader("Expires", "0")

		return ctx.JSON(router.StatusOK, map[string]string{
			"token":       token,
			"field_name":  helpers["csrf_field_name"].(string),
			"header_name": helpers["csrf_header_name"].(string),
		})
	}
}
