package auth

import (
	"net/http"

	"github.com/gofiber/template/django/v3"
)

// NewViews builds the django engine over the embedded templates
func NewViews(reload bool) (*django.Engine, error) {
	engine := django.NewPathForwardingFileSystem(http.FS(viewsFS), "/views", ".html")
	engine.Reload(reload)
	engine.AddFunc("format_datetime", FormatDatetime)

	if err := engine.Load(); err != nil {
		return nil, err
	}
	return engine, nil
}
