package auth

import (
	"bytes"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// EmailComposer renders plain text email bodies from the emails/ templates
type EmailComposer struct {
	views    ViewRenderer
	siteName string
	baseURL  string
}

// NewEmailComposer returns a composer building links on baseURL
func NewEmailComposer(views ViewRenderer, siteName, baseURL string) *EmailComposer {
	return &EmailComposer{
		views:    views,
		siteName: siteName,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// SiteName is used in email subjects
func (c *EmailComposer) SiteName() string {
	return c.siteName
}

// URL joins path onto the base URL
func (c *EmailComposer) URL(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// Compose renders emails/{name} with data
func (c *EmailComposer) Compose(name string, data map[string]any) (string, error) {
	binding := map[string]any{
		"site_name": c.siteName,
		"base_url":  c.baseURL,
	}
	for k, v := range data {
		binding[k] = v
	}

	var buf bytes.Buffer
	if err := c.views.Render(&buf, "emails/"+name, binding); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, fmt.Sprintf("failed to render email %s", name))
	}
	return buf.String(), nil
}
