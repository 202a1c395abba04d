// Package source loads the statically cached pages that get assembled.
package source

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strings"
)

// ErrPageNotFound is returned when a source has no page for a path.
var ErrPageNotFound = errors.New("page not found")

// Page is a cached page as loaded from a source.
type Page struct {
	Status      int
	ContentType string
	Header      http.Header
	Body        []byte
	// ProductID is the current product the source knows for the page, if any.
	ProductID string
}

// IsHTML reports whether the page should go through the pipeline.
func (p *Page) IsHTML() bool {
	if p.ContentType == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(p.ContentType)
	if err != nil {
		return strings.HasPrefix(strings.ToLower(p.ContentType), "text/html")
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}

// Source loads pages by request path (including the query string).
type Source interface {
	Fetch(ctx context.Context, path string, header http.Header) (*Page, error)
	Name() string
}
