package template

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"boardnotice/internal/domain/notice"
)

//go:embed templates/*.html
var templateFiles embed.FS

var _ notice.FragmentRenderer = (*Engine)(nil)

// Engine renders banner fragments using Go's html/template package.
type Engine struct {
	templates *template.Template
}

// NewEngine parses the embedded templates.
func NewEngine() (*Engine, error) {
	tmpl, err := template.ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing banner templates: %w", err)
	}

	return &Engine{templates: tmpl}, nil
}

// bannerData is the template input. The upgrade link is cut out of the text
// so it can be rendered as an anchor.
type bannerData struct {
	*notice.BannerView
	Before string
	After  string
}

// RenderBanner renders the banner as an HTML fragment.
func (e *Engine) RenderBanner(view *notice.BannerView) (string, error) {
	data := bannerData{BannerView: view}
	if view.LinkText != "" {
		before, after, found := strings.Cut(view.Text, view.LinkText)
		if !found {
			before, after = view.Text+" ", ""
		}
		data.Before, data.After = before, after
	}

	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, "banner.html", data); err != nil {
		return "", fmt.Errorf("executing banner template: %w", err)
	}
	return buf.String(), nil
}
