package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/desertthunder/ytlink/internal/models"
	"github.com/desertthunder/ytlink/internal/shared"
)

//go:embed templates/*.html
var templateFS embed.FS

// displayTime is the timestamp layout of JSON responses and pages.
const displayTime = "02/01/2006 15:04:05"

// layouts are parsed into every page.
var layouts = []string{"templates/base.html", "templates/pager.html"}

var funcs = template.FuncMap{
	"duration": formatDuration,
	"watchURL": func(id string) string { return models.WatchURLPrefix + id },
	"embedURL": func(id string) string { return models.EmbedURLPrefix + id },
	"tags":     shared.SplitTags,
	"join":     strings.Join,
	"div":      divide,
	"default":  orDefault,
	"compact":  shared.CompactNumber,
	"bytes":    shared.HumanBytes,
	"date":     formatDate,
}

// formatDuration accepts both stored clock durations and raw ISO 8601 values.
func formatDuration(s string) string {
	if strings.HasPrefix(s, "PT") {
		return shared.FormatISODuration(s)
	}
	return s
}

func divide(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func orDefault(def, v string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02/01/2006 15:04")
}

// Templates holds one parsed template set per page, each sharing the base layout.
type Templates struct {
	pages map[string]*template.Template
}

// ParseTemplates parses the embedded page templates.
func ParseTemplates() (*Templates, error) {
	base, err := template.New("base").Funcs(funcs).ParseFS(templateFS, layouts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse layout: %w", err)
	}

	files, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	t := &Templates{pages: make(map[string]*template.Template)}
	for _, file := range files {
		if slices.Contains(layouts, file) {
			continue
		}
		page, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := page.ParseFS(templateFS, file); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", file, err)
		}
		t.pages[strings.TrimSuffix(path.Base(file), ".html")] = page
	}
	return t, nil
}

// view is the data every page receives.
type view struct {
	User    *models.User
	Account *models.YouTubeAccount
	Data    any
}

// pager is the data of the "pager" template. Query carries the active filters, ending in "&" when set.
type pager struct {
	Page  models.Page
	Query template.URL
}

func newPager(p models.Page, filters url.Values) pager {
	q := filters.Encode()
	if q != "" {
		q += "&"
	}
	return pager{Page: p, Query: template.URL(q)}
}

// Render executes page into a buffer and writes it with status, so a template error never sends a partial page.
func (t *Templates) Render(w http.ResponseWriter, status int, page string, data view) error {
	tmpl, ok := t.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		return fmt.Errorf("failed to render %s: %w", page, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
