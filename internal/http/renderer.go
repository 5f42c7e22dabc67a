package httpx

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
)

//go:embed views/layout.tmpl views/pages/*.tmpl
var viewFS embed.FS

// TemplateRenderer renders HTML pages. Each page is parsed into its own clone of
// the layout so every page can define its own "content" block.
type TemplateRenderer struct {
	pages  map[string]*template.Template
	logger *slog.Logger
}

// TemplateRendererConfig holds configuration for creating a TemplateRenderer.
type TemplateRendererConfig struct {
	// TemplateFS overrides the embedded views; it must contain layout.tmpl and pages/*.tmpl.
	TemplateFS fs.FS
	Logger     *slog.Logger
}

// NewTemplateRenderer parses the layout and every page up front.
func NewTemplateRenderer(cfg TemplateRendererConfig) (*TemplateRenderer, error) {
	fsys := cfg.TemplateFS
	if fsys == nil {
		sub, err := fs.Sub(viewFS, "views")
		if err != nil {
			return nil, fmt.Errorf("views: %w", err)
		}
		fsys = sub
	}

	base, err := template.New("root").ParseFS(fsys, "layout.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	files, err := fs.Glob(fsys, "pages/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no page templates found")
	}

	pages := make(map[string]*template.Template, len(files))
	for _, f := range files {
		clone, cloneErr := base.Clone()
		if cloneErr != nil {
			return nil, fmt.Errorf("clone layout for %s: %w", f, cloneErr)
		}
		t, parseErr := clone.ParseFS(fsys, f)
		if parseErr != nil {
			if cfg.Logger != nil {
				cfg.Logger.Error("template parsing failed",
					slog.String("template", f),
					slog.Any("error", parseErr),
				)
			}
			return nil, fmt.Errorf("parse %s: %w", f, parseErr)
		}
		pages[strings.TrimSuffix(path.Base(f), ".tmpl")] = t
	}

	return &TemplateRenderer{pages: pages, logger: cfg.Logger}, nil
}

// Render writes page with status. The page is rendered into a buffer first so a
// template failure never leaves a half-written response.
func (r *TemplateRenderer) Render(w http.ResponseWriter, status int, page string, data PageData) error {
	t, ok := r.pages[page]
	if !ok {
		err := fmt.Errorf("unknown page %q", page)
		r.logTemplateError(page, err)
		return err
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		r.logTemplateError(page, err)
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		if r.logger != nil {
			r.logger.Error("failed to write rendered template",
				slog.String("template", page),
				slog.Any("error", err),
			)
		}
		return err
	}
	return nil
}

// HasPage reports whether page was parsed.
func (r *TemplateRenderer) HasPage(page string) bool {
	_, ok := r.pages[page]
	return ok
}

func (r *TemplateRenderer) logTemplateError(templateName string, err error) {
	if r.logger == nil || err == nil {
		return
	}
	r.logger.Error("template execution failed",
		slog.String("template", templateName),
		slog.Any("error", err),
	)
}
