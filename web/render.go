package web

import (
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/labstack/echo/v4"

	"repricelab/i18n"
)

const layoutFile = "templates/layout.html"

// Renderer executes page templates with a per-request t function bound to
// the request locale.
type Renderer struct {
	pages    map[string]*template.Template
	messages *i18n.Store
}

// NewRenderer parses every page under templates/ together with the layout.
func NewRenderer(fsys fs.FS, messages *i18n.Store) (*Renderer, error) {
	files, err := fs.Glob(fsys, "templates/*.html")
	if err != nil {
		return nil, err
	}
	r := &Renderer{pages: make(map[string]*template.Template), messages: messages}
	for _, f := range files {
		if f == layoutFile {
			continue
		}
		name := strings.TrimSuffix(path.Base(f), ".html")
		tmpl, err := template.New(name).Funcs(r.funcs(messages.Default())).ParseFS(fsys, layoutFile, f)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", f, err)
		}
		r.pages[name] = tmpl
	}
	return r, nil
}

func (r *Renderer) funcs(locale string) template.FuncMap {
	return template.FuncMap{
		"t": func(key string) string { return r.messages.T(locale, key) },
		"tf": func(key string, args ...any) string {
			return r.messages.Tf(locale, key, args...)
		},
	}
}

// Render implements echo.Renderer.
func (r *Renderer) Render(w io.Writer, name string, data any, c echo.Context) error {
	base, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	locale := i18n.Locale(c)
	if pd, ok := data.(*pageData); ok && pd.Locale != "" {
		locale = pd.Locale
	}
	tmpl, err := base.Clone()
	if err != nil {
		return err
	}
	return tmpl.Funcs(r.funcs(locale)).ExecuteTemplate(w, "layout", data)
}
