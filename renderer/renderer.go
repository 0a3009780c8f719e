// Package renderer renders the application's HTML templates.
package renderer

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"sort"
)

// Renderer holds the parsed templates of an application.
type Renderer struct {
	tmpl *template.Template
}

// New parses the templates in fsys matching patterns. Templates are named
// after their base file name, e.g. "home.html".
func New(fsys fs.FS, patterns ...string) (*Renderer, error) {
	if len(patterns) == 0 {
		patterns = []string{"*.html"}
	}
	tmpl, err := template.New("").ParseFS(fsys, patterns...)
	if err != nil {
		return nil, fmt.Errorf("renderer: parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render executes the named template into w.
func (r *Renderer) Render(w io.Writer, name string, data any) error {
	t := r.tmpl.Lookup(name)
	if t == nil {
		return fmt.Errorf("renderer: template %q not found", name)
	}
	// Render into a buffer first so a failing template writes nothing.
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return fmt.Errorf("renderer: execute %q: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// RenderToString executes the named template and returns the output.
func (r *Renderer) RenderToString(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.Render(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Names returns the names of the parsed templates, sorted.
func (r *Renderer) Names() []string {
	var names []string
	for _, t := range r.tmpl.Templates() {
		if t.Name() != "" {
			names = append(names, t.Name())
		}
	}
	sort.Strings(names)
	return names
}
