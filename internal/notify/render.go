// Package notify renders change summaries and delivers them by email.
package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/example/event-board/internal/changes"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

var fieldLabels = map[string]string{
	"title":       "Title",
	"description": "Description",
	"category":    "Category",
	"coordinates": "Coordinates",
	"address":     "Address",
	"img":         "Image",
	"img2":        "Second image",
	"start":       "Start",
	"end":         "End",
	"isPublic":    "Public",
	"capacity":    "Capacity",
	"amount":      "Amount",
	"currency":    "Currency",
}

// ChangeEmail is the data rendered into the change notification.
type ChangeEmail struct {
	Subject       string
	RecipientName string
	EventTitle    string
	ConfirmedAt   time.Time
	Summary       changes.Summary
}

// Renderer turns change summaries into HTML bodies.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("event_changes.html.tmpl").Funcs(template.FuncMap{
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"fieldLabel": func(field string) string {
			if label, ok := fieldLabels[field]; ok {
				return label
			}
			return field
		},
	}).ParseFS(templateFS, "templates/event_changes.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse notification templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// RenderChanges renders the confirmed change email.
func (r *Renderer) RenderChanges(data ChangeEmail) (string, error) {
	if r == nil || r.tmpl == nil {
		return "", fmt.Errorf("Renderer is nil")
	}
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, "event_changes.html.tmpl", data); err != nil {
		return "", fmt.Errorf("render change email: %w", err)
	}
	return buf.String(), nil
}
