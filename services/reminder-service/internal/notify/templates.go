package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Templates holds the subject, text and HTML body for every TemplateKind.
// Each kind is defined in templates/<kind>.tmpl as three named blocks.
type Templates struct {
	text *texttemplate.Template
	html *htmltemplate.Template
}

var funcs = map[string]any{
	"longdate": func(t time.Time) string { return t.UTC().Format("Monday, January 2") },
	"clock":    func(t time.Time) string { return t.UTC().Format("3:04 PM") + " UTC" },
	"shortdate": func(t time.Time) string {
		return t.UTC().Format("January 2, 2006")
	},
}

func LoadTemplates() (*Templates, error) {
	text, err := texttemplate.New("notify").Funcs(funcs).Option("missingkey=error").ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse text templates: %w", err)
	}
	html, err := htmltemplate.New("notify").Funcs(funcs).Option("missingkey=error").ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse html templates: %w", err)
	}
	return &Templates{text: text, html: html}, nil
}

func (t *Templates) Render(kind TemplateKind, data map[string]any) (EmailMessage, error) {
	if t.text.Lookup(string(kind)+".subject") == nil {
		return EmailMessage{}, fmt.Errorf("%w: %s", ErrUnknownTemplate, kind)
	}
	var subject, text, html bytes.Buffer
	if err := t.text.ExecuteTemplate(&subject, string(kind)+".subject", data); err != nil {
		return EmailMessage{}, fmt.Errorf("render %s subject: %w", kind, err)
	}
	if err := t.text.ExecuteTemplate(&text, string(kind)+".text", data); err != nil {
		return EmailMessage{}, fmt.Errorf("render %s text: %w", kind, err)
	}
	if err := t.html.ExecuteTemplate(&html, string(kind)+".html", data); err != nil {
		return EmailMessage{}, fmt.Errorf("render %s html: %w", kind, err)
	}
	return EmailMessage{
		Subject: strings.TrimSpace(subject.String()),
		Text:    strings.TrimSpace(text.String()),
		HTML:    strings.TrimSpace(html.String()),
	}, nil
}
