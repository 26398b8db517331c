// Package template renders the operator-configurable notification messages.
package template

import (
	"fmt"
	"strings"
	"text/template"
	"time"
)

// Default messages, in Telegram Markdown.
const (
	DefaultPost    = "*New video is live*\n\n{{ .Title }}\n{{ .URL }}"
	DefaultAlert   = "*Pipeline failed* for {{ .Date }}\n\n{{ .Message }}"
	DefaultSummary = "*Daily pipeline summary* for {{ .Date }}\n{{ .Title }}\n\n" +
		"{{ range .Steps }}{{ .Name }}: {{ .Status }}{{ if gt .Attempts 1 }} ({{ .Attempts }} attempts){{ end }}\n{{ end }}" +
		"{{ with .URL }}\n{{ . }}{{ end }}{{ with .ShortURL }}\nShort: {{ . }}{{ end }}"
)

// PostData is available to the cross-post message.
type PostData struct {
	Title   string
	VideoID string
	URL     string
}

// AlertData is available to the failure alert.
type AlertData struct {
	Date    string
	Message string
}

// SummaryData is available to the daily summary.
type SummaryData struct {
	Date     string
	Title    string
	URL      string
	ShortURL string
	Steps    []SummaryStep
}

type SummaryStep struct {
	Name     string
	Status   string
	Attempts int
}

var funcs = template.FuncMap{
	"now": func() string {
		return time.Now().UTC().Format(time.RFC3339)
	},
	"upper": strings.ToUpper,
	"trim":  strings.TrimSpace,
}

// Template is a parsed message template.
type Template struct {
	tmpl *template.Template
}

func Parse(name, text string) (*Template, error) {
	tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", name, err)
	}

	return &Template{tmpl: tmpl}, nil
}

// MustParse is Parse for the built-in defaults.
func MustParse(name, text string) *Template {
	t, err := Parse(name, text)
	if err != nil {
		panic(err)
	}

	return t
}

func (t *Template) Render(data any) (string, error) {
	var buf strings.Builder

	err := t.tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", t.tmpl.Name(), err)
	}

	return strings.TrimSpace(buf.String()), nil
}
