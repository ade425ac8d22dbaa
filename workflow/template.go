package workflow

import (
	"bytes"
	"fmt"
	"text/template"
)

// renderTemplate renders a text/template source against the resolved
// variables; variables are addressed as {{.name}}. Missing keys render as
// zero values to match best-effort variable resolution.
func renderTemplate(source string, vars map[string]any) (string, error) {
	tmpl, err := template.New("node").Option("missingkey=zero").Parse(source)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return buf.String(), nil
}
