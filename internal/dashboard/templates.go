package dashboard

import (
	"embed"
	"html/template"
	"io"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

// Render renders a template with the given data
func Render(w io.Writer, templateName string, data interface{}) error {
	// custom functions
	funcMap := template.FuncMap{
		"formatTime": func(t *time.Time) string {
			if t == nil {
				return "-"
			}
			return t.Format("2006-01-02 15:04:05")
		},
		"formatTimeVal": func(t time.Time) string {
			return t.Format("2006-01-02 15:04:05")
		},
		"join": func(parts []string) string {
			if len(parts) == 0 {
				return "-"
			}
			return strings.Join(parts, ", ")
		},
	}

	tmpl, err := template.New("layout.html").Funcs(funcMap).ParseFS(templateFS, "templates/layout.html", "templates/"+templateName)
	if err != nil {
		return err
	}

	return tmpl.Execute(w, data)
}
