package core

import (
	"context"
	"embed"
	"html/template"
	"io"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

// pageTemplates holds the four views. Styling is left to the front-end.
var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// PageData is the view model shared by all pages.
type PageData struct {
	Title     string
	CSRFToken string
	Error     string
	ExpiresIn string
	LoginPath string
}

func renderPage(w io.Writer, name string, data PageData) error {
	return pageTemplates.ExecuteTemplate(w, name, data)
}

// dashboardData fills the dashboard view from the visitor's store.
func dashboardData(ctx context.Context, store Store, csrf, loginPath string) PageData {
	data := PageData{Title: "Dashboard", CSRFToken: csrf, LoginPath: loginPath}
	if store == nil {
		return data
	}
	if cred, err := store.Get(ctx); err == nil {
		if d := expiresIn(cred, time.Now()); d > 0 {
			data.ExpiresIn = d.String()
		}
	}
	return data
}
