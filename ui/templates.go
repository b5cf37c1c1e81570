package ui

import (
	"bytes"
	"html/template"
	"log"
	"net/http"

	"kickchoice/internal/report"
)

// page is the data of the generic page template
type page struct {
	Title string
	Body  template.HTML
}

// renderTemplate executes a template into a buffer first so a failure
// never leaves a half-written page
func (a *App) renderTemplate(w http.ResponseWriter, templateName string, data interface{}) {
	var buf bytes.Buffer
	if err := a.templates.ExecuteTemplate(&buf, templateName, data); err != nil {
		log.Printf("[UI] Template error for %s: %v", templateName, err)
		http.Error(w, "Template rendering failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		log.Printf("[UI] Error writing template response: %v", err)
	}
}

// renderMarkdown wraps rendered markdown in the site layout
func (a *App) renderMarkdown(w http.ResponseWriter, title, md string) {
	a.renderTemplate(w, "page.html", page{Title: title, Body: template.HTML(report.HTML(md))})
}
