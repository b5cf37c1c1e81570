package ui

import (
	"embed"
	"fmt"
	"html/template"
	"log"
	"math"
	"net/http"
	"time"

	"kickchoice/app"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

//go:embed templates/*.html
var embeddedFiles embed.FS

// App is the read-only run browser
type App struct {
	router    *chi.Mux
	service   *app.EstimationService
	templates *template.Template
	port      string
}

// Config holds UI application configuration
type Config struct {
	Port string
}

// NewApp creates a new UI application
func NewApp(service *app.EstimationService, config Config) (*App, error) {
	funcMap := template.FuncMap{
		"num": func(v float64) string {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return "-"
			}
			return fmt.Sprintf("%.3f", v)
		},
		"short": func(v fmt.Stringer) string {
			s := v.String()
			if len(s) > 8 {
				return s[:8]
			}
			return s
		},
	}
	templates, err := template.New("").Funcs(funcMap).ParseFS(embeddedFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	port := config.Port
	if port == "" {
		port = "8081"
	}
	a := &App{
		router:    chi.NewRouter(),
		service:   service,
		templates: templates,
		port:      port,
	}

	a.setupMiddleware()
	a.setupRoutes()
	return a, nil
}

// setupMiddleware configures HTTP middleware
func (a *App) setupMiddleware() {
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Compress(5))
}

// setupRoutes configures the application routes
func (a *App) setupRoutes() {
	a.router.Get("/", a.handleIndex)
	a.router.Get("/models", a.handleModels)
	a.router.Get("/runs/{id}", a.handleRun)
	a.router.Get("/runs/{id}/report.md", a.handleRunMarkdown)
	a.router.Get("/compare", a.handleCompare)
}

// Handler exposes the router, for tests and embedding
func (a *App) Handler() http.Handler {
	return a.router
}

// Start starts the HTTP server
func (a *App) Start() error {
	addr := ":" + a.port
	log.Printf("[UI] Starting run browser on %s", addr)
	server := &http.Server{
		Addr:              addr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server.ListenAndServe()
}
