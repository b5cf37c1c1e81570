package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kickchoice/internal/api"
	"kickchoice/internal/config"
	"kickchoice/internal/container"
	"kickchoice/ui"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	gin.SetMode(cfg.Server.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appContainer, err := container.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create container: %v", err)
	}
	if err := appContainer.Init(ctx); err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	defer appContainer.Close()

	handler := api.NewEstimationHandler(appContainer.EstimationService, cfg.Data.Dir)
	apiServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           api.NewRouter(handler, appContainer.SSEHub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	uiApp, err := ui.NewApp(appContainer.EstimationService, ui.Config{Port: cfg.Server.UIPort})
	if err != nil {
		log.Fatalf("Failed to create UI app: %v", err)
	}
	uiServer := &http.Server{
		Addr:              ":" + cfg.Server.UIPort,
		Handler:           uiApp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	for name, srv := range map[string]*http.Server{"API": apiServer, "UI": uiServer} {
		name, srv := name, srv
		g.Go(func() error {
			log.Printf("🚀 %s listening on http://localhost%s", name, srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		log.Printf("Server stopped with error: %v", err)
		os.Exit(1)
	}
	log.Println("Servers stopped")
}
