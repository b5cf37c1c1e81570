package main

import (
	"context"
	"log"

	"kickchoice/internal/config"
	"kickchoice/internal/container"
	"kickchoice/ui"

	"github.com/joho/godotenv"
)

// Serves the run browser alone, without the JSON API
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	appContainer, err := container.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create container: %v", err)
	}
	if err := appContainer.Init(context.Background()); err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	defer appContainer.Close()

	app, err := ui.NewApp(appContainer.EstimationService, ui.Config{Port: cfg.Server.UIPort})
	if err != nil {
		log.Fatal("Failed to create UI app:", err)
	}

	log.Printf("Starting kickchoice UI on http://localhost:%s", cfg.Server.UIPort)
	log.Fatal(app.Start())
}
