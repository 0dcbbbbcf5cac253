package main

import (
	"context"
	"embed"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/wailsapp/wails/v3/pkg/application"

	"xautodm/internal/app"
	"xautodm/internal/config"
	"xautodm/internal/logging"
	"xautodm/internal/store"
)

//go:embed all:assets
var assetsFS embed.FS

func main() {
	// Load or create configuration
	cfg, err := config.Load()
	if err != nil {
		if os.IsNotExist(err) {
			cfg = config.Default()
			if err := cfg.Save(); err != nil {
				log.Printf("Warning: could not save default config: %v", err)
			} else {
				path, _ := config.ConfigPath()
				log.Printf("Created default config at: %s", path)
			}
		} else {
			log.Printf("Warning: could not load config: %v (using defaults)", err)
			cfg = config.Default()
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("Warning: invalid config: %v (using defaults)", err)
		cfg = config.Default()
	}

	buf := logging.NewBuffer(500)
	logger := logging.New(cfg.Logging.Level, buf)

	dataDir, err := config.DataDir()
	if err != nil {
		log.Fatalf("Failed to resolve data directory: %v", err)
	}
	st, err := store.Open(filepath.Join(dataDir, "roster.db"))
	if err != nil {
		log.Fatalf("Failed to open roster database: %v", err)
	}

	svc := app.New(cfg, st, buf, logger)
	if err := svc.Startup(context.Background()); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	assets, err := fs.Sub(assetsFS, "assets")
	if err != nil {
		log.Fatalf("Failed to mount assets: %v", err)
	}

	gui := application.New(application.Options{
		Name:        "xautodm",
		Description: "Follower extraction and DM campaigns for X",
		Services: []application.Service{
			application.NewService(svc),
		},
		Assets: application.AssetOptions{
			Handler: application.AssetFileServerFS(assets),
		},
	})

	gui.Window.NewWithOptions(application.WebviewWindowOptions{
		Title:  "xautodm",
		Width:  1100,
		Height: 760,
		URL:    "/",
	})

	runErr := gui.Run()
	svc.Shutdown()
	if runErr != nil {
		log.Fatalf("Application error: %v", runErr)
	}
}
