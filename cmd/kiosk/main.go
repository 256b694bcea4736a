package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/printpoint/kiosk/internal/api"
	"github.com/printpoint/kiosk/internal/api/handlers"
	"github.com/printpoint/kiosk/internal/api/middleware"
	"github.com/printpoint/kiosk/internal/config"
	"github.com/printpoint/kiosk/internal/convert"
	"github.com/printpoint/kiosk/internal/core"
	"github.com/printpoint/kiosk/internal/db"
	"github.com/printpoint/kiosk/internal/ingest"
	"github.com/printpoint/kiosk/internal/notify"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Local development overrides; missing .env is fine.
	godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		log.Fatalf("failed to create data directory: %v", err)
	}
	if err := db.Init(db.Config{Path: cfg.Database.Path}); err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	defer db.Close()

	auth, err := middleware.NewAuth(&cfg.Auth)
	if err != nil {
		log.Fatalf("failed to initialize auth: %v", err)
	}

	hub := notify.NewHub(64)
	converter := convert.New()
	printer := core.NewPrinter(&cfg.Printer)

	scheduler := core.NewScheduler(printer, converter, hub, &cfg.Scheduler)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer scheduler.Stop()

	ingestService, err := ingest.NewService(&cfg.Storage, converter, scheduler)
	if err != nil {
		log.Fatalf("failed to initialize ingestion: %v", err)
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "print kiosk backend is running"})
	})

	handlers.NewDocumentHandler(ingestService, scheduler).RegisterRoutes(router, auth)
	handlers.NewEventHandler(hub).RegisterRoutes(router)
	handlers.NewAdminHandler(auth).RegisterRoutes(router, auth)
	handlers.NewUserHandler(auth).RegisterRoutes(router, auth)

	server := api.NewServer(&cfg.Server, router)

	go func() {
		log.Printf("starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}
}
