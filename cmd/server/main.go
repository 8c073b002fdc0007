package main

import (
	"context"
	"embed"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gather-app/gather/api"
	dbfs "github.com/gather-app/gather/db"
	"github.com/gather-app/gather/internal/config"
	"github.com/gather-app/gather/internal/db"
	"github.com/gather-app/gather/internal/jobs"
	"github.com/gather-app/gather/internal/notify"
	"github.com/gather-app/gather/internal/survey"
	"github.com/gather-app/gather/pkg/courier"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var configPath = flag.String("config", "", "Path to config YAML file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	log.Printf("Starting gather server version %s (built at %s)", version, buildTime)

	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	api.SetLogger(logger)
	survey.SetLogger(logger)

	// Open database connection
	conn, err := db.New(ctx, cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}

	// Demo seed data only loads when explicitly requested; an empty FS
	// makes Migrate skip the seed step.
	seedFS := embed.FS{}
	if cfg.SeedDemo {
		seedFS = dbfs.SeedFiles
	}
	if err := db.Migrate(ctx, conn, dbfs.Migrations, seedFS); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	sender, closeSender := buildSender(cfg, logger)
	defer closeSender()

	pool := jobs.NewWorkerPool(jobs.NewRepository(conn), map[string]jobs.Handler{
		notify.JobTypeRSVPConfirmation: notify.Handler(sender),
	}, logger, cfg.Workers.Count, cfg.Workers.PollInterval)
	pool.Start(ctx)

	handler := api.SetupRoutes(cfg, version, buildTime, conn, pool)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.APITimeout,
		WriteTimeout: cfg.APITimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// Drain background workers before the database goes away
	pool.Stop()

	// Close database connection
	if err := conn.Close(); err != nil {
		log.Printf("Error closing DB: %v", err)
	}

	log.Println("Server exited")
}

// buildSender picks the confirmation delivery path. With the courier relay
// enabled messages go over HTTP; otherwise they land in the log so local
// setups still surface the edit link.
func buildSender(cfg *config.Config, logger *slog.Logger) (notify.Sender, func()) {
	if !cfg.Courier.Enabled {
		return notify.NewLogSender(logger), func() {}
	}

	courier.SetLogger(logger)
	client, err := courier.NewDefaultClient(cfg.Courier)
	if err != nil {
		log.Fatalf("Failed to create courier client: %v", err)
	}
	sender := notify.SenderFunc(func(ctx context.Context, m *notify.Message) error {
		_, err := client.Send(ctx, courier.Message{To: m.To, Subject: m.Subject, Body: m.Body})
		return err
	})
	return sender, func() {
		if err := client.Close(); err != nil {
			log.Printf("Error closing courier client: %v", err)
		}
	}
}
