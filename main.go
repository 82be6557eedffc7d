package main

import (
	"context"
	stderrors "errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sheetrelay/internal"
	"sheetrelay/internal/api"
	"sheetrelay/internal/config"
	"sheetrelay/internal/container"
	"sheetrelay/internal/errors"
	"sheetrelay/internal/migration"
	"sheetrelay/internal/ops"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

const shutdownTimeout = 2 * time.Minute

// initDatabase connects to PostgreSQL and applies the schema
func initDatabase(url string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", url)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	// Run migrations
	migrator := migration.NewRunner()
	if err := migrator.Run(context.Background(), db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "database migration failed")
	}

	return db, nil
}

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Load application configuration
	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := internal.NewDefaultLogger()

	// Create dependency injection container
	appContainer, err := container.New(appConfig, logger)
	if err != nil {
		log.Fatalf("Failed to create application container: %v", err)
	}

	// The database write is best effort; run without it when unconfigured or down
	if appConfig.Database.URL != "" {
		db, err := initDatabase(appConfig.Database.URL)
		if err != nil {
			log.Printf("⚠️  Database unavailable, continuing with spreadsheet only: %v", err)
		} else if err := appContainer.InitWithDatabase(db); err != nil {
			log.Printf("⚠️  Database unavailable, continuing with spreadsheet only: %v", err)
		}
	} else {
		log.Println("DATABASE_URL not set, database writes disabled")
	}

	// Start ops server for profiling and lock diagnostics
	if appConfig.Profiling.Enabled {
		go func() {
			log.Printf("🚀 Ops server starting on :%s", appConfig.Profiling.Port)
			log.Printf("💡 View profiles: go tool pprof -http=:8081 http://localhost:%s/debug/pprof/profile?seconds=30", appConfig.Profiling.Port)
			if err := http.ListenAndServe(":"+appConfig.Profiling.Port, ops.NewRouter(appContainer.Orchestrator)); err != nil {
				log.Printf("❌ ops server failed: %v", err)
			}
		}()
	}

	gin.SetMode(appConfig.Server.GinMode)
	handler := api.NewSubmissionHandler(appContainer.Submissions, appConfig.Server.MaxBodyBytes, logger)
	server := &http.Server{
		Addr:              ":" + appConfig.Server.Port,
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("🚀 Starting sheetrelay on port %s", appConfig.Server.Port)
		if err := server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			log.Fatalf("❌ server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down, draining background syncs...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	if err := appContainer.Shutdown(ctx); err != nil {
		log.Printf("Container shutdown: %v", err)
	}
}
