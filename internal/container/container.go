package container

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"sheetrelay/adapters/excel"
	"sheetrelay/adapters/graph"
	"sheetrelay/adapters/postgres"
	"sheetrelay/app"
	"sheetrelay/internal"
	"sheetrelay/internal/config"
	"sheetrelay/ports"

	"github.com/jmoiron/sqlx"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Infrastructure
	DB *sqlx.DB

	// Repositories (data access layer)
	SubmissionRepo ports.SubmissionRepository

	// Remote drive
	Credentials *graph.CredentialProvider
	Graph       *graph.Client

	// Spreadsheet pipeline
	Builder      *excel.Builder
	Provisioner  *app.TableProvisioner
	Orchestrator *app.Orchestrator
	Submissions  *app.SubmissionService
}

// New creates a new dependency injection container and wires the remote
// drive and spreadsheet pipeline. The database is attached separately.
func New(cfg *config.Config, logger *internal.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}

	c := &Container{
		Config: cfg,
		Logger: logger,
	}

	c.initGraph(&http.Client{})
	c.initPipeline()
	c.initServices()

	log.Printf("Container initialized: strategy=%s mode=%s root=%q", cfg.Sync.Strategy, cfg.Sync.Mode, cfg.Graph.RootFolder)
	return c, nil
}

// InitWithDatabase attaches the submission repository. Without it the
// database write is reported as disabled.
func (c *Container) InitWithDatabase(db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("database connection cannot be nil")
	}

	c.DB = db

	// Test database connection
	if err := db.Ping(); err != nil {
		return fmt.Errorf("database connection test failed: %w", err)
	}

	c.SubmissionRepo = postgres.NewSubmissionRepository(db)
	c.initServices()

	log.Printf("Container initialized successfully with database connection")
	return nil
}

func (c *Container) initGraph(httpClient *http.Client) {
	g := c.Config.Graph
	c.Credentials = graph.NewCredentialProvider(graph.CredentialOptions{
		AuthorityURL: g.AuthorityURL,
		TenantID:     g.TenantID,
		ClientID:     g.ClientID,
		ClientSecret: g.ClientSecret,
		Scope:        g.Scope,
		Timeout:      g.ControlTimeout,
		HTTPClient:   httpClient,
	})
	c.Graph = graph.NewClient(c.Credentials, graph.Options{
		BaseURL:         g.BaseURL,
		UserEmail:       g.UserEmail,
		ControlTimeout:  g.ControlTimeout,
		TransferTimeout: g.TransferTimeout,
		BaseBackoff:     c.Config.Sync.BaseBackoff,
		MaxBackoff:      c.Config.Sync.MaxBackoff,
		HTTPClient:      httpClient,
		Logger:          c.Logger,
	})
}

func (c *Container) initPipeline() {
	s := c.Config.Sync
	c.Builder = excel.NewBuilder(excel.DefaultStyleConfig(), c.Logger)
	c.Provisioner = app.NewTableProvisioner(c.Graph, c.Graph, c.Builder, c.Config.Graph.RootFolder, s.AppendRetryDelay, c.Logger)
	c.Orchestrator = app.NewOrchestrator(app.OrchestratorOptions{
		Strategy:          s.Strategy,
		Mode:              s.Mode,
		CacheDir:          s.CacheDir,
		RootFolder:        c.Config.Graph.RootFolder,
		ChunkSize:         s.ChunkSizeBytes,
		MaxRetries:        s.SubmitMaxRetries,
		BackgroundWorkers: s.BackgroundWorkers,
	}, c.Builder, c.Graph, c.Graph, c.Graph, c.Provisioner, c.Logger)
}

func (c *Container) initServices() {
	c.Submissions = app.NewSubmissionService(c.SubmissionRepo, c.Orchestrator, c.Logger)
}

// Shutdown waits for background syncs and closes the database
func (c *Container) Shutdown(ctx context.Context) error {
	var waitErr error
	if c.Orchestrator != nil {
		if waitErr = c.Orchestrator.Wait(ctx); waitErr != nil {
			log.Printf("Background syncs still running at shutdown: %v", waitErr)
		}
	}

	// Close database connection
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			return err
		}
	}
	return waitErr
}
