package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"sheetrelay/internal/errors"
)

// Sync strategies
const (
	StrategyUpload = "upload"
	StrategyTable  = "table"
)

// Sync modes
const (
	ModeSync  = "sync"
	ModeAsync = "async"
)

// Config represents the complete application configuration
type Config struct {
	Graph     GraphConfig    `validate:"required"`
	Sync      SyncConfig     `validate:"required"`
	Database  DatabaseConfig
	Server    ServerConfig `validate:"required"`
	Profiling ProfilingConfig
}

// GraphConfig holds the Microsoft Graph / OneDrive settings
type GraphConfig struct {
	TenantID        string `validate:"required"`
	ClientID        string `validate:"required"`
	ClientSecret    string `validate:"required"`
	UserEmail       string `validate:"required"`
	RootFolder      string
	BaseURL         string
	AuthorityURL    string
	Scope           string
	ControlTimeout  time.Duration
	TransferTimeout time.Duration
}

// SyncConfig holds remote synchronization tuning
type SyncConfig struct {
	Strategy          string `validate:"oneof=upload table"`
	Mode              string `validate:"oneof=sync async"`
	CacheDir          string `validate:"required"`
	ChunkSizeBytes    int64  `validate:"gt=0"`
	MaxRetries        int    `validate:"min=1"`
	SubmitMaxRetries  int    `validate:"min=1"`
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
	AppendRetryDelay  time.Duration
	BackgroundWorkers int `validate:"min=1"`
}

// DatabaseConfig holds database connection settings. An empty URL disables
// the best-effort database write.
type DatabaseConfig struct {
	URL string
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port         string `validate:"required"`
	GinMode      string
	MaxBodyBytes int64 `validate:"gt=0"`
}

// ProfilingConfig holds the ops/pprof server settings
type ProfilingConfig struct {
	Port    string
	Enabled bool
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{}

	graphConfig, err := loadGraphConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load graph configuration")
	}
	config.Graph = *graphConfig

	config.Sync = *loadSyncConfig()
	config.Database = DatabaseConfig{URL: getEnvOrDefault("DATABASE_URL", "")}
	config.Server = *loadServerConfig()
	config.Profiling = *loadProfilingConfig()

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

// LoadGraph reads only the Graph settings; used by the operator CLI.
func LoadGraph() (*GraphConfig, error) {
	return loadGraphConfig()
}

func loadGraphConfig() (*GraphConfig, error) {
	cfg := &GraphConfig{
		TenantID:        strings.TrimSpace(os.Getenv("AZURE_TENANT_ID")),
		ClientID:        strings.TrimSpace(os.Getenv("AZURE_CLIENT_ID")),
		ClientSecret:    strings.TrimSpace(os.Getenv("AZURE_CLIENT_SECRET")),
		UserEmail:       strings.TrimSpace(os.Getenv("ONEDRIVE_USER_EMAIL")),
		RootFolder:      strings.Trim(getEnvOrDefault("ONEDRIVE_ROOT_FOLDER", "TIMSS"), "/"),
		BaseURL:         strings.TrimRight(getEnvOrDefault("GRAPH_BASE_URL", "https://graph.microsoft.com/v1.0"), "/"),
		AuthorityURL:    strings.TrimRight(getEnvOrDefault("AZURE_AUTHORITY_URL", "https://login.microsoftonline.com"), "/"),
		Scope:           getEnvOrDefault("GRAPH_SCOPE", "https://graph.microsoft.com/.default"),
		ControlTimeout:  getEnvDurationOrDefault("GRAPH_CONTROL_TIMEOUT", 30*time.Second),
		TransferTimeout: getEnvDurationOrDefault("GRAPH_TRANSFER_TIMEOUT", 120*time.Second),
	}

	var missing []string
	for name, value := range map[string]string{
		"AZURE_TENANT_ID":     cfg.TenantID,
		"AZURE_CLIENT_ID":     cfg.ClientID,
		"AZURE_CLIENT_SECRET": cfg.ClientSecret,
		"ONEDRIVE_USER_EMAIL": cfg.UserEmail,
	} {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, errors.ConfigInvalid("missing env vars: " + strings.Join(missing, ", "))
	}
	return cfg, nil
}

func loadSyncConfig() *SyncConfig {
	return &SyncConfig{
		Strategy:          strings.ToLower(getEnvOrDefault("SYNC_STRATEGY", StrategyUpload)),
		Mode:              strings.ToLower(getEnvOrDefault("SYNC_MODE", ModeSync)),
		CacheDir:          getEnvOrDefault("EXCEL_CACHE_DIR", "excel_files"),
		ChunkSizeBytes:    int64(getEnvIntOrDefault("SYNC_CHUNK_SIZE_MB", 10)) * 1024 * 1024,
		MaxRetries:        getEnvIntOrDefault("SYNC_MAX_RETRIES", 3),
		SubmitMaxRetries:  getEnvIntOrDefault("SYNC_SUBMIT_MAX_RETRIES", 1),
		BaseBackoff:       getEnvDurationOrDefault("SYNC_BASE_BACKOFF", time.Second),
		MaxBackoff:        getEnvDurationOrDefault("SYNC_MAX_BACKOFF", 20*time.Second),
		AppendRetryDelay:  getEnvDurationOrDefault("SYNC_APPEND_RETRY_DELAY", 1500*time.Millisecond),
		BackgroundWorkers: getEnvIntOrDefault("SYNC_BACKGROUND_WORKERS", 4),
	}
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:         getEnvOrDefault("PORT", "8080"),
		GinMode:      getEnvOrDefault("GIN_MODE", "release"),
		MaxBodyBytes: int64(getEnvIntOrDefault("SERVER_MAX_BODY_BYTES", 1<<20)),
	}
}

func loadProfilingConfig() *ProfilingConfig {
	return &ProfilingConfig{
		Port:    getEnvOrDefault("PPROF_PORT", "6060"),
		Enabled: getEnvBoolOrDefault("PPROF_ENABLED", false),
	}
}

var validate = validator.New()

func validateConfig(config *Config) error {
	err := validate.Struct(config)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return errors.ConfigInvalid(err.Error())
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		name := fe.Namespace()
		if env, ok := envNames[fe.StructNamespace()]; ok {
			name = env
		}
		if fe.Param() != "" {
			problems = append(problems, fmt.Sprintf("%s fails %s=%s", name, fe.Tag(), fe.Param()))
		} else {
			problems = append(problems, fmt.Sprintf("%s fails %s", name, fe.Tag()))
		}
	}
	return errors.ConfigInvalid("invalid settings: " + strings.Join(problems, "; "))
}

// envNames maps struct fields back to the variables that set them
var envNames = map[string]string{
	"Config.Graph.TenantID":         "AZURE_TENANT_ID",
	"Config.Graph.ClientID":         "AZURE_CLIENT_ID",
	"Config.Graph.ClientSecret":     "AZURE_CLIENT_SECRET",
	"Config.Graph.UserEmail":        "ONEDRIVE_USER_EMAIL",
	"Config.Sync.Strategy":          "SYNC_STRATEGY",
	"Config.Sync.Mode":              "SYNC_MODE",
	"Config.Sync.CacheDir":          "EXCEL_CACHE_DIR",
	"Config.Sync.ChunkSizeBytes":    "SYNC_CHUNK_SIZE_MB",
	"Config.Sync.MaxRetries":        "SYNC_MAX_RETRIES",
	"Config.Sync.SubmitMaxRetries":  "SYNC_SUBMIT_MAX_RETRIES",
	"Config.Sync.BackgroundWorkers": "SYNC_BACKGROUND_WORKERS",
	"Config.Server.Port":            "PORT",
	"Config.Server.MaxBodyBytes":    "SERVER_MAX_BODY_BYTES",
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
