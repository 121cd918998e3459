package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the context engine.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for the inspect server
	Addr string
	// Port is the binding port for the inspect server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where taleweave stores its local state
	DSN string
	// Version is the current version
	Version string

	// Backend configuration
	BackendURL    string // TALEWEAVE_BACKEND_URL (default: http://localhost:8080)
	BackendAPIKey string // TALEWEAVE_BACKEND_API_KEY

	// AI configuration for thin-frame generation
	AIEnabled         bool          // TALEWEAVE_AI_ENABLED (default: false)
	AIAPIKey          string        // TALEWEAVE_AI_API_KEY
	AIBaseURL         string        // TALEWEAVE_AI_BASE_URL (default: https://api.openai.com/v1)
	AIModel           string        // TALEWEAVE_AI_MODEL (default: gpt-4o-mini)
	AIGenerateTimeout time.Duration // TALEWEAVE_AI_GENERATE_TIMEOUT_SECONDS (default: 30s)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if generation is enabled and an API key or a
// self-hosted base URL is configured.
func (p *Profile) IsAIEnabled() bool {
	return p.AIEnabled && (p.AIAPIKey != "" || p.AIBaseURL != "https://api.openai.com/v1")
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads configuration from TALEWEAVE_* environment variables.
func (p *Profile) FromEnv() {
	p.BackendURL = getEnvOrDefault("TALEWEAVE_BACKEND_URL", "http://localhost:8080")
	p.BackendAPIKey = os.Getenv("TALEWEAVE_BACKEND_API_KEY")

	p.AIEnabled = os.Getenv("TALEWEAVE_AI_ENABLED") == "true"
	p.AIAPIKey = os.Getenv("TALEWEAVE_AI_API_KEY")
	p.AIBaseURL = getEnvOrDefault("TALEWEAVE_AI_BASE_URL", "https://api.openai.com/v1")
	p.AIModel = getEnvOrDefault("TALEWEAVE_AI_MODEL", "gpt-4o-mini")

	p.AIGenerateTimeout = 30 * time.Second
	if v := os.Getenv("TALEWEAVE_AI_GENERATE_TIMEOUT_SECONDS"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			p.AIGenerateTimeout = time.Duration(seconds) * time.Second
		}
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Data == "" {
		p.Data = "."
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.DSN == "" {
		dbFile := fmt.Sprintf("taleweave_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	return nil
}
