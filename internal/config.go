package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Vault     VaultConfig       `yaml:"vault"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
	Pipeline  PipelineConfig    `yaml:"pipeline"`
	Providers ProvidersConfig   `yaml:"providers"`
	Watch     WatchConfig       `yaml:"watch"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	return c.Providers.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the path to the Markdown vault directory.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path: "./vault",
		},
		SQLite: SQLiteConfig{
			Path: "./curator.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Pipeline: PipelineConfig{
			CostGateThreshold:      0.3,
			MaxTags:                8,
			MinSimilarity:          0.5,
			MaxConnectionResults:   5,
			ProviderTimeoutSeconds: 30,
			IncidentQueueDir:       "./vault/.curator/incidents",
			Workers:                4,
		},
		Providers: ProvidersConfig{
			Local: LocalProviderConfig{
				Enabled: true,
				BaseURL: "http://localhost:11434",
				Model:   "llama3.2",
			},
			Remote: RemoteProviderConfig{
				BaseURL:            "https://api.anthropic.com",
				Model:              "claude-3-5-haiku-latest",
				MinIntervalSeconds: 60,
				StateFile:          "./vault/.curator/remote-gate.json",
			},
			Embedding: EmbeddingConfig{
				Backend: EmbeddingLexical,
				BaseURL: "http://localhost:11434",
				Model:   "nomic-embed-text",
			},
		},
	}
}

// PipelineConfig holds the orchestration knobs.
type PipelineConfig struct {
	CostGateThreshold      float64 `yaml:"cost_gate_threshold"`
	MaxTags                int     `yaml:"max_tags"`
	MinSimilarity          float64 `yaml:"min_similarity"`
	MaxConnectionResults   int     `yaml:"max_connection_results"`
	ProviderTimeoutSeconds int     `yaml:"provider_timeout_seconds"`
	IncidentQueueDir       string  `yaml:"incident_queue_dir"`
	Workers                int     `yaml:"workers"`
}

// Validate validates the pipeline configuration.
func (c *PipelineConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.CostGateThreshold, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.MaxTags, validation.Required, validation.Min(1), validation.Max(50)),
		validation.Field(&c.MinSimilarity, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.MaxConnectionResults, validation.Required, validation.Min(1)),
		validation.Field(&c.ProviderTimeoutSeconds, validation.Required, validation.Min(1)),
		validation.Field(&c.IncidentQueueDir, validation.Required),
		validation.Field(&c.Workers, validation.Required, validation.Min(1), validation.Max(64)),
	)
}

// ProviderTimeout returns the per-call deadline for provider and backend I/O.
func (c *PipelineConfig) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutSeconds) * time.Second
}

// Embedding backends.
const (
	EmbeddingLexical = "lexical"
	EmbeddingOllama  = "ollama"
)

// ProvidersConfig configures the enhancement tiers and the similarity backend.
type ProvidersConfig struct {
	Local     LocalProviderConfig  `yaml:"local"`
	Remote    RemoteProviderConfig `yaml:"remote"`
	Embedding EmbeddingConfig      `yaml:"embedding"`
}

// Validate validates the providers configuration.
func (c *ProvidersConfig) Validate() error {
	if err := c.Local.Validate(); err != nil {
		return fmt.Errorf("providers.local: %w", err)
	}
	if err := c.Remote.Validate(); err != nil {
		return fmt.Errorf("providers.remote: %w", err)
	}
	if err := c.Embedding.Validate(); err != nil {
		return fmt.Errorf("providers.embedding: %w", err)
	}
	return nil
}

// LocalProviderConfig configures the Ollama tier.
type LocalProviderConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Validate validates the local provider configuration.
func (c *LocalProviderConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.Model, validation.When(c.Enabled, validation.Required)),
	)
}

// RemoteProviderConfig configures the paid fallback tier.
// MinIntervalSeconds spaces remote calls; the last grant is kept in StateFile.
type RemoteProviderConfig struct {
	Enabled            bool    `yaml:"enabled"`
	BaseURL            string  `yaml:"base_url"`
	APIKey             string  `yaml:"api_key"`
	Model              string  `yaml:"model"`
	MinIntervalSeconds int     `yaml:"min_interval_seconds"`
	RequestsPerSecond  float64 `yaml:"requests_per_second"`
	StateFile          string  `yaml:"state_file"`
}

// Validate validates the remote provider configuration.
func (c *RemoteProviderConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.APIKey, validation.When(c.Enabled, validation.Required.Error("is required when the remote tier is enabled"))),
		validation.Field(&c.Model, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.MinIntervalSeconds, validation.Min(0)),
		validation.Field(&c.RequestsPerSecond, validation.Min(0.0)),
		validation.Field(&c.StateFile, validation.When(c.Enabled && c.MinIntervalSeconds > 0, validation.Required)),
	)
}

// MinInterval returns the minimum spacing between remote calls.
func (c *RemoteProviderConfig) MinInterval() time.Duration {
	return time.Duration(c.MinIntervalSeconds) * time.Second
}

// EmbeddingConfig selects the similarity backend.
type EmbeddingConfig struct {
	Backend string `yaml:"backend"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Validate validates the embedding configuration.
func (c *EmbeddingConfig) Validate() error {
	if c.Backend == "" {
		c.Backend = EmbeddingLexical
	}
	isOllama := c.Backend == EmbeddingOllama
	return validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.In(EmbeddingLexical, EmbeddingOllama)),
		validation.Field(&c.BaseURL, validation.When(isOllama, validation.Required)),
		validation.Field(&c.Model, validation.When(isOllama, validation.Required)),
	)
}

// WatchConfig controls the vault watcher.
//
// With AutoProcess set, every note created or modified on disk runs through
// the pipeline. Writes made by the pipeline itself are not re-processed.
type WatchConfig struct {
	AutoProcess bool `yaml:"auto_process"`
	DryRun      bool `yaml:"dry_run"`
}

