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
	Store     StoreConfig       `yaml:"store"`
	Artifacts ArtifactsConfig   `yaml:"artifacts"`
	Record    RecordConfig      `yaml:"record"`
	Convert   ConvertConfig     `yaml:"convert"`
	Legacy    LegacyConfig      `yaml:"legacy"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Artifacts.Validate(); err != nil {
		return err
	}
	if err := c.Record.Validate(); err != nil {
		return err
	}
	if err := c.Convert.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
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

// StoreConfig holds the SQLite database path.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// ArtifactsConfig holds the audio artifact directory.
type ArtifactsConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the artifacts configuration.
func (c *ArtifactsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// RecordConfig holds audio capture configuration.
type RecordConfig struct {
	SampleRate int `yaml:"sample_rate"`
}

// Validate validates the record configuration.
func (c *RecordConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SampleRate, validation.Required, validation.Min(8000), validation.Max(48000)),
	)
}

// ConvertConfig holds the voice conversion service configuration.
// BaseURL may be empty, in which case conversion and speech report
// network failures until configured.
type ConvertConfig struct {
	BaseURL           string `yaml:"base_url"`
	Token             string `yaml:"token"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	TransportAttempts uint   `yaml:"transport_attempts"`
}

// Timeout returns the per-request conversion timeout.
func (c *ConvertConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate validates the convert configuration.
func (c *ConvertConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TimeoutSeconds, validation.Required, validation.Min(1), validation.Max(3600)),
		validation.Field(&c.TransportAttempts, validation.Required, validation.Min(uint(1)), validation.Max(uint(5))),
	)
}

// LegacyConfig points at a previous-generation database to import on
// startup. An empty path disables the import.
type LegacyConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
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
		Store: StoreConfig{
			Path: "./vnote.db",
		},
		Artifacts: ArtifactsConfig{
			Path: "./voicenote",
		},
		Record: RecordConfig{
			SampleRate: 16000,
		},
		Convert: ConvertConfig{
			TimeoutSeconds:    60,
			TransportAttempts: 1,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
