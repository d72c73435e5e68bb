// Package internal provides application configuration and the serve-mode
// runtime.
package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes for the web server.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Vault   VaultConfig       `yaml:"vault"`
	Index   IndexConfig       `yaml:"index"`
	Editor  CommandConfig     `yaml:"editor"`
	Browser CommandConfig     `yaml:"browser"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.Editor.Validate(); err != nil {
		return err
	}
	if err := c.Browser.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// IndexPath returns the index database path, defaulting to index.db
// inside the vault.
func (c *Config) IndexPath() string {
	if c.Index.Path != "" {
		return c.Index.Path
	}
	return filepath.Join(c.Vault.Path, "index.db")
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

// HTTPConfig holds HTTP server configuration for serve mode.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns the HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the path to the notes vault directory.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// IndexConfig holds the index database location.
type IndexConfig struct {
	Path string `yaml:"path"`
}

// CommandConfig holds an external command template. The template must
// contain a "{}" placeholder for the file path.
type CommandConfig struct {
	Cmd string `yaml:"cmd"`
}

// Validate validates the command template.
func (c *CommandConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Cmd, validation.Required),
	); err != nil {
		return err
	}
	if !strings.Contains(c.Cmd, "{}") {
		return fmt.Errorf("command %q does not contain a {} placeholder", c.Cmd)
	}
	return nil
}

// AuthConfig holds web server authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication, suitable for localhost.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
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

// NewDefaultConfig returns a Config with sensible default values. Notes
// live under ~/.mdn.d unless configured otherwise.
func NewDefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path: filepath.Join(home, ".mdn.d"),
		},
		Editor: CommandConfig{
			Cmd: "vim {}",
		},
		Browser: CommandConfig{
			Cmd: "firefox {}",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
