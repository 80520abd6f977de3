// ABOUTME: Server configuration loaded from YAML with env overrides
// ABOUTME: Each section validates itself; Load applies defaults first
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultEnvFiles are loaded by LoadEnv when no files are given
var DefaultEnvFiles = []string{".env", ".env.development"}

// Config is the audio-chat server configuration
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Notify    NotifyConfig    `yaml:"notify"`
	Discovery DiscoveryConfig `yaml:"discovery"`
}

// HTTPConfig controls the API listener
type HTTPConfig struct {
	Address        string        `yaml:"address"`
	Port           int           `yaml:"port"`
	HostSuffixes   []string      `yaml:"https_host_suffixes"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

// StorageConfig locates clip files and their index.
// An empty IndexPath keeps the store ephemeral (directory scan only).
type StorageConfig struct {
	Root      string `yaml:"root"`
	IndexPath string `yaml:"index_path"`
}

// LoggingConfig selects slog level and handler
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TelemetryConfig toggles tracing
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
	Exporter    string `yaml:"exporter"`
}

// NotifyConfig configures the optional NATS bridge for clip notifications
type NotifyConfig struct {
	NATSURL        string        `yaml:"nats_url"`
	SubjectPrefix  string        `yaml:"subject_prefix"`
	ClientName     string        `yaml:"client_name"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	Embedded       bool          `yaml:"embedded"`
	EmbeddedPort   int           `yaml:"embedded_port"`
}

// Enabled reports whether clip notifications leave the process
func (n NotifyConfig) Enabled() bool {
	return n.NATSURL != "" || n.Embedded
}

// DiscoveryConfig controls mDNS advertisement
type DiscoveryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Address:        "0.0.0.0",
			Port:           5000,
			HostSuffixes:   []string{".replit.dev"},
			MaxUploadBytes: 32 << 20,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   60 * time.Second,
		},
		Storage: StorageConfig{
			Root:      "audio",
			IndexPath: "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			ServiceName: "audio-chat",
			Exporter:    "stdout",
		},
		Notify: NotifyConfig{
			SubjectPrefix:  "audiochat",
			ClientName:     "audiochat-server",
			ConnectTimeout: 2 * time.Second,
			EmbeddedPort:   4222,
		},
		Discovery: DiscoveryConfig{
			Enabled: false,
			Name:    "audio-chat",
		},
	}
}

// Load reads path (if non-empty) over the defaults, applies env overrides and validates
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// defaults plus env
		default:
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadEnv loads dotenv files into the process environment.
// Missing files are skipped; existing variables are never overwritten.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = DefaultEnvFiles
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	overrideString("HOST", &cfg.HTTP.Address)
	if err := overrideInt("PORT", &cfg.HTTP.Port); err != nil {
		return err
	}
	if err := overrideInt64("AUDIOCHAT_MAX_UPLOAD_BYTES", &cfg.HTTP.MaxUploadBytes); err != nil {
		return err
	}
	if v, ok := os.LookupEnv("AUDIOCHAT_HTTPS_HOST_SUFFIXES"); ok {
		cfg.HTTP.HostSuffixes = splitAndTrim(v)
	}

	overrideString("AUDIO_ROOT", &cfg.Storage.Root)
	overrideString("AUDIOCHAT_INDEX_PATH", &cfg.Storage.IndexPath)

	overrideString("LOG_LEVEL", &cfg.Logging.Level)
	overrideString("LOG_FORMAT", &cfg.Logging.Format)

	if err := overrideBool("AUDIOCHAT_TRACING", &cfg.Telemetry.Enabled); err != nil {
		return err
	}

	overrideString("NATS_URL", &cfg.Notify.NATSURL)
	overrideString("AUDIOCHAT_NATS_SUBJECT_PREFIX", &cfg.Notify.SubjectPrefix)
	if err := overrideBool("AUDIOCHAT_NATS_EMBEDDED", &cfg.Notify.Embedded); err != nil {
		return err
	}

	if err := overrideBool("AUDIOCHAT_MDNS", &cfg.Discovery.Enabled); err != nil {
		return err
	}
	return nil
}

func overrideString(key string, target *string) {
	if v, ok := os.LookupEnv(key); ok {
		*target = strings.TrimSpace(v)
	}
}

func overrideInt(key string, target *int) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*target = n
	return nil
}

func overrideInt64(key string, target *int64) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*target = n
	return nil
}

func overrideBool(key string, target *bool) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*target = b
	return nil
}

func splitAndTrim(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry config: %w", err)
	}
	if err := c.Notify.Validate(); err != nil {
		return fmt.Errorf("notify config: %w", err)
	}
	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", h.Port)
	}
	if h.MaxUploadBytes < 1 {
		return fmt.Errorf("max_upload_bytes must be positive, got %d", h.MaxUploadBytes)
	}
	if h.ReadTimeout < 0 || h.WriteTimeout < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}
	return nil
}

// Addr returns the listen address
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Address, h.Port)
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	if strings.TrimSpace(s.Root) == "" {
		return fmt.Errorf("root cannot be empty")
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	if _, err := l.SlogLevel(); err != nil {
		return err
	}
	switch l.Format {
	case "text", "json":
	default:
		return fmt.Errorf("format must be text or json, got %q", l.Format)
	}
	return nil
}

// SlogLevel parses Level
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("invalid level %q", l.Level)
	}
	return lvl, nil
}

// Validate validates telemetry configuration
func (t *TelemetryConfig) Validate() error {
	if !t.Enabled {
		return nil
	}
	if t.ServiceName == "" {
		return fmt.Errorf("service_name cannot be empty when tracing is enabled")
	}
	switch t.Exporter {
	case "stdout", "none":
	default:
		return fmt.Errorf("exporter must be stdout or none, got %q", t.Exporter)
	}
	return nil
}

// Validate validates notify configuration
func (n *NotifyConfig) Validate() error {
	if !n.Enabled() {
		return nil
	}
	if n.Embedded && n.NATSURL == "" && (n.EmbeddedPort == 0 || n.EmbeddedPort < -1 || n.EmbeddedPort > 65535) {
		return fmt.Errorf("embedded_port must be -1 or between 1 and 65535, got %d", n.EmbeddedPort)
	}
	if n.SubjectPrefix == "" {
		return fmt.Errorf("subject_prefix cannot be empty when nats_url is set")
	}
	if n.ConnectTimeout <= 0 {
		return fmt.Errorf("connect_timeout must be positive")
	}
	return nil
}
