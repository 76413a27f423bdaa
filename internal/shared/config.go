package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// CallbackPath is the path Google redirects back to after consent.
const CallbackPath = "/oauth/callback/"

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Google   GoogleConfig   `toml:"google"`
	YouTube  YouTubeConfig  `toml:"youtube"`
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Uploads  UploadsConfig  `toml:"uploads"`
}

// GoogleConfig contains the OAuth client registered in the Google Cloud console.
type GoogleConfig struct {
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	RedirectURI  string   `toml:"redirect_uri"`
	Scopes       []string `toml:"scopes"`
}

// YouTubeConfig contains YouTube Data API settings.
type YouTubeConfig struct {
	APIEndpoint       string  `toml:"api_endpoint"`
	RegionCode        string  `toml:"region_code"`
	Language          string  `toml:"language"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server and session settings.
type ServerConfig struct {
	Host          string   `toml:"host"`
	Port          int      `toml:"port"`
	CookieName    string   `toml:"cookie_name"`
	SessionTTL    Duration `toml:"session_ttl"`
	SecureCookies bool     `toml:"secure_cookies"`
}

// UploadsConfig controls where uploaded files are staged and how processing is polled.
type UploadsConfig struct {
	Dir               string   `toml:"dir"`
	MaxSizeMB         int64    `toml:"max_size_mb"`
	AllowedExtensions []string `toml:"allowed_extensions"`
	PollInterval      Duration `toml:"poll_interval"`
	PollAttempts      int      `toml:"poll_attempts"`
}

// MaxBytes returns the upload size limit in bytes.
func (u UploadsConfig) MaxBytes() int64 {
	return u.MaxSizeMB * 1024 * 1024
}

// Duration wraps [time.Duration] so it can be written as "10s" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Addr returns the host:port the HTTP server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the defaults from the embedded example config.
// Environment variables (optionally from a .env file next to the working directory) override the file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	_ = godotenv.Load()
	config.applyEnv()
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("YTLINK_GOOGLE_CLIENT_ID"); v != "" {
		c.Google.ClientID = v
	}
	if v := os.Getenv("YTLINK_GOOGLE_CLIENT_SECRET"); v != "" {
		c.Google.ClientSecret = v
	}
	if v := os.Getenv("YTLINK_GOOGLE_REDIRECT_URI"); v != "" {
		c.Google.RedirectURI = v
	}
	if v := os.Getenv("YTLINK_DATABASE_PATH"); v != "" {
		c.Database.Path = v
	}
}

// ConfigIssue is a single finding reported by [Config.Check].
type ConfigIssue struct {
	Field   string
	Message string
}

func (i ConfigIssue) String() string {
	return i.Field + ": " + i.Message
}

// Check reports configuration problems that would break the OAuth flow.
func (c *Config) Check() []ConfigIssue {
	var issues []ConfigIssue

	if c.Google.ClientID == "" || strings.HasPrefix(c.Google.ClientID, "your_") {
		issues = append(issues, ConfigIssue{"google.client_id", "not configured"})
	}
	if c.Google.ClientSecret == "" || strings.HasPrefix(c.Google.ClientSecret, "your_") {
		issues = append(issues, ConfigIssue{"google.client_secret", "not configured"})
	}
	if c.Google.RedirectURI == "" {
		issues = append(issues, ConfigIssue{"google.redirect_uri", "not configured"})
	} else if !strings.HasSuffix(c.Google.RedirectURI, CallbackPath) {
		issues = append(issues, ConfigIssue{"google.redirect_uri", "must end with " + CallbackPath})
	}
	if len(c.Google.Scopes) == 0 {
		issues = append(issues, ConfigIssue{"google.scopes", "at least one scope is required"})
	}
	if c.Uploads.MaxSizeMB <= 0 {
		issues = append(issues, ConfigIssue{"uploads.max_size_mb", "must be positive"})
	}
	return issues
}

// Validate returns [ErrInvalidConfig] wrapping the first issue found by [Config.Check].
func (c *Config) Validate() error {
	if issues := c.Check(); len(issues) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, issues[0])
	}
	return nil
}
