// Package config handles TOML configuration loading and validation.
package config

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"wms-proxy-go/internal/crs"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/wms-proxy/config.toml",
	"configs/config.toml",
}

// DefaultUpstreamURL is the WMS endpoint used when none is configured.
const DefaultUpstreamURL = "https://services.geodataonline.no/arcgis/services/Geocache_UTM33_EUREF89/GeocacheBilder/MapServer/WMSServer"

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config    string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host      string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port      int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	AuthToken string `kong:"help='Pre-shared Basic auth token for the upstream WMS (overrides config).',env='GEODATA_BASIC_AUTH'"`
	TimeoutMS int    `kong:"help='Upstream timeout in milliseconds (overrides config).',env='UPSTREAM_TIMEOUT_MS'"`
	LogLevel  string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Upstream UpstreamConfig `toml:"upstream"`
	WMS      WMSConfig      `toml:"wms"`
	CORS     CORSConfig     `toml:"cors"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"` // 0 means "use default" (5001); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64  `toml:"body_max_bytes"`
}

// UpstreamConfig holds the upstream WMS endpoint and its credentials.
type UpstreamConfig struct {
	BaseURL         string `toml:"base_url"`
	AuthToken       string `toml:"auth_token"` // already base64, sent as "Basic <token>"
	Username        string `toml:"username"`
	Password        string `toml:"password"`
	TimeoutMS       int    `toml:"timeout_ms"`
	DisableTimeout  bool   `toml:"disable_timeout"`
	IdleConnections int    `toml:"idle_connections"`
	MaxBodyBytes    int64  `toml:"max_body_bytes"`
}

// WMSConfig controls how inbound queries are rewritten.
type WMSConfig struct {
	TargetCRS     string `toml:"target_crs"`
	DefaultCRS    string `toml:"default_crs"`
	Strict        bool   `toml:"strict"`
	UpperCaseKeys *bool  `toml:"uppercase_keys"` // nil means "use default" (true)
}

// CORSConfig controls cross-origin access for browser map clients.
type CORSConfig struct {
	AllowOrigins     []string `toml:"allow_origins"`
	AllowCredentials bool     `toml:"allow_credentials"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/wms-proxy/config.toml then configs/config.toml. If none exists the
// proxy runs on defaults plus CLI/environment overrides.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.AuthToken != "" {
		c.Upstream.AuthToken = cli.AuthToken
	}
	if cli.TimeoutMS != 0 {
		c.Upstream.TimeoutMS = cli.TimeoutMS
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	if c.Upstream.AuthToken == "YOUR_TOKEN_HERE" {
		return fmt.Errorf("upstream.auth_token contains placeholder value; set a real token or leave empty for anonymous access")
	}
	if c.Upstream.AuthToken != "" && c.Upstream.Username != "" {
		return fmt.Errorf("upstream.auth_token and upstream.username are mutually exclusive")
	}

	// Upstream URL must be absolute and HTTPS.
	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil {
		return fmt.Errorf("upstream.base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("upstream.base_url must be an absolute HTTPS URL; got %q", c.Upstream.BaseURL)
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstream.TimeoutMS < 0 {
		return fmt.Errorf("upstream.timeout_ms must be non-negative; got %d", c.Upstream.TimeoutMS)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Upstream.MaxBodyBytes < 0 {
		return fmt.Errorf("upstream.max_body_bytes must be non-negative; got %d", c.Upstream.MaxBodyBytes)
	}

	// CRS fields must name a supported CRS.
	if !crs.Parse(c.WMS.TargetCRS).Known() {
		return fmt.Errorf("wms.target_crs must be one of EPSG:3857, EPSG:4326, CRS:84; got %q", c.WMS.TargetCRS)
	}
	if !crs.Parse(c.WMS.DefaultCRS).Known() {
		return fmt.Errorf("wms.default_crs must be one of EPSG:3857, EPSG:4326, CRS:84; got %q", c.WMS.DefaultCRS)
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range ReservedPaths {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// ReservedPaths are the routes served by the proxy itself.
var ReservedPaths = []string{"/wms", "/fn/wms", "/healthz", "/proxy/status"}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, TimeoutMS, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key. Use
// upstream.disable_timeout to remove the upstream timeout.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5001
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 64 * 1024 // GET-only; 64 KB
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = DefaultUpstreamURL
	}
	if c.Upstream.TimeoutMS == 0 {
		c.Upstream.TimeoutMS = 10000
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Upstream.MaxBodyBytes == 0 {
		c.Upstream.MaxBodyBytes = 32 * 1024 * 1024 // 32 MB
	}
	if c.WMS.TargetCRS == "" {
		c.WMS.TargetCRS = crs.WGS84.String()
	}
	if c.WMS.DefaultCRS == "" {
		c.WMS.DefaultCRS = crs.WebMercator.String()
	}
	if c.WMS.UpperCaseKeys == nil {
		upper := true
		c.WMS.UpperCaseKeys = &upper
	}
	if len(c.CORS.AllowOrigins) == 0 {
		c.CORS.AllowOrigins = []string{"*"}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Timeout returns the upstream timeout, or 0 when it is disabled.
func (c *UpstreamConfig) Timeout() time.Duration {
	if c.DisableTimeout {
		return 0
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// Authorization returns the value of the upstream Authorization header, or
// empty string for anonymous access.
func (c *UpstreamConfig) Authorization() string {
	switch {
	case c.AuthToken != "":
		return "Basic " + c.AuthToken
	case c.Username != "":
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.Username+":"+c.Password))
	default:
		return ""
	}
}

// UpperCase reports whether parameter names are upper-cased before forwarding.
func (c *WMSConfig) UpperCase() bool {
	return c.UpperCaseKeys == nil || *c.UpperCaseKeys
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or
// others. The file may hold the upstream credentials.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
