package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	OutputDir string `toml:"output_dir"`
	StateDir  string `toml:"state_dir"`
	LogDir    string `toml:"log_dir"`
}

// Engine contains configuration for the external download engine (aria2c).
type Engine struct {
	Binary                string `toml:"binary"`
	Port                  int    `toml:"port"`
	Concurrent            int    `toml:"concurrent"`
	Split                 int    `toml:"split"`
	SpeedLimit            string `toml:"speed_limit"`
	OverallSpeedLimit     string `toml:"overall_speed_limit"`
	DiskCache             string `toml:"disk_cache"`
	LogLevel              string `toml:"log_level"`
	EnableLogging         bool   `toml:"enable_logging"`
	SaveSessionInterval   int    `toml:"save_session_interval"`
	StartupTimeoutSeconds int    `toml:"startup_timeout_seconds"`
	StopTimeoutSeconds    int    `toml:"stop_timeout_seconds"`
	PauseTimeoutSeconds   int    `toml:"pause_timeout_seconds"`
}

// Proxy controls which transfers are routed through a proxy.
type Proxy struct {
	URL          string   `toml:"url"`
	EnabledHosts []string `toml:"enabled_hosts"`
}

// Monitor contains polling cadences and stall detection thresholds.
type Monitor struct {
	StatusIntervalMS  int `toml:"status_interval_ms"`
	SampleIntervalMS  int `toml:"sample_interval_ms"`
	WindowSeconds     int `toml:"window_seconds"`
	MaxGapMS          int `toml:"max_gap_ms"`
	StallThresholdKiB int `toml:"stall_threshold_kib"`
}

// Adapters contains settings shared by gallery adapters.
type Adapters struct {
	DownloadSampleMovies  bool `toml:"download_sample_movies"`
	RequestTimeoutSeconds int  `toml:"request_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Config encapsulates all configuration values for Galleria.
//
// Configuration sections by subsystem:
//   - Paths: output, state (queue, lock, history) and log directories
//   - Engine: aria2c process flags and supervisor timeouts
//   - Proxy: proxy endpoint and the hosts routed through it
//   - Monitor: status/sampling cadence and stall thresholds
//   - Adapters: gallery adapter behaviour
//   - Logging: log format, level, and retention
//   - Notifications: ntfy push notification settings
type Config struct {
	Paths         Paths         `toml:"paths"`
	Engine        Engine        `toml:"engine"`
	Proxy         Proxy         `toml:"proxy"`
	Monitor       Monitor       `toml:"monitor"`
	Adapters      Adapters      `toml:"adapters"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/galleria/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("galleria.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the orchestrator writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueuePath is the waiting-list file shared by every instance on the host.
func (c *Config) QueuePath() string {
	return filepath.Join(c.Paths.StateDir, "waiting-list.json")
}

// LockPath is the single-instance marker file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "galleria.lock")
}

// HistoryPath is the SQLite journal of finished galleries.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// EngineLogDir holds captured engine output when engine logging is enabled.
func (c *Config) EngineLogDir() string {
	return filepath.Join(c.Paths.LogDir, "engine")
}

// ProxyEnabled reports whether transfers of rawURL should use the proxy.
// A host matches when it equals a pattern or satisfies it as a glob
// ("*.example.com"); a leading "www." is ignored on both sides.
func (c *Config) ProxyEnabled(rawURL string) bool {
	if strings.TrimSpace(c.Proxy.URL) == "" || len(c.Proxy.EnabledHosts) == 0 {
		return false
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	for _, pattern := range c.Proxy.EnabledHosts {
		pattern = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(pattern)), "www.")
		if pattern == "" {
			continue
		}
		if pattern == "*" || pattern == host {
			return true
		}
		if ok, err := path.Match(pattern, host); err == nil && ok {
			return true
		}
	}
	return false
}

// StatusInterval is the cadence of the progress/status poll.
func (m Monitor) StatusInterval() time.Duration {
	return time.Duration(m.StatusIntervalMS) * time.Millisecond
}

// SampleInterval is the cadence at which stall detectors are fed.
func (m Monitor) SampleInterval() time.Duration {
	return time.Duration(m.SampleIntervalMS) * time.Millisecond
}

// Window is the stall detector's sliding window length.
func (m Monitor) Window() time.Duration {
	return time.Duration(m.WindowSeconds) * time.Second
}

// MaxGap is the largest tolerated gap between consecutive samples.
func (m Monitor) MaxGap() time.Duration {
	return time.Duration(m.MaxGapMS) * time.Millisecond
}

// StallThreshold returns the stall floor in bytes per second.
func (m Monitor) StallThreshold() float64 {
	return float64(m.StallThresholdKiB) * 1024
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
