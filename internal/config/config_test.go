package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"galleria/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("GALLERIA_PROXY", "")
	t.Setenv("GALLERIA_NTFY_TOPIC", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved != filepath.Join(tempHome, ".config", "galleria", "config.toml") {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	if want := filepath.Join(tempHome, "Pictures", "galleria"); cfg.Paths.OutputDir != want {
		t.Fatalf("output dir = %q, want %q", cfg.Paths.OutputDir, want)
	}
	if want := filepath.Join(tempHome, ".local", "share", "galleria"); cfg.Paths.StateDir != want {
		t.Fatalf("state dir = %q, want %q", cfg.Paths.StateDir, want)
	}
	if cfg.QueuePath() != filepath.Join(cfg.Paths.StateDir, "waiting-list.json") {
		t.Fatalf("unexpected queue path: %q", cfg.QueuePath())
	}
	if cfg.LockPath() != filepath.Join(cfg.Paths.StateDir, "galleria.lock") {
		t.Fatalf("unexpected lock path: %q", cfg.LockPath())
	}
	if cfg.Engine.Binary != "aria2c" || cfg.Engine.Concurrent != 3 || cfg.Engine.Split != 1 {
		t.Fatalf("unexpected engine defaults: %+v", cfg.Engine)
	}
	if cfg.Monitor.StatusInterval() != time.Second {
		t.Fatalf("status interval = %v", cfg.Monitor.StatusInterval())
	}
	if cfg.Monitor.SampleInterval() != 250*time.Millisecond {
		t.Fatalf("sample interval = %v", cfg.Monitor.SampleInterval())
	}
	if cfg.Monitor.Window() != 10*time.Second || cfg.Monitor.MaxGap() != time.Second {
		t.Fatalf("unexpected window/gap: %v %v", cfg.Monitor.Window(), cfg.Monitor.MaxGap())
	}
	if cfg.Monitor.StallThreshold() != 256*1024 {
		t.Fatalf("stall threshold = %v", cfg.Monitor.StallThreshold())
	}
	if cfg.Proxy.URL != "http://127.0.0.1:9999" {
		t.Fatalf("unexpected proxy url: %q", cfg.Proxy.URL)
	}
}

func TestLoadCustomConfigOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("GALLERIA_PROXY", "")

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `
[paths]
output_dir = "~/galleries"

[engine]
port = 6800
concurrent = 5
split = 4
speed_limit = "2M"
log_level = "WARN"

[proxy]
url = "socks5://127.0.0.1:1080"
enabled_hosts = ["*.dpreview.com", " "]

[monitor]
stall_threshold_kib = 64

[logging]
format = "JSON"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if cfg.Paths.OutputDir != filepath.Join(tempHome, "galleries") {
		t.Fatalf("unexpected output dir: %q", cfg.Paths.OutputDir)
	}
	if cfg.Engine.Port != 6800 || cfg.Engine.Concurrent != 5 || cfg.Engine.Split != 4 {
		t.Fatalf("unexpected engine config: %+v", cfg.Engine)
	}
	if cfg.Engine.LogLevel != "warn" {
		t.Fatalf("engine log level = %q, want warn", cfg.Engine.LogLevel)
	}
	if cfg.Engine.OverallSpeedLimit != "0" {
		t.Fatalf("overall speed limit = %q, want default", cfg.Engine.OverallSpeedLimit)
	}
	if len(cfg.Proxy.EnabledHosts) != 1 {
		t.Fatalf("expected blank host pattern to be dropped, got %v", cfg.Proxy.EnabledHosts)
	}
	if cfg.Monitor.StallThresholdKiB != 64 {
		t.Fatalf("stall threshold = %d", cfg.Monitor.StallThresholdKiB)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("log format = %q", cfg.Logging.Format)
	}
}

func TestLoadEnvironmentFallbacks(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GALLERIA_PROXY", "http://10.0.0.1:3128")
	t.Setenv("GALLERIA_NTFY_TOPIC", "https://ntfy.sh/galleria")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Proxy.URL != "http://10.0.0.1:3128" {
		t.Fatalf("proxy url = %q", cfg.Proxy.URL)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.sh/galleria" {
		t.Fatalf("ntfy topic = %q", cfg.Notifications.NtfyTopic)
	}
}

func TestValidateRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		substr string
	}{
		{"port", func(c *config.Config) { c.Engine.Port = 70000 }, "engine.port"},
		{"concurrent", func(c *config.Config) { c.Engine.Concurrent = 0 }, "engine.concurrent"},
		{"split", func(c *config.Config) { c.Engine.Split = -1 }, "engine.split"},
		{"engine log level", func(c *config.Config) { c.Engine.LogLevel = "loud" }, "engine.log_level"},
		{"proxy without url", func(c *config.Config) {
			c.Proxy.URL = ""
			c.Proxy.EnabledHosts = []string{"*"}
		}, "proxy.url"},
		{"bad host pattern", func(c *config.Config) { c.Proxy.EnabledHosts = []string{"[a"} }, "proxy.enabled_hosts"},
		{"gap below interval", func(c *config.Config) { c.Monitor.MaxGapMS = 100 }, "monitor.max_gap_ms"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.substr) {
				t.Fatalf("error %q does not mention %q", err, tt.substr)
			}
		})
	}
}

func TestProxyEnabled(t *testing.T) {
	cfg := config.Default()
	if cfg.ProxyEnabled("https://www.dpreview.com/a.jpg") {
		t.Fatal("no host patterns should disable the proxy")
	}
	cfg.Proxy.EnabledHosts = []string{"*.dpreview.com", "example.org"}

	tests := []struct {
		url  string
		want bool
	}{
		{"https://3.img-dpreview.com/files/a.jpg", false},
		{"https://img.dpreview.com/files/a.jpg", true},
		{"https://www.example.org/b.jpg", true},
		{"https://example.org:8443/b.jpg", true},
		{"https://other.net/c.jpg", false},
		{"::not a url", false},
	}
	for _, tt := range tests {
		if got := cfg.ProxyEnabled(tt.url); got != tt.want {
			t.Errorf("ProxyEnabled(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}

	cfg.Proxy.URL = ""
	if cfg.ProxyEnabled("https://img.dpreview.com/a.jpg") {
		t.Fatal("empty proxy url must disable the proxy")
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GALLERIA_PROXY", "")
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("sample is not valid TOML: %v", err)
	}
	if decoded.Engine.Concurrent != config.Default().Engine.Concurrent {
		t.Fatalf("sample concurrent = %d, want default", decoded.Engine.Concurrent)
	}

	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("Load(sample) = exists %v, err %v", exists, err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.OutputDir = filepath.Join(base, "out")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "state", "logs")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, dir := range []string{cfg.Paths.OutputDir, cfg.Paths.StateDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}
