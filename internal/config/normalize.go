package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeEngine()
	c.normalizeProxy()
	c.normalizeMonitor()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeEngine() {
	c.Engine.Binary = strings.TrimSpace(c.Engine.Binary)
	if c.Engine.Binary == "" {
		c.Engine.Binary = defaultEngineBinary
	}
	c.Engine.SpeedLimit = strings.TrimSpace(c.Engine.SpeedLimit)
	if c.Engine.SpeedLimit == "" {
		c.Engine.SpeedLimit = defaultEngineSpeedLimit
	}
	c.Engine.OverallSpeedLimit = strings.TrimSpace(c.Engine.OverallSpeedLimit)
	if c.Engine.OverallSpeedLimit == "" {
		c.Engine.OverallSpeedLimit = defaultEngineSpeedLimit
	}
	c.Engine.DiskCache = strings.TrimSpace(c.Engine.DiskCache)
	c.Engine.LogLevel = strings.ToLower(strings.TrimSpace(c.Engine.LogLevel))
	if c.Engine.LogLevel == "" {
		c.Engine.LogLevel = defaultEngineLogLevel
	}
	if c.Engine.StartupTimeoutSeconds <= 0 {
		c.Engine.StartupTimeoutSeconds = defaultEngineStartupTimeout
	}
	if c.Engine.StopTimeoutSeconds <= 0 {
		c.Engine.StopTimeoutSeconds = defaultEngineStopTimeout
	}
	if c.Engine.PauseTimeoutSeconds <= 0 {
		c.Engine.PauseTimeoutSeconds = defaultEnginePauseTimeout
	}
}

func (c *Config) normalizeProxy() {
	if value, ok := os.LookupEnv("GALLERIA_PROXY"); ok && strings.TrimSpace(value) != "" {
		c.Proxy.URL = strings.TrimSpace(value)
	}
	c.Proxy.URL = strings.TrimSpace(c.Proxy.URL)
	hosts := c.Proxy.EnabledHosts[:0]
	for _, host := range c.Proxy.EnabledHosts {
		if trimmed := strings.TrimSpace(host); trimmed != "" {
			hosts = append(hosts, trimmed)
		}
	}
	c.Proxy.EnabledHosts = hosts
}

func (c *Config) normalizeMonitor() {
	if c.Monitor.StatusIntervalMS <= 0 {
		c.Monitor.StatusIntervalMS = defaultStatusIntervalMS
	}
	if c.Monitor.SampleIntervalMS <= 0 {
		c.Monitor.SampleIntervalMS = defaultSampleIntervalMS
	}
	if c.Monitor.WindowSeconds <= 0 {
		c.Monitor.WindowSeconds = defaultWindowSeconds
	}
	if c.Monitor.MaxGapMS <= 0 {
		c.Monitor.MaxGapMS = defaultMaxGapMS
	}
	if c.Monitor.StallThresholdKiB < 0 {
		c.Monitor.StallThresholdKiB = defaultStallThresholdKiB
	}
	if c.Adapters.RequestTimeoutSeconds <= 0 {
		c.Adapters.RequestTimeoutSeconds = defaultAdapterRequestTimeout
	}
}

func (c *Config) normalizeNotifications() {
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("GALLERIA_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = value
		}
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeoutSec
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
