package config

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateProxy(); err != nil {
		return err
	}
	if err := c.validateMonitor(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateEngine() error {
	if c.Engine.Port < 0 || c.Engine.Port > 65535 {
		return fmt.Errorf("engine.port must be between 0 and 65535, got %d", c.Engine.Port)
	}
	if c.Engine.Concurrent <= 0 {
		return errors.New("engine.concurrent must be positive")
	}
	if c.Engine.Split <= 0 {
		return errors.New("engine.split must be positive")
	}
	if c.Engine.SaveSessionInterval < 0 {
		return errors.New("engine.save_session_interval must not be negative")
	}
	switch c.Engine.LogLevel {
	case "debug", "info", "notice", "warn", "error":
	default:
		return fmt.Errorf("engine.log_level: unsupported value %q", c.Engine.LogLevel)
	}
	return nil
}

func (c *Config) validateProxy() error {
	if len(c.Proxy.EnabledHosts) == 0 {
		return nil
	}
	if c.Proxy.URL == "" {
		return errors.New("proxy.url must be set when proxy.enabled_hosts is not empty")
	}
	parsed, err := url.Parse(c.Proxy.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("proxy.url: invalid proxy address %q", c.Proxy.URL)
	}
	for _, pattern := range c.Proxy.EnabledHosts {
		if _, err := path.Match(strings.ToLower(pattern), ""); err != nil {
			return fmt.Errorf("proxy.enabled_hosts: invalid pattern %q", pattern)
		}
	}
	return nil
}

func (c *Config) validateMonitor() error {
	if c.Monitor.MaxGapMS <= c.Monitor.SampleIntervalMS {
		return fmt.Errorf("monitor.max_gap_ms (%d) must exceed monitor.sample_interval_ms (%d)", c.Monitor.MaxGapMS, c.Monitor.SampleIntervalMS)
	}
	if c.Monitor.WindowSeconds*1000 < c.Monitor.SampleIntervalMS*2 {
		return errors.New("monitor.window_seconds must span at least two samples")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
