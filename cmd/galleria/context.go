package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"galleria/internal/config"
	"galleria/internal/lock"
	"galleria/internal/queue"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// openQueue loads the waiting list file without watching it.
func (c *commandContext) openQueue() (*queue.Queue, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	q := queue.New(cfg.QueuePath(), nil)
	if err := q.Refresh(); err != nil {
		return nil, err
	}
	return q, nil
}

// queueInUse reports whether another galleria holds the lock and is
// consuming the waiting list.
func (c *commandContext) queueInUse() (bool, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return false, err
	}
	return lock.New(cfg.LockPath()).IsLocked()
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
