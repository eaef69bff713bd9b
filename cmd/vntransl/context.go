package main

import (
	"strings"
	"sync"

	"vntransl/internal/config"
)

type commandContext struct {
	configFlag *string
	// injected is the fallback configuration used when no config file is
	// found; a file on disk always wins.
	injected *config.Config

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
		cfg, resolvedPath, err := config.Resolve(path, c.injected)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolvedPath
	})
	return c.config, c.configErr
}
