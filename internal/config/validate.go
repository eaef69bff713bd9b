package config

import (
	"fmt"
	"net/url"
	"strings"

	"vntransl/internal/faults"
)

// Validate ensures the configuration is usable. Violations carry the
// configuration error marker and abort the run before any dispatch.
func (c *Config) Validate() error {
	if err := c.validateWork(); err != nil {
		return err
	}
	if err := c.validateTranslators(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWork() error {
	if strings.TrimSpace(c.ProjectPath) == "" {
		return configError("project_path must be set")
	}
	if c.BatchSize <= 0 {
		return configError("batch_size must be positive")
	}
	if c.HistorySize < 0 {
		return configError("history_size must not be negative")
	}
	if c.NextLines < 0 {
		return configError("next_lines must not be negative")
	}
	if c.Timeout <= 0 {
		return configError("timeout must be positive")
	}
	if c.RetryAttempts <= 0 {
		return configError("retry_attempts must be positive")
	}
	if c.Proxy != "" {
		if _, err := url.Parse(c.Proxy); err != nil {
			return configError(fmt.Sprintf("proxy is not a valid URL: %v", err))
		}
	}
	return nil
}

func (c *Config) validateTranslators() error {
	total := 0
	for kind, instances := range c.Translators {
		switch kind {
		case "sakura", "chatgpt":
		default:
			return configError(fmt.Sprintf("translators.%s: unknown translator kind", kind))
		}
		seen := make(map[string]struct{}, len(instances))
		for _, inst := range instances {
			if inst.API == "" {
				return configError(fmt.Sprintf("translators.%s: instance %q needs an api endpoint", kind, inst.Name))
			}
			if _, err := url.Parse(inst.API); err != nil {
				return configError(fmt.Sprintf("translators.%s: instance %q api is not a valid URL: %v", kind, inst.Name, err))
			}
			if _, dup := seen[inst.Name]; dup {
				return configError(fmt.Sprintf("translators.%s: duplicate instance name %q", kind, inst.Name))
			}
			seen[inst.Name] = struct{}{}
			total++
		}
	}
	if total == 0 {
		return configError("at least one translator endpoint must be configured")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return configError(fmt.Sprintf("logging.format must be console or json, got %q", c.Logging.Format))
	}
	return nil
}

func configError(message string) error {
	return faults.Wrap(faults.ErrConfig, "config", "validate", message, nil)
}
