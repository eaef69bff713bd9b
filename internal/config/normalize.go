package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeGlossary(); err != nil {
		return err
	}
	c.normalizeEndpoints()
	c.normalizeTranslators()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	c.ProjectPath = strings.TrimSpace(c.ProjectPath)
	if c.ProjectPath != "" {
		if c.ProjectPath, err = expandPath(c.ProjectPath); err != nil {
			return fmt.Errorf("project_path: %w", err)
		}
	}
	c.InputDir = strings.TrimSpace(c.InputDir)
	if c.InputDir == "" && c.ProjectPath != "" {
		c.InputDir = filepath.Join(c.ProjectPath, "input")
	} else if c.InputDir != "" {
		if c.InputDir, err = expandPath(c.InputDir); err != nil {
			return fmt.Errorf("input_dir: %w", err)
		}
	}
	c.OutputDir = strings.TrimSpace(c.OutputDir)
	if c.OutputDir == "" && c.ProjectPath != "" {
		c.OutputDir = filepath.Join(c.ProjectPath, "output")
	} else if c.OutputDir != "" {
		if c.OutputDir, err = expandPath(c.OutputDir); err != nil {
			return fmt.Errorf("output_dir: %w", err)
		}
	}
	c.Proxy = strings.TrimSpace(c.Proxy)
	return nil
}

func (c *Config) normalizeGlossary() error {
	for name, table := range map[string]*GlossaryTable{
		"pre": &c.Glossary.Pre,
		"pos": &c.Glossary.Post,
		"gpt": &c.Glossary.GPT,
	} {
		for i, file := range table.Files {
			file = strings.TrimSpace(file)
			if file == "" {
				continue
			}
			// Relative dictionary paths resolve against the project directory.
			if !filepath.IsAbs(file) && c.ProjectPath != "" {
				file = filepath.Join(c.ProjectPath, file)
			}
			expanded, err := expandPath(file)
			if err != nil {
				return fmt.Errorf("glossary.%s.files[%d]: %w", name, i, err)
			}
			table.Files[i] = expanded
		}
	}
	return nil
}

// normalizeEndpoints folds the top-level endpoints shorthand into sakura
// translator instances with default settings.
func (c *Config) normalizeEndpoints() {
	if len(c.Endpoints) == 0 {
		return
	}
	if c.Translators == nil {
		c.Translators = make(map[string][]Translator)
	}
	for i, endpoint := range c.Endpoints {
		endpoint = strings.TrimSpace(endpoint)
		if endpoint == "" {
			continue
		}
		c.Translators["sakura"] = append(c.Translators["sakura"], Translator{
			Name: fmt.Sprintf("sakura-%d", i+1),
			API:  endpoint,
		})
	}
	c.Endpoints = nil
}

func (c *Config) normalizeTranslators() {
	for kind, instances := range c.Translators {
		for i := range instances {
			inst := &instances[i]
			inst.Name = strings.TrimSpace(inst.Name)
			if inst.Name == "" {
				inst.Name = fmt.Sprintf("%s-%d", kind, i+1)
			}
			inst.API = strings.TrimRight(strings.TrimSpace(inst.API), "/")
			if inst.Timeout <= 0 {
				inst.Timeout = c.Timeout
			}
			if inst.Model == "" {
				inst.Model = defaultModel
			}
			if inst.Style == "" {
				inst.Style = defaultStyle
			}
			if inst.PreviousLines <= 0 {
				inst.PreviousLines = c.HistorySize
			}
			if inst.NextLines <= 0 {
				inst.NextLines = c.NextLines
			}
			if inst.NumberPerBatch <= 0 {
				inst.NumberPerBatch = c.BatchSize
			}
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.File = strings.TrimSpace(c.Logging.File)
}
