package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// GlossaryRule is an inline dictionary rule.
type GlossaryRule struct {
	Term        string `toml:"term"`
	Replacement string `toml:"replacement"`
	Note        string `toml:"note"`
}

// GlossaryTable configures one dictionary kind from files and/or inline rules.
type GlossaryTable struct {
	Files []string       `toml:"files"`
	Rules []GlossaryRule `toml:"rules"`
}

// Glossary groups the three dictionary tables. The post-translation table
// uses the historical "pos" key in configuration files.
type Glossary struct {
	Pre  GlossaryTable `toml:"pre"`
	Post GlossaryTable `toml:"pos"`
	GPT  GlossaryTable `toml:"gpt"`
}

// Translator configures one translator endpoint instance.
type Translator struct {
	Name           string `toml:"name"`
	API            string `toml:"api"`
	APIKey         string `toml:"api_key"`
	Timeout        int    `toml:"timeout"`
	Model          string `toml:"model"`
	Style          string `toml:"style"`
	PreviousLines  int    `toml:"previous_lines"`
	NextLines      int    `toml:"next_lines"`
	NumberPerBatch int    `toml:"number_per_request_translate"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// Config is the root run configuration.
type Config struct {
	ProjectPath   string `toml:"project_path"`
	InputDir      string `toml:"input_dir"`
	OutputDir     string `toml:"output_dir"`
	BatchSize     int    `toml:"batch_size"`
	HistorySize   int    `toml:"history_size"`
	NextLines     int    `toml:"next_lines"`
	Timeout       int    `toml:"timeout"`
	StreamOutput  bool   `toml:"stream_output"`
	RetryAttempts int    `toml:"retry_attempts"`
	Proxy         string `toml:"proxy"`

	// Endpoints is a shorthand for translator instances: each URL becomes a
	// sakura translator with default settings during normalization.
	Endpoints []string `toml:"endpoints"`

	Glossary    Glossary                `toml:"glossary"`
	Translators map[string][]Translator `toml:"translators"`
	Logging     Logging                 `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/vntransl/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a file was actually found at the resolved path.
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

// Resolve loads configuration with explicit injection semantics: a config
// file, when present, always wins; the injected value is used only when no
// file was found. The injected value is copied, never mutated.
func Resolve(path string, injected *Config) (*Config, string, error) {
	cfg, resolvedPath, exists, err := Load(path)
	if exists || injected == nil {
		return cfg, resolvedPath, err
	}

	copied := *injected
	if err := copied.normalize(); err != nil {
		return nil, "", err
	}
	if err := copied.Validate(); err != nil {
		return nil, "", err
	}
	return &copied, "", nil
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

	projectPath, err := filepath.Abs("vntransl.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	return defaultPath, false, nil
}

// StateDir returns the per-project directory holding the run ledger, the
// run lock, and log files.
func (c *Config) StateDir() string {
	return filepath.Join(c.ProjectPath, ".vntransl")
}

// EnsureDirectories creates the directories a run writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.StateDir(), c.OutputDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// Instances returns every configured translator instance in declaration
// order, kinds sorted for determinism.
func (c *Config) Instances() []Instance {
	kinds := make([]string, 0, len(c.Translators))
	for kind := range c.Translators {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	instances := make([]Instance, 0, 4)
	for _, kind := range kinds {
		for _, inst := range c.Translators[kind] {
			instances = append(instances, Instance{Kind: kind, Translator: inst})
		}
	}
	return instances
}

// Instance pairs a translator configuration with its kind
// (the key under [translators] it was declared in).
type Instance struct {
	Kind string
	Translator
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
