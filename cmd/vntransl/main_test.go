package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vntransl/internal/config"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeProjectConfig(t *testing.T) string {
	t.Helper()
	project := t.TempDir()
	path := filepath.Join(t.TempDir(), "vntransl.toml")
	content := `
project_path = "` + project + `"
endpoints = ["http://127.0.0.1:8080"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	out, err := runCommand(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init returned error: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("output does not mention target: %q", out)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("sample not written: %v", err)
	}
	if !strings.Contains(string(data), "project_path") {
		t.Fatalf("sample missing expected keys: %s", data)
	}

	if _, err := runCommand(t, "config", "init", "--path", target); err == nil {
		t.Fatal("second init without --overwrite must fail")
	}
	if _, err := runCommand(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("init with --overwrite returned error: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	path := writeProjectConfig(t)
	out, err := runCommand(t, "--config", path, "config", "validate")
	if err != nil {
		t.Fatalf("config validate returned error: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") {
		t.Fatalf("unexpected output: %q", out)
	}
	if !strings.Contains(out, "Translator instances: 1") {
		t.Fatalf("instance count missing: %q", out)
	}
}

func TestConfigValidateRejectsBrokenConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vntransl.toml")
	if err := os.WriteFile(path, []byte(`project_path = ""`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := runCommand(t, "--config", path, "config", "validate"); err == nil {
		t.Fatal("expected validation failure")
	}
}

func TestStatusWithoutRuns(t *testing.T) {
	path := writeProjectConfig(t)
	out, err := runCommand(t, "--config", path, "status")
	if err != nil {
		t.Fatalf("status returned error: %v", err)
	}
	if !strings.Contains(out, "No runs recorded yet") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestGlossaryCheckReportsParseErrors(t *testing.T) {
	project := t.TempDir()
	dict := filepath.Join(project, "pre.txt")
	if err := os.WriteFile(dict, []byte("broken line without arrow\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "vntransl.toml")
	content := `
project_path = "` + project + `"
endpoints = ["http://127.0.0.1:8080"]

[glossary.pre]
files = ["pre.txt"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := runCommand(t, "--config", path, "glossary", "check")
	if err == nil {
		t.Fatal("expected glossary check to fail")
	}
	if !strings.Contains(out, "ERROR") {
		t.Fatalf("error row missing: %q", out)
	}
}

func TestGlossaryCheckPasses(t *testing.T) {
	project := t.TempDir()
	dict := filepath.Join(project, "gpt.txt")
	if err := os.WriteFile(dict, []byte("アリス->爱丽丝 #主人公\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "vntransl.toml")
	content := `
project_path = "` + project + `"
endpoints = ["http://127.0.0.1:8080"]

[glossary.gpt]
files = ["gpt.txt"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := runCommand(t, "--config", path, "glossary", "check")
	if err != nil {
		t.Fatalf("glossary check returned error: %v", err)
	}
	if !strings.Contains(out, "1 rules") || !strings.Contains(out, "gpt=1") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	if err != nil {
		t.Fatalf("version returned error: %v", err)
	}
	if !strings.Contains(out, "vntransl") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestEnsureConfigFallsBackToInjected(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.toml")
	injected := config.Default()
	injected.ProjectPath = t.TempDir()
	injected.Endpoints = []string{"http://127.0.0.1:8080"}

	ctx := newCommandContext(&missing)
	ctx.injected = &injected
	cfg, err := ctx.ensureConfig()
	if err != nil {
		t.Fatalf("ensureConfig returned error: %v", err)
	}
	if len(cfg.Translators["sakura"]) != 1 {
		t.Fatalf("injected endpoints not normalized: %+v", cfg.Translators)
	}
	if injected.Endpoints == nil {
		t.Fatal("injected config must not be mutated")
	}
}

func TestEnsureConfigPrefersFileOverInjected(t *testing.T) {
	path := writeProjectConfig(t)
	injected := config.Default()
	injected.ProjectPath = t.TempDir()
	injected.BatchSize = 99
	injected.Endpoints = []string{"http://127.0.0.1:9999"}

	ctx := newCommandContext(&path)
	ctx.injected = &injected
	cfg, err := ctx.ensureConfig()
	if err != nil {
		t.Fatalf("ensureConfig returned error: %v", err)
	}
	if cfg.BatchSize == 99 {
		t.Fatal("file config must win over the injected value")
	}
	if cfg.Translators["sakura"][0].API != "http://127.0.0.1:8080" {
		t.Fatalf("file endpoints not used: %+v", cfg.Translators)
	}
}

func TestConfigShowListsSettings(t *testing.T) {
	path := writeProjectConfig(t)
	out, err := runCommand(t, "--config", path, "config", "show")
	if err != nil {
		t.Fatalf("config show returned error: %v", err)
	}
	for _, want := range []string{"batch_size", "sakura-1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q: %q", want, out)
		}
	}
}
