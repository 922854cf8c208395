package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, name := range []string{"serve", "config", "version"} {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv(envConfigPath, "")
	if got := resolveConfigPath(""); got != defaultConfigPath {
		t.Errorf("resolveConfigPath(\"\") = %q, want %q", got, defaultConfigPath)
	}
	if got := resolveConfigPath("custom.yaml"); got != "custom.yaml" {
		t.Errorf("resolveConfigPath(custom) = %q", got)
	}

	t.Setenv(envConfigPath, "/etc/teamsbridge.yaml")
	if got := resolveConfigPath(""); got != "/etc/teamsbridge.yaml" {
		t.Errorf("resolveConfigPath with env = %q", got)
	}
}

func TestConfigValidateCommand(t *testing.T) {
	dir := t.TempDir()
	valid := filepath.Join(dir, "valid.yaml")
	if err := os.WriteFile(valid, []byte(`
app_id: bot-app
app_password: secret
agent:
  provider: echo
`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	invalid := filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte(`
app_id: bot-app
agent:
  provider: echo
`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MICROSOFT_APP_PASSWORD", "")

	var out bytes.Buffer
	if err := runConfigValidate(&out, valid); err != nil {
		t.Fatalf("runConfigValidate(valid) error = %v", err)
	}
	if !strings.Contains(out.String(), "is valid") {
		t.Errorf("output = %q", out.String())
	}

	out.Reset()
	if err := runConfigValidate(&out, invalid); err == nil {
		t.Fatal("runConfigValidate(invalid) error = nil")
	}
	if !strings.Contains(out.String(), "app_password is required") {
		t.Errorf("output = %q", out.String())
	}
}

func TestConfigSchemaCommand(t *testing.T) {
	var out bytes.Buffer
	if err := runConfigSchema(&out); err != nil {
		t.Fatalf("runConfigSchema() error = %v", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(out.Bytes(), &schema); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := buildRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.HasPrefix(out.String(), "teamsbridge dev") {
		t.Errorf("output = %q", out.String())
	}
}
