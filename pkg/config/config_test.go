package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type testConfig struct {
	Name  string `yaml:"name"`
	Count int    `yaml:"count"`
}

type validatedConfig struct {
	Name string `yaml:"name"`
}

func (c *validatedConfig) Validate() error {
	if c.Name == "" {
		return os.ErrInvalid
	}
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "name: hello\ncount: 3\n")

	var cfg testConfig
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "hello" || cfg.Count != 3 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEST_CONFIG_NAME", "from-env")
	path := writeFile(t, "name: $TEST_CONFIG_NAME\n")

	var cfg testConfig
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "from-env" {
		t.Errorf("name = %q", cfg.Name)
	}
}

func TestLoadMissingFile(t *testing.T) {
	var cfg testConfig
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &cfg); err == nil {
		t.Error("Load on missing file should fail")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeFile(t, "name: [unclosed\n")

	var cfg testConfig
	if err := Load(path, &cfg); err == nil {
		t.Error("Load on invalid YAML should fail")
	}
}

func TestLoadRunsValidation(t *testing.T) {
	path := writeFile(t, "name: \"\"\n")

	var cfg validatedConfig
	err := Load(path, &cfg)
	if err == nil {
		t.Fatal("Load should surface validation failure")
	}
	if !strings.Contains(err.Error(), "validation failed") {
		t.Errorf("error = %v", err)
	}
}

func TestLoadOptionalMissingFileKeepsDefaults(t *testing.T) {
	cfg := testConfig{Name: "default", Count: 1}
	if err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"), &cfg); err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if cfg.Name != "default" || cfg.Count != 1 {
		t.Errorf("defaults clobbered: %+v", cfg)
	}
}

func TestLoadOptionalValidatesDefaults(t *testing.T) {
	var cfg validatedConfig
	if err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"), &cfg); err == nil {
		t.Error("LoadOptional should validate defaults when file is absent")
	}
}

func TestLoadOptionalExistingFile(t *testing.T) {
	path := writeFile(t, "name: present\n")
	var cfg validatedConfig
	if err := LoadOptional(path, &cfg); err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if cfg.Name != "present" {
		t.Errorf("name = %q", cfg.Name)
	}
}
