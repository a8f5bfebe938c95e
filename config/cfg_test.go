package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfiguration_NoFile(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() with empty path error = %v", err)
	}

	if cfg == nil {
		t.Fatal("LoadConfiguration() returned nil config")
	}

	if cfg.Version != 1 {
		t.Errorf("Default config version = %d, want 1", cfg.Version)
	}
	if cfg.Split.FilenameAttribute != "Name" {
		t.Errorf("Default filename attribute = %q, want Name", cfg.Split.FilenameAttribute)
	}
	if cfg.Split.DirectoryNaming != "item" {
		t.Errorf("Default directory naming = %q, want item", cfg.Split.DirectoryNaming)
	}
	if cfg.Split.OnCollision != "overwrite" {
		t.Errorf("Default collision policy = %q, want overwrite", cfg.Split.OnCollision)
	}
	if len(cfg.Split.Mappings) == 0 {
		t.Fatal("Default config has no mappings")
	}
	if cfg.Split.Mappings[0].Item != "Form" || cfg.Split.Mappings[0].Container != "Forms" {
		t.Errorf("Unexpected first mapping: %+v", cfg.Split.Mappings[0])
	}

	// stock IDO records must be excluded out of the box
	found := false
	for _, e := range cfg.Split.Exclusions {
		if e.Container == "IDODefinitions" && e.Field == "AccessAs" {
			found = true
			if len(e.Values) != 2 {
				t.Errorf("Unexpected exclusion values: %v", e.Values)
			}
		}
	}
	if !found {
		t.Error("Default config is missing IDODefinitions exclusion")
	}
}

func TestLoadConfiguration_WithFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `version: 1
split:
  filename_attribute: ID
  directory_naming: container
  on_collision: suffix
  file_name_transliterate: true
  mappings:
    - { item: Form, container: Forms }
logging:
  console:
    level: debug
  file:
    level: none
reporting:
  destination: ` + filepath.Join(tmpDir, "report.zip") + `
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := LoadConfiguration(configPath)
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}

	if cfg.Split.FilenameAttribute != "ID" {
		t.Errorf("FilenameAttribute = %q, want ID", cfg.Split.FilenameAttribute)
	}
	if cfg.Split.DirectoryNaming != "container" {
		t.Errorf("DirectoryNaming = %q, want container", cfg.Split.DirectoryNaming)
	}
	if cfg.Split.OnCollision != "suffix" {
		t.Errorf("OnCollision = %q, want suffix", cfg.Split.OnCollision)
	}
	if !cfg.Split.FileNameTransliterate {
		t.Error("FileNameTransliterate not set")
	}
	if len(cfg.Split.Mappings) != 1 {
		t.Errorf("Mappings count = %d, want 1", len(cfg.Split.Mappings))
	}
	if cfg.Logging.ConsoleLogger.Level != "debug" {
		t.Errorf("Console log level = %q, want debug", cfg.Logging.ConsoleLogger.Level)
	}
}

func TestLoadConfiguration_InvalidValues(t *testing.T) {
	tmpDir := t.TempDir()

	cases := []struct {
		name    string
		content string
	}{
		{"bad version", "version: 2\n"},
		{"unknown field", "version: 1\nsplit:\n  bogus_knob: true\n"},
		{"bad collision policy", `version: 1
split:
  filename_attribute: Name
  directory_naming: item
  on_collision: explode
  mappings:
    - { item: Form, container: Forms }
logging:
  console:
    level: normal
  file:
    level: none
reporting:
  destination: ` + filepath.Join(tmpDir, "report.zip") + "\n"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, strings.ReplaceAll(c.name, " ", "_")+".yaml")
			if err := os.WriteFile(path, []byte(c.content), 0644); err != nil {
				t.Fatalf("Failed to write config file: %v", err)
			}
			if _, err := LoadConfiguration(path); err == nil {
				t.Error("LoadConfiguration() expected error, got nil")
			}
		})
	}
}

func TestDump(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}

	data, err := Dump(cfg)
	if err != nil {
		t.Fatalf("Dump() error = %v", err)
	}
	if !strings.Contains(string(data), "filename_attribute: Name") {
		t.Errorf("Dump() output missing expected content:\n%s", data)
	}
}
