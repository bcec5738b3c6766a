package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

func (s *sample) Validate() error {
	if s.Port == 0 {
		return errors.New("port is required")
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

func TestExpand_Defaults(t *testing.T) {
	t.Setenv("CONFIG_TEST_SET", "value")
	t.Setenv("CONFIG_TEST_EMPTY", "")

	got := Expand("${CONFIG_TEST_SET:-x} ${CONFIG_TEST_EMPTY:-fallback} ${CONFIG_TEST_UNSET} $CONFIG_TEST_SET")
	if got != "value fallback  value" {
		t.Errorf("Expand = %q", got)
	}
}

func TestLoad_ValidatesAndExpands(t *testing.T) {
	t.Setenv("CONFIG_TEST_PORT", "8081")
	var s sample
	if err := Load(writeFile(t, "name: demo\nport: ${CONFIG_TEST_PORT}\n"), &s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "demo" || s.Port != 8081 {
		t.Errorf("sample = %+v", s)
	}

	err := Load(writeFile(t, "name: demo\n"), &s)
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Errorf("missing port err = %v", err)
	}
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	var s sample
	if err := Load(writeFile(t, "name: demo\nport: 1\nprot: 2\n"), &s); err == nil {
		t.Error("typo key should be rejected")
	}
}

func TestLoadOptional_MissingFileKeepsDefaults(t *testing.T) {
	s := sample{Name: "default", Port: 80}
	read, err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), &s)
	if err != nil || read {
		t.Fatalf("LoadOptional = %v, %v", read, err)
	}
	if s.Name != "default" {
		t.Errorf("defaults changed: %+v", s)
	}
}
