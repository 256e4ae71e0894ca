package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vbgl/encryptic/internal/cloud"
)

// isolate points DefaultDir at a temp dir so no user config leaks in.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(EnvPrefix+"_HOME", dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load(New(), "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backend != string(cloud.BackendRemoteStorage) {
		t.Errorf("Backend = %q", cfg.Backend)
	}
	if cfg.Profile != "default" {
		t.Errorf("Profile = %q", cfg.Profile)
	}
	if cfg.Database != filepath.Join(dir, "encryptic.db") {
		t.Errorf("Database = %q", cfg.Database)
	}
	if cfg.Log.MaxSizeMB != 10 || cfg.Log.MaxBackups != 3 || cfg.Log.MaxAgeDays != 28 {
		t.Errorf("unexpected log defaults: %+v", cfg.Log)
	}
	if cfg.File != "" {
		t.Errorf("File = %q, want empty", cfg.File)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.yaml")
	content := `backend: dropbox-like
profile: work
watch: true
dashboard:
  port: 9090
dropbox-like:
  root: /srv/dropbox/encryptic
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	// Found through DefaultDir without an explicit path
	cfg, err := Load(New(), "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BackendName() != cloud.BackendDropbox {
		t.Errorf("Backend = %q", cfg.Backend)
	}
	if cfg.Profile != "work" || !cfg.Watch || cfg.Dashboard.Port != 9090 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if got := cfg.BackendSettings().String("root"); got != "/srv/dropbox/encryptic" {
		t.Errorf("root = %q", got)
	}
	if cfg.File != path {
		t.Errorf("File = %q, want %q", cfg.File, path)
	}
}

func TestLoadTOMLFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.toml")
	content := `backend = "remote-storage"
profile = "home"

[remote-storage]
url = "https://storage.example.com/alice"
token = "abc"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(New(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	settings := cfg.BackendSettings()
	if settings.String("url") != "https://storage.example.com/alice" || settings.String("token") != "abc" {
		t.Errorf("unexpected settings: %v", settings)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("ENCRYPTIC_PROFILE", "from-env")
	t.Setenv("ENCRYPTIC_REMOTE_STORAGE_TOKEN", "env-token")
	t.Setenv("ENCRYPTIC_DASHBOARD_PORT", "7070")

	cfg, err := Load(New(), "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Profile != "from-env" {
		t.Errorf("Profile = %q", cfg.Profile)
	}
	if cfg.Dashboard.Port != 7070 {
		t.Errorf("Dashboard.Port = %d", cfg.Dashboard.Port)
	}
	if got := cfg.BackendSettings().String("token"); got != "env-token" {
		t.Errorf("token = %q", got)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := isolate(t)

	if _, err := Load(New(), filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit file")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("backend: carrier-pigeon\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(New(), bad); err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Errorf("expected invalid config error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"dropbox alias", func(c *Config) { c.Backend = "dropbox" }, false},
		{"unknown backend", func(c *Config) { c.Backend = "ftp" }, true},
		{"empty profile", func(c *Config) { c.Profile = "" }, true},
		{"skip overlap", func(c *Config) { c.Overlap = "skip" }, false},
		{"bad overlap", func(c *Config) { c.Overlap = "parallel" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWriteRoundTrip(t *testing.T) {
	for _, name := range []string{"config.yaml", "config.toml"} {
		t.Run(name, func(t *testing.T) {
			dir := isolate(t)
			path := filepath.Join(dir, "nested", name)

			cfg := Default()
			cfg.Profile = "written"
			cfg.SetBackendSetting("url", "https://storage.example.com/bob")

			if err := Write(path, cfg); err != nil {
				t.Fatalf("Write failed: %v", err)
			}
			info, err := os.Stat(path)
			if err != nil {
				t.Fatalf("Stat failed: %v", err)
			}
			if info.Mode().Perm() != 0600 {
				t.Errorf("mode = %v, want 0600", info.Mode().Perm())
			}

			loaded, err := Load(New(), path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if loaded.Profile != "written" {
				t.Errorf("Profile = %q", loaded.Profile)
			}
			if got := loaded.BackendSettings().String("url"); got != "https://storage.example.com/bob" {
				t.Errorf("url = %q", got)
			}
		})
	}
}

func TestEncodeUnsupported(t *testing.T) {
	if _, err := Encode(Default(), ".ini"); err == nil {
		t.Error("expected error for .ini")
	}
}
