package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":8787" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.Store != StoreMemory {
		t.Errorf("Store = %q", cfg.Store)
	}
	if cfg.FallbackPassword != "screenplay" {
		t.Errorf("FallbackPassword = %q", cfg.FallbackPassword)
	}
	if cfg.AccessTTL != 12*time.Hour {
		t.Errorf("AccessTTL = %v", cfg.AccessTTL)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("API_ADDR", ":9000")
	t.Setenv("SCREENPLAY_STORE", "postgres")
	t.Setenv("SCREENPLAY_UNLOCK_TTL", "30m")
	t.Setenv("MINIO_USE_SSL", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":9000" || cfg.Store != StorePostgres {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.UnlockTTL != 30*time.Minute {
		t.Errorf("UnlockTTL = %v", cfg.UnlockTTL)
	}
	if !cfg.MinioUseSSL {
		t.Error("MinioUseSSL should be true")
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("SCREENPLAY_ADMIN_EMAIL=boss@example.com\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SCREENPLAY_ADMIN_EMAIL", "")
	os.Unsetenv("SCREENPLAY_ADMIN_EMAIL")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AdminEmail != "boss@example.com" {
		t.Errorf("AdminEmail = %q", cfg.AdminEmail)
	}
}

func TestValidate(t *testing.T) {
	base, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown store", func(c *Config) { c.Store = "mongo" }, "unknown SCREENPLAY_STORE"},
		{"firestore without project", func(c *Config) { c.Store = StoreFirestore; c.FirebaseProjectID = "" }, "FIREBASE_PROJECT_ID"},
		{"empty secret", func(c *Config) { c.JWTSecret = "" }, "SCREENPLAY_JWT_SECRET"},
		{"zero ttl", func(c *Config) { c.AccessTTL = 0 }, "SCREENPLAY_ACCESS_TTL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}
