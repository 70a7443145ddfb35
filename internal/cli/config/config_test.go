package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.yaml")
	if err := os.WriteFile(path, []byte("baseURL: https://run.example.com\nlanguage: python\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseURL != "https://run.example.com" || cfg.Language != "python" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Timeout != DefaultTimeout || cfg.Prompt != DefaultPrompt {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseURL != DefaultBaseURL || cfg.Timeout != 10*time.Second {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.yaml")
	if err := os.WriteFile(path, []byte("baseURL: [\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSessionURL(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{"http://127.0.0.1:8080", "ws://127.0.0.1:8080/ws", false},
		{"https://run.example.com/", "wss://run.example.com/ws", false},
		{"https://run.example.com/liverun", "wss://run.example.com/liverun/ws", false},
		{"ftp://run.example.com", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := SessionURL(tt.base)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}
