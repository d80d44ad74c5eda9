package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "livevote.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), false)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Fatalf("config = %+v, want defaults", cfg)
	}
	if cfg.Addr() != ":8080" {
		t.Fatalf("addr = %q", cfg.Addr())
	}
}

func TestLoadFileRequiredMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), true)
	if err == nil {
		t.Fatal("expected error for missing required file")
	}
}

func TestLoadFileYAML(t *testing.T) {
	path := writeFile(t, `
port: 9090
log_level: debug
allowed_origins:
  - https://show.example
websocket:
  ping_interval: 15s
  send_buffer: 32
nats:
  url: nats://nats:4222
`)

	cfg, err := LoadFile(path, true)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Port != 9090 || cfg.LogLevel != "debug" {
		t.Fatalf("port/log level = %d/%s", cfg.Port, cfg.LogLevel)
	}
	if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"https://show.example"}) {
		t.Fatalf("allowed origins = %v", cfg.AllowedOrigins)
	}
	if cfg.WebSocket.PingInterval != 15*time.Second || cfg.WebSocket.SendBuffer != 32 {
		t.Fatalf("websocket = %+v", cfg.WebSocket)
	}
	// keys absent from the file keep their defaults
	if cfg.WebSocket.ReadTimeout != 60*time.Second || cfg.NATS.SubjectPrefix != "show.events" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if cfg.NATS.URL != "nats://nats:4222" {
		t.Fatalf("nats url = %q", cfg.NATS.URL)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "port: 9090\nlog_format: console\n")

	t.Setenv("PORT", "7000")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("WS_WRITE_TIMEOUT", "3s")
	t.Setenv("NATS_SUBJECT_PREFIX", "studio.events")

	cfg, err := LoadFile(path, true)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Port != 7000 || cfg.LogFormat != "json" {
		t.Fatalf("port/format = %d/%s", cfg.Port, cfg.LogFormat)
	}
	if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"https://a.example", "https://b.example"}) {
		t.Fatalf("allowed origins = %v", cfg.AllowedOrigins)
	}
	if cfg.WebSocket.WriteTimeout != 3*time.Second {
		t.Fatalf("write timeout = %s", cfg.WebSocket.WriteTimeout)
	}
	if cfg.NATS.SubjectPrefix != "studio.events" {
		t.Fatalf("subject prefix = %q", cfg.NATS.SubjectPrefix)
	}
}

func TestLoadFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
	}{
		{name: "bad yaml", yaml: "port: [", wantErr: "failed to parse config file"},
		{name: "bad env", env: map[string]string{"PORT": "eighty"}, wantErr: "parse env"},
		{name: "port out of range", yaml: "port: 70000", wantErr: "invalid port"},
		{name: "bad log level", env: map[string]string{"LOG_LEVEL": "loud"}, wantErr: "invalid log level"},
		{name: "bad log format", yaml: "log_format: xml", wantErr: "invalid log format"},
		{name: "ping slower than read", yaml: "websocket:\n  ping_interval: 90s\n", wantErr: "ping interval"},
		{name: "zero send buffer", env: map[string]string{"WS_SEND_BUFFER": "0"}, wantErr: "send buffer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := writeFile(t, tt.yaml)

			_, err := LoadFile(path, true)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadUsesConfigFileEnv(t *testing.T) {
	path := writeFile(t, "port: 9191\n")
	t.Setenv("CONFIG_FILE", path)
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9191 {
		t.Fatalf("port = %d, want 9191", cfg.Port)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}
