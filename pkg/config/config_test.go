package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, k := range []string{SocketPathEnv, "SHARECORE_SOCKET_PATH", "SHARECORE_LOG_LEVEL", "SHARECORE_ROOM_NAME",
		"SHARECORE_ICE_SERVERS", "SHARECORE_PREVIEW_FPS", "SHARECORE_FRAME_INTERVAL_MS", "SHARECORE_CONNECT_TIMEOUT_S",
		"SHARECORE_VIDEO_BITRATE"} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.SocketPath != "" {
		t.Errorf("SocketPath = %q, want empty", cfg.SocketPath)
	}
	if got := cfg.ConnectTimeout(); got != 45*time.Second {
		t.Errorf("ConnectTimeout = %v, want 45s", got)
	}

	opts := cfg.CaptureOptions()
	if opts.FrameInterval != 22*time.Millisecond {
		t.Errorf("FrameInterval = %v, want 22ms", opts.FrameInterval)
	}
	if opts.Policy.PermanentThreshold != 3 || opts.Policy.MaxRestarts != 5 {
		t.Errorf("Policy = %+v, want 3/5", opts.Policy)
	}
	if opts.PreviewInterval != 0 {
		t.Errorf("PreviewInterval = %v, want disabled", opts.PreviewInterval)
	}
}

func TestLoadFiles(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "toml",
			file: "config.toml",
			content: `
socket_path = "/tmp/from-file.sock"
log_level = "debug"

[capture]
preview_fps = 10
max_restarts = 2

[room]
name = "desk"
ice_servers = ["stun:example.org:3478"]
`,
		},
		{
			name: "yaml",
			file: "config.yaml",
			content: `
socket_path: /tmp/from-file.sock
log_level: debug
capture:
  preview_fps: 10
  max_restarts: 2
room:
  name: desk
  ice_servers:
    - stun:example.org:3478
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			cfg, err := Load(writeFile(t, tt.file, tt.content))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.SocketPath != "/tmp/from-file.sock" || cfg.LogLevel != "debug" {
				t.Errorf("got socket %q level %q", cfg.SocketPath, cfg.LogLevel)
			}
			if cfg.Room.Name != "desk" || len(cfg.Room.ICEServers) != 1 || cfg.Room.ICEServers[0] != "stun:example.org:3478" {
				t.Errorf("room = %+v", cfg.Room)
			}
			opts := cfg.CaptureOptions()
			if opts.PreviewInterval != 100*time.Millisecond {
				t.Errorf("PreviewInterval = %v, want 100ms", opts.PreviewInterval)
			}
			if opts.Policy.MaxRestarts != 2 || opts.Policy.PermanentThreshold != 3 {
				t.Errorf("Policy = %+v, want threshold 3 and 2 restarts", opts.Policy)
			}
		})
	}
}

func TestEnvOverridesFile(t *testing.T) {
	isolate(t)
	path := writeFile(t, "config.toml", `socket_path = "/tmp/file.sock"`)
	t.Setenv(SocketPathEnv, "/tmp/env.sock")
	t.Setenv("SHARECORE_PREVIEW_FPS", "5")
	t.Setenv("SHARECORE_ICE_SERVERS", "stun:a,stun:b")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SocketPath != "/tmp/env.sock" {
		t.Errorf("SocketPath = %q, want /tmp/env.sock", cfg.SocketPath)
	}
	if cfg.Capture.PreviewFPS != 5 {
		t.Errorf("PreviewFPS = %d, want 5", cfg.Capture.PreviewFPS)
	}
	if got := cfg.RoomOptions().ICEServers; len(got) != 2 || got[1] != "stun:b" {
		t.Errorf("ICEServers = %v", got)
	}
}

func TestDefaultFileDiscovered(t *testing.T) {
	isolate(t)
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	if err := os.MkdirAll(filepath.Join(xdg, "sharecore"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(xdg, "sharecore", "config.yml"), []byte("log_level: warn\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
}

func TestLoadErrors(t *testing.T) {
	isolate(t)

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("missing explicit file: want error")
	}
	if _, err := Load(writeFile(t, "bad.yaml", "capture: [")); err == nil {
		t.Error("malformed yaml: want error")
	}

	t.Setenv("SHARECORE_PREVIEW_FPS", "fast")
	if _, err := Load(""); err == nil {
		t.Error("non-numeric env override: want error")
	}
}
