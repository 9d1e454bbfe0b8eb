package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"example.com/sharecore/pkg/config"
	"example.com/sharecore/pkg/ipc"
)

func TestSocketPath(t *testing.T) {
	cfg := config.Default()
	if got := socketPath(&cfg); !strings.HasPrefix(filepath.Base(got), "sharecore-") || !strings.HasSuffix(got, ".sock") {
		t.Errorf("default socket path = %q", got)
	}

	cfg.SocketPath = "/tmp/explicit.sock"
	if got := socketPath(&cfg); got != "/tmp/explicit.sock" {
		t.Errorf("socket path = %q, want /tmp/explicit.sock", got)
	}
}

func TestRunServesUntilCancelled(t *testing.T) {
	cfg := config.Default()
	cfg.SocketPath = filepath.Join(t.TempDir(), "core.sock")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx, &cfg) }()

	var client *ipc.Client
	deadline := time.Now().Add(2 * time.Second)
	for {
		dctx, dcancel := context.WithTimeout(ctx, 100*time.Millisecond)
		c, err := ipc.Dial(dctx, cfg.SocketPath)
		dcancel()
		if err == nil {
			client = c
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("dial: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	defer client.Close()

	if err := client.SendRaw([]byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("send: %v", err)
	}
	typ, _, err := client.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if typ != ipc.TypePong {
		t.Errorf("reply type = %q, want %q", typ, ipc.TypePong)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
	if _, err := os.Stat(cfg.SocketPath); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("socket still present after shutdown: %v", err)
	}
}

func TestRunFailsOnBadSocketPath(t *testing.T) {
	cfg := config.Default()
	cfg.SocketPath = filepath.Join(t.TempDir(), "missing", "dir", "core.sock")

	err := run(context.Background(), &cfg)
	if err == nil || !strings.Contains(err.Error(), "socket_init_failed") {
		t.Errorf("run error = %v, want socket_init_failed", err)
	}
}
