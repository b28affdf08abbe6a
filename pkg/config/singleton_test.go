package config

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestSetConfigAndGetConfig(t *testing.T) {
	prev := GetConfig()
	defer SetConfig(prev)

	cfg := validConfig()
	SetConfig(cfg)
	if GetConfig() != cfg {
		t.Error("expected GetConfig to return the config passed to SetConfig")
	}
}

func TestMustGetConfig_Panics(t *testing.T) {
	prev := GetConfig()
	defer SetConfig(prev)

	SetConfig(nil)
	defer func() {
		if recover() == nil {
			t.Error("expected panic when configuration is not initialized")
		}
	}()
	MustGetConfig()
}

func TestReloadConfig_KeepsPreviousOnError(t *testing.T) {
	prev := GetConfig()
	defer SetConfig(prev)

	cfg := validConfig()
	SetConfig(cfg)

	if err := ReloadConfig("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected reload error")
	}
	if GetConfig() != cfg {
		t.Error("expected previous configuration to be kept after failed reload")
	}
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	prev := GetConfig()
	defer SetConfig(prev)

	t.Setenv("OPENAI_API_KEY", "k")
	path := writeConfig(t, "models:\n  big: first\n")
	if err := ReloadConfig(path); err != nil {
		t.Fatalf("initial load failed: %v", err)
	}

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, 20*time.Millisecond, func(c *Config) {
		select {
		case reloaded <- c:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("models:\n  big: second\n"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	select {
	case c := <-reloaded:
		if c.Models.Big != "second" {
			t.Errorf("expected reloaded big model %q, got %q", "second", c.Models.Big)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("watcher returned error: %v", err)
	}
}

func TestNewWatcher_RequiresPath(t *testing.T) {
	if _, err := NewWatcher("", 0, nil); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestReloadConfig_RecordsPath(t *testing.T) {
	prev := GetConfig()
	defer SetConfig(prev)

	t.Setenv("OPENAI_API_KEY", "k")
	path := writeConfig(t, "models:\n  small: tiny\n")
	if err := ReloadConfig(path); err != nil {
		t.Fatalf("ReloadConfig failed: %v", err)
	}
	if Path() != path {
		t.Errorf("Path() = %q, want %q", Path(), path)
	}
	if GetConfig().Models.Small != "tiny" {
		t.Errorf("small model = %q", GetConfig().Models.Small)
	}

	SetConfig(validConfig())
	if Path() != path {
		t.Error("SetConfig should keep the recorded path")
	}
}
