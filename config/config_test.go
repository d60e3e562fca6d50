package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hioload/netrt/config"
)

func TestLoadConfigOverlaysOnlyDefinedKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "netrt.toml")
	body := "worker_count = 16\ncrc_enabled = true\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	def := config.DefaultConfig()
	if cfg.WorkerCount != 16 {
		t.Errorf("WorkerCount = %d, want 16", cfg.WorkerCount)
	}
	if !cfg.CRCEnabled {
		t.Error("CRCEnabled = false, want true")
	}
	if cfg.ReactorCount != def.ReactorCount {
		t.Errorf("ReactorCount = %d, want default %d", cfg.ReactorCount, def.ReactorCount)
	}
	if cfg.ReadChunkSize != def.ReadChunkSize {
		t.Errorf("ReadChunkSize = %d, want default %d", cfg.ReadChunkSize, def.ReadChunkSize)
	}
}

func TestDefaultConfigMatchesSpecConstants(t *testing.T) {
	cfg := config.DefaultConfig()
	if cfg.ReadChunkSize != 8*1024 {
		t.Errorf("ReadChunkSize = %d, want 8 KiB", cfg.ReadChunkSize)
	}
	if cfg.SendBufferHighWater != 8*1024*1024 || cfg.SendBufferLowWater != 4*1024*1024 {
		t.Error("send buffer watermarks do not match spec defaults")
	}
	if cfg.MonitorPollTimeoutMs != 100 {
		t.Errorf("MonitorPollTimeoutMs = %d, want 100", cfg.MonitorPollTimeoutMs)
	}
}
