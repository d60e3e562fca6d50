// File: config/config.go
// Author: momentics <momentics@gmail.com>
//
// TOML-backed configuration for the server and client façades. LoadConfig
// overlays only the keys present in the file onto DefaultConfig(), the same
// toml.DecodeFile + meta.IsDefined() idiom used elsewhere in this codebase's
// lineage for optional-field config loading.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config holds every tunable the reactor/acceptor/worker/frame pipeline
// reads at construction time.
type Config struct {
	ReactorCount         int  `toml:"reactor_count"`
	WorkerCount          int  `toml:"worker_count"`
	AcceptBacklog        int  `toml:"accept_backlog"`
	ReadChunkSize        int  `toml:"read_chunk_size"`
	SendBufferHighWater  int  `toml:"send_buffer_high_water"`
	SendBufferLowWater   int  `toml:"send_buffer_low_water"`
	SendBufferMaxCapacity int `toml:"send_buffer_max_capacity"`
	ReassemblyTimeoutMs  int  `toml:"reassembly_timeout_ms"`
	CRCEnabled           bool `toml:"crc_enabled"`
	MonitorPollTimeoutMs int  `toml:"monitor_poll_timeout_ms"`
}

// DefaultConfig returns the compiled-in defaults matching spec.md's stated
// constants (8 KiB read chunk, 8/4/32 MiB send-buffer marks, 30 s reassembly
// timeout, 100 ms monitor poll).
func DefaultConfig() *Config {
	return &Config{
		ReactorCount:          1,
		WorkerCount:           4,
		AcceptBacklog:         1024,
		ReadChunkSize:         8 * 1024,
		SendBufferHighWater:   8 * 1024 * 1024,
		SendBufferLowWater:    4 * 1024 * 1024,
		SendBufferMaxCapacity: 32 * 1024 * 1024,
		ReassemblyTimeoutMs:   30000,
		CRCEnabled:            false,
		MonitorPollTimeoutMs:  100,
	}
}

// LoadConfig reads a TOML file and overlays only the keys it defines onto
// DefaultConfig(); a key absent from the file keeps its compiled-in default.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	var raw Config
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}

	if meta.IsDefined("reactor_count") {
		cfg.ReactorCount = raw.ReactorCount
	}
	if meta.IsDefined("worker_count") {
		cfg.WorkerCount = raw.WorkerCount
	}
	if meta.IsDefined("accept_backlog") {
		cfg.AcceptBacklog = raw.AcceptBacklog
	}
	if meta.IsDefined("read_chunk_size") {
		cfg.ReadChunkSize = raw.ReadChunkSize
	}
	if meta.IsDefined("send_buffer_high_water") {
		cfg.SendBufferHighWater = raw.SendBufferHighWater
	}
	if meta.IsDefined("send_buffer_low_water") {
		cfg.SendBufferLowWater = raw.SendBufferLowWater
	}
	if meta.IsDefined("send_buffer_max_capacity") {
		cfg.SendBufferMaxCapacity = raw.SendBufferMaxCapacity
	}
	if meta.IsDefined("reassembly_timeout_ms") {
		cfg.ReassemblyTimeoutMs = raw.ReassemblyTimeoutMs
	}
	if meta.IsDefined("crc_enabled") {
		cfg.CRCEnabled = raw.CRCEnabled
	}
	if meta.IsDefined("monitor_poll_timeout_ms") {
		cfg.MonitorPollTimeoutMs = raw.MonitorPollTimeoutMs
	}

	return cfg, nil
}
