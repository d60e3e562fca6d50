//go:build !linux && !darwin
// +build !linux,!darwin

// File: monitor/monitor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub Monitor for platforms without an epoll/kqueue backend.

package monitor

import "errors"

// New returns an error: this platform has no readiness backend wired.
func New() (Monitor, error) {
	return nil, errors.New("monitor: unsupported platform")
}
