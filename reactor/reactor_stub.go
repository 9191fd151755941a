//go:build !linux && !darwin && !windows
// +build !linux,!darwin,!windows

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub backend for unsupported platforms.

package reactor

import "github.com/momentics/vais-async/api"

// newBackend returns an error for unsupported platforms.
func newBackend() (backend, error) {
	return nil, api.ErrNotSupported
}
