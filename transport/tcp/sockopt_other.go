//go:build !linux
// +build !linux

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package tcp

// setSockOpts is a no-op off Linux; the Go runtime defaults apply.
func setSockOpts(fd uintptr, reusePort bool) error {
	return nil
}
