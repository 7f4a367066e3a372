// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package tcp implements the TCP listener for hioload-talk: address
// binding with socket options and per-connection tuning of accepted sockets.
package tcp
