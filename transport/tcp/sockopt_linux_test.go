//go:build linux

package tcp_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-talk/transport/tcp"
)

func TestReusePortSharesAddress(t *testing.T) {
	first, err := tcp.Listen(context.Background(), tcp.ListenerConfig{Addr: "127.0.0.1:0", ReusePort: true})
	require.NoError(t, err)
	defer first.Close()

	second, err := tcp.Listen(context.Background(), tcp.ListenerConfig{Addr: first.Addr().String(), ReusePort: true})
	require.NoError(t, err)
	require.NoError(t, second.Close())
}
