// Package benchmarks
// Author: momentics <momentics@gmail.com>
//
// Performance benchmarks for hioload-talk components.

package benchmarks

import (
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/momentics/hioload-talk/pool"
	"github.com/momentics/hioload-talk/protocol"
	"github.com/momentics/hioload-talk/registry"
	"github.com/momentics/hioload-talk/server"
)

// BenchmarkBytePool tests encode buffer reuse.
func BenchmarkBytePool(b *testing.B) {
	bp := pool.NewBytePool(pool.DefaultBufferSize)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			buf := bp.GetBuffer()
			*buf = append(*buf, "payload"...)
			bp.PutBuffer(buf)
		}
	})
}

// BenchmarkEncodeDecodeText tests the codec round trip.
func BenchmarkEncodeDecodeText(b *testing.B) {
	for _, size := range []int{16, 1024, 70000} {
		payload := strings.Repeat("x", size)
		b.Run(fmt.Sprint(size), func(b *testing.B) {
			b.SetBytes(int64(size))
			for i := 0; i < b.N; i++ {
				if _, err := protocol.DecodeMessage(protocol.EncodeText(payload)); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

type nopWriter struct{}

func (nopWriter) WriteText(string) error              { return nil }
func (nopWriter) WriteMessage(protocol.Message) error { return nil }
func (nopWriter) Close() error                        { return nil }

// BenchmarkRegistryWithWriter tests lookups across many peers.
func BenchmarkRegistryWithWriter(b *testing.B) {
	r := registry.New()
	keys := make([]string, 1024)
	for i := range keys {
		keys[i] = fmt.Sprintf("10.0.%d.%d:5555", i/256, i%256)
		r.Insert(keys[i], nopWriter{})
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _ = r.WithWriter(keys[i%len(keys)], func(w registry.Writer) error { return w.WriteText("x") })
			i++
		}
	})
}

// BenchmarkEchoRoundTrip tests end-to-end latency through a live server.
func BenchmarkEchoRoundTrip(b *testing.B) {
	srv, err := server.NewServer(nil)
	if err != nil {
		b.Fatal(err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		b.Fatal(err)
	}
	go func() { _ = srv.Serve(context.Background(), ln) }()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	c, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/", nil)
	if err != nil {
		b.Fatal(err)
	}
	defer c.Close()

	msg := []byte("dummy message for echo")
	b.SetBytes(int64(len(msg)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
			b.Fatal(err)
		}
		if _, _, err := c.ReadMessage(); err != nil {
			b.Fatal(err)
		}
	}
}
