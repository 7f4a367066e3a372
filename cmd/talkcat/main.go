// File: cmd/talkcat/main.go
// Package main
// Line-oriented client: sends each stdin line as a Text message and prints
// what the server sends back.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/momentics/hioload-talk/client"
	"github.com/momentics/hioload-talk/internal/logging"
	"github.com/momentics/hioload-talk/protocol"
)

const closeWait = 5 * time.Second

func main() {
	url := flag.String("url", "ws://127.0.0.1:5555/", "server URL")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	log, err := logging.New(*logLevel, "text")
	if err != nil {
		fmt.Fprintln(os.Stderr, "talkcat:", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c, err := client.Dial(ctx, *url)
	if err != nil {
		log.WithError(err).Fatal("dial failed")
	}
	log.WithField("local", c.LocalAddr().String()).Debug("connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			msg, err := c.ReadMessage()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					log.WithError(err).Debug("read ended")
				}
				return
			}
			switch msg.Kind() {
			case protocol.KindText:
				fmt.Println(msg.Text())
			case protocol.KindClose:
				log.WithField("close", msg.String()).Info("server closed")
				return
			}
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

loop:
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				// the server answers our Close after echoing everything before it
				if err := c.Send(protocol.CloseMessage(protocol.CloseNormalClosure, "")); err == nil {
					select {
					case <-done:
					case <-time.After(closeWait):
					}
				}
				break loop
			}
			if err := c.SendText(line); err != nil {
				log.WithError(err).Error("send failed")
				break loop
			}
		case <-done:
			break loop
		case <-ctx.Done():
			break loop
		}
	}
	_ = c.Close(protocol.CloseNormalClosure, "")
	<-done
}
