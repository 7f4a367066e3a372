// File: protocol/handshake.go
// Package protocol implements the core WebSocket handshake logic for hioload-talk.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Provides both server-side and client-side handshake routines:
// HTTP Upgrade processing, Sec-WebSocket-Key/Accept negotiation, and header
// serialization. Both sides read through the *bufio.Reader that later feeds
// the frame decoder, so frames pipelined right behind the handshake survive.

package protocol

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Constants used for handshake processing.
const (
	WebSocketGUID            = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	HeaderConnection         = "Connection"
	HeaderUpgrade            = "Upgrade"
	HeaderSecWebSocketKey    = "Sec-WebSocket-Key"
	HeaderSecWebSocketVer    = "Sec-WebSocket-Version"
	HeaderSecWebSocketAccept = "Sec-WebSocket-Accept"
	RequiredWebSocketVersion = "13"
	MaxHandshakeHeadersSize  = 8192
)

// Errors for handshake validation.
var (
	ErrInvalidUpgradeHeaders = errors.New("invalid WebSocket upgrade headers")
	ErrMissingWebSocketKey   = errors.New("missing or malformed Sec-WebSocket-Key header")
	ErrBadWebSocketVersion   = errors.New("unsupported WebSocket version; only '13' is supported")
	ErrBadHandshakeMethod    = errors.New("WebSocket upgrade requires GET")
	ErrHandshakeTooLarge     = errors.New("handshake headers too large")
	ErrBadAcceptKey          = errors.New("mismatched Sec-WebSocket-Accept")
)

// ComputeAcceptKey computes the Sec-WebSocket-Accept value from the client's key.
func ComputeAcceptKey(clientKey string) string {
	h := sha1.Sum([]byte(clientKey + WebSocketGUID))
	return base64.StdEncoding.EncodeToString(h[:])
}

// NewClientKey returns a random base64-encoded 16-byte Sec-WebSocket-Key.
func NewClientKey() (string, error) {
	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generate websocket key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(nonce[:]), nil
}

// DoHandshakeCore reads and validates the HTTP/1.1 Upgrade request from br.
// Returns the headers to include in the HTTP 101 Switching Protocols response.
func DoHandshakeCore(br *bufio.Reader) (http.Header, error) {
	req, err := http.ReadRequest(br)
	if err != nil {
		return nil, fmt.Errorf("handshake read request: %w", err)
	}
	if req.Method != http.MethodGet {
		return nil, ErrBadHandshakeMethod
	}

	// Enforce a maximum total header size.
	total := 0
	for k, vs := range req.Header {
		total += len(k)
		for _, v := range vs {
			total += len(v)
		}
		if total > MaxHandshakeHeadersSize {
			return nil, ErrHandshakeTooLarge
		}
	}

	if !headerContainsToken(req.Header, HeaderConnection, "Upgrade") ||
		!headerContainsToken(req.Header, HeaderUpgrade, "websocket") {
		return nil, ErrInvalidUpgradeHeaders
	}
	if req.Header.Get(HeaderSecWebSocketVer) != RequiredWebSocketVersion {
		return nil, ErrBadWebSocketVersion
	}
	key := req.Header.Get(HeaderSecWebSocketKey)
	if raw, err := base64.StdEncoding.DecodeString(key); err != nil || len(raw) != 16 {
		return nil, ErrMissingWebSocketKey
	}

	hdr := make(http.Header)
	hdr.Set(HeaderUpgrade, "websocket")
	hdr.Set(HeaderConnection, "Upgrade")
	hdr.Set(HeaderSecWebSocketAccept, ComputeAcceptKey(key))
	return hdr, nil
}

// WriteHandshakeResponse writes the HTTP/1.1 101 Switching Protocols response
// with the provided headers to w in a single write.
func WriteHandshakeResponse(w io.Writer, hdr http.Header) error {
	var b bytes.Buffer
	b.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	if err := hdr.Write(&b); err != nil {
		return err
	}
	b.WriteString("\r\n")
	_, err := w.Write(b.Bytes())
	return err
}

// WriteHandshakeRejection answers a failed upgrade with a plain HTTP error.
func WriteHandshakeRejection(w io.Writer, status int, reason string) error {
	body := reason + "\n"
	_, err := fmt.Fprintf(w, "HTTP/1.1 %d %s\r\n"+
		"%s: %s\r\n"+
		"Connection: close\r\n"+
		"Content-Type: text/plain; charset=utf-8\r\n"+
		"Content-Length: %d\r\n\r\n%s",
		status, http.StatusText(status), HeaderSecWebSocketVer, RequiredWebSocketVersion, len(body), body)
	return err
}

// NewHandshakeRequest builds the client GET Upgrade request for u and key.
func NewHandshakeRequest(u *url.URL, key string) *http.Request {
	hdr := make(http.Header)
	hdr.Set(HeaderUpgrade, "websocket")
	hdr.Set(HeaderConnection, "Upgrade")
	hdr.Set(HeaderSecWebSocketKey, key)
	hdr.Set(HeaderSecWebSocketVer, RequiredWebSocketVersion)
	return &http.Request{
		Method:     http.MethodGet,
		URL:        u,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     hdr,
		Host:       u.Host,
	}
}

// WriteHandshakeRequest serializes the HTTP GET Upgrade request into w.
func WriteHandshakeRequest(w io.Writer, req *http.Request) error {
	req.RequestURI = ""
	if err := req.Write(w); err != nil {
		return fmt.Errorf("handshake write request: %w", err)
	}
	return nil
}

// DoClientHandshake reads and validates the 101 response to req from br.
// key is the Sec-WebSocket-Key that req carried.
func DoClientHandshake(br *bufio.Reader, req *http.Request, key string) error {
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		return fmt.Errorf("handshake read response: %w", err)
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		resp.Body.Close()
		return fmt.Errorf("handshake failed: status %d", resp.StatusCode)
	}
	if !headerContainsToken(resp.Header, HeaderConnection, "Upgrade") ||
		!headerContainsToken(resp.Header, HeaderUpgrade, "websocket") {
		return ErrInvalidUpgradeHeaders
	}
	if resp.Header.Get(HeaderSecWebSocketAccept) != ComputeAcceptKey(key) {
		return ErrBadAcceptKey
	}
	return nil
}

// headerContainsToken checks if headerName contains the given token (case-insensitive).
func headerContainsToken(h http.Header, headerName, token string) bool {
	for _, v := range h.Values(headerName) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}
