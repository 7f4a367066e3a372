// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Implements the WebSocket protocol logic (RFC 6455) for hioload-talk.
//
// Includes:
//   - Streaming frame decoding with size limits and mask-role enforcement
//   - Message assembly from fragments into typed Text / Close / Other messages
//   - Frame and message encoding, fragmenting large data messages
//   - HTTP/1.1 Upgrade handshake for both server and client sides
//   - Connection splitting into an independent read half and write half
package protocol
