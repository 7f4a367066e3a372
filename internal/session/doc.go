// Package session
// Author: momentics <momentics@gmail.com>
//
// Session records for live connections: lifecycle state, start time and a
// cancel hook that tears down the transport. The server uses the store to
// fan shutdown out to every session and to report what is in flight.
package session
