// Package registry
// Author: momentics <momentics@gmail.com>
//
// Connection registry: the shared map from peer address to the write half
// of that peer's connection. Every echo goes through it, and a session is
// reachable for writes exactly while its key is present.
package registry
