// Package pool
// Author: momentics <momentics@gmail.com>
//
// Memory reuse layer for hioload-talk.
// Frame encoding on the write path borrows scratch buffers from a BytePool
// so steady-state echo traffic does not allocate per message.
package pool
