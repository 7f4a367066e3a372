// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics, hot-reload hooks and debug introspection for hioload-talk.
//
// Metrics are kept in a github.com/rcrowley/go-metrics registry so they can
// be reported by any of its reporters. Debug probes expose live state (the
// registry size, the sessions in flight) as a snapshot map.
package control
