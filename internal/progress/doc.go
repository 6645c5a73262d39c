// Package progress carries job lifecycle events from the scheduler and the
// pipeline to pluggable sinks. Events are batched on a background goroutine so
// emitters never block on logging, metrics, history storage or notifications.
package progress
