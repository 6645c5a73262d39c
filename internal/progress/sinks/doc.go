// Package sinks implements progress consumers: structured logging, Prometheus
// collectors, the job history store and Pub/Sub completion notifications.
package sinks
