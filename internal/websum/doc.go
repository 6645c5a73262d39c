// Package websum defines the core types shared across the acquisition, chunking
// and scheduling subsystems.
package websum
