// Package store declares persistence interfaces for job history. It must not
// import database drivers; implementations live under internal/storage.
package store
