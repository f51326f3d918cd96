// Package storage provides pluggable persistence backends for vehicle
// registration records.
//
// Three backends implement the Storage interface:
//
//   - memory: mutex-guarded maps, for development and tests
//   - sqlite: embedded single-file store for single-node deployments
//   - postgres: production backend, optionally fronted by a Redis cache
//
// Backend selection is driven by storage.Config, populated from the
// environment by pkg/config.
package storage
