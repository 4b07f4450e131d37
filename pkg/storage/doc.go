// Package storage defines the run history store and the helpers shared by
// its implementations: sentinel errors, tenant context helpers and JSON
// export.
//
// Adapters live in subpackages (memory, postgres) and implement
// HistoryStore.
package storage
