// Package record defines the per-key limiting state shared by the in-process
// cache and the durable stores, plus its versioned binary wire format.
//
// # Architecture boundaries
//
// This package owns the data model only. Counting lives in internal/window,
// caching in internal/keystore, durability in internal/persist.
package record
