// Package keystore provides the sharded, in-process cache of limiting
// records that backs the hot authentication path.
//
// # Concurrency model
//
// Shards are guarded by a shard mutex for map access only; each entry then
// carries its own mutex that callers hold across the read-modify-write of a
// decision. Different keys proceed fully in parallel; concurrent checks for
// the same key serialize on the entry lock, closing the race where N
// simultaneous requests all observe count < max.
//
// # What this package must NOT do
//
//   - Perform I/O. Durability belongs to internal/persist.
//   - Evaluate policies or windows.
package keystore
