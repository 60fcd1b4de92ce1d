// Package store persists meetings, transcript segments, embedding vectors,
// and saved conversations in SQLite. Segment writes maintain an FTS5
// full-text index in the same transaction, and embedding vectors are stored
// as little-endian float32 blobs for the retrieval engine's similarity scan.
package store
