// Package protocol implements parsing and encoding of the UDP audio ingest
// frame format: a fixed big-endian header carrying magic, version, format,
// sequence number, and sample count, followed by raw PCM16 payload bytes.
package protocol
