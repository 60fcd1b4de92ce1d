// Package transcription implements the serialized chunk transcription
// worker. Sealed chunks enter a bounded queue and a single goroutine runs
// inference one chunk at a time, appending segments to the store in seal
// order and publishing segment-ready events.
package transcription
