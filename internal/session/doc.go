// Package session manages the recording lifecycle: it owns the capture
// buffer, silence detection and chunking for the single active meeting, and
// feeds sealed chunks to the transcription worker with backpressure.
package session
