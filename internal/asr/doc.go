// Package asr provides speech-to-text backends and model lifecycle tracking.
// It abstracts whisper-compatible and parakeet inference endpoints behind a
// common Backend interface returning chunk-relative transcript segments.
package asr
