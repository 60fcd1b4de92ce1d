// Package audio handles capture buffering, chunk scheduling, and format
// conversion. It implements a bounded PCM capture buffer with live level
// metering, silence-aware chunk boundary placement, sample rate conversion,
// and WAV encoding of sealed chunks for transcription.
package audio
