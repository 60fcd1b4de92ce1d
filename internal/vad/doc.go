// Package vad provides RMS-based silence detection for chunk boundary decisions.
// It implements windowed energy measurement with exponential smoothing and
// reports how long the level has stayed below the silence threshold.
package vad
