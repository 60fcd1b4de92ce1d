// Package server contains the daemon's network surfaces: the UDP ingest
// server that receives PCM audio frames and the HTTP API for recording
// control, transcript access, retrieval and monitoring.
package server
