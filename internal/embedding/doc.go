// Package embedding turns transcript segments into vectors asynchronously.
// An HTTP backend speaks the OpenAI-compatible embeddings shape, and the
// pipeline drains pending segments on segment-ready events, model load
// transitions, and a periodic sweep.
package embedding
