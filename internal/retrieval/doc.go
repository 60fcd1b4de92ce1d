// Package retrieval implements hybrid transcript search: brute-force cosine
// similarity over stored embedding vectors unioned with FTS5 exact-term
// matches, plus answer composition over the retrieved spans through an LLM.
package retrieval
