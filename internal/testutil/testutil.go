// Package testutil provides shared test infrastructure: a deterministic mock
// chat model and embedder, a pgvector-enabled PostgreSQL container, and a
// discard logger.
package testutil

import "log/slog"

// DiscardLogger returns a logger that drops all output. Use it to silence
// components under test.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
