package testutil

import "log/slog"

// DiscardLogger returns a slog.Logger that discards all output. Prefer
// log.NewNop() in packages that already import internal/log; the two
// return the same type.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
