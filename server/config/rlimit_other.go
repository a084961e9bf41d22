//go:build !linux && !darwin

package config

import "log/slog"

// RaiseFileLimit is a no-op on platforms without an RLIMIT_NOFILE concept.
func RaiseFileLimit(log *slog.Logger) {}
