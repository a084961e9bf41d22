//go:build linux || darwin

package config

import (
	"log/slog"

	"golang.org/x/sys/unix"
)

// RecommendedNoFile is the soft RLIMIT_NOFILE startup attempts to reach
// (spec.md §6): one server-bound socket per live connection plus chunk
// file handles means the default 1024 ceiling is exhausted quickly under
// real player counts.
const RecommendedNoFile = 32768

// RaiseFileLimit attempts to raise the soft RLIMIT_NOFILE to
// RecommendedNoFile, capped at the hard limit. Falling short logs a
// warning and continues rather than aborting startup.
func RaiseFileLimit(log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlimit); err != nil {
		log.Warn("config: getrlimit failed", "err", err)
		return
	}

	target := uint64(RecommendedNoFile)
	if rlimit.Max < target {
		target = rlimit.Max
	}
	if rlimit.Cur >= target {
		return
	}

	rlimit.Cur = target
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &rlimit); err != nil {
		log.Warn("config: setrlimit failed", "err", err, "attempted", target)
		return
	}
	if target < RecommendedNoFile {
		log.Warn("config: raised file descriptor limit below recommended minimum",
			"got", target, "recommended", RecommendedNoFile)
	}
}
