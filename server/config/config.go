// Package config loads the single startup configuration file (spec.md §6)
// and fills in defaults for any key left unset, following the teacher's
// UserConfig/DefaultConfig/Config(log) layering in server/conf.go.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/pelletier/go-toml"
)

// File mirrors the on-disk TOML layout: {max_players, view_distance,
// simulation_distance, border_diameter, compression_threshold}. No runtime
// mutation (spec.md §6).
type File struct {
	MaxPlayers           uint32   `toml:"max_players"`
	ViewDistance         uint8    `toml:"view_distance"`
	SimulationDistance   uint8    `toml:"simulation_distance"`
	BorderDiameter       *float64 `toml:"border_diameter"`
	CompressionThreshold int32    `toml:"compression_threshold"`
}

// Defaults mirror the teacher's DefaultConfig: sane, documented fallbacks
// rather than zero values, so an empty or partial file still produces a
// usable server.
const (
	DefaultMaxPlayers           = 64
	DefaultViewDistance         = 12
	DefaultSimulationDistance   = 8
	DefaultCompressionThreshold = 256
)

// Default returns a File with every field set to its documented default.
func Default() File {
	return File{
		MaxPlayers:           DefaultMaxPlayers,
		ViewDistance:         DefaultViewDistance,
		SimulationDistance:   DefaultSimulationDistance,
		CompressionThreshold: DefaultCompressionThreshold,
	}
}

// Load reads path as TOML and fills any zero-valued key with its default.
// A missing file is not an error: Load returns Default() instead, logging
// at info level, matching the teacher's tolerant startup behaviour.
func Load(path string, log *slog.Logger) (File, error) {
	if log == nil {
		log = slog.Default()
	}
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.Info("config: file not found, using defaults", "path", path)
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	var parsed File
	if err := toml.Unmarshal(data, &parsed); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	if parsed.MaxPlayers != 0 {
		cfg.MaxPlayers = parsed.MaxPlayers
	}
	if parsed.ViewDistance != 0 {
		cfg.ViewDistance = parsed.ViewDistance
	}
	if parsed.SimulationDistance != 0 {
		cfg.SimulationDistance = parsed.SimulationDistance
	}
	if parsed.BorderDiameter != nil {
		cfg.BorderDiameter = parsed.BorderDiameter
	}
	if parsed.CompressionThreshold != 0 {
		cfg.CompressionThreshold = parsed.CompressionThreshold
	}
	return cfg, nil
}
