package ecs

import (
	"log/slog"
	"math"
	"reflect"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Phase names one stage of the tick pipeline. Systems within a phase may run
// in parallel if they declare disjoint write sets; across phases execution
// is strictly ordered (spec.md §4.1).
type Phase uint8

const (
	OnLoad Phase = iota
	PreUpdate
	OnUpdate
	PreStore
	OnStore
	PostStore

	numPhases
)

func (p Phase) String() string {
	switch p {
	case OnLoad:
		return "OnLoad"
	case PreUpdate:
		return "PreUpdate"
	case OnUpdate:
		return "OnUpdate"
	case PreStore:
		return "PreStore"
	case OnStore:
		return "OnStore"
	case PostStore:
		return "PostStore"
	default:
		return "Unknown"
	}
}

// System is one unit of work run once per phase per tick.
type System struct {
	Name   string
	Phase  Phase
	Writes []reflect.Type
	Run    func(*World)
}

func (s *System) conflicts(o *System) bool {
	for _, a := range s.Writes {
		for _, b := range o.Writes {
			if a == b {
				return true
			}
		}
	}
	return false
}

// AddSystem registers a system against the World's pipeline.
func (w *World) AddSystem(s *System) {
	w.sched.add(s)
}

type scheduler struct {
	log     *slog.Logger
	byPhase [numPhases][]*System

	tickCounter atomic.Int64

	tpsSamples  [tpsSampleSize]float64
	sampleIdx   int
	sampleCount int
	tpsBits     atomic.Uint64

	droppedOptional atomic.Uint64
}

const (
	tpsSampleSize       = 20
	tpsWarningThreshold = 19.0
)

func newScheduler(log *slog.Logger) *scheduler {
	return &scheduler{log: log}
}

func (s *scheduler) add(sys *System) {
	s.byPhase[sys.Phase] = append(s.byPhase[sys.Phase], sys)
}

// groupByWriteConflict partitions systems of a phase into ordered groups,
// where every group's members declare mutually disjoint write sets and may
// therefore run concurrently; groups themselves run in registration order.
func groupByWriteConflict(systems []*System) [][]*System {
	var groups [][]*System
	for _, sys := range systems {
		placed := false
		for gi, g := range groups {
			conflict := false
			for _, other := range g {
				if sys.conflicts(other) {
					conflict = true
					break
				}
			}
			if !conflict {
				groups[gi] = append(groups[gi], sys)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, []*System{sys})
		}
	}
	return groups
}

// TickStats summarises the outcome of one Tick call.
type TickStats struct {
	Tick     int64
	Duration time.Duration
}

// Tick runs one full pass through every phase, in order, and returns once
// every system has completed. Systems within a phase that declare disjoint
// write sets run concurrently; phases themselves are a strict barrier.
func (w *World) Tick() TickStats {
	start := time.Now()
	tick := w.sched.tickCounter.Add(1)

	w.flushCommandBuffers()

	for phase := Phase(0); phase < numPhases; phase++ {
		systems := w.sched.byPhase[phase]
		if len(systems) == 0 {
			continue
		}
		for _, group := range groupByWriteConflict(systems) {
			if len(group) == 1 {
				group[0].Run(w)
				continue
			}
			var g errgroup.Group
			for _, sys := range group {
				sys := sys
				g.Go(func() error {
					sys.Run(w)
					return nil
				})
			}
			_ = g.Wait()
		}
	}

	dur := time.Since(start)
	w.recordTickDuration(dur)
	return TickStats{Tick: tick, Duration: dur}
}

// CurrentTick returns the number of ticks started so far; while a tick is
// running, that is the running tick's own number.
func (w *World) CurrentTick() int64 {
	return w.sched.tickCounter.Load()
}

// MarkOptionalDropped records that an optional egress frame was dropped to
// catch up after an overrun tick (spec.md §4.1).
func (w *World) MarkOptionalDropped(n uint64) {
	w.sched.droppedOptional.Add(n)
}

func (w *World) recordTickDuration(d time.Duration) {
	s := w.sched
	s.tpsSamples[s.sampleIdx] = d.Seconds()
	s.sampleIdx = (s.sampleIdx + 1) % tpsSampleSize
	if s.sampleCount < tpsSampleSize {
		s.sampleCount++
	}
	if s.sampleCount < tpsSampleSize {
		return
	}
	var sum float64
	for _, v := range s.tpsSamples {
		sum += v
	}
	avg := sum / tpsSampleSize
	if avg <= 0 {
		return
	}
	tps := 1.0 / avg
	s.tpsBits.Store(math.Float64bits(tps))
	if tps < tpsWarningThreshold {
		w.Log.Warn("tick rate dropped below threshold", "tps", tps)
	}
}

// Metrics reports the moving-average tick-time gauge described in spec.md
// §4.1/§3.1.
type Metrics struct {
	TPS                   float64
	DroppedOptionalFrames uint64
}

// Metrics returns the current scheduler gauges.
func (w *World) Metrics() Metrics {
	return Metrics{
		TPS:                   math.Float64frombits(w.sched.tpsBits.Load()),
		DroppedOptionalFrames: w.sched.droppedOptional.Load(),
	}
}
