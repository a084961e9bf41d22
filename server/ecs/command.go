package ecs

import "sync"

// Command is a staged mutation against a World, queued from a non-tick
// goroutine (typically an ingress decoder worker) and applied on the tick
// thread at the OnLoad phase boundary.
type Command func(*World)

// CommandBuffer is a thread-local staging area for Commands. Ingress workers
// each own one CommandBuffer and stage writes into it instead of mutating the
// World directly, avoiding contention on shared component stores outside of
// the tick thread (spec.md §4.2 "Parallelism").
type CommandBuffer struct {
	mu   sync.Mutex
	cmds []Command
}

// NewCommandBuffer creates an empty CommandBuffer and registers it with w so
// that World.Tick drains it at every OnLoad phase.
func NewCommandBuffer(w *World) *CommandBuffer {
	cb := &CommandBuffer{}
	w.cmdMu.Lock()
	w.cmds = append(w.cmds, cb)
	w.cmdMu.Unlock()
	return cb
}

// Stage enqueues a command to be applied at the next OnLoad phase boundary.
func (c *CommandBuffer) Stage(cmd Command) {
	c.mu.Lock()
	c.cmds = append(c.cmds, cmd)
	c.mu.Unlock()
}

func (c *CommandBuffer) drain() []Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.cmds) == 0 {
		return nil
	}
	out := c.cmds
	c.cmds = nil
	return out
}

// flushCommandBuffers applies every staged command from every registered
// CommandBuffer, in buffer-registration order, each buffer's commands in
// FIFO order. Called once per tick before OnLoad systems run.
//
// A single command is run behind a recover guard (adapted from the
// teacher's server/internal/txguard closed-transaction recovery): a command
// staged against an entity destroyed in the gap between staging and flush
// must not take the whole tick down with it.
func (w *World) flushCommandBuffers() {
	w.cmdMu.Lock()
	buffers := w.cmds
	w.cmdMu.Unlock()
	for _, cb := range buffers {
		for _, cmd := range cb.drain() {
			runCommand(w, cmd)
		}
	}
}

func runCommand(w *World, cmd Command) {
	defer func() {
		if r := recover(); r != nil {
			w.Log.Error("ecs: staged command panicked, dropping", "panic", r)
		}
	}()
	cmd(w)
}
