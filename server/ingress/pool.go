package ingress

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dm-vev/emberhold/server/ecs"
)

// Message is a single inbound frame batch delivered by the proxy transport
// for one connection (spec.md §4.2 "Contract": "(stream_id, bytes)").
type Message struct {
	StreamID uint64
	Data     []byte
}

// Pool is the work-stealing ingress pool of spec.md §4.2 "Parallelism":
// messages route to a fixed worker by stream id (so a single connection's
// frames are always processed in order by the same goroutine, preserving
// its decode state), while independent connections spread across workers.
// Each worker owns a private ecs.CommandBuffer so ingress-originated
// mutations never contend with each other or with the tick's own systems;
// the buffer is flushed by the scheduler at the next OnLoad boundary.
type Pool struct {
	world     *ecs.World
	disp      Dispatcher
	log       *slog.Logger
	threshold int32

	inboxes []chan Message
	buffers []*ecs.CommandBuffer

	mu    sync.RWMutex
	conns map[uint64]*Connection

	wg sync.WaitGroup
}

// NewPool creates a Pool with the given number of workers, each with an
// inbox of inboxSize pending messages (matching ChunkWorker's bounded-inbox
// pattern in the world reactive pipeline). threshold is the configured
// compression threshold θ (spec.md §4.2/§6) applied to placeholder
// connections created by connectionFor before RegisterConnection replaces
// them with a fully-configured Connection of the caller's own choosing.
func NewPool(world *ecs.World, disp Dispatcher, workers, inboxSize int, log *slog.Logger, threshold int32) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if inboxSize <= 0 {
		inboxSize = 4096
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Pool{
		world:     world,
		disp:      disp,
		log:       log,
		threshold: threshold,
		inboxes:   make([]chan Message, workers),
		buffers:   make([]*ecs.CommandBuffer, workers),
		conns:     make(map[uint64]*Connection),
	}
	for i := range p.inboxes {
		p.inboxes[i] = make(chan Message, inboxSize)
		p.buffers[i] = ecs.NewCommandBuffer(world)
	}
	return p
}

// Start launches one goroutine per worker. Workers exit once ctx is
// cancelled; Wait blocks until they have.
func (p *Pool) Start(ctx context.Context) {
	for i := range p.inboxes {
		p.wg.Add(1)
		go p.runWorker(ctx, i)
	}
}

// Wait blocks until every worker goroutine has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context, idx int) {
	defer p.wg.Done()
	inbox := p.inboxes[idx]
	cb := p.buffers[idx]
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-inbox:
			if !ok {
				return
			}
			p.process(ctx, cb, msg)
		}
	}
}

func (p *Pool) process(ctx context.Context, cb *ecs.CommandBuffer, msg Message) {
	conn := p.connectionFor(msg.StreamID)
	conn.Feed(msg.Data)
	if err := conn.PumpFrames(ctx, cb, p.disp); err != nil {
		p.log.Debug("ingress connection terminated", "stream", msg.StreamID, "error", err)
		p.mu.Lock()
		delete(p.conns, msg.StreamID)
		p.mu.Unlock()
	}
}

// connectionFor returns the Connection for streamID, creating one in
// Handshake state on first use.
func (p *Pool) connectionFor(streamID uint64) *Connection {
	p.mu.RLock()
	c, ok := p.conns[streamID]
	p.mu.RUnlock()
	if ok {
		return c
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok = p.conns[streamID]; ok {
		return c
	}
	c = NewConnection(streamID, nil, nil, nil, nil, p.log, p.threshold)
	p.conns[streamID] = c
	return c
}

// RegisterConnection installs a fully-configured Connection (with a live
// Sender, status provider, skin resolver, and world-join cache) for
// streamID, replacing any placeholder created by connectionFor.
func (p *Pool) RegisterConnection(c *Connection) {
	p.mu.Lock()
	p.conns[c.StreamID] = c
	p.mu.Unlock()
}

// Dispatch routes msg to its owning worker by stream id. It never blocks
// indefinitely: if the target inbox is full, Dispatch blocks until space
// frees up or ctx is done, matching backpressure semantics rather than
// silently dropping ingress traffic.
func (p *Pool) Dispatch(ctx context.Context, msg Message) {
	idx := int(msg.StreamID % uint64(len(p.inboxes)))
	select {
	case p.inboxes[idx] <- msg:
	case <-ctx.Done():
	}
}

// Disconnect removes a connection's state, e.g. when the proxy reports the
// underlying stream closed.
func (p *Pool) Disconnect(streamID uint64) {
	p.mu.Lock()
	delete(p.conns, streamID)
	p.mu.Unlock()
}
