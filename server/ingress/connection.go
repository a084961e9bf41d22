package ingress

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"

	"github.com/dm-vev/emberhold/server/ecs"
	"github.com/google/uuid"
)

// State is the connection lifecycle state (spec.md §3 "Connection state").
type State uint8

const (
	StateHandshake State = iota
	StateStatus
	StateLogin
	StatePlay
	StateTerminate
)

// NextState is the target state a client declares in its handshake frame.
type NextState uint8

const (
	NextStatus NextState = iota
	NextLogin
)

// ErrUnexpectedPacket is returned when a frame arrives in a state that does
// not expect it (spec.md §4.2 "Handshake": "Any other packet → destroy
// connection").
var ErrUnexpectedPacket = errors.New("ingress: unexpected packet for connection state")

// WorldJoin produces the cached world-join payload sent once Login succeeds
// (spec.md §4.3 "Caching"). Implemented by the egress package.
type WorldJoin interface {
	JoinPayload() []byte
}

// Sender writes a raw framed packet back to the connection's stream. The
// proxy-channel transport (server/proxy) supplies the concrete
// implementation.
type Sender func(body []byte)

// PacketHandler mutates ECS state (via the staged CommandBuffer) in response
// to a Play-state packet body.
type PacketHandler func(conn *Connection, cb *ecs.CommandBuffer, body []byte) error

// Dispatcher maps Play-state packet ids to their handlers. Unknown ids are
// logged and ignored (spec.md §4.2 "Failure").
type Dispatcher map[uint32]PacketHandler

// Connection is the per-connection decode/state-machine context.
type Connection struct {
	StreamID uint64
	State    State

	decoder              *Decoder
	compressionThreshold int32 // -1 until negotiated
	configuredThreshold  int32 // θ from config.File, applied once Login negotiates compression

	Username string
	UUID     uuid.UUID
	Entity   ecs.EntityID
	JoinTick int64

	skins  SkinResolver
	status StatusProvider
	join   WorldJoin
	send   Sender
	log    *slog.Logger
}

// NewConnection constructs a Connection in the Handshake state. threshold is
// the configured compression threshold θ (spec.md §4.2/§6) negotiated once
// Login succeeds; pass config.DefaultCompressionThreshold if the caller has
// no config.File to hand.
func NewConnection(streamID uint64, send Sender, status StatusProvider, skins SkinResolver, join WorldJoin, log *slog.Logger, threshold int32) *Connection {
	if log == nil {
		log = slog.Default()
	}
	return &Connection{
		StreamID:             streamID,
		State:                StateHandshake,
		decoder:              NewDecoder(),
		compressionThreshold: -1,
		configuredThreshold:  threshold,
		skins:                skins,
		status:               status,
		join:                 join,
		send:                 send,
		log:                  log,
	}
}

// Feed buffers newly arrived bytes from the stream.
func (c *Connection) Feed(b []byte) {
	c.decoder.Feed(b)
}

// PumpFrames decodes and dispatches every frame currently buffered. All
// mutations are staged onto cb. disp handles Play-state packets.
func (c *Connection) PumpFrames(ctx context.Context, cb *ecs.CommandBuffer, disp Dispatcher) error {
	for {
		body, ok, err := c.decoder.Next()
		if err != nil {
			c.terminate(cb)
			return err
		}
		if !ok {
			return nil
		}
		if err := c.handleFrame(ctx, cb, disp, body); err != nil {
			c.terminate(cb)
			return err
		}
	}
}

func (c *Connection) handleFrame(ctx context.Context, cb *ecs.CommandBuffer, disp Dispatcher, body []byte) error {
	switch c.State {
	case StateHandshake:
		return c.handleHandshake(body)
	case StateStatus:
		return c.handleStatus(body)
	case StateLogin:
		return c.handleLogin(ctx, cb, body)
	case StatePlay:
		return c.handlePlay(cb, disp, body)
	default: // StateTerminate
		return ErrUnexpectedPacket
	}
}

// handleHandshake expects exactly one byte declaring the next state.
func (c *Connection) handleHandshake(body []byte) error {
	if len(body) != 1 {
		return ErrUnexpectedPacket
	}
	switch NextState(body[0]) {
	case NextStatus:
		c.State = StateStatus
	case NextLogin:
		c.State = StateLogin
	default:
		return ErrUnexpectedPacket
	}
	return nil
}

// handleStatus responds to an empty (server-list ping) frame with the status
// JSON document, and to any non-empty frame by echoing it as a ping
// response, then terminating (spec.md §4.2 "Status").
func (c *Connection) handleStatus(body []byte) error {
	if len(body) == 0 {
		var doc StatusDocument
		if c.status != nil {
			doc = c.status.Status()
		}
		out, err := doc.Encode()
		if err != nil {
			return err
		}
		c.write(out)
		return nil
	}
	c.write(body) // echo ping payload
	c.State = StateTerminate
	return nil
}

// parseLoginHello parses the LoginHello frame body: varint-length username,
// followed by a presence byte and, if nonzero, 16 raw UUID bytes.
func parseLoginHello(body []byte) (username string, id uuid.UUID, hasID bool, err error) {
	n, m := binary.Uvarint(body)
	if m <= 0 || uint64(m)+n > uint64(len(body)) {
		return "", uuid.UUID{}, false, ErrMalformedFrame
	}
	username = string(body[m : m+int(n)])
	rest := body[m+int(n):]
	if len(rest) == 0 {
		return username, uuid.UUID{}, false, nil
	}
	if rest[0] == 0 {
		return username, uuid.UUID{}, false, nil
	}
	if len(rest) < 17 {
		return "", uuid.UUID{}, false, ErrMalformedFrame
	}
	id, err = uuid.FromBytes(rest[1:17])
	if err != nil {
		return "", uuid.UUID{}, false, ErrMalformedFrame
	}
	return username, id, true, nil
}

// handleLogin implements spec.md §4.2 "Login": parse LoginHello, derive a
// UUID if absent, negotiate compression, spawn the player entity, kick off
// an async skin lookup, send login-success and the cached world-join
// payload, and transition to Play.
func (c *Connection) handleLogin(ctx context.Context, cb *ecs.CommandBuffer, body []byte) error {
	username, id, hasID, err := parseLoginHello(body)
	if err != nil {
		return err
	}
	c.Username = username
	if hasID {
		c.UUID = id
	} else {
		c.UUID = DeriveUUID(username)
	}

	c.compressionThreshold = c.configuredThreshold
	c.decoder.EnableCompression()
	c.write(EncodeFrame(encodeThreshold(c.configuredThreshold), -1))

	if c.skins != nil {
		go func() {
			if _, err := c.skins.Resolve(ctx, c.Username); err != nil {
				c.log.Warn("skin lookup failed", "username", c.Username, "error", err)
			}
		}()
	}

	streamID := c.StreamID
	cb.Stage(func(w *ecs.World) {
		c.Entity = w.Spawn()
		c.JoinTick = w.CurrentTick()
		ecs.StoreOf[ecs.OwningStream](w).Set(c.Entity, ecs.OwningStream{Stream: streamID})
	})

	c.write([]byte("login-success"))
	if c.join != nil {
		c.write(c.join.JoinPayload())
	}
	c.State = StatePlay
	return nil
}

func encodeThreshold(n int32) []byte {
	var tmp [binary.MaxVarintLen64]byte
	l := binary.PutUvarint(tmp[:], uint64(n))
	return tmp[:l]
}

// handlePlay dispatches a varint-prefixed packet id to its handler. Unknown
// ids are logged and ignored rather than failing the connection (spec.md
// §4.2 "Failure").
func (c *Connection) handlePlay(cb *ecs.CommandBuffer, disp Dispatcher, body []byte) error {
	id, n := binary.Uvarint(body)
	if n <= 0 {
		return ErrMalformedFrame
	}
	handler, ok := disp[uint32(id)]
	if !ok {
		c.log.Debug("unknown play packet id", "id", id, "stream", c.StreamID)
		return nil
	}
	return handler(c, cb, body[n:])
}

func (c *Connection) terminate(cb *ecs.CommandBuffer) {
	if c.State == StateTerminate {
		return
	}
	c.State = StateTerminate
	if c.Entity != 0 {
		entity := c.Entity
		cb.Stage(func(w *ecs.World) {
			w.Destroy(entity)
		})
	}
}

// write frames and sends body if a Sender is configured, applying the
// connection's currently negotiated compression threshold.
func (c *Connection) write(body []byte) {
	if c.send == nil {
		return
	}
	c.send(EncodeFrame(body, c.compressionThreshold))
}
