package proxy

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/golang/snappy"

	"github.com/dm-vev/emberhold/server/world"
)

// SnappyThreshold is the payload size past which Data is snappy-compressed
// before being framed (spec.md §4.7 "bulk payload compression"). Below the
// threshold the compression overhead isn't worth paying.
const SnappyThreshold = 512

var (
	ErrTruncated    = errors.New("proxy: truncated frame")
	ErrUnknownKind  = errors.New("proxy: unknown envelope kind")
	ErrUnknownInKnd = errors.New("proxy: unknown inbound kind")
)

func putUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func putBytes(buf *bytes.Buffer, b []byte) {
	putUvarint(buf, uint64(len(b)))
	buf.Write(b)
}

// putData writes a payload preceded by a one-byte compression flag: 0 raw,
// 1 snappy-compressed. Compression is only applied past SnappyThreshold.
func putData(buf *bytes.Buffer, data []byte) {
	if len(data) < SnappyThreshold {
		buf.WriteByte(0)
		putBytes(buf, data)
		return
	}
	buf.WriteByte(1)
	putBytes(buf, snappy.Encode(nil, data))
}

func readUvarint(r *bytes.Reader) (uint64, error) {
	v, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, ErrTruncated
	}
	return v, nil
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, ErrTruncated
	}
	return out, nil
}

func readData(r *bytes.Reader) ([]byte, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return nil, ErrTruncated
	}
	raw, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	if flag == 0 {
		return raw, nil
	}
	return snappy.Decode(nil, raw)
}

// EncodeOutbound serializes an outbound envelope (one of Unicast, Multicast,
// BroadcastGlobal, BroadcastLocal, SetReceiveBroadcasts) into a length-
// delimited frame: [varint frame_len][kind byte][fields].
func EncodeOutbound(env any) ([]byte, error) {
	var body bytes.Buffer
	switch e := env.(type) {
	case Unicast:
		body.WriteByte(byte(KindUnicast))
		putData(&body, e.Data)
		_ = binary.Write(&body, binary.BigEndian, e.Stream)
		_ = binary.Write(&body, binary.BigEndian, e.Order)
	case Multicast:
		body.WriteByte(byte(KindMulticast))
		putData(&body, e.Data)
		putUvarint(&body, uint64(len(e.Streams)))
		for _, s := range e.Streams {
			_ = binary.Write(&body, binary.BigEndian, s)
		}
		_ = binary.Write(&body, binary.BigEndian, e.Order)
	case BroadcastGlobal:
		body.WriteByte(byte(KindBroadcastGlobal))
		putData(&body, e.Data)
		writeBool(&body, e.Optional)
		_ = binary.Write(&body, binary.BigEndian, e.Exclude)
		_ = binary.Write(&body, binary.BigEndian, e.Order)
	case BroadcastLocal:
		body.WriteByte(byte(KindBroadcastLocal))
		putData(&body, e.Data)
		_ = binary.Write(&body, binary.BigEndian, e.Center.X)
		_ = binary.Write(&body, binary.BigEndian, e.Center.Z)
		_ = binary.Write(&body, binary.BigEndian, e.TaxicabRadius)
		writeBool(&body, e.Optional)
		_ = binary.Write(&body, binary.BigEndian, e.Exclude)
		_ = binary.Write(&body, binary.BigEndian, e.Order)
	case SetReceiveBroadcasts:
		body.WriteByte(byte(KindSetReceiveBroadcasts))
		_ = binary.Write(&body, binary.BigEndian, e.Stream)
	default:
		return nil, ErrUnknownKind
	}

	var framed bytes.Buffer
	putUvarint(&framed, uint64(body.Len()))
	framed.Write(body.Bytes())
	return framed.Bytes(), nil
}

func writeBool(buf *bytes.Buffer, b bool) {
	if b {
		buf.WriteByte(1)
		return
	}
	buf.WriteByte(0)
}

func readBool(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, ErrTruncated
	}
	return b != 0, nil
}

// DecodeOutbound parses a single framed body (without its length prefix)
// back into one of the outbound envelope types.
func DecodeOutbound(body []byte) (any, error) {
	r := bytes.NewReader(body)
	kindByte, err := r.ReadByte()
	if err != nil {
		return nil, ErrTruncated
	}
	switch Kind(kindByte) {
	case KindUnicast:
		data, err := readData(r)
		if err != nil {
			return nil, err
		}
		var e Unicast
		e.Data = data
		if err := binary.Read(r, binary.BigEndian, &e.Stream); err != nil {
			return nil, ErrTruncated
		}
		if err := binary.Read(r, binary.BigEndian, &e.Order); err != nil {
			return nil, ErrTruncated
		}
		return e, nil
	case KindMulticast:
		data, err := readData(r)
		if err != nil {
			return nil, err
		}
		n, err := readUvarint(r)
		if err != nil {
			return nil, err
		}
		streams := make([]uint64, n)
		for i := range streams {
			if err := binary.Read(r, binary.BigEndian, &streams[i]); err != nil {
				return nil, ErrTruncated
			}
		}
		var order uint32
		if err := binary.Read(r, binary.BigEndian, &order); err != nil {
			return nil, ErrTruncated
		}
		return Multicast{Data: data, Streams: streams, Order: order}, nil
	case KindBroadcastGlobal:
		data, err := readData(r)
		if err != nil {
			return nil, err
		}
		optional, err := readBool(r)
		if err != nil {
			return nil, err
		}
		var exclude uint64
		if err := binary.Read(r, binary.BigEndian, &exclude); err != nil {
			return nil, ErrTruncated
		}
		var order uint32
		if err := binary.Read(r, binary.BigEndian, &order); err != nil {
			return nil, ErrTruncated
		}
		return BroadcastGlobal{Data: data, Optional: optional, Exclude: exclude, Order: order}, nil
	case KindBroadcastLocal:
		data, err := readData(r)
		if err != nil {
			return nil, err
		}
		var center world.ChunkPos
		if err := binary.Read(r, binary.BigEndian, &center.X); err != nil {
			return nil, ErrTruncated
		}
		if err := binary.Read(r, binary.BigEndian, &center.Z); err != nil {
			return nil, ErrTruncated
		}
		var radius uint32
		if err := binary.Read(r, binary.BigEndian, &radius); err != nil {
			return nil, ErrTruncated
		}
		optional, err := readBool(r)
		if err != nil {
			return nil, err
		}
		var exclude uint64
		if err := binary.Read(r, binary.BigEndian, &exclude); err != nil {
			return nil, ErrTruncated
		}
		var order uint32
		if err := binary.Read(r, binary.BigEndian, &order); err != nil {
			return nil, ErrTruncated
		}
		return BroadcastLocal{Data: data, Center: center, TaxicabRadius: radius, Optional: optional, Exclude: exclude, Order: order}, nil
	case KindSetReceiveBroadcasts:
		var stream uint64
		if err := binary.Read(r, binary.BigEndian, &stream); err != nil {
			return nil, ErrTruncated
		}
		return SetReceiveBroadcasts{Stream: stream}, nil
	default:
		return nil, ErrUnknownKind
	}
}

// EncodeInbound serializes an Inbound message the same length-delimited way.
func EncodeInbound(in Inbound) []byte {
	var body bytes.Buffer
	body.WriteByte(byte(in.Kind))
	switch in.Kind {
	case InboundPlayerConnect:
		_ = binary.Write(&body, binary.BigEndian, in.Connect.Stream)
	case InboundPlayerDisconnect:
		_ = binary.Write(&body, binary.BigEndian, in.Disconnect.Stream)
	case InboundPacketBytes:
		_ = binary.Write(&body, binary.BigEndian, in.Packet.Stream)
		putBytes(&body, in.Packet.Bytes)
	}
	var framed bytes.Buffer
	putUvarint(&framed, uint64(body.Len()))
	framed.Write(body.Bytes())
	return framed.Bytes()
}

// DecodeInbound parses a single framed body (without its length prefix)
// back into an Inbound message.
func DecodeInbound(body []byte) (Inbound, error) {
	r := bytes.NewReader(body)
	kindByte, err := r.ReadByte()
	if err != nil {
		return Inbound{}, ErrTruncated
	}
	kind := InboundKind(kindByte)
	switch kind {
	case InboundPlayerConnect:
		var stream uint64
		if err := binary.Read(r, binary.BigEndian, &stream); err != nil {
			return Inbound{}, ErrTruncated
		}
		return Inbound{Kind: kind, Connect: PlayerConnect{Stream: stream}}, nil
	case InboundPlayerDisconnect:
		var stream uint64
		if err := binary.Read(r, binary.BigEndian, &stream); err != nil {
			return Inbound{}, ErrTruncated
		}
		return Inbound{Kind: kind, Disconnect: PlayerDisconnect{Stream: stream}}, nil
	case InboundPacketBytes:
		var stream uint64
		if err := binary.Read(r, binary.BigEndian, &stream); err != nil {
			return Inbound{}, ErrTruncated
		}
		b, err := readBytes(r)
		if err != nil {
			return Inbound{}, err
		}
		return Inbound{Kind: kind, Packet: PacketBytes{Stream: stream, Bytes: b}}, nil
	default:
		return Inbound{}, ErrUnknownInKnd
	}
}
