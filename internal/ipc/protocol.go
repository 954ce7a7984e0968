// Package ipc implements the socket protocol between the gesture daemon and
// the privileged injection helper.
//
// Every message is a 4-byte big-endian length followed by a protobuf-encoded
// HelperMessage:
//
//	message HelperMessage {
//	  uint32 type    = 1;
//	  sint32 dx      = 2;
//	  sint32 dy      = 3;
//	  uint32 button  = 4;
//	  uint64 seq     = 5;
//	  uint32 version = 6;
//	  string error   = 7;
//	}
package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/bnema/gesturesd/internal/gesture"
	"google.golang.org/protobuf/encoding/protowire"
)

// ProtocolVersion is sent in the handshake; both ends must agree
const ProtocolVersion = 1

// MaxMessageSize bounds the length prefix accepted from a peer
const MaxMessageSize = 1024

var (
	// ErrMessageTooLarge is returned for length prefixes above MaxMessageSize
	ErrMessageTooLarge = errors.New("message too large")
	// ErrMalformedMessage is returned when a payload cannot be decoded
	ErrMalformedMessage = errors.New("malformed message")
)

// MessageType identifies a helper message
type MessageType uint32

const (
	MsgHello MessageType = iota + 1
	MsgHelloAck
	MsgMove
	MsgButtonDown
	MsgButtonUp
	MsgError
)

func (t MessageType) String() string {
	switch t {
	case MsgHello:
		return "hello"
	case MsgHelloAck:
		return "hello-ack"
	case MsgMove:
		return "move"
	case MsgButtonDown:
		return "button-down"
	case MsgButtonUp:
		return "button-up"
	case MsgError:
		return "error"
	default:
		return fmt.Sprintf("type(%d)", uint32(t))
	}
}

const (
	fieldType    protowire.Number = 1
	fieldDX      protowire.Number = 2
	fieldDY      protowire.Number = 3
	fieldButton  protowire.Number = 4
	fieldSeq     protowire.Number = 5
	fieldVersion protowire.Number = 6
	fieldError   protowire.Number = 7
)

// Message is one helper protocol message
type Message struct {
	Type    MessageType
	DX, DY  int32
	Button  uint32
	Seq     uint64
	Version uint32
	Error   string
}

// NewHelloMessage creates the handshake opener
func NewHelloMessage() *Message {
	return &Message{Type: MsgHello, Version: ProtocolVersion}
}

// NewHelloAckMessage creates the handshake reply
func NewHelloAckMessage() *Message {
	return &Message{Type: MsgHelloAck, Version: ProtocolVersion}
}

// NewErrorMessage creates an error reply
func NewErrorMessage(text string) *Message {
	return &Message{Type: MsgError, Version: ProtocolVersion, Error: text}
}

// NewPointerMessage converts a pointer operation into a message
func NewPointerMessage(op gesture.PointerOp, seq uint64) (*Message, error) {
	msg := &Message{Seq: seq}
	switch op.Type {
	case gesture.OpMove:
		msg.Type = MsgMove
		msg.DX, msg.DY = op.DX, op.DY
	case gesture.OpButtonDown:
		msg.Type = MsgButtonDown
		msg.Button = uint32(op.Button)
	case gesture.OpButtonUp:
		msg.Type = MsgButtonUp
		msg.Button = uint32(op.Button)
	default:
		return nil, fmt.Errorf("%w: cannot encode operation %s", ErrMalformedMessage, op)
	}
	return msg, nil
}

// PointerOp converts a move or button message back into an operation
func (m *Message) PointerOp() (gesture.PointerOp, error) {
	switch m.Type {
	case MsgMove:
		return gesture.MoveRelative(m.DX, m.DY), nil
	case MsgButtonDown:
		return gesture.ButtonDown(gesture.Button(m.Button)), nil
	case MsgButtonUp:
		return gesture.ButtonUp(gesture.Button(m.Button)), nil
	default:
		return gesture.PointerOp{}, fmt.Errorf("%w: %s carries no pointer operation", ErrMalformedMessage, m.Type)
	}
}

// Marshal encodes the message payload, omitting zero fields
func (m *Message) Marshal() []byte {
	var b []byte
	if m.Type != 0 {
		b = protowire.AppendTag(b, fieldType, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Type))
	}
	if m.DX != 0 {
		b = protowire.AppendTag(b, fieldDX, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(m.DX)))
	}
	if m.DY != 0 {
		b = protowire.AppendTag(b, fieldDY, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(m.DY)))
	}
	if m.Button != 0 {
		b = protowire.AppendTag(b, fieldButton, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Button))
	}
	if m.Seq != 0 {
		b = protowire.AppendTag(b, fieldSeq, protowire.VarintType)
		b = protowire.AppendVarint(b, m.Seq)
	}
	if m.Version != 0 {
		b = protowire.AppendTag(b, fieldVersion, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Version))
	}
	if m.Error != "" {
		b = protowire.AppendTag(b, fieldError, protowire.BytesType)
		b = protowire.AppendString(b, m.Error)
	}
	return b
}

// Unmarshal decodes a message payload. Unknown fields are skipped.
func Unmarshal(b []byte) (*Message, error) {
	m := &Message{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldError && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, protowire.ParseError(n))
			}
			m.Error = s
			b = b[n:]
		case num >= fieldType && num <= fieldVersion && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, protowire.ParseError(n))
			}
			m.set(num, v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return m, nil
}

func (m *Message) set(num protowire.Number, v uint64) {
	switch num {
	case fieldType:
		m.Type = MessageType(v)
	case fieldDX:
		m.DX = int32(protowire.DecodeZigZag(v))
	case fieldDY:
		m.DY = int32(protowire.DecodeZigZag(v))
	case fieldButton:
		m.Button = uint32(v)
	case fieldSeq:
		m.Seq = v
	case fieldVersion:
		m.Version = uint32(v)
	}
}

// ReadMessage reads one length-prefixed message
func ReadMessage(r io.Reader) (*Message, error) {
	// Read message length (4 bytes, big endian)
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, fmt.Errorf("failed to read message length: %w", err)
	}
	if length > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("failed to read message data: %w", err)
	}
	return Unmarshal(data)
}

// WriteMessage writes one length-prefixed message in a single write
func WriteMessage(w io.Writer, m *Message) error {
	payload := m.Marshal()
	buf := make([]byte, 4, 4+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	buf = append(buf, payload...)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}
