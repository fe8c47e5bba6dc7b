package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrTruncated reports a decode that would read past the message boundary.
	ErrTruncated = errors.New("protocol: truncated message")
	// ErrUnknownOpcode reports an opcode outside the closed enumeration.
	ErrUnknownOpcode = errors.New("protocol: unknown opcode")
	// ErrOversized reports a variable field whose declared length exceeds the
	// remaining payload.
	ErrOversized = errors.New("protocol: declared length exceeds payload")
)

// maxFieldBytes bounds a single length-prefixed field so a hostile length
// prefix cannot trigger a huge allocation.
const maxFieldBytes = 1 << 20

// Message is one wire protocol variant. Every variant has a canonical
// encode/decode pair with identical field order.
type Message interface {
	Opcode() Opcode
	encodeTo(w *writer)
	decodeFrom(r *reader)
}

// Encode serializes the message as opcode byte plus payload.
func Encode(m Message) []byte {
	w := &writer{buf: make([]byte, 0, 64)}
	w.u8(uint8(m.Opcode()))
	m.encodeTo(w)
	return w.buf
}

// Decode parses a full inbound frame. The first byte selects the variant; any
// field that would cross the message boundary fails the whole decode.
func Decode(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrTruncated)
	}
	op := Opcode(data[0])
	msg := newMessage(op)
	if msg == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownOpcode, uint8(op))
	}
	r := &reader{buf: data[1:]}
	msg.decodeFrom(r)
	if r.err != nil {
		return nil, fmt.Errorf("decode %v: %w", op, r.err)
	}
	return msg, nil
}

// newMessage allocates the zero value for the variant behind op.
func newMessage(op Opcode) Message {
	switch op {
	case OpLoginRequest:
		return &LoginRequest{}
	case OpLoginRequestV2:
		return &LoginRequestV2{}
	case OpLoginRequestV3:
		return &LoginRequestV3{}
	case OpLoginAcceptedV3:
		return &LoginAcceptedV3{}
	case OpPlayerConnected:
		return &PlayerConnected{}
	case OpPlayerDisconnected:
		return &PlayerDisconnected{}
	case OpPlayerKicked:
		return &PlayerKicked{}
	case OpBallState:
		return &BallStateMsg{}
	case OpTimedBallState:
		return &TimedBallStateMsg{}
	case OpTimestamp:
		return &TimestampMsg{}
	case OpOwnedTimedBallState:
		return &OwnedTimedBallStateMsg{}
	case OpCurrentMap:
		return &CurrentMap{}
	case OpCurrentSector:
		return &CurrentSector{}
	case OpDidNotFinish:
		return &DidNotFinish{}
	case OpLevelFinish:
		return &LevelFinish{}
	case OpScoreList:
		return &ScoreList{}
	case OpCountdown:
		return &Countdown{}
	case OpPlayerReady:
		return &PlayerReady{}
	case OpRestartRequest:
		return &RestartRequest{}
	case OpChat:
		return &Chat{}
	case OpPrivateChat:
		return &PrivateChat{}
	case OpPlainText:
		return &PlainText{}
	case OpImportantNotification:
		return &ImportantNotification{}
	case OpPermanentNotification:
		return &PermanentNotification{}
	case OpPopupBox:
		return &PopupBox{}
	case OpCheatState:
		return &CheatState{}
	case OpOwnedCheatState:
		return &OwnedCheatState{}
	case OpCheatToggle:
		return &CheatToggle{}
	case OpOwnedCheatToggle:
		return &OwnedCheatToggle{}
	case OpKickRequest:
		return &KickRequest{}
	case OpOpState:
		return &OpState{}
	case OpActionDenied:
		return &ActionDenied{}
	case OpMapNames:
		return &MapNames{}
	case OpLatencyData:
		return &LatencyData{}
	case OpSimpleAction:
		return &SimpleAction{}
	case OpOwnedSimpleAction:
		return &OwnedSimpleAction{}
	default:
		return nil
	}
}

// writer appends fields in declaration order, little-endian.
type writer struct {
	buf []byte
}

func (w *writer) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *writer) i32(v int32)  { w.u32(uint32(v)) }
func (w *writer) u64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }
func (w *writer) i64(v int64)  { w.u64(uint64(v)) }
func (w *writer) f32(v float32) {
	w.u32(math.Float32bits(v))
}
func (w *writer) raw(b []byte) { w.buf = append(w.buf, b...) }

// str writes a uint32 length prefix followed by the raw bytes.
func (w *writer) str(s string) {
	w.u32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// reader consumes fields with strict bounds checking. The error is sticky:
// after the first overrun every subsequent read returns the zero value, and
// Decode surfaces the recorded error.
type reader struct {
	buf []byte
	pos int
	err error
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.buf) {
		r.fail(ErrTruncated)
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) i32() int32 { return int32(r.u32()) }

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) i64() int64 { return int64(r.u64()) }

func (r *reader) f32() float32 {
	return math.Float32frombits(r.u32())
}

// str reads a uint32 length prefix and that many raw bytes.
func (r *reader) str() string {
	n := r.u32()
	if r.err != nil {
		return ""
	}
	if n > maxFieldBytes || int(n) > len(r.buf)-r.pos {
		r.fail(ErrOversized)
		return ""
	}
	return string(r.take(int(n)))
}

// count validates a declared element count against the bytes actually left,
// so a hostile count cannot trigger a huge allocation before the overrun is
// noticed.
func (r *reader) count(elemSize int) int {
	n := r.u32()
	if r.err != nil {
		return 0
	}
	if elemSize > 0 && int(n) > (len(r.buf)-r.pos)/elemSize {
		r.fail(ErrOversized)
		return 0
	}
	return int(n)
}
