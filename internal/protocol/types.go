package protocol

import (
	"encoding/hex"
	"fmt"
)

// Vec3 is a ball position in world space.
type Vec3 struct {
	X float32
	Y float32
	Z float32
}

// Quat is a ball orientation as a unit quaternion.
type Quat struct {
	X float32
	Y float32
	Z float32
	W float32
}

// BallState is the positional part of a player update.
type BallState struct {
	Type     uint32
	Position Vec3
	Rotation Quat
}

// TimedBallState carries a BallState plus the client's monotonic timestamp in
// microseconds. The timestamp, not arrival order, decides which update wins.
type TimedBallState struct {
	BallState
	Timestamp int64
}

// OwnedTimedBallState attributes a timed state to a connection.
type OwnedTimedBallState struct {
	State TimedBallState
	Owner uint32
}

// OwnedTimestamp attributes a bare timestamp refresh to a connection.
type OwnedTimestamp struct {
	Timestamp int64
	Owner     uint32
}

// MapType distinguishes the well-known original levels from custom content.
type MapType uint8

const (
	MapTypeUnknown MapType = iota
	MapTypeOriginalLevel
	MapTypeCustom
)

// Map identifies a level either by original-level index or by the 16-byte
// content hash of the level file. The hash bytes are the durable key; names
// are advisory and resolved through the server-wide name table.
type Map struct {
	Type  MapType
	Level int32
	MD5   [16]byte
}

// Key returns the raw hash bytes as a map key.
func (m Map) Key() string {
	return string(m.MD5[:])
}

// UUIDString formats an identity token in the canonical dashed form used for
// ban/op/mute lookups.
func UUIDString(uuid [16]byte) string {
	return fmt.Sprintf("%x-%x-%x-%x-%x", uuid[0:4], uuid[4:6], uuid[6:8], uuid[8:10], uuid[10:16])
}

// DisplayName resolves a human-readable name through the hash->name table,
// falling back to the level index or the hex hash.
func (m Map) DisplayName(names map[string]string) string {
	if name, ok := names[m.Key()]; ok && name != "" {
		return name
	}
	if m.Type == MapTypeOriginalLevel {
		return fmt.Sprintf("Level %d", m.Level)
	}
	return hex.EncodeToString(m.MD5[:])
}
