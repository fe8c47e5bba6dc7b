package protocol

import "sort"

// CountdownType enumerates the countdown phases relayed between clients.
type CountdownType uint8

const (
	CountdownGo CountdownType = iota
	Countdown1
	Countdown2
	Countdown3
	CountdownReady
	CountdownConfirmReady
	CountdownUnknown CountdownType = 255
)

// DenyReason is the machine-readable code on an ActionDenied reply.
type DenyReason uint8

const (
	DenyUnknown DenyReason = iota
	DenyNoPermission
	DenyInvalidAction
	DenyInvalidTarget
	DenyTargetNotFound
	DenyPlayerMuted
)

// Text returns the human-readable fallback for a deny reason so thin clients
// can render denials without opcode-specific logic.
func (d DenyReason) Text() string {
	switch d {
	case DenyNoPermission:
		return "You do not have the permission to perform this action."
	case DenyInvalidAction:
		return "Invalid action."
	case DenyInvalidTarget:
		return "Invalid target."
	case DenyTargetNotFound:
		return "Target player not found."
	case DenyPlayerMuted:
		return "You are muted on this server."
	default:
		return "Action denied."
	}
}

// ActionType tags SimpleAction query/ack messages that carry no payload.
type ActionType uint8

const (
	ActionUnknown ActionType = iota
	ActionLoginDenied
	ActionCurrentMapQuery
	ActionFatalError
	ActionScoreListQuery
)

// CurrentMapState distinguishes a positional announcement from a map change.
type CurrentMapState uint8

const (
	CurrentMapAnnouncement CurrentMapState = iota
	CurrentMapEnteringMap
)

// CrashType selects how a kick terminates the target client.
type CrashType uint8

const (
	CrashNone CrashType = iota
	CrashCrash
	CrashFatalError
	CrashSelfTriggeredFatalError
)

// Connection end-reason code families, carried on transport close.
// 1..49 denied from incorrect configuration, 50..99 banned,
// 100..199 kicked while online (150+n requests auto reconnect in n seconds).
const (
	EndAppMin           = 2000
	EndInvalidVersion   = EndAppMin + 1
	EndNameConflict     = EndAppMin + 2
	EndNameLength       = EndAppMin + 3
	EndNameInvalidChar  = EndAppMin + 4
	EndBanned           = EndAppMin + 50
	EndKicked           = EndAppMin + 100
	EndAutoReconnectMin = EndAppMin + 150
)

// PlayerStatus is one roster entry inside LoginAcceptedV3.
type PlayerStatus struct {
	Name    string
	Cheated uint8
	Map     Map
	Sector  int32
}

func encodeMap(w *writer, m Map) {
	w.u8(uint8(m.Type))
	w.i32(m.Level)
	w.raw(m.MD5[:])
}

func decodeMap(r *reader) Map {
	var m Map
	m.Type = MapType(r.u8())
	m.Level = r.i32()
	copy(m.MD5[:], r.take(16))
	return m
}

func encodeBallState(w *writer, s BallState) {
	w.u32(s.Type)
	w.f32(s.Position.X)
	w.f32(s.Position.Y)
	w.f32(s.Position.Z)
	w.f32(s.Rotation.X)
	w.f32(s.Rotation.Y)
	w.f32(s.Rotation.Z)
	w.f32(s.Rotation.W)
}

func decodeBallState(r *reader) BallState {
	var s BallState
	s.Type = r.u32()
	s.Position = Vec3{X: r.f32(), Y: r.f32(), Z: r.f32()}
	s.Rotation = Quat{X: r.f32(), Y: r.f32(), Z: r.f32(), W: r.f32()}
	return s
}

// LoginRequest is the retired first-generation handshake. The payload is
// never parsed; receiving the opcode alone is enough to deny the client as
// outdated.
type LoginRequest struct{}

func (*LoginRequest) Opcode() Opcode      { return OpLoginRequest }
func (*LoginRequest) encodeTo(*writer)    {}
func (*LoginRequest) decodeFrom(*reader)  {}

// LoginRequestV2 is the retired second-generation handshake, denied like
// LoginRequest.
type LoginRequestV2 struct{}

func (*LoginRequestV2) Opcode() Opcode     { return OpLoginRequestV2 }
func (*LoginRequestV2) encodeTo(*writer)   {}
func (*LoginRequestV2) decodeFrom(*reader) {}

// LoginRequestV3 carries the client's identity: protocol version, display
// name, durable 16-byte identity token and cheat-mode bit.
type LoginRequestV3 struct {
	Version  Version
	Nickname string
	UUID     [16]byte
	Cheated  uint8
}

func (*LoginRequestV3) Opcode() Opcode { return OpLoginRequestV3 }

func (m *LoginRequestV3) encodeTo(w *writer) {
	w.u8(m.Version.Major)
	w.u8(m.Version.Minor)
	w.u8(m.Version.Patch)
	w.u8(uint8(m.Version.Stage))
	w.u8(m.Version.Build)
	w.str(m.Nickname)
	w.raw(m.UUID[:])
	w.u8(m.Cheated)
}

func (m *LoginRequestV3) decodeFrom(r *reader) {
	m.Version = Version{
		Major: r.u8(),
		Minor: r.u8(),
		Patch: r.u8(),
		Stage: Stage(r.u8()),
		Build: r.u8(),
	}
	m.Nickname = r.str()
	copy(m.UUID[:], r.take(16))
	m.Cheated = r.u8()
}

// LoginAcceptedV3 delivers the full roster of identified sessions to a newly
// accepted client, keyed by connection handle.
type LoginAcceptedV3 struct {
	OnlinePlayers map[uint32]PlayerStatus
}

func (*LoginAcceptedV3) Opcode() Opcode { return OpLoginAcceptedV3 }

func (m *LoginAcceptedV3) encodeTo(w *writer) {
	//1.- Emit entries in handle order so identical rosters encode identically.
	ids := make([]uint32, 0, len(m.OnlinePlayers))
	for id := range m.OnlinePlayers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	w.u32(uint32(len(ids)))
	for _, id := range ids {
		p := m.OnlinePlayers[id]
		w.u32(id)
		w.str(p.Name)
		w.u8(p.Cheated)
		encodeMap(w, p.Map)
		w.i32(p.Sector)
	}
}

func (m *LoginAcceptedV3) decodeFrom(r *reader) {
	n := r.count(4 + 4 + 1 + 21 + 4)
	m.OnlinePlayers = make(map[uint32]PlayerStatus, n)
	for i := 0; i < n && r.err == nil; i++ {
		id := r.u32()
		var p PlayerStatus
		p.Name = r.str()
		p.Cheated = r.u8()
		p.Map = decodeMap(r)
		p.Sector = r.i32()
		m.OnlinePlayers[id] = p
	}
}

// PlayerConnected announces a newly identified session to everyone else.
type PlayerConnected struct {
	ConnectionID uint32
	Name         string
	Cheated      uint8
}

func (*PlayerConnected) Opcode() Opcode { return OpPlayerConnected }

func (m *PlayerConnected) encodeTo(w *writer) {
	w.u32(m.ConnectionID)
	w.str(m.Name)
	w.u8(m.Cheated)
}

func (m *PlayerConnected) decodeFrom(r *reader) {
	m.ConnectionID = r.u32()
	m.Name = r.str()
	m.Cheated = r.u8()
}

// PlayerDisconnected announces a departed session.
type PlayerDisconnected struct {
	ConnectionID uint32
}

func (*PlayerDisconnected) Opcode() Opcode { return OpPlayerDisconnected }

func (m *PlayerDisconnected) encodeTo(w *writer) { w.u32(m.ConnectionID) }
func (m *PlayerDisconnected) decodeFrom(r *reader) {
	m.ConnectionID = r.u32()
}

// PlayerKicked names the kicked player, the executor (empty for the server)
// and the reason, and marks whether the client was crashed on the way out.
type PlayerKicked struct {
	KickedPlayerName string
	ExecutorName     string
	Reason           string
	Crashed          uint8
}

func (*PlayerKicked) Opcode() Opcode { return OpPlayerKicked }

func (m *PlayerKicked) encodeTo(w *writer) {
	w.str(m.KickedPlayerName)
	w.str(m.ExecutorName)
	w.str(m.Reason)
	w.u8(m.Crashed)
}

func (m *PlayerKicked) decodeFrom(r *reader) {
	m.KickedPlayerName = r.str()
	m.ExecutorName = r.str()
	m.Reason = r.str()
	m.Crashed = r.u8()
}

// BallStateMsg is a raw positional update without a timestamp, sent by
// clients that have not yet synchronized their clock.
type BallStateMsg struct {
	State BallState
}

func (*BallStateMsg) Opcode() Opcode { return OpBallState }

func (m *BallStateMsg) encodeTo(w *writer)   { encodeBallState(w, m.State) }
func (m *BallStateMsg) decodeFrom(r *reader) { m.State = decodeBallState(r) }

// TimedBallStateMsg is the regular per-player positional update.
type TimedBallStateMsg struct {
	State TimedBallState
}

func (*TimedBallStateMsg) Opcode() Opcode { return OpTimedBallState }

func (m *TimedBallStateMsg) encodeTo(w *writer) {
	encodeBallState(w, m.State.BallState)
	w.i64(m.State.Timestamp)
}

func (m *TimedBallStateMsg) decodeFrom(r *reader) {
	m.State.BallState = decodeBallState(r)
	m.State.Timestamp = r.i64()
}

// TimestampMsg refreshes a session's timestamp with no positional delta.
type TimestampMsg struct {
	Timestamp int64
}

func (*TimestampMsg) Opcode() Opcode { return OpTimestamp }

func (m *TimestampMsg) encodeTo(w *writer)   { w.i64(m.Timestamp) }
func (m *TimestampMsg) decodeFrom(r *reader) { m.Timestamp = r.i64() }

// OwnedTimedBallStateMsg batches every dirty state plus bare timestamp
// refreshes into one tick broadcast.
type OwnedTimedBallStateMsg struct {
	Balls          []OwnedTimedBallState
	UnchangedBalls []OwnedTimestamp
}

func (*OwnedTimedBallStateMsg) Opcode() Opcode { return OpOwnedTimedBallState }

func (m *OwnedTimedBallStateMsg) encodeTo(w *writer) {
	w.u32(uint32(len(m.Balls)))
	for _, b := range m.Balls {
		encodeBallState(w, b.State.BallState)
		w.i64(b.State.Timestamp)
		w.u32(b.Owner)
	}
	w.u32(uint32(len(m.UnchangedBalls)))
	for _, t := range m.UnchangedBalls {
		w.i64(t.Timestamp)
		w.u32(t.Owner)
	}
}

func (m *OwnedTimedBallStateMsg) decodeFrom(r *reader) {
	n := r.count(32 + 8 + 4)
	m.Balls = make([]OwnedTimedBallState, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		var b OwnedTimedBallState
		b.State.BallState = decodeBallState(r)
		b.State.Timestamp = r.i64()
		b.Owner = r.u32()
		m.Balls = append(m.Balls, b)
	}
	n = r.count(8 + 4)
	m.UnchangedBalls = make([]OwnedTimestamp, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		m.UnchangedBalls = append(m.UnchangedBalls, OwnedTimestamp{Timestamp: r.i64(), Owner: r.u32()})
	}
}

// CurrentMap reports which map and sector a player occupies.
type CurrentMap struct {
	PlayerID uint32
	Type     CurrentMapState
	Map      Map
	Sector   int32
}

func (*CurrentMap) Opcode() Opcode { return OpCurrentMap }

func (m *CurrentMap) encodeTo(w *writer) {
	w.u32(m.PlayerID)
	w.u8(uint8(m.Type))
	encodeMap(w, m.Map)
	w.i32(m.Sector)
}

func (m *CurrentMap) decodeFrom(r *reader) {
	m.PlayerID = r.u32()
	m.Type = CurrentMapState(r.u8())
	m.Map = decodeMap(r)
	m.Sector = r.i32()
}

// CurrentSector reports a sector change within the current map.
type CurrentSector struct {
	PlayerID uint32
	Sector   int32
}

func (*CurrentSector) Opcode() Opcode { return OpCurrentSector }

func (m *CurrentSector) encodeTo(w *writer) {
	w.u32(m.PlayerID)
	w.i32(m.Sector)
}

func (m *CurrentSector) decodeFrom(r *reader) {
	m.PlayerID = r.u32()
	m.Sector = r.i32()
}

// DidNotFinish records an aborted run; no rank is consumed.
type DidNotFinish struct {
	PlayerID uint32
	Cheated  uint8
	Map      Map
	Sector   int32
}

func (*DidNotFinish) Opcode() Opcode { return OpDidNotFinish }

func (m *DidNotFinish) encodeTo(w *writer) {
	w.u32(m.PlayerID)
	w.u8(m.Cheated)
	encodeMap(w, m.Map)
	w.i32(m.Sector)
}

func (m *DidNotFinish) decodeFrom(r *reader) {
	m.PlayerID = r.u32()
	m.Cheated = r.u8()
	m.Map = decodeMap(r)
	m.Sector = r.i32()
}

// LevelFinish reports a completed run. The server stamps PlayerID and Rank
// and may overwrite TimeElapsed and Cheated before rebroadcasting.
type LevelFinish struct {
	PlayerID    uint32
	Points      int32
	Lives       int32
	LifeBonus   int32
	LevelBonus  int32
	Map         Map
	TimeElapsed float32
	StartPoints int32
	Cheated     uint8
	Rank        int32
}

func (*LevelFinish) Opcode() Opcode { return OpLevelFinish }

func (m *LevelFinish) encodeTo(w *writer) {
	w.u32(m.PlayerID)
	w.i32(m.Points)
	w.i32(m.Lives)
	w.i32(m.LifeBonus)
	w.i32(m.LevelBonus)
	encodeMap(w, m.Map)
	w.f32(m.TimeElapsed)
	w.i32(m.StartPoints)
	w.u8(m.Cheated)
	w.i32(m.Rank)
}

func (m *LevelFinish) decodeFrom(r *reader) {
	m.PlayerID = r.u32()
	m.Points = r.i32()
	m.Lives = r.i32()
	m.LifeBonus = r.i32()
	m.LevelBonus = r.i32()
	m.Map = decodeMap(r)
	m.TimeElapsed = r.f32()
	m.StartPoints = r.i32()
	m.Cheated = r.u8()
	m.Rank = r.i32()
}

// Score returns the composed score for the finish report.
func (m *LevelFinish) Score() int32 {
	return m.LevelBonus + m.Points + m.Lives*m.LifeBonus
}

// ScoreEntry is one row of a per-map ranking list.
type ScoreEntry struct {
	PlayerID    uint32
	Name        string
	Rank        int32
	Score       int32
	TimeElapsed float32
	Cheated     uint8
}

// ScoreList carries the recorded finishes for one map in rank order.
type ScoreList struct {
	Map     Map
	Entries []ScoreEntry
}

func (*ScoreList) Opcode() Opcode { return OpScoreList }

func (m *ScoreList) encodeTo(w *writer) {
	encodeMap(w, m.Map)
	w.u32(uint32(len(m.Entries)))
	for _, e := range m.Entries {
		w.u32(e.PlayerID)
		w.str(e.Name)
		w.i32(e.Rank)
		w.i32(e.Score)
		w.f32(e.TimeElapsed)
		w.u8(e.Cheated)
	}
}

func (m *ScoreList) decodeFrom(r *reader) {
	m.Map = decodeMap(r)
	n := r.count(4 + 4 + 4 + 4 + 4 + 1)
	m.Entries = make([]ScoreEntry, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		var e ScoreEntry
		e.PlayerID = r.u32()
		e.Name = r.str()
		e.Rank = r.i32()
		e.Score = r.i32()
		e.TimeElapsed = r.f32()
		e.Cheated = r.u8()
		m.Entries = append(m.Entries, e)
	}
}

// Countdown is relayed verbatim between clients; the server only stamps the
// sender and the restart flags. Countdown timing is client-observed.
type Countdown struct {
	Type         CountdownType
	Sender       uint32
	Map          Map
	RestartLevel uint8
	ForceRestart uint8
}

func (*Countdown) Opcode() Opcode { return OpCountdown }

func (m *Countdown) encodeTo(w *writer) {
	w.u8(uint8(m.Type))
	w.u32(m.Sender)
	encodeMap(w, m.Map)
	w.u8(m.RestartLevel)
	w.u8(m.ForceRestart)
}

func (m *Countdown) decodeFrom(r *reader) {
	m.Type = CountdownType(r.u8())
	m.Sender = r.u32()
	m.Map = decodeMap(r)
	m.RestartLevel = r.u8()
	m.ForceRestart = r.u8()
}

// PlayerReady toggles the sender's ready flag; the server stamps the total
// ready count before rebroadcasting.
type PlayerReady struct {
	PlayerID uint32
	Count    uint32
	Ready    uint8
}

func (*PlayerReady) Opcode() Opcode { return OpPlayerReady }

func (m *PlayerReady) encodeTo(w *writer) {
	w.u32(m.PlayerID)
	w.u32(m.Count)
	w.u8(m.Ready)
}

func (m *PlayerReady) decodeFrom(r *reader) {
	m.PlayerID = r.u32()
	m.Count = r.u32()
	m.Ready = r.u8()
}

// RestartRequest asks peers on the same map for a level restart.
type RestartRequest struct {
	PlayerID uint32
	Map      Map
}

func (*RestartRequest) Opcode() Opcode { return OpRestartRequest }

func (m *RestartRequest) encodeTo(w *writer) {
	w.u32(m.PlayerID)
	encodeMap(w, m.Map)
}

func (m *RestartRequest) decodeFrom(r *reader) {
	m.PlayerID = r.u32()
	m.Map = decodeMap(r)
}

// Chat is a public message; PlayerID is stamped by the server.
type Chat struct {
	PlayerID uint32
	Content  string
}

func (*Chat) Opcode() Opcode { return OpChat }

func (m *Chat) encodeTo(w *writer) {
	w.u32(m.PlayerID)
	w.str(m.Content)
}

func (m *Chat) decodeFrom(r *reader) {
	m.PlayerID = r.u32()
	m.Content = r.str()
}

// PrivateChat is a whisper. Inbound, PlayerID names the receiver; outbound it
// names the sender.
type PrivateChat struct {
	PlayerID uint32
	Content  string
}

func (*PrivateChat) Opcode() Opcode { return OpPrivateChat }

func (m *PrivateChat) encodeTo(w *writer) {
	w.u32(m.PlayerID)
	w.str(m.Content)
}

func (m *PrivateChat) decodeFrom(r *reader) {
	m.PlayerID = r.u32()
	m.Content = r.str()
}

// PlainText is an unattributed console-style line.
type PlainText struct {
	Content string
}

func (*PlainText) Opcode() Opcode { return OpPlainText }

func (m *PlainText) encodeTo(w *writer)   { w.str(m.Content) }
func (m *PlainText) decodeFrom(r *reader) { m.Content = r.str() }

// ImportantNotification is an operator-gated announcement.
type ImportantNotification struct {
	PlayerID uint32
	Content  string
}

func (*ImportantNotification) Opcode() Opcode { return OpImportantNotification }

func (m *ImportantNotification) encodeTo(w *writer) {
	w.u32(m.PlayerID)
	w.str(m.Content)
}

func (m *ImportantNotification) decodeFrom(r *reader) {
	m.PlayerID = r.u32()
	m.Content = r.str()
}

// PermanentNotification sets or clears the server bulletin. An empty content
// clears it.
type PermanentNotification struct {
	Title   string
	Content string
}

func (*PermanentNotification) Opcode() Opcode { return OpPermanentNotification }

func (m *PermanentNotification) encodeTo(w *writer) {
	w.str(m.Title)
	w.str(m.Content)
}

func (m *PermanentNotification) decodeFrom(r *reader) {
	m.Title = r.str()
	m.Content = r.str()
}

// PopupBox renders a modal dialog on the client.
type PopupBox struct {
	Title   string
	Content string
}

func (*PopupBox) Opcode() Opcode { return OpPopupBox }

func (m *PopupBox) encodeTo(w *writer) {
	w.str(m.Title)
	w.str(m.Content)
}

func (m *PopupBox) decodeFrom(r *reader) {
	m.Title = r.str()
	m.Content = r.str()
}

// CheatState reports the sender's own cheat flag.
type CheatState struct {
	Cheated uint8
	Notify  uint8
}

func (*CheatState) Opcode() Opcode { return OpCheatState }

func (m *CheatState) encodeTo(w *writer) {
	w.u8(m.Cheated)
	w.u8(m.Notify)
}

func (m *CheatState) decodeFrom(r *reader) {
	m.Cheated = r.u8()
	m.Notify = r.u8()
}

// OwnedCheatState attributes a cheat flag change to a session.
type OwnedCheatState struct {
	PlayerID uint32
	Cheated  uint8
	Notify   uint8
}

func (*OwnedCheatState) Opcode() Opcode { return OpOwnedCheatState }

func (m *OwnedCheatState) encodeTo(w *writer) {
	w.u32(m.PlayerID)
	w.u8(m.Cheated)
	w.u8(m.Notify)
}

func (m *OwnedCheatState) decodeFrom(r *reader) {
	m.PlayerID = r.u32()
	m.Cheated = r.u8()
	m.Notify = r.u8()
}

// CheatToggle requests a global cheat-mode switch (operator-gated).
type CheatToggle struct {
	Cheated uint8
	Notify  uint8
}

func (*CheatToggle) Opcode() Opcode { return OpCheatToggle }

func (m *CheatToggle) encodeTo(w *writer) {
	w.u8(m.Cheated)
	w.u8(m.Notify)
}

func (m *CheatToggle) decodeFrom(r *reader) {
	m.Cheated = r.u8()
	m.Notify = r.u8()
}

// OwnedCheatToggle attributes a global cheat switch to its initiator.
type OwnedCheatToggle struct {
	PlayerID uint32
	Cheated  uint8
}

func (*OwnedCheatToggle) Opcode() Opcode { return OpOwnedCheatToggle }

func (m *OwnedCheatToggle) encodeTo(w *writer) {
	w.u32(m.PlayerID)
	w.u8(m.Cheated)
}

func (m *OwnedCheatToggle) decodeFrom(r *reader) {
	m.PlayerID = r.u32()
	m.Cheated = r.u8()
}

// KickRequest asks the server to remove a player, by handle or by name.
type KickRequest struct {
	PlayerID   uint32
	PlayerName string
	Reason     string
	Crash      uint8
}

func (*KickRequest) Opcode() Opcode { return OpKickRequest }

func (m *KickRequest) encodeTo(w *writer) {
	w.u32(m.PlayerID)
	w.str(m.PlayerName)
	w.str(m.Reason)
	w.u8(m.Crash)
}

func (m *KickRequest) decodeFrom(r *reader) {
	m.PlayerID = r.u32()
	m.PlayerName = r.str()
	m.Reason = r.str()
	m.Crash = r.u8()
}

// OpState informs a client that its operator privilege changed.
type OpState struct {
	Op uint8
}

func (*OpState) Opcode() Opcode { return OpOpState }

func (m *OpState) encodeTo(w *writer)   { w.u8(m.Op) }
func (m *OpState) decodeFrom(r *reader) { m.Op = r.u8() }

// ActionDenied rejects a requested action with a reason code and a
// human-readable explanation.
type ActionDenied struct {
	Reason DenyReason
	Text   string
}

func (*ActionDenied) Opcode() Opcode { return OpActionDenied }

func (m *ActionDenied) encodeTo(w *writer) {
	w.u8(uint8(m.Reason))
	w.str(m.Text)
}

func (m *ActionDenied) decodeFrom(r *reader) {
	m.Reason = DenyReason(r.u8())
	m.Text = r.str()
}

// MapNames announces human-readable names for map content hashes. Names are
// advisory and last-write-wins per hash.
type MapNames struct {
	Maps map[string]string
}

func (*MapNames) Opcode() Opcode { return OpMapNames }

func (m *MapNames) encodeTo(w *writer) {
	//1.- Sort hashes so identical tables produce identical bytes.
	keys := make([]string, 0, len(m.Maps))
	for hash := range m.Maps {
		keys = append(keys, hash)
	}
	sort.Strings(keys)
	w.u32(uint32(len(keys)))
	for _, hash := range keys {
		var md5 [16]byte
		copy(md5[:], hash)
		w.raw(md5[:])
		w.str(m.Maps[hash])
	}
}

func (m *MapNames) decodeFrom(r *reader) {
	n := r.count(16 + 4)
	m.Maps = make(map[string]string, n)
	for i := 0; i < n && r.err == nil; i++ {
		hash := r.take(16)
		name := r.str()
		if r.err == nil {
			m.Maps[string(hash)] = name
		}
	}
}

// LatencyData carries the measured round-trip latency of every session in
// milliseconds, broadcast on the slow resync cadence.
type LatencyData struct {
	Pings map[uint32]uint32
}

func (*LatencyData) Opcode() Opcode { return OpLatencyData }

func (m *LatencyData) encodeTo(w *writer) {
	ids := make([]uint32, 0, len(m.Pings))
	for id := range m.Pings {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	w.u32(uint32(len(ids)))
	for _, id := range ids {
		w.u32(id)
		w.u32(m.Pings[id])
	}
}

func (m *LatencyData) decodeFrom(r *reader) {
	n := r.count(4 + 4)
	m.Pings = make(map[uint32]uint32, n)
	for i := 0; i < n && r.err == nil; i++ {
		id := r.u32()
		ping := r.u32()
		if r.err == nil {
			m.Pings[id] = ping
		}
	}
}

// SimpleAction is a query or acknowledgement with no payload beyond its tag.
type SimpleAction struct {
	Action ActionType
}

func (*SimpleAction) Opcode() Opcode { return OpSimpleAction }

func (m *SimpleAction) encodeTo(w *writer)   { w.u8(uint8(m.Action)) }
func (m *SimpleAction) decodeFrom(r *reader) { m.Action = ActionType(r.u8()) }

// OwnedSimpleAction attributes a tag-only action to a session.
type OwnedSimpleAction struct {
	PlayerID uint32
	Action   ActionType
}

func (*OwnedSimpleAction) Opcode() Opcode { return OpOwnedSimpleAction }

func (m *OwnedSimpleAction) encodeTo(w *writer) {
	w.u32(m.PlayerID)
	w.u8(uint8(m.Action))
}

func (m *OwnedSimpleAction) decodeFrom(r *reader) {
	m.PlayerID = r.u32()
	m.Action = ActionType(r.u8())
}
