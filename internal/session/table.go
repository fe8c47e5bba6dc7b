// Package session owns the authoritative table of identified players. The
// table is the single owner of every Session record; other components refer
// to sessions only by connection handle.
package session

import (
	"strings"
	"sync"

	"ballancemmo/relay/internal/protocol"
)

// Session is the server-side record for one identified, connected player.
// Identity fields are only mutated from the message-handling path; the ball
// state and its dirty flags are shared with the tick loop and guarded by the
// table's state mutex.
type Session struct {
	Handle        uint32
	Name          string
	UUID          [16]byte
	Cheated       bool
	Ready         bool
	CurrentMap    protocol.Map
	CurrentSector int32
	PingMillis    uint32

	state          protocol.TimedBallState
	stateDirty     bool
	timestampDirty bool
}

// Table maps connection handles to sessions with a case-folded name index.
type Table struct {
	mu       sync.RWMutex
	byHandle map[uint32]*Session
	byName   map[string]uint32

	// stateMu guards ball states and dirty flags, which the tick loop reads
	// concurrently with the message-handling path.
	stateMu sync.Mutex
}

// NewTable constructs an empty session table.
func NewTable() *Table {
	return &Table{
		byHandle: make(map[uint32]*Session),
		byName:   make(map[string]uint32),
	}
}

func foldName(name string) string {
	return strings.ToLower(name)
}

// Register adds a freshly validated session. The caller must have run login
// validation first; Register only enforces the uniqueness invariants.
func (t *Table) Register(s *Session) bool {
	if s == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.byHandle[s.Handle]; exists {
		return false
	}
	key := foldName(s.Name)
	if _, exists := t.byName[key]; exists {
		return false
	}
	t.byHandle[s.Handle] = s
	t.byName[key] = s.Handle
	return true
}

// Remove deletes the session for the handle and returns it, or nil when the
// connection never reached the identified state.
func (t *Table) Remove(handle uint32) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.byHandle[handle]
	if !ok {
		return nil
	}
	delete(t.byHandle, handle)
	delete(t.byName, foldName(s.Name))
	return s
}

// Get returns the session for the handle.
func (t *Table) Get(handle uint32) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.byHandle[handle]
	return s, ok
}

// ByName resolves a display name to a handle, case-insensitively.
func (t *Table) ByName(name string) (uint32, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	handle, ok := t.byName[foldName(name)]
	return handle, ok
}

// NameTaken reports whether any active session holds the name, ignoring case.
func (t *Table) NameTaken(name string) bool {
	_, taken := t.ByName(name)
	return taken
}

// Len returns the number of identified sessions.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byHandle)
}

// Handles returns the handles of every identified session.
func (t *Table) Handles() []uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	handles := make([]uint32, 0, len(t.byHandle))
	for h := range t.byHandle {
		handles = append(handles, h)
	}
	return handles
}

// ForEach invokes fn for every session. The snapshot is taken under the read
// lock so fn may call back into the table.
func (t *Table) ForEach(fn func(*Session)) {
	t.mu.RLock()
	sessions := make([]*Session, 0, len(t.byHandle))
	for _, s := range t.byHandle {
		sessions = append(sessions, s)
	}
	t.mu.RUnlock()
	for _, s := range sessions {
		fn(s)
	}
}

// Roster builds the login-accepted view of every identified session.
func (t *Table) Roster() map[uint32]protocol.PlayerStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	roster := make(map[uint32]protocol.PlayerStatus, len(t.byHandle))
	for handle, s := range t.byHandle {
		cheated := uint8(0)
		if s.Cheated {
			cheated = 1
		}
		roster[handle] = protocol.PlayerStatus{
			Name:    s.Name,
			Cheated: cheated,
			Map:     s.CurrentMap,
			Sector:  s.CurrentSector,
		}
	}
	return roster
}

// SetReady updates a session's ready flag and returns the new ready count.
func (t *Table) SetReady(handle uint32, ready bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.byHandle[handle]; ok {
		s.Ready = ready
	}
	count := 0
	for _, s := range t.byHandle {
		if s.Ready {
			count++
		}
	}
	return count
}

// ClearReady resets every session's ready flag, as a countdown Go consumes
// all outstanding ready confirmations.
func (t *Table) ClearReady() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.byHandle {
		s.Ready = false
	}
}

// SetLocation records the session's current map and sector.
func (t *Table) SetLocation(handle uint32, m protocol.Map, sector int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.byHandle[handle]; ok {
		s.CurrentMap = m
		s.CurrentSector = sector
	}
}

// SetSector records a sector change within the session's current map.
func (t *Table) SetSector(handle uint32, sector int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.byHandle[handle]; ok {
		s.CurrentSector = sector
	}
}

// SetCheat records the session's self-reported cheat flag.
func (t *Table) SetCheat(handle uint32, cheated bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.byHandle[handle]; ok {
		s.Cheated = cheated
	}
}

// Overview is a read-only reporting row for one session.
type Overview struct {
	Handle        uint32
	Name          string
	Cheated       bool
	CurrentMap    protocol.Map
	CurrentSector int32
	PingMillis    uint32
}

// Overviews snapshots the reporting fields of every session under the lock,
// so callers outside the serving goroutine never touch live records.
func (t *Table) Overviews() []Overview {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rows := make([]Overview, 0, len(t.byHandle))
	for _, s := range t.byHandle {
		rows = append(rows, Overview{
			Handle:        s.Handle,
			Name:          s.Name,
			Cheated:       s.Cheated,
			CurrentMap:    s.CurrentMap,
			CurrentSector: s.CurrentSector,
			PingMillis:    s.PingMillis,
		})
	}
	return rows
}

// Location returns the session's current map and sector.
func (t *Table) Location(handle uint32) (protocol.Map, int32, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.byHandle[handle]
	if !ok {
		return protocol.Map{}, 0, false
	}
	return s.CurrentMap, s.CurrentSector, true
}

// SetPing records the latest round-trip measurement for the handle.
func (t *Table) SetPing(handle uint32, millis uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.byHandle[handle]; ok {
		s.PingMillis = millis
	}
}

// Pings snapshots every session's last measured latency.
func (t *Table) Pings() map[uint32]uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	pings := make(map[uint32]uint32, len(t.byHandle))
	for handle, s := range t.byHandle {
		pings[handle] = s.PingMillis
	}
	return pings
}
