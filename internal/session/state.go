package session

import "ballancemmo/relay/internal/protocol"

// UpdateState stores a positional update for the handle under the
// last-writer-wins rule: an update whose timestamp is below the stored one is
// a no-op. Returns whether the update was accepted.
func (t *Table) UpdateState(handle uint32, state protocol.TimedBallState) bool {
	t.mu.RLock()
	s, ok := t.byHandle[handle]
	t.mu.RUnlock()
	if !ok {
		return false
	}

	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	//1.- Reject stale updates; reordering on the unreliable channel must not
	// roll a player's state backwards.
	if state.Timestamp < s.state.Timestamp {
		return false
	}
	s.state = state
	s.stateDirty = true
	return true
}

// UpdateTimestamp refreshes only the timestamp of the stored state, for
// clients that moved in time but not in space. Stale timestamps are no-ops.
func (t *Table) UpdateTimestamp(handle uint32, timestamp int64) bool {
	t.mu.RLock()
	s, ok := t.byHandle[handle]
	t.mu.RUnlock()
	if !ok {
		return false
	}

	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	if timestamp < s.state.Timestamp {
		return false
	}
	s.state.Timestamp = timestamp
	s.timestampDirty = true
	return true
}

// State returns the stored timed state for the handle.
func (t *Table) State(handle uint32) (protocol.TimedBallState, bool) {
	t.mu.RLock()
	s, ok := t.byHandle[handle]
	t.mu.RUnlock()
	if !ok {
		return protocol.TimedBallState{}, false
	}
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	return s.state, true
}

// ConsumeDirty collects every session whose state changed since the last tick
// and, separately, sessions whose timestamp alone moved, clearing the dirty
// flags. A full positional update supersedes a bare timestamp refresh.
func (t *Table) ConsumeDirty() ([]protocol.OwnedTimedBallState, []protocol.OwnedTimestamp) {
	t.mu.RLock()
	sessions := make([]*Session, 0, len(t.byHandle))
	for _, s := range t.byHandle {
		sessions = append(sessions, s)
	}
	t.mu.RUnlock()

	var balls []protocol.OwnedTimedBallState
	var unchanged []protocol.OwnedTimestamp
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	for _, s := range sessions {
		if s.stateDirty {
			balls = append(balls, protocol.OwnedTimedBallState{State: s.state, Owner: s.Handle})
			s.stateDirty = false
			s.timestampDirty = false
			continue
		}
		if s.timestampDirty {
			unchanged = append(unchanged, protocol.OwnedTimestamp{Timestamp: s.state.Timestamp, Owner: s.Handle})
			s.timestampDirty = false
		}
	}
	return balls, unchanged
}

// StateSnapshot returns the current state of every session that has reported
// at least once, for the aggregate snapshot sent on login.
func (t *Table) StateSnapshot() []protocol.OwnedTimedBallState {
	t.mu.RLock()
	sessions := make([]*Session, 0, len(t.byHandle))
	for _, s := range t.byHandle {
		sessions = append(sessions, s)
	}
	t.mu.RUnlock()

	var balls []protocol.OwnedTimedBallState
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	for _, s := range sessions {
		if s.state.Timestamp == 0 {
			continue
		}
		balls = append(balls, protocol.OwnedTimedBallState{State: s.state, Owner: s.Handle})
	}
	return balls
}
