package main

import (
	"ballancemmo/relay/internal/lifecycle"
	"ballancemmo/relay/internal/logging"
	"ballancemmo/relay/internal/protocol"
	"ballancemmo/relay/internal/race"
	"ballancemmo/relay/internal/session"
)

// closeCode maps an application end-reason code into the WebSocket
// private-use close code range (4000-4999).
func closeCode(end int) int {
	return 4000 + (end - protocol.EndAppMin)
}

// HandleConnect admits a transport connection into limbo. No session exists
// until login validation succeeds.
func (b *Broker) HandleConnect(handle uint32, addr string) {
	b.mu.Lock()
	b.conns[handle] = &connState{state: lifecycle.Connecting, addr: addr}
	b.mu.Unlock()
	b.log.Debug("connection accepted", logging.Uint32("handle", handle), logging.String("addr", addr))
}

// HandleDisconnect reacts to transport-reported closure.
func (b *Broker) HandleDisconnect(handle uint32) {
	b.mu.Lock()
	cs, ok := b.conns[handle]
	if ok {
		delete(b.conns, handle)
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	next, effects := lifecycle.Transition(cs.state, lifecycle.EventTransportClosed)
	cs.state = next
	for _, effect := range effects {
		if effect == lifecycle.EffectRemoveSession {
			b.removeSession(handle)
		}
	}
}

// HandleFrame decodes one inbound frame and dispatches it through the
// lifecycle gate.
func (b *Broker) HandleFrame(handle uint32, frame []byte) {
	b.mu.Lock()
	cs, ok := b.conns[handle]
	b.mu.Unlock()
	if !ok {
		return
	}

	msg, err := protocol.Decode(frame)
	if err != nil {
		b.handleDecodeFault(handle, cs, err)
		return
	}
	b.record(frame)

	switch cs.state {
	case lifecycle.Connecting:
		b.handleLimbo(handle, cs, msg)
	case lifecycle.Identified:
		if s, ok := b.table.Get(handle); ok {
			b.handleIdentified(handle, s, msg)
		}
	}
}

// handleDecodeFault discards a malformed frame. An unidentified connection
// that keeps sending garbage is force-closed as invalid.
func (b *Broker) handleDecodeFault(handle uint32, cs *connState, err error) {
	b.log.Warn("discarding malformed frame", logging.Uint32("handle", handle), logging.Error(err))
	if cs.state != lifecycle.Connecting {
		return
	}
	cs.decodeFaults++
	if cs.decodeFaults < 2 {
		return
	}
	next, effects := lifecycle.Transition(cs.state, lifecycle.EventInvalidMessage)
	cs.state = next
	for _, effect := range effects {
		if effect == lifecycle.EffectCloseInvalid {
			b.tr.Close(handle, closeCode(protocol.EndAppMin), "invalid message before login")
		}
	}
}

// handleLimbo gates an unidentified connection: only login requests are
// acceptable, and only the V3 handshake can succeed.
func (b *Broker) handleLimbo(handle uint32, cs *connState, msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.LoginRequestV3:
		b.handleLogin(handle, cs, m)
	case *protocol.LoginRequest, *protocol.LoginRequestV2:
		//1.- Legacy handshakes identify an outdated client without parsing.
		cs.state = lifecycle.Closed
		b.send(handle, &protocol.SimpleAction{Action: protocol.ActionLoginDenied}, true)
		b.tr.Close(handle, closeCode(protocol.EndInvalidVersion),
			"Outdated client; please update to "+protocol.MinimumClientVersion.String()+" or newer.")
	default:
		next, effects := lifecycle.Transition(cs.state, lifecycle.EventInvalidMessage)
		cs.state = next
		for _, effect := range effects {
			if effect == lifecycle.EffectCloseInvalid {
				b.tr.Close(handle, closeCode(protocol.EndAppMin), "expected a login request")
			}
		}
	}
}

func (b *Broker) handleLogin(handle uint32, cs *connState, m *protocol.LoginRequestV3) {
	if rejection := b.validator.Validate(m); rejection != nil {
		next, effects := lifecycle.Transition(cs.state, lifecycle.EventLoginRejected)
		cs.state = next
		for _, effect := range effects {
			if effect == lifecycle.EffectDenyAndClose {
				b.send(handle, &protocol.SimpleAction{Action: protocol.ActionLoginDenied}, true)
				b.tr.Close(handle, closeCode(rejection.Code), rejection.Reason)
			}
		}
		b.log.Info("login rejected",
			logging.Uint32("handle", handle),
			logging.String("name", m.Nickname),
			logging.Int("code", rejection.Code),
			logging.String("reason", rejection.Reason))
		return
	}

	next, effects := lifecycle.Transition(cs.state, lifecycle.EventLoginValidated)
	cs.state = next
	for _, effect := range effects {
		if effect == lifecycle.EffectCreateSession {
			b.createSession(handle, cs, m)
		}
	}
}

// createSession registers the session and runs the post-login handshake in
// its contractual order: map names, roster, state snapshot, bulletin,
// connect notice, tick start.
func (b *Broker) createSession(handle uint32, cs *connState, m *protocol.LoginRequestV3) {
	s := &session.Session{
		Handle:  handle,
		Name:    m.Nickname,
		UUID:    m.UUID,
		Cheated: m.Cheated != 0,
	}
	if !b.table.Register(s) {
		//1.- Lost a name race between validation and registration.
		cs.state = lifecycle.Closed
		b.tr.Close(handle, closeCode(protocol.EndNameConflict),
			"A player with the same username already exists on this server.")
		return
	}

	b.mu.Lock()
	names := make(map[string]string, len(b.mapNames))
	for hash, name := range b.mapNames {
		names[hash] = name
	}
	bulletin := b.bulletin
	b.mu.Unlock()

	//2.- The map-name table goes out before anything else.
	if len(names) > 0 {
		b.send(handle, &protocol.MapNames{Maps: names}, true)
	}
	roster := b.table.Roster()
	delete(roster, handle)
	b.send(handle, &protocol.LoginAcceptedV3{OnlinePlayers: roster}, true)
	if snapshot := b.table.StateSnapshot(); len(snapshot) > 0 {
		b.send(handle, &protocol.OwnedTimedBallStateMsg{Balls: snapshot}, true)
	}
	if bulletin.Title != "" || bulletin.Content != "" {
		b.send(handle, &bulletin, true)
	}
	cheated := uint8(0)
	if s.Cheated {
		cheated = 1
	}
	b.broadcastExcept(handle, &protocol.PlayerConnected{ConnectionID: handle, Name: s.Name, Cheated: cheated}, true)

	if b.table.Len() == 2 {
		b.loop.Start()
		b.resync.Start()
	}

	if err := b.mod.RecordLogin(protocol.UUIDString(m.UUID), m.Nickname, cs.addr, b.now()); err != nil {
		b.log.Warn("login audit failed", logging.Error(err))
	}
	b.log.Info("player logged in",
		logging.Uint32("handle", handle),
		logging.String("name", s.Name),
		logging.String("version", m.Version.String()),
		logging.String("addr", cs.addr))
}

// removeSession tears an identified session down and announces the departure.
func (b *Broker) removeSession(handle uint32) {
	s := b.table.Remove(handle)
	if s == nil {
		return
	}
	b.broadcast(&protocol.PlayerDisconnected{ConnectionID: handle}, true)
	b.log.Info("player disconnected", logging.Uint32("handle", handle), logging.String("name", s.Name))

	switch b.table.Len() {
	case 0:
		//1.- A fresh game session starts with clean rankings and metadata.
		b.tracker.Reset()
		b.mu.Lock()
		b.mapNames = make(map[string]string)
		b.bulletin = protocol.PermanentNotification{}
		b.mu.Unlock()
		b.loop.Stop()
		b.resync.Stop()
	case 1:
		b.loop.Stop()
		b.resync.Stop()
	}
}

// handleIdentified is the per-opcode dispatch for identified sessions.
func (b *Broker) handleIdentified(handle uint32, s *session.Session, msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.TimedBallStateMsg:
		b.table.UpdateState(handle, m.State)
	case *protocol.TimestampMsg:
		b.table.UpdateTimestamp(handle, m.Timestamp)
	case *protocol.BallStateMsg:
		//1.- Untimed updates keep the stored timestamp; position still moves.
		state, _ := b.table.State(handle)
		state.BallState = m.State
		b.table.UpdateState(handle, state)

	case *protocol.Chat:
		b.handleChat(handle, s, m)
	case *protocol.PrivateChat:
		b.handlePrivateChat(handle, m)
	case *protocol.ImportantNotification:
		if b.gate.Denied(s.Name, protocol.UUIDString(s.UUID)) {
			b.deny(handle, protocol.DenyNoPermission)
			return
		}
		m.PlayerID = handle
		b.broadcast(m, true)
	case *protocol.PermanentNotification:
		b.handleBulletin(handle, s, m)

	case *protocol.CurrentMap:
		m.PlayerID = handle
		b.table.SetLocation(handle, m.Map, m.Sector)
		b.broadcastExcept(handle, m, true)
	case *protocol.CurrentSector:
		m.PlayerID = handle
		b.table.SetSector(handle, m.Sector)
		b.broadcastExcept(handle, m, true)
	case *protocol.MapNames:
		b.handleMapNames(handle, m)

	case *protocol.Countdown:
		b.handleCountdown(handle, s, m)
	case *protocol.PlayerReady:
		ready := m.Ready != 0
		count := b.table.SetReady(handle, ready)
		b.broadcast(&protocol.PlayerReady{PlayerID: handle, Count: uint32(count), Ready: m.Ready}, true)
	case *protocol.RestartRequest:
		b.handleRestartRequest(handle, s, m)
	case *protocol.LevelFinish:
		b.handleLevelFinish(handle, s, m)
	case *protocol.DidNotFinish:
		m.PlayerID = handle
		b.broadcast(m, true)

	case *protocol.CheatState:
		b.table.SetCheat(handle, m.Cheated != 0)
		b.broadcast(&protocol.OwnedCheatState{PlayerID: handle, Cheated: m.Cheated, Notify: m.Notify}, true)
	case *protocol.CheatToggle:
		if b.gate.Denied(s.Name, protocol.UUIDString(s.UUID)) {
			b.deny(handle, protocol.DenyNoPermission)
			return
		}
		b.broadcast(&protocol.OwnedCheatToggle{PlayerID: handle, Cheated: m.Cheated}, true)
	case *protocol.KickRequest:
		b.handleKickRequest(handle, s, m)

	case *protocol.SimpleAction:
		b.handleSimpleAction(handle, s, m)

	default:
		//2.- Server-to-client opcodes arriving from a client are discarded.
		b.log.Debug("ignoring unexpected message",
			logging.Uint32("handle", handle),
			logging.String("opcode", msg.Opcode().String()))
	}
}

func (b *Broker) handleChat(handle uint32, s *session.Session, m *protocol.Chat) {
	if b.mod.IsMuted(protocol.UUIDString(s.UUID)) {
		//1.- The message is accepted but echoed to no one.
		b.deny(handle, protocol.DenyPlayerMuted)
		b.log.Info("muted chat dropped", logging.String("name", s.Name), logging.String("content", m.Content))
		return
	}
	b.broadcast(&protocol.Chat{PlayerID: handle, Content: m.Content}, true)
	b.log.Info("chat", logging.String("name", s.Name), logging.String("content", m.Content))
}

func (b *Broker) handlePrivateChat(handle uint32, m *protocol.PrivateChat) {
	target := m.PlayerID
	if _, ok := b.table.Get(target); !ok || target == handle {
		b.deny(handle, protocol.DenyTargetNotFound)
		return
	}
	//1.- Outbound, the player field flips from receiver to sender.
	b.send(target, &protocol.PrivateChat{PlayerID: handle, Content: m.Content}, true)
}

func (b *Broker) handleBulletin(handle uint32, s *session.Session, m *protocol.PermanentNotification) {
	if b.gate.Denied(s.Name, protocol.UUIDString(s.UUID)) {
		b.deny(handle, protocol.DenyNoPermission)
		return
	}
	//1.- The bulletin is always attributed to its author, whatever title the
	// client supplied.
	m.Title = s.Name
	b.mu.Lock()
	if m.Content == "" {
		b.bulletin = protocol.PermanentNotification{}
	} else {
		b.bulletin = *m
	}
	b.mu.Unlock()
	b.broadcast(m, true)
	b.log.Info("bulletin updated", logging.String("by", s.Name), logging.String("content", m.Content))
}

func (b *Broker) handleMapNames(handle uint32, m *protocol.MapNames) {
	if len(m.Maps) == 0 {
		return
	}
	b.mu.Lock()
	//1.- Names are advisory, last-write-wins per hash.
	for hash, name := range m.Maps {
		b.mapNames[hash] = name
	}
	b.mu.Unlock()
	b.broadcastExcept(handle, m, true)
}

func (b *Broker) handleCountdown(handle uint32, s *session.Session, m *protocol.Countdown) {
	if b.gate.Denied(s.Name, protocol.UUIDString(s.UUID)) {
		b.deny(handle, protocol.DenyNoPermission)
		return
	}
	switch m.Type {
	case protocol.CountdownGo, protocol.Countdown1, protocol.Countdown2, protocol.Countdown3,
		protocol.CountdownReady, protocol.CountdownConfirmReady:
	default:
		//1.- Unrecognized countdown types are dropped, not relayed.
		return
	}
	m.Sender = handle
	//2.- Server configuration overwrites the client-supplied restart flags.
	m.RestartLevel = 0
	if b.cfg.RestartLevel {
		m.RestartLevel = 1
	}
	m.ForceRestart = 0
	if b.cfg.ForceRestart {
		m.ForceRestart = 1
	}
	if m.Type == protocol.CountdownGo {
		key := m.Map.Key()
		if m.ForceRestart != 0 {
			//3.- A forced restart re-arms every named map at rank zero.
			b.tracker.ArmAll(b.namedMapKeys(key))
		} else {
			b.tracker.Arm(key)
		}
		b.table.ClearReady()
	}
	b.broadcast(m, true)
}

func (b *Broker) handleRestartRequest(handle uint32, s *session.Session, m *protocol.RestartRequest) {
	if !b.cfg.RestartLevel {
		b.deny(handle, protocol.DenyInvalidAction)
		return
	}
	m.PlayerID = handle
	payload := protocol.Encode(m)
	key := m.Map.Key()
	//1.- Restart requests only concern players on the same map.
	b.table.ForEach(func(peer *session.Session) {
		if peer.Handle == handle || peer.CurrentMap.Key() != key {
			return
		}
		if err := b.tr.Send(peer.Handle, payload, true); err != nil {
			b.log.Debug("restart relay failed", logging.Uint32("handle", peer.Handle), logging.Error(err))
		}
	})
}

func (b *Broker) handleLevelFinish(handle uint32, s *session.Session, m *protocol.LevelFinish) {
	m.PlayerID = handle
	key := m.Map.Key()
	if race.SuspiciousFinish(m) {
		m.Cheated = 1
	}
	m.TimeElapsed = b.tracker.ClampElapsed(key, m.TimeElapsed)
	m.Rank = b.tracker.Finish(key)
	b.tracker.RecordFinish(key, protocol.ScoreEntry{
		PlayerID:    handle,
		Name:        s.Name,
		Rank:        m.Rank,
		Score:       m.Score(),
		TimeElapsed: m.TimeElapsed,
		Cheated:     m.Cheated,
	})
	b.broadcast(m, true)

	b.mu.Lock()
	mapName := m.Map.DisplayName(b.mapNames)
	b.mu.Unlock()
	b.log.Info("level finished",
		logging.String("name", s.Name),
		logging.String("map", mapName),
		logging.Int32("rank", m.Rank),
		logging.Int32("score", m.Score()),
		logging.Float64("elapsed", float64(m.TimeElapsed)),
		logging.Bool("cheated", m.Cheated != 0))
}

func (b *Broker) handleKickRequest(handle uint32, s *session.Session, m *protocol.KickRequest) {
	if b.gate.Denied(s.Name, protocol.UUIDString(s.UUID)) {
		b.deny(handle, protocol.DenyNoPermission)
		return
	}
	target, ok := b.resolveTarget(m.PlayerID, m.PlayerName)
	if !ok {
		b.deny(handle, protocol.DenyTargetNotFound)
		return
	}
	b.kick(target, s.Name, m.Reason, protocol.CrashType(m.Crash))
}

// resolveTarget finds a session by handle first, falling back to name.
func (b *Broker) resolveTarget(id uint32, name string) (*session.Session, bool) {
	if id != 0 {
		if s, ok := b.table.Get(id); ok {
			return s, true
		}
	}
	if name != "" {
		if handle, ok := b.table.ByName(name); ok {
			return b.table.Get(handle)
		}
	}
	return nil, false
}

// kick removes the target, with the crash family deciding how the client
// goes down. The close code carries the crash variant so the client can tell
// a plain kick from a crash from an induced fatal error.
func (b *Broker) kick(target *session.Session, executor, reason string, crash protocol.CrashType) {
	crashed := uint8(0)
	if crash != protocol.CrashNone {
		crashed = 1
	}
	notice := &protocol.PlayerKicked{
		KickedPlayerName: target.Name,
		ExecutorName:     executor,
		Reason:           reason,
		Crashed:          crashed,
	}
	end := closeCode(protocol.EndKicked + int(crash))
	switch crash {
	case protocol.CrashFatalError:
		//1.- The empty frame fails client-side deserialization and terminates it.
		if err := b.tr.Send(target.Handle, []byte{}, true); err != nil {
			b.log.Debug("fatal-error frame failed", logging.Uint32("handle", target.Handle), logging.Error(err))
		}
		b.tr.Close(target.Handle, end, "")
	case protocol.CrashSelfTriggeredFatalError:
		//2.- The client already took itself down; no induced frame, no executor.
		notice.ExecutorName = ""
		b.tr.Close(target.Handle, end, "")
	default:
		text := "Kicked by " + executor
		if reason != "" {
			text += ": " + reason
		}
		b.tr.Close(target.Handle, end, text+".")
	}

	b.mu.Lock()
	if cs, ok := b.conns[target.Handle]; ok {
		next, _ := lifecycle.Transition(cs.state, lifecycle.EventKicked)
		cs.state = next
		delete(b.conns, target.Handle)
	}
	b.mu.Unlock()
	b.removeSessionSilently(target.Handle)
	b.broadcast(notice, true)
	b.log.Info("player kicked",
		logging.String("name", target.Name),
		logging.String("by", executor),
		logging.String("reason", reason),
		logging.Bool("crashed", crashed != 0))
}

// removeSessionSilently removes the session and runs population bookkeeping
// without the disconnect notice; kick paths broadcast their own notice.
func (b *Broker) removeSessionSilently(handle uint32) {
	if b.table.Remove(handle) == nil {
		return
	}
	switch b.table.Len() {
	case 0:
		b.tracker.Reset()
		b.mu.Lock()
		b.mapNames = make(map[string]string)
		b.bulletin = protocol.PermanentNotification{}
		b.mu.Unlock()
		b.loop.Stop()
		b.resync.Stop()
	case 1:
		b.loop.Stop()
		b.resync.Stop()
	}
}

func (b *Broker) handleSimpleAction(handle uint32, s *session.Session, m *protocol.SimpleAction) {
	switch m.Action {
	case protocol.ActionCurrentMapQuery:
		//1.- Answer with one positional announcement per other session.
		b.table.ForEach(func(peer *session.Session) {
			if peer.Handle == handle {
				return
			}
			b.send(handle, &protocol.CurrentMap{
				PlayerID: peer.Handle,
				Type:     protocol.CurrentMapAnnouncement,
				Map:      peer.CurrentMap,
				Sector:   peer.CurrentSector,
			}, true)
		})
	case protocol.ActionScoreListQuery:
		b.send(handle, &protocol.ScoreList{
			Map:     s.CurrentMap,
			Entries: b.tracker.Scores(s.CurrentMap.Key()),
		}, true)
	case protocol.ActionFatalError:
		//2.- A client reporting its own fatal error is removed as a
		// self-triggered crash so peers see it go down.
		b.log.Warn("client reported fatal error", logging.String("name", s.Name))
		b.kick(s, "", "fatal error", protocol.CrashSelfTriggeredFatalError)
	default:
		b.deny(handle, protocol.DenyInvalidAction)
	}
}
