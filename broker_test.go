package main

import (
	"strings"
	"sync"
	"testing"
	"time"

	"ballancemmo/relay/internal/config"
	"ballancemmo/relay/internal/logging"
	"ballancemmo/relay/internal/protocol"
)

type sentFrame struct {
	payload  []byte
	reliable bool
}

type closeCall struct {
	code   int
	reason string
}

type fakeTransport struct {
	mu     sync.Mutex
	sent   map[uint32][]sentFrame
	closes map[uint32]closeCall
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		sent:   make(map[uint32][]sentFrame),
		closes: make(map[uint32]closeCall),
	}
}

func (f *fakeTransport) Send(handle uint32, payload []byte, reliable bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[handle] = append(f.sent[handle], sentFrame{payload: payload, reliable: reliable})
	return nil
}

func (f *fakeTransport) Close(handle uint32, code int, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes[handle] = closeCall{code: code, reason: reason}
}

func (f *fakeTransport) RTT(uint32) time.Duration { return 30 * time.Millisecond }

func (f *fakeTransport) frames(t *testing.T, handle uint32) []protocol.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var msgs []protocol.Message
	for _, frame := range f.sent[handle] {
		if len(frame.payload) == 0 {
			continue
		}
		msg, err := protocol.Decode(frame.payload)
		if err != nil {
			t.Fatalf("sent frame does not decode: %v", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

func (f *fakeTransport) rawCount(handle uint32) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent[handle])
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = make(map[uint32][]sentFrame)
}

func (f *fakeTransport) closedWith(handle uint32) (closeCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call, ok := f.closes[handle]
	return call, ok
}

type fakeModeration struct {
	bans  map[string]string
	ops   map[string]string
	mutes map[string]bool
}

func newFakeModeration() *fakeModeration {
	return &fakeModeration{
		bans:  make(map[string]string),
		ops:   make(map[string]string),
		mutes: make(map[string]bool),
	}
}

func (f *fakeModeration) BanReason(uuid string) (string, bool) {
	reason, ok := f.bans[uuid]
	return reason, ok
}
func (f *fakeModeration) SetBan(uuid, reason string) error { f.bans[uuid] = reason; return nil }
func (f *fakeModeration) RemoveBan(uuid string) error      { delete(f.bans, uuid); return nil }
func (f *fakeModeration) IsMuted(uuid string) bool         { return f.mutes[uuid] }
func (f *fakeModeration) SetMute(uuid string, muted bool) (bool, error) {
	f.mutes[uuid] = muted
	return true, nil
}
func (f *fakeModeration) IsOp(name, uuid string) bool {
	return f.ops[strings.ToLower(name)] == uuid
}
func (f *fakeModeration) SetOp(name, uuid string) error {
	f.ops[strings.ToLower(name)] = uuid
	return nil
}
func (f *fakeModeration) RemoveOp(name string) (bool, error) {
	delete(f.ops, strings.ToLower(name))
	return true, nil
}
func (f *fakeModeration) RecordLogin(string, string, string, time.Time) error { return nil }

func testConfig() *config.Config {
	cfg := config.Default()
	//1.- Park the background loops so tests drive ticks explicitly.
	cfg.TickInterval = time.Hour
	cfg.ResyncInterval = time.Hour
	return cfg
}

func newTestBroker(t *testing.T, cfg *config.Config) (*Broker, *fakeTransport, *fakeModeration) {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	tr := newFakeTransport()
	mod := newFakeModeration()
	b := NewBroker(cfg, tr, mod, nil, logging.NewTestLogger())
	t.Cleanup(b.Shutdown)
	return b, tr, mod
}

func uuidFor(seed string) [16]byte {
	var uuid [16]byte
	copy(uuid[:], seed)
	return uuid
}

func loginFrame(name string, seed string) []byte {
	return protocol.Encode(&protocol.LoginRequestV3{
		Version:  protocol.CurrentVersion,
		Nickname: name,
		UUID:     uuidFor(seed),
	})
}

func login(t *testing.T, b *Broker, handle uint32, name, seed string) {
	t.Helper()
	b.HandleConnect(handle, "10.0.0.1:1000")
	b.HandleFrame(handle, loginFrame(name, seed))
	if _, ok := b.table.Get(handle); !ok {
		t.Fatalf("login for %s did not create a session", name)
	}
}

func TestLoginBelowMinimumVersionDenied(t *testing.T) {
	b, tr, _ := newTestBroker(t, nil)
	b.HandleConnect(1, "10.0.0.1:1000")
	b.HandleFrame(1, protocol.Encode(&protocol.LoginRequestV3{
		Version:  protocol.Version{Major: 3, Minor: 4, Patch: 4},
		Nickname: "Alice",
		UUID:     uuidFor("AAAA"),
	}))

	if b.Sessions() != 0 {
		t.Fatal("session table must stay empty after a denied login")
	}
	call, ok := tr.closedWith(1)
	if !ok {
		t.Fatal("denied connection was not closed")
	}
	if call.code != closeCode(protocol.EndInvalidVersion) {
		t.Fatalf("close code %d", call.code)
	}
	//1.- The denial text names both the client and minimum versions.
	if !strings.Contains(call.reason, "3.4.4") || !strings.Contains(call.reason, protocol.MinimumClientVersion.String()) {
		t.Fatalf("denial reason %q should name both versions", call.reason)
	}
}

func TestNameConflictRejectedCaseInsensitive(t *testing.T) {
	b, tr, _ := newTestBroker(t, nil)
	login(t, b, 1, "Alice", "AAAA")

	b.HandleConnect(2, "10.0.0.2:1000")
	b.HandleFrame(2, loginFrame("ALICE", "BBBB"))
	if b.Sessions() != 1 {
		t.Fatalf("expected 1 session, got %d", b.Sessions())
	}
	call, ok := tr.closedWith(2)
	if !ok || call.code != closeCode(protocol.EndNameConflict) {
		t.Fatalf("expected name-conflict close, got %+v ok=%v", call, ok)
	}
}

func TestLoginHandshakeSequence(t *testing.T) {
	b, tr, _ := newTestBroker(t, nil)
	login(t, b, 1, "Alice", "AAAA")

	//1.- Seed a map-name table, a state and a bulletin for the next login.
	hash := uuidFor("MAPHASH1")
	b.HandleFrame(1, protocol.Encode(&protocol.MapNames{Maps: map[string]string{string(hash[:]): "Level 1"}}))
	b.HandleFrame(1, protocol.Encode(&protocol.TimedBallStateMsg{
		State: protocol.TimedBallState{
			BallState: protocol.BallState{Type: 1, Position: protocol.Vec3{X: 2}},
			Timestamp: 500,
		},
	}))
	b.mu.Lock()
	b.bulletin = protocol.PermanentNotification{Title: "Bulletin", Content: "welcome"}
	b.mu.Unlock()
	tr.reset()

	login(t, b, 2, "Bob", "BBBB")

	msgs := tr.frames(t, 2)
	if len(msgs) < 4 {
		t.Fatalf("expected full handshake, got %d messages", len(msgs))
	}
	if _, ok := msgs[0].(*protocol.MapNames); !ok {
		t.Fatalf("first message should be the map-name table, got %T", msgs[0])
	}
	roster, ok := msgs[1].(*protocol.LoginAcceptedV3)
	if !ok {
		t.Fatalf("second message should be the roster, got %T", msgs[1])
	}
	if _, exists := roster.OnlinePlayers[2]; exists {
		t.Fatal("roster must not include the player itself")
	}
	if status := roster.OnlinePlayers[1]; status.Name != "Alice" {
		t.Fatalf("roster entry wrong: %+v", status)
	}
	snapshot, ok := msgs[2].(*protocol.OwnedTimedBallStateMsg)
	if !ok || len(snapshot.Balls) != 1 || snapshot.Balls[0].Owner != 1 {
		t.Fatalf("third message should be the state snapshot, got %T %+v", msgs[2], msgs[2])
	}
	if bulletin, ok := msgs[3].(*protocol.PermanentNotification); !ok || bulletin.Content != "welcome" {
		t.Fatalf("fourth message should be the bulletin, got %T", msgs[3])
	}

	//2.- The existing player hears exactly one connect notice.
	var notices int
	for _, msg := range tr.frames(t, 1) {
		if connected, ok := msg.(*protocol.PlayerConnected); ok {
			notices++
			if connected.ConnectionID != 2 || connected.Name != "Bob" {
				t.Fatalf("bad connect notice %+v", connected)
			}
		}
	}
	if notices != 1 {
		t.Fatalf("expected one connect notice, got %d", notices)
	}
	if !b.TickRunning() {
		t.Fatal("tick loop should start with the second session")
	}
}

func TestQuietTicksBroadcastNothing(t *testing.T) {
	b, tr, _ := newTestBroker(t, nil)
	login(t, b, 1, "Alice", "AAAA")
	login(t, b, 2, "Bob", "BBBB")
	tr.reset()

	b.tick()
	b.tick()
	if tr.rawCount(1) != 0 || tr.rawCount(2) != 0 {
		t.Fatal("quiet ticks must not broadcast")
	}
}

func TestTickBroadcastsDirtyStatesOnce(t *testing.T) {
	b, tr, _ := newTestBroker(t, nil)
	login(t, b, 1, "Alice", "AAAA")
	login(t, b, 2, "Bob", "BBBB")
	tr.reset()

	b.HandleFrame(1, protocol.Encode(&protocol.TimedBallStateMsg{
		State: protocol.TimedBallState{
			BallState: protocol.BallState{Type: 2, Position: protocol.Vec3{X: 1, Y: 2, Z: 3}},
			Timestamp: 1000,
		},
	}))
	b.tick()

	for _, handle := range []uint32{1, 2} {
		msgs := tr.frames(t, handle)
		if len(msgs) != 1 {
			t.Fatalf("handle %d got %d messages", handle, len(msgs))
		}
		batch, ok := msgs[0].(*protocol.OwnedTimedBallStateMsg)
		if !ok || len(batch.Balls) != 1 || batch.Balls[0].Owner != 1 {
			t.Fatalf("unexpected tick broadcast %+v", msgs[0])
		}
	}

	//1.- The dirty flag was consumed; the next tick is quiet.
	tr.reset()
	b.tick()
	if tr.rawCount(1) != 0 || tr.rawCount(2) != 0 {
		t.Fatal("second tick should be quiet")
	}
}

func TestStaleStateUpdateNeverBroadcast(t *testing.T) {
	b, tr, _ := newTestBroker(t, nil)
	login(t, b, 1, "Alice", "AAAA")
	login(t, b, 2, "Bob", "BBBB")

	newState := func(ts int64, x float32) []byte {
		return protocol.Encode(&protocol.TimedBallStateMsg{
			State: protocol.TimedBallState{
				BallState: protocol.BallState{Position: protocol.Vec3{X: x}},
				Timestamp: ts,
			},
		})
	}
	b.HandleFrame(1, newState(2000, 5))
	b.tick()
	tr.reset()

	//1.- An older timestamp is a no-op: the following tick stays quiet.
	b.HandleFrame(1, newState(1500, 9))
	b.tick()
	if tr.rawCount(2) != 0 {
		t.Fatal("stale update leaked into a broadcast")
	}
	if state, _ := b.table.State(1); state.Position.X != 5 || state.Timestamp != 2000 {
		t.Fatalf("stored state rolled back: %+v", state)
	}
}

func TestMutedChatEchoedToNoOne(t *testing.T) {
	b, tr, mod := newTestBroker(t, nil)
	login(t, b, 1, "Alice", "AAAA")
	login(t, b, 2, "Bob", "BBBB")
	mod.mutes[protocol.UUIDString(uuidFor("AAAA"))] = true
	tr.reset()

	b.HandleFrame(1, protocol.Encode(&protocol.Chat{Content: "hello"}))

	for _, msg := range tr.frames(t, 2) {
		if _, ok := msg.(*protocol.Chat); ok {
			t.Fatal("muted chat must not reach other sessions")
		}
	}
	msgs := tr.frames(t, 1)
	if len(msgs) != 1 {
		t.Fatalf("sender should get exactly the denial, got %d messages", len(msgs))
	}
	denied, ok := msgs[0].(*protocol.ActionDenied)
	if !ok || denied.Reason != protocol.DenyPlayerMuted {
		t.Fatalf("expected player-muted denial, got %+v", msgs[0])
	}
	if denied.Text == "" {
		t.Fatal("denial must carry human-readable text")
	}
}

func TestChatBroadcastStampsSender(t *testing.T) {
	b, tr, _ := newTestBroker(t, nil)
	login(t, b, 1, "Alice", "AAAA")
	login(t, b, 2, "Bob", "BBBB")
	tr.reset()

	//1.- The sender-supplied id is overwritten with the connection handle.
	b.HandleFrame(2, protocol.Encode(&protocol.Chat{PlayerID: 999, Content: "hi"}))
	msgs := tr.frames(t, 1)
	if len(msgs) != 1 {
		t.Fatalf("expected one chat, got %d", len(msgs))
	}
	chat, ok := msgs[0].(*protocol.Chat)
	if !ok || chat.PlayerID != 2 || chat.Content != "hi" {
		t.Fatalf("unexpected chat %+v", msgs[0])
	}
}

func TestPrivateChatTargetNotFound(t *testing.T) {
	b, tr, _ := newTestBroker(t, nil)
	login(t, b, 1, "Alice", "AAAA")
	tr.reset()

	b.HandleFrame(1, protocol.Encode(&protocol.PrivateChat{PlayerID: 42, Content: "psst"}))
	msgs := tr.frames(t, 1)
	if len(msgs) != 1 {
		t.Fatalf("expected one denial, got %d", len(msgs))
	}
	if denied, ok := msgs[0].(*protocol.ActionDenied); !ok || denied.Reason != protocol.DenyTargetNotFound {
		t.Fatalf("expected target-not-found, got %+v", msgs[0])
	}
}

func TestFinishRanksAndForcedRestart(t *testing.T) {
	cfg := testConfig()
	cfg.ForceRestart = true
	b, tr, _ := newTestBroker(t, cfg)
	login(t, b, 1, "Alice", "AAAA")
	login(t, b, 2, "Bob", "BBBB")

	level := protocol.Map{Type: protocol.MapTypeOriginalLevel, Level: 2, MD5: uuidFor("H1")}
	finish := func(handle uint32) *protocol.LevelFinish {
		tr.reset()
		b.HandleFrame(handle, protocol.Encode(&protocol.LevelFinish{
			Points: 100, Lives: 2, LifeBonus: 200, LevelBonus: 200,
			Map: level, TimeElapsed: 10,
		}))
		for _, msg := range tr.frames(t, 1) {
			if lf, ok := msg.(*protocol.LevelFinish); ok {
				return lf
			}
		}
		t.Fatal("no finish broadcast observed")
		return nil
	}

	if lf := finish(1); lf.Rank != 1 {
		t.Fatalf("first finisher rank %d", lf.Rank)
	}
	if lf := finish(1); lf.Rank != 2 {
		t.Fatalf("second finish rank %d", lf.Rank)
	}
	lf := finish(2)
	if lf.Rank != 3 || lf.PlayerID != 2 {
		t.Fatalf("player B should earn rank 3, got %+v", lf)
	}
	if lf.Cheated != 0 {
		t.Fatal("consistent score composition flagged as cheated")
	}

	//1.- A forced-restart Go resets every rank counter and ready flag; the
	// server stamps the flag from its own configuration.
	b.table.SetReady(1, true)
	b.HandleFrame(1, protocol.Encode(&protocol.Countdown{
		Type: protocol.CountdownGo, Map: level,
	}))
	if s, _ := b.table.Get(1); s.Ready {
		t.Fatal("ready flags should be cleared by Go")
	}
	if lf := finish(2); lf.Rank != 1 {
		t.Fatalf("post-restart finisher should earn rank 1, got %d", lf.Rank)
	}
}

func TestImplausibleFinishFlaggedCheated(t *testing.T) {
	b, tr, _ := newTestBroker(t, nil)
	login(t, b, 1, "Alice", "AAAA")
	login(t, b, 2, "Bob", "BBBB")
	tr.reset()

	b.HandleFrame(1, protocol.Encode(&protocol.LevelFinish{
		Points: 100, Lives: 2, LifeBonus: 150, LevelBonus: 200,
		Map: protocol.Map{Type: protocol.MapTypeOriginalLevel, Level: 2, MD5: uuidFor("H1")},
	}))
	for _, msg := range tr.frames(t, 2) {
		if lf, ok := msg.(*protocol.LevelFinish); ok {
			if lf.Cheated == 0 {
				t.Fatal("implausible life bonus not flagged")
			}
			return
		}
	}
	t.Fatal("no finish broadcast observed")
}

func TestOperatorGateDeniesCountdown(t *testing.T) {
	cfg := testConfig()
	cfg.OpMode = true
	b, tr, mod := newTestBroker(t, cfg)
	login(t, b, 1, "Admin", "OPOP")
	login(t, b, 2, "Bob", "BBBB")
	mod.ops["admin"] = protocol.UUIDString(uuidFor("OPOP"))
	tr.reset()

	countdown := protocol.Encode(&protocol.Countdown{Type: protocol.CountdownGo})
	b.HandleFrame(2, countdown)
	msgs := tr.frames(t, 2)
	if len(msgs) != 1 {
		t.Fatalf("expected a lone denial, got %d messages", len(msgs))
	}
	if denied, ok := msgs[0].(*protocol.ActionDenied); !ok || denied.Reason != protocol.DenyNoPermission {
		t.Fatalf("expected no-permission denial, got %+v", msgs[0])
	}

	//1.- The operator passes the same gate.
	tr.reset()
	b.HandleFrame(1, countdown)
	var relayed bool
	for _, msg := range tr.frames(t, 2) {
		if cd, ok := msg.(*protocol.Countdown); ok && cd.Sender == 1 {
			relayed = true
		}
	}
	if !relayed {
		t.Fatal("operator countdown was not relayed")
	}
}

func TestKickCloseCodeCarriesCrashVariant(t *testing.T) {
	cases := []struct {
		name         string
		crash        protocol.CrashType
		wantEmpty    bool
		wantExecutor string
	}{
		{"plain", protocol.CrashNone, false, "Admin"},
		{"crash", protocol.CrashCrash, false, "Admin"},
		{"fatal", protocol.CrashFatalError, true, "Admin"},
		{"self_triggered", protocol.CrashSelfTriggeredFatalError, false, ""},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			b, tr, _ := newTestBroker(t, nil)
			login(t, b, 1, "Admin", "OPOP")
			login(t, b, 2, "Bob", "BBBB")
			tr.reset()

			b.HandleFrame(1, protocol.Encode(&protocol.KickRequest{
				PlayerName: "Bob", Reason: "testing", Crash: uint8(tc.crash),
			}))

			//1.- The close code distinguishes the kick crash variants.
			call, ok := tr.closedWith(2)
			if !ok {
				t.Fatal("victim was not closed")
			}
			if want := closeCode(protocol.EndKicked + int(tc.crash)); call.code != want {
				t.Fatalf("close code %d, want %d", call.code, want)
			}

			//2.- Only an induced fatal error carries the undecodable empty frame.
			tr.mu.Lock()
			var sawEmpty bool
			for _, frame := range tr.sent[2] {
				if len(frame.payload) == 0 && frame.reliable {
					sawEmpty = true
				}
			}
			tr.mu.Unlock()
			if sawEmpty != tc.wantEmpty {
				t.Fatalf("empty frame sent = %v, want %v", sawEmpty, tc.wantEmpty)
			}

			if b.Sessions() != 1 {
				t.Fatalf("victim should be removed, have %d sessions", b.Sessions())
			}
			var notice *protocol.PlayerKicked
			for _, msg := range tr.frames(t, 1) {
				if pk, ok := msg.(*protocol.PlayerKicked); ok {
					notice = pk
				}
			}
			if notice == nil || notice.KickedPlayerName != "Bob" {
				t.Fatalf("bad kicked notice %+v", notice)
			}
			wantCrashed := uint8(0)
			if tc.crash != protocol.CrashNone {
				wantCrashed = 1
			}
			if notice.Crashed != wantCrashed || notice.ExecutorName != tc.wantExecutor {
				t.Fatalf("bad kicked notice %+v", notice)
			}
		})
	}
}

func TestFatalErrorReportRemovesReporter(t *testing.T) {
	b, tr, _ := newTestBroker(t, nil)
	login(t, b, 1, "Alice", "AAAA")
	login(t, b, 2, "Bob", "BBBB")
	tr.reset()

	b.HandleFrame(2, protocol.Encode(&protocol.SimpleAction{Action: protocol.ActionFatalError}))

	//1.- The reporter goes down as a self-triggered crash, not a relay.
	if b.Sessions() != 1 {
		t.Fatalf("reporter should be removed, have %d sessions", b.Sessions())
	}
	call, ok := tr.closedWith(2)
	if !ok || call.code != closeCode(protocol.EndKicked+int(protocol.CrashSelfTriggeredFatalError)) {
		t.Fatalf("bad close %+v ok=%v", call, ok)
	}
	var notice *protocol.PlayerKicked
	for _, msg := range tr.frames(t, 1) {
		if pk, ok := msg.(*protocol.PlayerKicked); ok {
			notice = pk
		}
	}
	if notice == nil || notice.KickedPlayerName != "Bob" || notice.Crashed != 1 {
		t.Fatalf("bad kicked notice %+v", notice)
	}
	if notice.ExecutorName != "" || notice.Reason != "fatal error" {
		t.Fatalf("bad kicked notice %+v", notice)
	}
}

func TestLastDisconnectClearsWorldState(t *testing.T) {
	b, tr, _ := newTestBroker(t, nil)
	login(t, b, 1, "Alice", "AAAA")
	login(t, b, 2, "Bob", "BBBB")

	hash := uuidFor("MAPHASH2")
	b.HandleFrame(1, protocol.Encode(&protocol.MapNames{Maps: map[string]string{string(hash[:]): "Custom"}}))
	b.HandleFrame(1, protocol.Encode(&protocol.LevelFinish{
		Map: protocol.Map{Type: protocol.MapTypeCustom, MD5: hash}, LifeBonus: 200,
	}))

	b.HandleDisconnect(2)
	if b.TickRunning() {
		t.Fatal("tick loop should stop below two sessions")
	}
	b.HandleDisconnect(1)
	if b.Sessions() != 0 {
		t.Fatalf("sessions remain: %d", b.Sessions())
	}

	//1.- A fresh login sees neither map names nor stale rankings.
	tr.reset()
	login(t, b, 3, "Carol", "CCCC")
	msgs := tr.frames(t, 3)
	if len(msgs) == 0 {
		t.Fatal("login handshake missing")
	}
	if _, ok := msgs[0].(*protocol.MapNames); ok {
		t.Fatal("map-name table should have been cleared")
	}
	if rank := b.tracker.Rank(string(hash[:])); rank != 0 {
		t.Fatalf("race state survived the empty server: rank %d", rank)
	}
}

func TestLimboConnectionCannotSpeak(t *testing.T) {
	b, tr, _ := newTestBroker(t, nil)
	b.HandleConnect(1, "10.0.0.1:1000")

	//1.- Any non-login message from limbo force-closes the connection.
	b.HandleFrame(1, protocol.Encode(&protocol.Chat{Content: "hello"}))
	if _, ok := tr.closedWith(1); !ok {
		t.Fatal("limbo connection should be closed after a non-login message")
	}
	if b.Sessions() != 0 {
		t.Fatal("no session may exist for a limbo connection")
	}
}

func TestLegacyLoginDeniedAsOutdated(t *testing.T) {
	b, tr, _ := newTestBroker(t, nil)
	b.HandleConnect(1, "10.0.0.1:1000")
	b.HandleFrame(1, protocol.Encode(&protocol.LoginRequest{}))

	call, ok := tr.closedWith(1)
	if !ok || call.code != closeCode(protocol.EndInvalidVersion) {
		t.Fatalf("legacy login should close as outdated, got %+v ok=%v", call, ok)
	}
}

func TestConsoleCommands(t *testing.T) {
	b, tr, mod := newTestBroker(t, nil)
	login(t, b, 1, "Alice", "AAAA")
	login(t, b, 2, "Bob", "BBBB")
	tr.reset()

	reply, err := b.Execute("list")
	if err != nil || !strings.Contains(reply, "2 player(s) online") {
		t.Fatalf("list: %q %v", reply, err)
	}

	if _, err := b.Execute("say hello everyone"); err != nil {
		t.Fatalf("say: %v", err)
	}
	var serverChat bool
	for _, msg := range tr.frames(t, 2) {
		if chat, ok := msg.(*protocol.Chat); ok && chat.PlayerID == 0 && chat.Content == "hello everyone" {
			serverChat = true
		}
	}
	if !serverChat {
		t.Fatal("console say did not broadcast")
	}

	if _, err := b.Execute("op Bob"); err != nil {
		t.Fatalf("op: %v", err)
	}
	if !mod.IsOp("bob", protocol.UUIDString(uuidFor("BBBB"))) {
		t.Fatal("op grant not persisted")
	}

	if _, err := b.Execute("ban Bob misbehaving"); err != nil {
		t.Fatalf("ban: %v", err)
	}
	if _, banned := mod.BanReason(protocol.UUIDString(uuidFor("BBBB"))); !banned {
		t.Fatal("ban not persisted")
	}
	if b.Sessions() != 1 {
		t.Fatal("banned player should be kicked")
	}

	if _, err := b.Execute("stop"); err != ErrStop {
		t.Fatalf("stop should return ErrStop, got %v", err)
	}
	if _, err := b.Execute("bogus"); err == nil {
		t.Fatal("unknown command should error")
	}
}

func TestBulletinTitleStampedWithAuthor(t *testing.T) {
	b, tr, _ := newTestBroker(t, nil)
	login(t, b, 1, "Alice", "AAAA")
	login(t, b, 2, "Bob", "BBBB")
	tr.reset()

	//1.- A client-supplied title never survives; the author's name does.
	b.HandleFrame(1, protocol.Encode(&protocol.PermanentNotification{Title: "Server", Content: "hello"}))
	var bulletin *protocol.PermanentNotification
	for _, msg := range tr.frames(t, 2) {
		if pn, ok := msg.(*protocol.PermanentNotification); ok {
			bulletin = pn
		}
	}
	if bulletin == nil || bulletin.Title != "Alice" || bulletin.Content != "hello" {
		t.Fatalf("bad bulletin %+v", bulletin)
	}

	//2.- The stored copy handed to new logins carries the stamped title too.
	tr.reset()
	login(t, b, 3, "Carol", "CCCC")
	var stored *protocol.PermanentNotification
	for _, msg := range tr.frames(t, 3) {
		if pn, ok := msg.(*protocol.PermanentNotification); ok {
			stored = pn
		}
	}
	if stored == nil || stored.Title != "Alice" {
		t.Fatalf("bad stored bulletin %+v", stored)
	}
}

func TestUnknownCountdownTypeDropped(t *testing.T) {
	b, tr, _ := newTestBroker(t, nil)
	login(t, b, 1, "Alice", "AAAA")
	login(t, b, 2, "Bob", "BBBB")
	tr.reset()

	b.HandleFrame(1, protocol.Encode(&protocol.Countdown{Type: protocol.CountdownUnknown}))
	if tr.rawCount(1) != 0 || tr.rawCount(2) != 0 {
		t.Fatal("unrecognized countdown types must not be relayed")
	}
}

func TestCountdownFlagsFollowServerConfig(t *testing.T) {
	b, tr, _ := newTestBroker(t, nil)
	login(t, b, 1, "Alice", "AAAA")
	login(t, b, 2, "Bob", "BBBB")
	tr.reset()

	//1.- Client-supplied restart flags are overwritten by server config.
	b.HandleFrame(1, protocol.Encode(&protocol.Countdown{
		Type: protocol.CountdownGo, RestartLevel: 1, ForceRestart: 1,
	}))
	var relayed *protocol.Countdown
	for _, msg := range tr.frames(t, 2) {
		if cd, ok := msg.(*protocol.Countdown); ok {
			relayed = cd
		}
	}
	if relayed == nil {
		t.Fatal("countdown was not relayed")
	}
	if relayed.RestartLevel != 0 || relayed.ForceRestart != 0 {
		t.Fatalf("client smuggled restart flags through: %+v", relayed)
	}
}

func TestForcedRestartArmsNamedMaps(t *testing.T) {
	cfg := testConfig()
	cfg.ForceRestart = true
	b, tr, _ := newTestBroker(t, cfg)
	login(t, b, 1, "Alice", "AAAA")
	login(t, b, 2, "Bob", "BBBB")

	//1.- Name a map that has never been raced.
	named := uuidFor("NAMEDMAP")
	b.HandleFrame(1, protocol.Encode(&protocol.MapNames{Maps: map[string]string{string(named[:]): "Custom"}}))

	//2.- A forced-restart Go on a different map re-arms the named one too.
	b.HandleFrame(1, protocol.Encode(&protocol.Countdown{
		Type: protocol.CountdownGo,
		Map:  protocol.Map{Type: protocol.MapTypeCustom, MD5: uuidFor("OTHERMAP")},
	}))
	tr.reset()

	b.HandleFrame(2, protocol.Encode(&protocol.LevelFinish{
		Map: protocol.Map{Type: protocol.MapTypeCustom, MD5: named}, LifeBonus: 200, TimeElapsed: 500,
	}))
	var finish *protocol.LevelFinish
	for _, msg := range tr.frames(t, 1) {
		if lf, ok := msg.(*protocol.LevelFinish); ok {
			finish = lf
		}
	}
	if finish == nil {
		t.Fatal("no finish broadcast observed")
	}
	//3.- The armed start time clamps the implausible self-reported duration.
	if finish.TimeElapsed >= 1 {
		t.Fatalf("elapsed time %f was not clamped to the armed start", finish.TimeElapsed)
	}
	if finish.Rank != 1 {
		t.Fatalf("named map should have been re-armed at rank zero, got rank %d", finish.Rank)
	}
}

func TestConsoleListConcurrentWithTraffic(t *testing.T) {
	b, _, _ := newTestBroker(t, nil)
	login(t, b, 1, "Alice", "AAAA")
	login(t, b, 2, "Bob", "BBBB")

	//1.- The console must be able to list while the serving path mutates
	// session locations.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			b.HandleFrame(1, protocol.Encode(&protocol.CurrentMap{
				Map:    protocol.Map{Type: protocol.MapTypeOriginalLevel, Level: int32(i % 13)},
				Sector: int32(i),
			}))
		}
	}()
	for i := 0; i < 200; i++ {
		if _, err := b.Execute("list"); err != nil {
			t.Fatalf("list: %v", err)
		}
	}
	<-done
}
