package main

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ballancemmo/relay/internal/config"
	"ballancemmo/relay/internal/lifecycle"
	"ballancemmo/relay/internal/logging"
	"ballancemmo/relay/internal/moderation"
	"ballancemmo/relay/internal/protocol"
	"ballancemmo/relay/internal/race"
	"ballancemmo/relay/internal/session"
	"ballancemmo/relay/internal/tick"
	"ballancemmo/relay/internal/transport"
)

// Transport is the connection-oriented byte carrier the broker serves on.
// The production implementation lives in internal/transport; tests substitute
// an in-memory fake.
type Transport interface {
	Send(handle uint32, payload []byte, reliable bool) error
	Close(handle uint32, code int, reason string)
	RTT(handle uint32) time.Duration
}

// Moderation is the persistent list set consulted and mutated per action.
type Moderation interface {
	BanReason(uuid string) (string, bool)
	SetBan(uuid, reason string) error
	RemoveBan(uuid string) error
	IsMuted(uuid string) bool
	SetMute(uuid string, muted bool) (bool, error)
	IsOp(name, uuid string) bool
	SetOp(name, uuid string) error
	RemoveOp(name string) (bool, error)
	RecordLogin(uuid, name, addr string, at time.Time) error
}

// FlightRecorder taps the decode step; nil disables recording.
type FlightRecorder interface {
	Record(timestamp int64, frame []byte) error
	Close() error
}

// connState tracks one connection through the lifecycle machine plus the
// bookkeeping the broker needs before a session exists.
type connState struct {
	state        lifecycle.State
	addr         string
	decodeFaults int
}

// Broker is the relay's serving core: it consumes transport events on a
// single goroutine, owns the session table and race state, and drives the
// tick and resync loops.
type Broker struct {
	cfg *config.Config
	log *logging.Logger
	tr  Transport
	mod Moderation
	rec FlightRecorder

	table     *session.Table
	tracker   *race.Tracker
	gate      *moderation.Gate
	validator *lifecycle.Validator

	loop   *tick.Loop
	resync *tick.Loop

	mu       sync.Mutex
	conns    map[uint32]*connState
	mapNames map[string]string
	bulletin protocol.PermanentNotification

	now       func() time.Time
	startTime time.Time
}

// BrokerOption configures optional Broker behaviour.
type BrokerOption func(*Broker)

// WithClock overrides the wall-clock source; primarily used in tests.
func WithClock(clock func() time.Time) BrokerOption {
	return func(b *Broker) {
		if clock != nil {
			b.now = clock
		}
	}
}

// NewBroker wires the serving core together. The recorder may be nil.
func NewBroker(cfg *config.Config, tr Transport, mod Moderation, rec FlightRecorder, logger *logging.Logger, opts ...BrokerOption) *Broker {
	if logger == nil {
		logger = logging.L()
	}
	b := &Broker{
		cfg:      cfg,
		log:      logger,
		tr:       tr,
		mod:      mod,
		rec:      rec,
		table:    session.NewTable(),
		conns:    make(map[uint32]*connState),
		mapNames: make(map[string]string),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	b.startTime = b.now()
	b.tracker = race.NewTracker(race.WithClock(b.now))
	b.gate = &moderation.Gate{
		OpMode:   cfg.OpMode,
		Lists:    mod,
		OpOnline: b.opOnline,
	}
	b.validator = &lifecycle.Validator{
		MinNameLength:  cfg.MinNameLength,
		MaxNameLength:  cfg.MaxNameLength,
		MinimumVersion: protocol.MinimumClientVersion,
		BanReason:      mod.BanReason,
		NameTaken:      b.table.NameTaken,
	}
	b.loop = tick.NewLoop(cfg.TickInterval, b.tick)
	b.resync = tick.NewLoop(cfg.ResyncInterval, b.resyncTick)
	return b
}

// Serve is the single message-handling goroutine: it consumes transport
// events until the channel closes.
func (b *Broker) Serve(events <-chan transport.Event) {
	for event := range events {
		switch event.Type {
		case transport.EventConnected:
			b.HandleConnect(event.Handle, event.Addr)
		case transport.EventMessage:
			b.HandleFrame(event.Handle, event.Payload)
		case transport.EventClosed:
			b.HandleDisconnect(event.Handle)
		}
	}
}

// opOnline reports whether any identified session holds operator privilege.
func (b *Broker) opOnline() bool {
	online := false
	b.table.ForEach(func(s *session.Session) {
		if online {
			return
		}
		if b.mod.IsOp(s.Name, protocol.UUIDString(s.UUID)) {
			online = true
		}
	})
	return online
}

// send encodes and unicasts one message.
func (b *Broker) send(handle uint32, msg protocol.Message, reliable bool) {
	if err := b.tr.Send(handle, protocol.Encode(msg), reliable); err != nil {
		b.log.Debug("send failed", logging.Uint32("handle", handle), logging.Error(err))
	}
}

// broadcast fans one message out to every identified session.
func (b *Broker) broadcast(msg protocol.Message, reliable bool) {
	b.broadcastExcept(0, msg, reliable)
}

// broadcastExcept fans out to everyone but the named handle (0 excludes none).
func (b *Broker) broadcastExcept(except uint32, msg protocol.Message, reliable bool) {
	payload := protocol.Encode(msg)
	for _, handle := range b.table.Handles() {
		if handle == except {
			continue
		}
		if err := b.tr.Send(handle, payload, reliable); err != nil {
			b.log.Debug("broadcast send failed", logging.Uint32("handle", handle), logging.Error(err))
		}
	}
}

// deny sends a typed denial reply to the actor.
func (b *Broker) deny(handle uint32, reason protocol.DenyReason) {
	b.send(handle, &protocol.ActionDenied{Reason: reason, Text: reason.Text()}, true)
}

// tick collects every dirty state into one batched broadcast. Quiet ticks
// send nothing.
func (b *Broker) tick() {
	balls, unchanged := b.table.ConsumeDirty()
	if len(balls) == 0 && len(unchanged) == 0 {
		return
	}
	b.broadcast(&protocol.OwnedTimedBallStateMsg{Balls: balls, UnchangedBalls: unchanged}, false)
}

// resyncTick samples transport round-trip times and broadcasts the latency
// table on the slow cadence.
func (b *Broker) resyncTick() {
	for _, handle := range b.table.Handles() {
		b.table.SetPing(handle, uint32(b.tr.RTT(handle).Milliseconds()))
	}
	pings := b.table.Pings()
	if len(pings) == 0 {
		return
	}
	b.broadcast(&protocol.LatencyData{Pings: pings}, false)
}

// namedMapKeys returns every hash in the map-name table plus the target key,
// the set a forced restart re-arms.
func (b *Broker) namedMapKeys(key string) []string {
	b.mu.Lock()
	keys := make([]string, 0, len(b.mapNames)+1)
	for hash := range b.mapNames {
		keys = append(keys, hash)
	}
	b.mu.Unlock()
	for _, k := range keys {
		if k == key {
			return keys
		}
	}
	return append(keys, key)
}

// timestampNow is the logical message clock: microseconds since process start.
func (b *Broker) timestampNow() int64 {
	return b.now().Sub(b.startTime).Microseconds()
}

// record taps one successfully decoded inbound frame.
func (b *Broker) record(frame []byte) {
	if b.rec == nil {
		return
	}
	if err := b.rec.Record(b.timestampNow(), frame); err != nil {
		b.log.Warn("flight record failed", logging.Error(err))
	}
}

// Shutdown closes every session with a reason and drains the recorder.
func (b *Broker) Shutdown() {
	//1.- Stop accepting new ticks first so no broadcast races the closes.
	b.loop.Stop()
	b.resync.Stop()
	for _, handle := range b.table.Handles() {
		b.tr.Close(handle, websocket.CloseGoingAway, "server shutting down")
	}
	if b.rec != nil {
		if err := b.rec.Close(); err != nil {
			b.log.Warn("recorder close failed", logging.Error(err))
		}
	}
	b.log.Info("broker stopped")
}

// TickRunning reports whether the broadcast loop is active.
func (b *Broker) TickRunning() bool { return b.loop.Running() }

// Sessions exposes the session count.
func (b *Broker) Sessions() int { return b.table.Len() }
