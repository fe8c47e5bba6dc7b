// Package race tracks per-map countdown and ranking state: who goes next,
// which rank the next finisher earns, and how long the race has been running.
package race

import (
	"sync"
	"time"

	"ballancemmo/relay/internal/protocol"
)

const (
	// expectedLifeBonus is the scoring constant a legitimate client reports.
	expectedLifeBonus = 200
	// levelBonusPerLevel is the per-level completion bonus.
	levelBonusPerLevel = 100
	// elapsedTolerance bounds how far a self-reported race time may deviate
	// from the server-observed duration before it is overwritten.
	elapsedTolerance = 30 * time.Second
)

// mapRace holds one map's counters. Created lazily on the first countdown Go
// or finish for that map.
type mapRace struct {
	rank      int32
	startTime time.Time
	finishes  []protocol.ScoreEntry
}

// TrackerOption configures optional Tracker behaviour at construction time.
type TrackerOption func(*Tracker)

// WithClock overrides the wall-clock time source; primarily used in tests.
func WithClock(clock func() time.Time) TrackerOption {
	return func(t *Tracker) {
		if clock != nil {
			t.now = clock
		}
	}
}

// Tracker owns every map's race state, keyed by the raw hash bytes.
type Tracker struct {
	mu   sync.Mutex
	now  func() time.Time
	maps map[string]*mapRace
}

// NewTracker constructs an empty race tracker.
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		now:  time.Now,
		maps: make(map[string]*mapRace),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Arm resets the target map to rank zero with a fresh start time.
func (t *Tracker) Arm(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maps[key] = &mapRace{startTime: t.now()}
}

// ArmAll clears every map's race state and re-arms the supplied known maps at
// rank zero. Used by the forced-restart countdown variant.
func (t *Tracker) ArmAll(keys []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	start := t.now()
	t.maps = make(map[string]*mapRace, len(keys))
	for _, key := range keys {
		t.maps[key] = &mapRace{startTime: start}
	}
}

// Reset drops all race state, as happens when the last player leaves and the
// world rankings start fresh.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maps = make(map[string]*mapRace)
}

// Finish consumes the next rank for the map, creating its race state lazily
// when no countdown armed it first.
func (t *Tracker) Finish(key string) int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	state := t.ensureLocked(key)
	state.rank++
	return state.rank
}

// Rank reports the map's current rank counter without consuming a rank.
func (t *Tracker) Rank(key string) int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if state, ok := t.maps[key]; ok {
		return state.rank
	}
	return 0
}

// RecordFinish appends a finish row to the map's score log.
func (t *Tracker) RecordFinish(key string, entry protocol.ScoreEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state := t.ensureLocked(key)
	state.finishes = append(state.finishes, entry)
}

// Scores returns a copy of the map's finish log in rank order.
func (t *Tracker) Scores(key string) []protocol.ScoreEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.maps[key]
	if !ok || len(state.finishes) == 0 {
		return nil
	}
	return append([]protocol.ScoreEntry(nil), state.finishes...)
}

// ClampElapsed sanity-bounds a self-reported race duration. When the map has
// a recorded start time and the report deviates implausibly from the
// server-observed duration, the server measurement wins.
func (t *Tracker) ClampElapsed(key string, reported float32) float32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.maps[key]
	if !ok || state.startTime.IsZero() {
		return reported
	}
	observed := float32(t.now().Sub(state.startTime).Seconds())
	diff := reported - observed
	if diff < 0 {
		diff = -diff
	}
	if diff > float32(elapsedTolerance.Seconds()) {
		return observed
	}
	return reported
}

func (t *Tracker) ensureLocked(key string) *mapRace {
	state, ok := t.maps[key]
	if !ok {
		state = &mapRace{}
		t.maps[key] = state
	}
	return state
}

// SuspiciousFinish reports whether the submitted score composition is
// inconsistent with the map's known scoring constants. This is a plausibility
// check only; it flags the broadcast as cheated and nothing more.
func SuspiciousFinish(m *protocol.LevelFinish) bool {
	return m.Map.Level*levelBonusPerLevel != m.LevelBonus || m.LifeBonus != expectedLifeBonus
}
