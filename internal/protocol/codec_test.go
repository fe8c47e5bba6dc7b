package protocol

import (
	"errors"
	"reflect"
	"testing"
)

func sampleMap() Map {
	m := Map{Type: MapTypeCustom, Level: 3}
	copy(m.MD5[:], []byte("0123456789abcdef"))
	return m
}

func roundTripVariants() []Message {
	sm := sampleMap()
	return []Message{
		&LoginRequestV3{
			Version:  Version{Major: 3, Minor: 4, Patch: 8, Stage: StageBeta, Build: 2},
			Nickname: "Swung",
			UUID:     [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
			Cheated:  1,
		},
		&LoginAcceptedV3{OnlinePlayers: map[uint32]PlayerStatus{
			7:  {Name: "Alice", Cheated: 0, Map: sampleMap(), Sector: 2},
			12: {Name: "Bob", Cheated: 1, Map: Map{Type: MapTypeOriginalLevel, Level: 5}, Sector: 0},
		}},
		&LoginAcceptedV3{OnlinePlayers: map[uint32]PlayerStatus{}},
		&PlayerConnected{ConnectionID: 9, Name: "Carol", Cheated: 0},
		&PlayerDisconnected{ConnectionID: 9},
		&PlayerKicked{KickedPlayerName: "Bob", ExecutorName: "", Reason: "spam", Crashed: 1},
		&BallStateMsg{State: BallState{Type: 2, Position: Vec3{1, 2, 3}, Rotation: Quat{0, 0, 0, 1}}},
		&TimedBallStateMsg{State: TimedBallState{
			BallState: BallState{Type: 1, Position: Vec3{-1.5, 0.25, 9}, Rotation: Quat{0.5, 0.5, 0.5, 0.5}},
			Timestamp: 123456789,
		}},
		&TimestampMsg{Timestamp: 42},
		&OwnedTimedBallStateMsg{
			Balls: []OwnedTimedBallState{
				{State: TimedBallState{BallState: BallState{Type: 0}, Timestamp: 10}, Owner: 3},
			},
			UnchangedBalls: []OwnedTimestamp{{Timestamp: 11, Owner: 4}},
		},
		&OwnedTimedBallStateMsg{},
		&CurrentMap{PlayerID: 3, Type: CurrentMapEnteringMap, Map: sampleMap(), Sector: 4},
		&CurrentSector{PlayerID: 3, Sector: 7},
		&DidNotFinish{PlayerID: 3, Cheated: 1, Map: sampleMap(), Sector: 5},
		&LevelFinish{
			PlayerID: 3, Points: 1000, Lives: 2, LifeBonus: 200, LevelBonus: 300,
			Map: sampleMap(), TimeElapsed: 63.25, StartPoints: 1000, Cheated: 0, Rank: 1,
		},
		&ScoreList{Map: sampleMap(), Entries: []ScoreEntry{
			{PlayerID: 3, Name: "Alice", Rank: 1, Score: 2400, TimeElapsed: 61.5, Cheated: 0},
		}},
		&ScoreList{Map: sampleMap()},
		&Countdown{Type: CountdownGo, Sender: 3, Map: sampleMap(), RestartLevel: 1, ForceRestart: 0},
		&PlayerReady{PlayerID: 3, Count: 2, Ready: 1},
		&RestartRequest{PlayerID: 3, Map: sampleMap()},
		&Chat{PlayerID: 3, Content: "hello"},
		&Chat{PlayerID: 0, Content: ""},
		&PrivateChat{PlayerID: 5, Content: "psst"},
		&PlainText{Content: "server notice"},
		&ImportantNotification{PlayerID: 1, Content: "race at 8"},
		&PermanentNotification{Title: "[Server]", Content: "welcome"},
		&PermanentNotification{Title: "[Server]", Content: ""},
		&PopupBox{Title: "BallanceMMO", Content: "hi"},
		&CheatState{Cheated: 1, Notify: 1},
		&OwnedCheatState{PlayerID: 2, Cheated: 1, Notify: 0},
		&CheatToggle{Cheated: 1, Notify: 1},
		&OwnedCheatToggle{PlayerID: 2, Cheated: 0},
		&KickRequest{PlayerID: 0, PlayerName: "Bob", Reason: "afk", Crash: 0},
		&OpState{Op: 1},
		&ActionDenied{Reason: DenyPlayerMuted, Text: DenyPlayerMuted.Text()},
		&MapNames{Maps: map[string]string{string(sm.MD5[:]): "Sky Lab"}},
		&MapNames{Maps: map[string]string{}},
		&LatencyData{Pings: map[uint32]uint32{3: 41, 7: 120}},
		&SimpleAction{Action: ActionLoginDenied},
		&OwnedSimpleAction{PlayerID: 3, Action: ActionFatalError},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, msg := range roundTripVariants() {
		data := Encode(msg)
		if len(data) == 0 || Opcode(data[0]) != msg.Opcode() {
			t.Fatalf("%v: bad frame prefix", msg.Opcode())
		}
		decoded, err := Decode(data)
		if err != nil {
			t.Fatalf("%v: decode failed: %v", msg.Opcode(), err)
		}
		// Empty maps/slices decode to empty, not nil; normalise via encode.
		if !reflect.DeepEqual(Encode(decoded), data) {
			t.Fatalf("%v: round trip mismatch:\n got %#v\nwant %#v", msg.Opcode(), decoded, msg)
		}
	}
}

func TestDecodeTruncatedAlwaysErrors(t *testing.T) {
	for _, msg := range roundTripVariants() {
		data := Encode(msg)
		//1.- Chop the frame at every possible boundary inside the payload.
		for cut := 1; cut < len(data); cut++ {
			if _, err := Decode(data[:cut]); err == nil {
				// Legacy login requests ignore their payload entirely.
				if op := msg.Opcode(); op == OpLoginRequest || op == OpLoginRequestV2 {
					continue
				}
				t.Fatalf("%v: truncation at %d/%d bytes decoded successfully", msg.Opcode(), cut, len(data))
			}
		}
	}
}

func TestDecodeEmptyFrame(t *testing.T) {
	if _, err := Decode(nil); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestDecodeUnknownOpcode(t *testing.T) {
	if _, err := Decode([]byte{0xfe, 1, 2, 3}); !errors.Is(err, ErrUnknownOpcode) {
		t.Fatalf("expected ErrUnknownOpcode, got %v", err)
	}
}

func TestDecodeHostileLengthPrefix(t *testing.T) {
	//1.- A chat frame declaring a 4 GiB content must fail, not allocate.
	data := Encode(&Chat{PlayerID: 1, Content: "x"})
	data[len(data)-2] = 0xff
	data[len(data)-3] = 0xff
	data[len(data)-4] = 0xff
	data[len(data)-5] = 0xff
	if _, err := Decode(data); err == nil {
		t.Fatal("expected error for oversized length prefix")
	}
}

func TestDecodeHostileElementCount(t *testing.T) {
	data := Encode(&OwnedTimedBallStateMsg{})
	//2.- Overwrite the ball count with an absurd value while keeping the frame short.
	data[1], data[2], data[3], data[4] = 0xff, 0xff, 0xff, 0x7f
	if _, err := Decode(data); !errors.Is(err, ErrOversized) {
		t.Fatalf("expected ErrOversized, got %v", err)
	}
}

func TestActionDeniedCarriesText(t *testing.T) {
	for _, reason := range []DenyReason{DenyNoPermission, DenyInvalidAction, DenyInvalidTarget, DenyTargetNotFound, DenyPlayerMuted} {
		if reason.Text() == "" {
			t.Fatalf("reason %d has no text", reason)
		}
	}
}
