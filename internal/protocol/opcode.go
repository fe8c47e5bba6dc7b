package protocol

import "fmt"

// Opcode tags every wire message with its variant. The set is closed: decoding
// an opcode outside this enumeration yields ErrUnknownOpcode.
type Opcode uint8

const (
	OpNone Opcode = iota
	OpLoginRequest
	OpLoginRequestV2
	OpLoginRequestV3
	OpLoginAcceptedV3
	OpPlayerConnected
	OpPlayerDisconnected
	OpPlayerKicked
	OpBallState
	OpTimedBallState
	OpTimestamp
	OpOwnedTimedBallState
	OpCurrentMap
	OpCurrentSector
	OpDidNotFinish
	OpLevelFinish
	OpScoreList
	OpCountdown
	OpPlayerReady
	OpRestartRequest
	OpChat
	OpPrivateChat
	OpPlainText
	OpImportantNotification
	OpPermanentNotification
	OpPopupBox
	OpCheatState
	OpOwnedCheatState
	OpCheatToggle
	OpOwnedCheatToggle
	OpKickRequest
	OpOpState
	OpActionDenied
	OpMapNames
	OpLatencyData
	OpSimpleAction
	OpOwnedSimpleAction

	opcodeCount
)

var opcodeNames = map[Opcode]string{
	OpNone:                  "None",
	OpLoginRequest:          "LoginRequest",
	OpLoginRequestV2:        "LoginRequestV2",
	OpLoginRequestV3:        "LoginRequestV3",
	OpLoginAcceptedV3:       "LoginAcceptedV3",
	OpPlayerConnected:       "PlayerConnected",
	OpPlayerDisconnected:    "PlayerDisconnected",
	OpPlayerKicked:          "PlayerKicked",
	OpBallState:             "BallState",
	OpTimedBallState:        "TimedBallState",
	OpTimestamp:             "Timestamp",
	OpOwnedTimedBallState:   "OwnedTimedBallState",
	OpCurrentMap:            "CurrentMap",
	OpCurrentSector:         "CurrentSector",
	OpDidNotFinish:          "DidNotFinish",
	OpLevelFinish:           "LevelFinish",
	OpScoreList:             "ScoreList",
	OpCountdown:             "Countdown",
	OpPlayerReady:           "PlayerReady",
	OpRestartRequest:        "RestartRequest",
	OpChat:                  "Chat",
	OpPrivateChat:           "PrivateChat",
	OpPlainText:             "PlainText",
	OpImportantNotification: "ImportantNotification",
	OpPermanentNotification: "PermanentNotification",
	OpPopupBox:              "PopupBox",
	OpCheatState:            "CheatState",
	OpOwnedCheatState:       "OwnedCheatState",
	OpCheatToggle:           "CheatToggle",
	OpOwnedCheatToggle:      "OwnedCheatToggle",
	OpKickRequest:           "KickRequest",
	OpOpState:               "OpState",
	OpActionDenied:          "ActionDenied",
	OpMapNames:              "MapNames",
	OpLatencyData:           "LatencyData",
	OpSimpleAction:          "SimpleAction",
	OpOwnedSimpleAction:     "OwnedSimpleAction",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(%d)", uint8(o))
}
