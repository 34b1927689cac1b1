package streaming

import (
	"encoding/json"

	"github.com/tacmap/tacsim/pkg/core"
)

// Outbound message types, server to viewers.
const (
	TypeObjectUpdated   = "objectUpdated"
	TypeObjectDestroyed = "objectDestroyed"
	TypeAIConfigUpdate  = "aiConfigUpdate"
	TypeAIStatusUpdate  = "aiStatusUpdate"
	TypeBattleLog       = "battleLog"
	TypeHistoryData     = "historyData"
	TypeError           = "error"
	TypeAck             = "ack"
)

// Inbound message types, clients to server.
const (
	TypeJoinSession    = "joinSession"
	TypeLeaveSession   = "leaveSession"
	TypeSetWorldBounds = "setWorldBounds"
	TypeObjectUpserted = "objectUpserted"
	TypeObjectDeleted  = "objectDeleted"
	TypeSetAIConfig    = "setAIConfig"
	TypeIssueOrder     = "issueOrder"
	TypeGetHistory     = "getHistory"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// ErrorPayload reports a rejected inbound message.
type ErrorPayload struct {
	For     string `json:"for"`
	Message string `json:"message"`
}

// AIStatusPayload is the short status label echoed after a config change.
type AIStatusPayload struct {
	Status string `json:"status"`
}

// WorldBoundsPayload carries the map calibration bounds and blocking drawings.
type WorldBoundsPayload struct {
	Bounds    core.Bounds     `json:"bounds"`
	Obstacles []core.Obstacle `json:"obstacles"`
}

// ObjectDeletedPayload names a unit removed by an editor.
type ObjectDeletedPayload struct {
	ID string `json:"id"`
}

// HistoryPayload answers a history request.
type HistoryPayload struct {
	Snapshots []core.Snapshot `json:"snapshots"`
}
