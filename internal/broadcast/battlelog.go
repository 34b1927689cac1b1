package broadcast

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tacmap/tacsim/pkg/core"
	"github.com/tacmap/tacsim/pkg/streaming"
)

// BattleLog publishes human-readable combat events. Entries are never stored.
type BattleLog struct {
	pub    Publisher
	logger *slog.Logger
	now    func() time.Time
}

// NewBattleLog creates a battle log writing to pub.
func NewBattleLog(pub Publisher, logger *slog.Logger) *BattleLog {
	return &BattleLog{pub: pub, logger: logger, now: time.Now}
}

// Emit stamps the entry with an id and timestamp and publishes it.
func (b *BattleLog) Emit(sessionID string, entry core.BattleLogEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = b.now().UTC()
	}
	b.pub.Publish(sessionID, streaming.TypeBattleLog, entry)
	b.logger.Info("battle log",
		"sessionId", sessionID,
		"type", entry.Kind,
		"unitId", entry.UnitID,
		"message", entry.Message)
}
