package worker

import (
	"errors"
	"fmt"

	"github.com/tacmap/tacsim/internal/dispatcher"
	"github.com/tacmap/tacsim/pkg/core"
	"github.com/tacmap/tacsim/pkg/streaming"
)

// Commands routed by the dispatcher.
const (
	CmdSessionJoin  = ":SESSION:JOIN:"
	CmdSessionLeave = ":SESSION:LEAVE:"
	CmdWorldBounds  = ":WORLD:BOUNDS:"
	CmdUnitUpsert   = ":UNIT:UPSERT:"
	CmdUnitRemove   = ":UNIT:REMOVE:"
	CmdAIConfig     = ":AI:CONFIG:"
	CmdOrderMove    = ":ORDER:MOVE:"
	CmdHistoryGet   = ":HISTORY:GET:"
)

// ErrMissingSession is returned for events without a session id.
var ErrMissingSession = errors.New("missing session id")

// CommandFor maps an inbound WebSocket message type to its command.
func CommandFor(msgType string) (string, bool) {
	switch msgType {
	case streaming.TypeJoinSession:
		return CmdSessionJoin, true
	case streaming.TypeLeaveSession:
		return CmdSessionLeave, true
	case streaming.TypeSetWorldBounds:
		return CmdWorldBounds, true
	case streaming.TypeObjectUpserted:
		return CmdUnitUpsert, true
	case streaming.TypeObjectDeleted:
		return CmdUnitRemove, true
	case streaming.TypeSetAIConfig:
		return CmdAIConfig, true
	case streaming.TypeIssueOrder:
		return CmdOrderMove, true
	case streaming.TypeGetHistory:
		return CmdHistoryGet, true
	}
	return "", false
}

// RegisterHandlers registers all event handlers with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Session lifecycle - sync (later events depend on the record)
	d.Register(CmdSessionJoin, m.requireSession(m.handleJoin), dispatcher.Logged())
	d.Register(CmdSessionLeave, m.requireSession(m.handleLeave), dispatcher.Logged())

	// World and unit edits - sync, applied in arrival order
	d.Register(CmdWorldBounds, m.requireSession(m.handleWorldBounds), dispatcher.Logged())
	d.Register(CmdUnitUpsert, m.requireSession(m.handleUnitUpsert))
	d.Register(CmdUnitRemove, m.requireSession(m.handleUnitRemove), dispatcher.Logged())
	d.Register(CmdAIConfig, m.requireSession(m.handleAIConfig), dispatcher.Logged())

	// Move orders run A* per unit
	if m.deps.OrderBuffer > 0 {
		d.Register(CmdOrderMove, m.requireSession(m.handleMoveOrder), dispatcher.Buffered(m.deps.OrderBuffer), dispatcher.Blocking(), dispatcher.Logged())
	} else {
		d.Register(CmdOrderMove, m.requireSession(m.handleMoveOrder), dispatcher.Logged())
	}

	d.Register(CmdHistoryGet, m.requireSession(m.handleHistory))
}

func (m *Manager) requireSession(h dispatcher.HandlerFunc) dispatcher.HandlerFunc {
	return func(e dispatcher.Event) (any, error) {
		if e.SessionID == "" {
			return nil, fmt.Errorf("%s: %w", e.Command, ErrMissingSession)
		}
		return h(e)
	}
}

func (m *Manager) handleJoin(e dispatcher.Event) (any, error) {
	ctx, cancel := m.storageContext()
	defer cancel()
	if err := m.deps.Engine.RegisterSession(ctx, e.SessionID); err != nil {
		return nil, fmt.Errorf("failed to register session: %w", err)
	}
	return nil, nil
}

func (m *Manager) handleLeave(e dispatcher.Event) (any, error) {
	ctx, cancel := m.storageContext()
	defer cancel()
	if err := m.deps.Engine.UnregisterSession(ctx, e.SessionID); err != nil {
		return nil, fmt.Errorf("failed to unregister session: %w", err)
	}
	return nil, nil
}

func (m *Manager) handleWorldBounds(e dispatcher.Event) (any, error) {
	payload, err := m.deps.Parser.ParseWorldBounds(e.Payload)
	if err != nil {
		return nil, err
	}
	if err := m.deps.Engine.SetWorldBounds(e.SessionID, payload.Bounds, payload.Obstacles); err != nil {
		return nil, err
	}
	return nil, nil
}

func (m *Manager) handleUnitUpsert(e dispatcher.Event) (any, error) {
	delta, err := m.deps.Parser.ParseUnitDelta(e.Payload)
	if err != nil {
		return nil, err
	}
	if !m.deps.Engine.UpsertUnit(e.SessionID, delta) {
		m.deps.Logger.Debug("unit delta not applied", "sessionId", e.SessionID, "unitId", delta.ID)
	}
	return nil, nil
}

func (m *Manager) handleUnitRemove(e dispatcher.Event) (any, error) {
	id, err := m.deps.Parser.ParseUnitID(e.Payload)
	if err != nil {
		return nil, err
	}
	m.deps.Engine.RemoveUnit(e.SessionID, id)
	return nil, nil
}

func (m *Manager) handleAIConfig(e dispatcher.Event) (any, error) {
	patch, err := m.deps.Parser.ParseConfigPatch(e.Payload)
	if err != nil {
		return nil, err
	}
	m.deps.Engine.SetConfig(e.SessionID, patch)
	return nil, nil
}

func (m *Manager) handleMoveOrder(e dispatcher.Event) (any, error) {
	order, err := m.deps.Parser.ParseMoveOrder(e.Payload)
	if err != nil {
		return nil, err
	}
	moving := m.deps.Engine.IssueMoveOrder(e.SessionID, order)
	if len(moving) < len(order.UnitIDs) {
		m.deps.Logger.Info("move order partially planned",
			"sessionId", e.SessionID,
			"requested", len(order.UnitIDs),
			"moving", len(moving))
	}
	return nil, nil
}

func (m *Manager) handleHistory(e dispatcher.Event) (any, error) {
	history := m.deps.Engine.History(e.SessionID)
	if history == nil {
		history = []core.Snapshot{}
	}
	return streaming.HistoryPayload{Snapshots: history}, nil
}
