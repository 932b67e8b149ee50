// Package events fans sync engine snapshots out to application
// listeners. Many listeners on the same query share one engine listen;
// late joiners replay the latest snapshot immediately.
package events

import (
	"fmt"
	"log/slog"

	"github.com/syntrixbase/syntrix-go/internal/remote"
	"github.com/syntrixbase/syntrix-go/internal/sync"
	"github.com/syntrixbase/syntrix-go/pkg/model"
)

// SyncEngine is the slice of the engine the manager drives.
type SyncEngine interface {
	Listen(q model.Query) (model.TargetID, error)
	StopListening(q model.Query) error
}

// SnapshotHandler receives query snapshots, or the terminal error that
// ended the listen.
type SnapshotHandler func(snapshot *sync.ViewSnapshot, err error)

// QueryListener is one application subscription to a query.
type QueryListener struct {
	query   model.Query
	handler SnapshotHandler
}

// NewQueryListener creates a listener for q.
func NewQueryListener(q model.Query, handler SnapshotHandler) *QueryListener {
	return &QueryListener{query: q, handler: handler}
}

// Query returns the listened query.
func (l *QueryListener) Query() model.Query { return l.query }

type queryListeners struct {
	query     model.Query
	targetID  model.TargetID
	listeners []*QueryListener
	snapshot  *sync.ViewSnapshot
}

// Manager multiplexes query listeners over the sync engine. Confined to
// the worker queue, like the engine it wraps.
type Manager struct {
	engine      SyncEngine
	queries     map[string]*queryListeners
	onlineState remote.OnlineState
}

var _ sync.Callback = (*Manager)(nil)

// New creates a manager over engine. The caller is responsible for
// installing it as the engine's callback before the first listen.
func New(engine SyncEngine) *Manager {
	return &Manager{
		engine:  engine,
		queries: make(map[string]*queryListeners),
	}
}

// AddQueryListener registers l, starting an engine listen if it is the
// first listener for its query. If a snapshot already exists it is
// replayed to l before this returns.
func (m *Manager) AddQueryListener(l *QueryListener) error {
	id := l.query.CanonicalID()
	info, ok := m.queries[id]
	if !ok {
		info = &queryListeners{query: l.query}
		// Register before Listen: the initial snapshot arrives through
		// OnViewSnapshots during the Listen call.
		m.queries[id] = info
		targetID, err := m.engine.Listen(l.query)
		if err != nil {
			delete(m.queries, id)
			return err
		}
		info.targetID = targetID
	}
	info.listeners = append(info.listeners, l)
	if info.snapshot != nil {
		l.handler(info.snapshot, nil)
	}
	return nil
}

// RemoveQueryListener drops l; the last listener for a query stops the
// engine listen.
func (m *Manager) RemoveQueryListener(l *QueryListener) error {
	id := l.query.CanonicalID()
	info, ok := m.queries[id]
	if !ok {
		return fmt.Errorf("events: no active listen for query %s", id)
	}
	for i, registered := range info.listeners {
		if registered == l {
			info.listeners = append(info.listeners[:i], info.listeners[i+1:]...)
			break
		}
	}
	if len(info.listeners) == 0 {
		delete(m.queries, id)
		return m.engine.StopListening(l.query)
	}
	return nil
}

// OnViewSnapshots implements sync.Callback.
func (m *Manager) OnViewSnapshots(snapshots []*sync.ViewSnapshot) {
	for _, snapshot := range snapshots {
		info, ok := m.queries[snapshot.Query.CanonicalID()]
		if !ok {
			// A snapshot can trail a removed listener; drop it.
			slog.Debug("Dropping snapshot for inactive query", "query", snapshot.Query)
			continue
		}
		info.snapshot = snapshot
		for _, l := range info.listeners {
			l.handler(snapshot, nil)
		}
	}
}

// OnError implements sync.Callback. The engine has already torn the
// query down when this fires.
func (m *Manager) OnError(q model.Query, err error) {
	id := q.CanonicalID()
	info, ok := m.queries[id]
	if !ok {
		return
	}
	delete(m.queries, id)
	for _, l := range info.listeners {
		l.handler(nil, err)
	}
}

// HandleOnlineStateChange implements sync.Callback.
func (m *Manager) HandleOnlineStateChange(state remote.OnlineState) {
	m.onlineState = state
}

// OnlineState returns the last observed stream health.
func (m *Manager) OnlineState() remote.OnlineState { return m.onlineState }
