package wsremote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/syntrixbase/syntrix-go/internal/auth"
	"github.com/syntrixbase/syntrix-go/internal/remote"
	"github.com/syntrixbase/syntrix-go/internal/worker"
	"github.com/syntrixbase/syntrix-go/pkg/model"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	rpcTimeout = 30 * time.Second
)

// LocalSource is the slice of the local store the write pipeline reads.
type LocalSource interface {
	NextMutationBatch(afterBatchID model.BatchID) *model.MutationBatch
}

// Config configures the connection.
type Config struct {
	// Endpoint is the WebSocket URL, e.g. "wss://host/v1/realtime".
	Endpoint string `yaml:"endpoint"`

	// Tenant is sent with every connection.
	Tenant string `yaml:"tenant"`
}

// Store is a remote.Store over one WebSocket connection. Engine-facing
// methods run on the worker queue; incoming frames are read on a
// dedicated goroutine and dispatched back onto the worker.
//
// The store surfaces a broken connection as OFFLINE and leaves
// reconnection policy to the embedding client, except for credential
// changes, which redial with the fresh token.
type Store struct {
	cfg    Config
	creds  auth.CredentialsProvider
	local  LocalSource
	worker *worker.Queue

	callback remote.Callback

	mu              sync.Mutex
	conn            *websocket.Conn
	closed          bool
	targets         map[model.TargetID]model.QueryData
	inflight        map[model.BatchID]*model.MutationBatch
	lastSentBatchID model.BatchID
	pending         map[string]chan *Frame
	online          remote.OnlineState
}

var _ remote.Store = (*Store)(nil)
var _ remote.Datastore = (*Store)(nil)

// New creates a store. SetCallback must be called before Start.
func New(cfg Config, creds auth.CredentialsProvider, local LocalSource, w *worker.Queue) *Store {
	return &Store{
		cfg:             cfg,
		creds:           creds,
		local:           local,
		worker:          w,
		targets:         make(map[model.TargetID]model.QueryData),
		inflight:        make(map[model.BatchID]*model.MutationBatch),
		lastSentBatchID: model.BatchIDUnknown,
		pending:         make(map[string]chan *Frame),
		online:          remote.OnlineStateUnknown,
	}
}

// SetCallback installs the sync engine as the receiver of remote
// signals.
func (s *Store) SetCallback(cb remote.Callback) { s.callback = cb }

// Start dials the endpoint and begins processing frames.
func (s *Store) Start(ctx context.Context) error {
	if s.callback == nil {
		panic("wsremote: Start called before SetCallback")
	}
	return s.connect(ctx)
}

func (s *Store) connect(ctx context.Context) error {
	token, err := s.creds.Token(ctx)
	if err != nil {
		return fmt.Errorf("fetch credentials: %w", err)
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	if s.cfg.Tenant != "" {
		header.Set("X-Syntrix-Tenant", s.cfg.Tenant)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.Endpoint, header)
	if err != nil {
		s.setOnline(remote.OnlineStateOffline)
		return fmt.Errorf("dial %s: %w", s.cfg.Endpoint, err)
	}

	s.mu.Lock()
	s.conn = conn
	// Everything in flight died with the old connection; resend from
	// the head of the queue.
	s.inflight = make(map[model.BatchID]*model.MutationBatch)
	s.lastSentBatchID = model.BatchIDUnknown
	targets := make([]model.QueryData, 0, len(s.targets))
	for _, data := range s.targets {
		targets = append(targets, data)
	}
	s.mu.Unlock()

	s.setOnline(remote.OnlineStateOnline)
	for _, data := range targets {
		s.sendListen(data)
	}
	s.worker.Enqueue(s.FillWritePipeline)

	go s.readLoop(conn)
	return nil
}

// Stop closes the connection for good.
func (s *Store) Stop() {
	s.mu.Lock()
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (s *Store) readLoop(conn *websocket.Conn) {
	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			s.mu.Lock()
			if s.conn == conn {
				s.conn = nil
			}
			closed := s.closed
			s.mu.Unlock()
			s.failPendingRPCs(model.NewStatusError(model.Unavailable, "connection lost"))
			if !closed {
				slog.Warn("Watch stream read failed", "err", err)
				s.setOnline(remote.OnlineStateOffline)
			}
			return
		}
		s.handleFrame(&frame)
	}
}

func (s *Store) handleFrame(frame *Frame) {
	switch frame.Type {
	case TypeEvent:
		var payload EventPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			slog.Warn("Malformed event frame", "err", err)
			return
		}
		event, err := decodeEvent(payload, s.limboTargets())
		if err != nil {
			slog.Warn("Undecodable event frame", "err", err)
			return
		}
		s.worker.Enqueue(func() { s.callback.HandleRemoteEvent(event) })

	case TypeWriteAck:
		var payload WriteAckPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			slog.Warn("Malformed write ack", "err", err)
			return
		}
		batchID := model.BatchID(payload.BatchID)
		s.mu.Lock()
		batch := s.inflight[batchID]
		delete(s.inflight, batchID)
		s.mu.Unlock()
		if batch == nil {
			slog.Warn("Ack for unknown batch", "batch", batchID)
			return
		}
		results := make([]model.MutationResult, len(payload.Versions))
		for i, v := range payload.Versions {
			results[i] = model.MutationResult{Version: model.SnapshotVersion(v)}
		}
		result := &model.MutationBatchResult{
			Batch:         batch,
			CommitVersion: model.SnapshotVersion(payload.CommitVersion),
			Results:       results,
		}
		s.worker.Enqueue(func() {
			s.callback.HandleSuccessfulWrite(result)
			// More batches may be queued behind the acknowledged one.
			s.FillWritePipeline()
		})

	case TypeWriteError:
		var payload WriteErrorPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			slog.Warn("Malformed write error", "err", err)
			return
		}
		batchID := model.BatchID(payload.BatchID)
		s.mu.Lock()
		delete(s.inflight, batchID)
		s.mu.Unlock()
		status := payload.Status
		s.worker.Enqueue(func() { s.callback.HandleRejectedWrite(batchID, status.Err()) })

	case TypeTargetError:
		var payload TargetErrorPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			slog.Warn("Malformed target error", "err", err)
			return
		}
		targetID := model.TargetID(payload.TargetID)
		s.mu.Lock()
		delete(s.targets, targetID)
		s.mu.Unlock()
		status := payload.Status
		s.worker.Enqueue(func() { s.callback.HandleRejectedListen(targetID, status.Err()) })

	case TypeLookupResult, TypeCommitResult:
		s.mu.Lock()
		ch := s.pending[frame.ID]
		delete(s.pending, frame.ID)
		s.mu.Unlock()
		if ch != nil {
			ch <- frame
		}

	default:
		slog.Debug("Ignoring unknown frame type", "type", frame.Type)
	}
}

func (s *Store) limboTargets() map[model.TargetID]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	limbo := make(map[model.TargetID]bool)
	for id, data := range s.targets {
		if data.Purpose == model.PurposeLimboResolution {
			limbo[id] = true
		}
	}
	return limbo
}

func (s *Store) setOnline(state remote.OnlineState) {
	s.mu.Lock()
	changed := s.online != state
	s.online = state
	s.mu.Unlock()
	if changed && s.callback != nil {
		s.worker.Enqueue(func() { s.callback.HandleOnlineStateChange(state) })
	}
}

func (s *Store) sendFrame(frame *Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return model.NewStatusError(model.Unavailable, "not connected")
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(frame)
}

// Listen implements remote.Store.
func (s *Store) Listen(data model.QueryData) {
	s.mu.Lock()
	s.targets[data.TargetID] = data
	connected := s.conn != nil
	s.mu.Unlock()
	if connected {
		s.sendListen(data)
	}
}

func (s *Store) sendListen(data model.QueryData) {
	frame, err := newFrame("", TypeListen, ListenPayload{
		TargetID: int32(data.TargetID),
		Query:    data.Query,
		Purpose:  data.Purpose.String(),
	})
	if err != nil {
		slog.Warn("Encode listen", "err", err)
		return
	}
	if err := s.sendFrame(frame); err != nil {
		slog.Debug("Send listen failed", "target", data.TargetID, "err", err)
	}
}

// StopListening implements remote.Store.
func (s *Store) StopListening(targetID model.TargetID) {
	s.mu.Lock()
	delete(s.targets, targetID)
	s.mu.Unlock()

	frame, err := newFrame("", TypeUnlisten, UnlistenPayload{TargetID: int32(targetID)})
	if err != nil {
		return
	}
	if err := s.sendFrame(frame); err != nil {
		slog.Debug("Send unlisten failed", "target", targetID, "err", err)
	}
}

// FillWritePipeline implements remote.Store. Runs on the worker queue,
// where reading the local store is safe.
func (s *Store) FillWritePipeline() {
	for {
		s.mu.Lock()
		if s.conn == nil {
			s.mu.Unlock()
			return
		}
		last := s.lastSentBatchID
		s.mu.Unlock()

		batch := s.local.NextMutationBatch(last)
		if batch == nil {
			return
		}
		writes, err := mutationsToWire(batch.Mutations)
		if err != nil {
			slog.Warn("Unencodable mutation batch", "batch", batch.ID, "err", err)
			return
		}
		frame, err := newFrame("", TypeWrite, WritePayload{BatchID: int(batch.ID), Writes: writes})
		if err != nil {
			slog.Warn("Encode write", "batch", batch.ID, "err", err)
			return
		}
		if err := s.sendFrame(frame); err != nil {
			slog.Debug("Send write failed", "batch", batch.ID, "err", err)
			return
		}
		s.mu.Lock()
		s.inflight[batch.ID] = batch
		s.lastSentBatchID = batch.ID
		s.mu.Unlock()
	}
}

// CanUseNetwork implements remote.Store.
func (s *Store) CanUseNetwork() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil && !s.closed
}

// CreateTransaction implements remote.Store.
func (s *Store) CreateTransaction() *remote.Transaction {
	return remote.NewTransaction(s)
}

// HandleCredentialChange implements remote.Store: tear the connection
// down and redial with the fresh token.
func (s *Store) HandleCredentialChange() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	closed := s.closed
	s.mu.Unlock()
	if conn == nil || closed {
		// Not connected; the next connect picks up fresh credentials.
		return
	}
	_ = conn.Close()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
		defer cancel()
		if err := s.connect(ctx); err != nil {
			slog.Warn("Reconnect after credential change failed", "err", err)
		}
	}()
}

func (s *Store) failPendingRPCs(err error) {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[string]chan *Frame)
	s.mu.Unlock()
	for id, ch := range pending {
		status := WireStatus{Code: int32(model.StatusCode(err)), Message: err.Error()}
		payload, _ := json.Marshal(CommitResultPayload{Status: status})
		ch <- &Frame{ID: id, Type: TypeCommitResult, Payload: payload}
	}
}

// call sends an RPC frame and waits for its correlated response.
func (s *Store) call(ctx context.Context, frameType string, payload interface{}) (*Frame, error) {
	id := uuid.New().String()
	frame, err := newFrame(id, frameType, payload)
	if err != nil {
		return nil, err
	}

	ch := make(chan *Frame, 1)
	s.mu.Lock()
	s.pending[id] = ch
	s.mu.Unlock()

	if err := s.sendFrame(frame); err != nil {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return nil, err
	}

	select {
	case response := <-ch:
		return response, nil
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Lookup implements remote.Datastore.
func (s *Store) Lookup(ctx context.Context, keys []model.DocumentKey) ([]model.MaybeDocument, error) {
	paths := make([]string, len(keys))
	for i, k := range keys {
		paths[i] = k.Path()
	}
	response, err := s.call(ctx, TypeLookup, LookupPayload{Paths: paths})
	if err != nil {
		return nil, err
	}
	var payload LookupResultPayload
	if err := json.Unmarshal(response.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode lookup result: %w", err)
	}
	if err := payload.Status.Err(); err != nil {
		return nil, err
	}
	docs := make([]model.MaybeDocument, len(payload.Documents))
	for i, wire := range payload.Documents {
		if docs[i], err = wireToDocument(wire); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

// Commit implements remote.Datastore.
func (s *Store) Commit(ctx context.Context, req *remote.CommitRequest) (*remote.CommitResponse, error) {
	writes, err := mutationsToWire(req.Writes)
	if err != nil {
		return nil, err
	}
	preconditions := make(map[string]int64, len(req.Preconditions))
	for key, version := range req.Preconditions {
		preconditions[key.Path()] = int64(version)
	}
	response, err := s.call(ctx, TypeCommit, CommitPayload{Writes: writes, Preconditions: preconditions})
	if err != nil {
		return nil, err
	}
	var payload CommitResultPayload
	if err := json.Unmarshal(response.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode commit result: %w", err)
	}
	if err := payload.Status.Err(); err != nil {
		return nil, err
	}
	results := make([]model.MutationResult, len(payload.Versions))
	for i, v := range payload.Versions {
		results[i] = model.MutationResult{Version: model.SnapshotVersion(v)}
	}
	return &remote.CommitResponse{
		CommitVersion: model.SnapshotVersion(payload.CommitVersion),
		Results:       results,
	}, nil
}
