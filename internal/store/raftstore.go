package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
	"github.com/heysubinoy/pyazkv/pkg/kv"
)

// ErrNotLeader is returned when a write reaches a node that cannot apply it.
var ErrNotLeader = errors.New("not the raft leader")

const (
	opSet    = "set"
	opDelete = "delete"
)

// RaftCommand represents a set/delete operation to be applied via Raft.
type RaftCommand struct {
	Op    string   `json:"op"`
	Key   string   `json:"key"`
	Value kv.Value `json:"value,omitempty"` // only for set
}

// applyResult is what the FSM hands back through ApplyFuture.Response.
type applyResult struct {
	Created bool
	Err     error
}

// RaftOptions tunes the single-node Raft instance behind a RaftStore.
type RaftOptions struct {
	NodeID           string
	ApplyTimeout     time.Duration
	HeartbeatTimeout time.Duration
	ElectionTimeout  time.Duration
}

// RaftStore wraps a MemStore and applies changes via Raft consensus.
// Every mutation goes through the Raft log, so writes reach the MemStore
// one at a time in log order. Reads are served from the local MemStore.
type RaftStore struct {
	store        *MemStore
	raft         *raft.Raft
	applyTimeout time.Duration
	logger       hclog.Logger
}

// Compile-time checks.
var (
	_ kv.Store = (*RaftStore)(nil)
	_ raft.FSM = (*fsm)(nil)
)

// NewRaftStore starts a single-node Raft cluster on in-memory log, stable,
// snapshot stores and transport, with mem as its state machine.
func NewRaftStore(mem *MemStore, opts RaftOptions, logger hclog.Logger) (*RaftStore, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if opts.NodeID == "" {
		opts.NodeID = "node-1"
	}
	if opts.ApplyTimeout <= 0 {
		opts.ApplyTimeout = 5 * time.Second
	}

	conf := raft.DefaultConfig()
	conf.LocalID = raft.ServerID(opts.NodeID)
	conf.Logger = logger.Named("raft")
	if opts.HeartbeatTimeout > 0 {
		conf.HeartbeatTimeout = opts.HeartbeatTimeout
		// LeaderLeaseTimeout must not exceed HeartbeatTimeout.
		if conf.LeaderLeaseTimeout > opts.HeartbeatTimeout {
			conf.LeaderLeaseTimeout = opts.HeartbeatTimeout
		}
	}
	if opts.ElectionTimeout > 0 {
		conf.ElectionTimeout = opts.ElectionTimeout
	}

	logs := raft.NewInmemStore()
	snaps := raft.NewInmemSnapshotStore()
	addr, trans := raft.NewInmemTransport(raft.ServerAddress(opts.NodeID))

	r, err := raft.NewRaft(conf, &fsm{store: mem}, logs, logs, snaps, trans)
	if err != nil {
		return nil, fmt.Errorf("start raft: %w", err)
	}

	bootstrap := raft.Configuration{
		Servers: []raft.Server{{ID: conf.LocalID, Address: addr}},
	}
	if err := r.BootstrapCluster(bootstrap).Error(); err != nil && !errors.Is(err, raft.ErrCantBootstrap) {
		r.Shutdown()
		return nil, fmt.Errorf("bootstrap raft: %w", err)
	}

	return &RaftStore{
		store:        mem,
		raft:         r,
		applyTimeout: opts.ApplyTimeout,
		logger:       logger,
	}, nil
}

// GetRaft returns the underlying raft.Raft pointer (for API layer leader checks)
func (rs *RaftStore) GetRaft() *raft.Raft {
	return rs.raft
}

// WaitForLeader blocks until this node has been elected leader or ctx ends.
func (rs *RaftStore) WaitForLeader(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if rs.raft.State() == raft.Leader {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for raft leader: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close shuts the Raft instance down.
func (rs *RaftStore) Close() error {
	rs.logger.Info("shutting down raft", "keys", rs.store.Len())
	return rs.raft.Shutdown().Error()
}

func (rs *RaftStore) apply(cmd RaftCommand) (applyResult, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return applyResult{}, fmt.Errorf("encode raft command: %w", err)
	}

	f := rs.raft.Apply(data, rs.applyTimeout)
	if err := f.Error(); err != nil {
		if errors.Is(err, raft.ErrNotLeader) || errors.Is(err, raft.ErrLeadershipLost) {
			return applyResult{}, ErrNotLeader
		}
		return applyResult{}, fmt.Errorf("apply %s %q: %w", cmd.Op, cmd.Key, err)
	}

	res, ok := f.Response().(applyResult)
	if !ok {
		return applyResult{}, fmt.Errorf("apply %s %q: unexpected response %T", cmd.Op, cmd.Key, f.Response())
	}
	return res, nil
}

// Set submits a set command to Raft.
func (rs *RaftStore) Set(key string, value kv.Value) (bool, error) {
	res, err := rs.apply(RaftCommand{Op: opSet, Key: key, Value: value})
	if err != nil {
		return false, err
	}
	return res.Created, res.Err
}

// Delete submits a delete command to Raft.
func (rs *RaftStore) Delete(key string) error {
	res, err := rs.apply(RaftCommand{Op: opDelete, Key: key})
	if err != nil {
		return err
	}
	return res.Err
}

// Get reads directly from the local store.
func (rs *RaftStore) Get(key string) (kv.Value, bool) {
	return rs.store.Get(key)
}

// All reads directly from the local store.
func (rs *RaftStore) All() map[string]kv.Value {
	return rs.store.All()
}

// Len reads directly from the local store.
func (rs *RaftStore) Len() int {
	return rs.store.Len()
}

// fsm applies committed Raft log entries to a MemStore.
type fsm struct {
	store *MemStore
}

// Apply applies a Raft log entry to the local store.
func (f *fsm) Apply(log *raft.Log) interface{} {
	var cmd RaftCommand
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return applyResult{Err: fmt.Errorf("decode raft command: %w", err)}
	}
	switch cmd.Op {
	case opSet:
		created, err := f.store.Set(cmd.Key, cmd.Value)
		return applyResult{Created: created, Err: err}
	case opDelete:
		return applyResult{Err: f.store.Delete(cmd.Key)}
	default:
		return applyResult{Err: fmt.Errorf("unknown raft op %q", cmd.Op)}
	}
}

// Snapshot captures the full mapping; Persist writes it as one JSON object.
func (f *fsm) Snapshot() (raft.FSMSnapshot, error) {
	return &fsmSnapshot{data: f.store.All()}, nil
}

// Restore replaces the store contents with a snapshot written by Persist.
func (f *fsm) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	data := make(map[string]kv.Value)
	if err := json.NewDecoder(rc).Decode(&data); err != nil {
		return fmt.Errorf("decode raft snapshot: %w", err)
	}
	f.store.Replace(data)
	return nil
}

type fsmSnapshot struct {
	data map[string]kv.Value
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := json.NewEncoder(sink).Encode(s.data); err != nil {
		sink.Cancel()
		return fmt.Errorf("persist raft snapshot: %w", err)
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
