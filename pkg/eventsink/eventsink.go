// Package eventsink allocates the monotonic event ids the merge engine
// stamps onto committed hub events (spec §4.5, C6). The counter lives in
// the same KV store as everything else, under a reserved key, and is only
// ever bumped inside the caller's transaction — so the id becomes durable
// if and only if that transaction commits.
package eventsink

import (
	"context"
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"

	"github.com/edirooss/crdtstore/pkg/hubstoreerr"
	"github.com/edirooss/crdtstore/pkg/kv"
	"github.com/edirooss/crdtstore/pkg/wire"
)

// counterKey is the reserved key the monotonic event id counter is stored
// under. It deliberately can't collide with a primary key: primary keys are
// exactly keys.PrimaryKeyLength (29) bytes, this is 9.
var counterKey = []byte("~evt:ctr~")

// logPrefix namespaces the event log (spec §6 "Event log: evt_prefix ||
// id_be(8) -> event_bytes").
var logPrefix = []byte("~evt:log:")

// Sink stamps and persists hub events.
type Sink struct {
	log *zap.Logger
}

// New constructs a Sink. A nil logger is replaced with a no-op one.
func New(log *zap.Logger) *Sink {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{log: log.Named("eventsink")}
}

func logKey(id uint64) []byte {
	out := make([]byte, 0, len(logPrefix)+8)
	out = append(out, logPrefix...)
	var idBuf [8]byte
	binary.BigEndian.PutUint64(idBuf[:], id)
	return append(out, idBuf[:]...)
}

// StampAndCommit reads the counter, assigns event.ID = counter+1, and
// writes both the event log entry and the bumped counter into txn (spec
// §4.5: "commit_transaction ... reads the counter, stamps event.id, writes
// the event payload and the bumped counter into txn"). It does not commit
// txn itself — the caller's transaction boundary decides durability.
func (s *Sink) StampAndCommit(ctx context.Context, txn kv.Txn, event *wire.HubEvent) (uint64, error) {
	current, err := s.readCounter(ctx, txn)
	if err != nil {
		return 0, err
	}
	next := current + 1
	event.ID = next

	if err := txn.Put(ctx, logKey(next), wire.EncodeEvent(event)); err != nil {
		return 0, hubstoreerr.DBInternal(err)
	}
	var counterBuf [8]byte
	binary.BigEndian.PutUint64(counterBuf[:], next)
	if err := txn.Put(ctx, counterKey, counterBuf[:]); err != nil {
		return 0, hubstoreerr.DBInternal(err)
	}
	return next, nil
}

func (s *Sink) readCounter(ctx context.Context, txn kv.Txn) (uint64, error) {
	v, ok, err := txn.Get(ctx, counterKey)
	if err != nil {
		return 0, hubstoreerr.DBInternal(err)
	}
	if !ok {
		return 0, nil
	}
	if len(v) != 8 {
		return 0, hubstoreerr.DBInternal(fmt.Errorf("event counter has wrong length: %d", len(v)))
	}
	return binary.BigEndian.Uint64(v), nil
}

// Since returns the events with id > afterID, oldest first, up to limit
// entries. Supplemented readback (SPEC_FULL §D.3): the core's write path
// never needs this, but an operator inspecting what a merge produced does.
func (s *Sink) Since(ctx context.Context, eng kv.Engine, afterID uint64, limit int) ([]*wire.HubEvent, error) {
	startAfter := logKey(afterID)
	entries, err := eng.PrefixScan(ctx, logPrefix, false, startAfter, limit)
	if err != nil {
		return nil, hubstoreerr.DBInternal(err)
	}
	out := make([]*wire.HubEvent, 0, len(entries))
	for _, e := range entries {
		ev, err := wire.DecodeEvent(e.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}
