// Package store is the Merge Engine (spec §4.4, C5): it owns the fid-striped
// lock pool, assembles the single transaction a merge writes through, and
// drives the Conflict Resolver and Event Sink against it. Everything it
// talks to — the KV engine, a StoreKind, the event sink — is injected.
package store

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/edirooss/crdtstore/pkg/eventsink"
	"github.com/edirooss/crdtstore/pkg/hubstoreerr"
	"github.com/edirooss/crdtstore/pkg/kv"
	"github.com/edirooss/crdtstore/pkg/storekind"
)

// Options configures a Store. Reuse a single Store instance per process —
// the fid lock pool is the thing that makes merges for the same fid
// serialize, and a second instance wouldn't share it.
type Options struct {
	// FidLockCount is the size of the striped mutex pool merges acquire by
	// fid mod FidLockCount (spec §4.4 step 2). Default 4.
	FidLockCount int
}

func (o *Options) setDefaults() {
	if o.FidLockCount <= 0 {
		o.FidLockCount = 4
	}
}

// Store is a last-writer-wins CRDT message store over a kv.Engine.
type Store struct {
	log  *zap.Logger
	eng  kv.Engine
	sink *eventsink.Sink

	kinds map[byte]storekind.Kind

	opts     Options
	fidLocks []sync.Mutex
}

// New constructs a Store. kinds must have distinct postfixes; New panics on
// a collision since that can only be a wiring bug, never a runtime
// condition.
func New(log *zap.Logger, eng kv.Engine, sink *eventsink.Sink, opts Options, kinds ...storekind.Kind) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	opts.setDefaults()

	kindsByPostfix := make(map[byte]storekind.Kind, len(kinds))
	for _, k := range kinds {
		if _, exists := kindsByPostfix[k.Postfix()]; exists {
			panic("store: duplicate store kind postfix")
		}
		kindsByPostfix[k.Postfix()] = k
	}

	return &Store{
		log:      log.Named("store"),
		eng:      eng,
		sink:     sink,
		kinds:    kindsByPostfix,
		opts:     opts,
		fidLocks: make([]sync.Mutex, opts.FidLockCount),
	}
}

// Kind looks up a registered store kind by postfix.
func (s *Store) Kind(postfix byte) (storekind.Kind, bool) {
	k, ok := s.kinds[postfix]
	return k, ok
}

// Engine returns the underlying KV engine, for query-surface callers.
func (s *Store) Engine() kv.Engine { return s.eng }

// Clear removes every key in the store (spec §6 "clear() -> count",
// restored as an administrative operation — SPEC_FULL §D.2). It is never
// called from Merge or the query surface.
func (s *Store) Clear(ctx context.Context) (int, error) {
	n, err := s.eng.Clear(ctx)
	if err != nil {
		return 0, hubstoreerr.DBInternal(err)
	}
	return n, nil
}

func (s *Store) lockFor(fid uint32) *sync.Mutex {
	return &s.fidLocks[int(fid)%len(s.fidLocks)]
}

var errUnregisteredKind = hubstoreerr.BadRequestInternal("store kind not registered")
