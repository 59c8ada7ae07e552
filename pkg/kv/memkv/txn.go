package memkv

import (
	"context"
	"sync"

	"github.com/edirooss/crdtstore/pkg/hubstoreerr"
	"github.com/edirooss/crdtstore/pkg/kv"
)

// txn stages writes in memory and applies them to the engine as a single
// critical section on Commit, matching the "read-committed, not
// repeatable-read" contract documented on kv.Engine.
type txn struct {
	engine *Engine

	mu      sync.Mutex
	puts    map[string][]byte
	deletes map[string]struct{}
	done    bool
}

var _ kv.Txn = (*txn)(nil)

func newTxn(e *Engine) *txn {
	return &txn{
		engine:  e,
		puts:    make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

func (t *txn) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	t.mu.Lock()
	if _, deleted := t.deletes[string(key)]; deleted {
		t.mu.Unlock()
		return nil, false, nil
	}
	if v, staged := t.puts[string(key)]; staged {
		t.mu.Unlock()
		out := make([]byte, len(v))
		copy(out, v)
		return out, true, nil
	}
	t.mu.Unlock()
	return t.engine.Get(ctx, key)
}

func (t *txn) Put(_ context.Context, key, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return hubstoreerr.BadRequestInternal("write to a finished transaction")
	}
	delete(t.deletes, string(key))
	t.puts[string(key)] = cloneBytes(value)
	return nil
}

func (t *txn) Delete(_ context.Context, key []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return hubstoreerr.BadRequestInternal("write to a finished transaction")
	}
	delete(t.puts, string(key))
	t.deletes[string(key)] = struct{}{}
	return nil
}

func (t *txn) Commit(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil
	}

	t.engine.mu.Lock()
	for k := range t.deletes {
		t.engine.tree.Delete(kvItem{key: []byte(k)})
	}
	for k, v := range t.puts {
		t.engine.tree.ReplaceOrInsert(kvItem{key: []byte(k), value: v})
	}
	t.engine.mu.Unlock()

	t.done = true
	return nil
}

func (t *txn) Rollback(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.puts = nil
	t.deletes = nil
	t.done = true
	return nil
}

func (e *Engine) NewTxn(_ context.Context) (kv.Txn, error) {
	return newTxn(e), nil
}
