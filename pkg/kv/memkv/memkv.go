// Package memkv is the reference kv.Engine used by this repo's tests and by
// cmd/crdtstore-admin in single-process mode. It keeps the ordered key space
// in a google/btree.BTree guarded by a single RWMutex, the same two-tier
// shape the teacher's internal/repo/store/store.go uses for Redis-backed
// state (a write path that serializes mutation, a read path that only takes
// a read lock).
package memkv

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/btree"
	"go.uber.org/zap"

	"github.com/edirooss/crdtstore/pkg/kv"
)

const btreeDegree = 32

// kvItem is the btree.Item stored in the tree: an ordered-by-key byte pair.
type kvItem struct {
	key   []byte
	value []byte
}

func (a kvItem) Less(than btree.Item) bool {
	return bytes.Compare(a.key, than.(kvItem).key) < 0
}

// Engine is an in-memory kv.Engine.
type Engine struct {
	log *zap.Logger

	mu   sync.RWMutex
	tree *btree.BTree
}

// New constructs an empty Engine.
func New(log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		log:  log.Named("memkv"),
		tree: btree.New(btreeDegree),
	}
}

var _ kv.Engine = (*Engine)(nil)

func (e *Engine) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	item := e.tree.Get(kvItem{key: key})
	if item == nil {
		return nil, false, nil
	}
	v := item.(kvItem).value
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (e *Engine) Put(_ context.Context, key, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tree.ReplaceOrInsert(kvItem{key: cloneBytes(key), value: cloneBytes(value)})
	return nil
}

func (e *Engine) Delete(_ context.Context, key []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tree.Delete(kvItem{key: key})
	return nil
}

func (e *Engine) Clear(_ context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.tree.Len()
	e.tree = btree.New(btreeDegree)
	e.log.Info("cleared engine", zap.Int("keys_removed", n))
	return n, nil
}

// exclusiveLowerBound returns the smallest key that is strictly greater than
// key under lexicographic byte ordering: appending a zero byte always
// produces the immediate successor, for any key, because every byte
// compares >= 0x00.
func exclusiveLowerBound(key []byte) []byte {
	out := make([]byte, len(key)+1)
	copy(out, key)
	return out
}

// prefixUpperBoundPivot returns a key guaranteed to sort after every key
// carrying the given prefix, for use as a DescendLessOrEqual pivot. Every
// key format this repo constructs is well under this padding width.
func prefixUpperBoundPivot(prefix []byte) []byte {
	const pad = 64
	out := make([]byte, len(prefix)+pad)
	copy(out, prefix)
	for i := len(prefix); i < len(out); i++ {
		out[i] = 0xFF
	}
	return out
}

func (e *Engine) PrefixScan(_ context.Context, prefix []byte, reverse bool, startAfter []byte, limit int) ([]kv.Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []kv.Entry
	if !reverse {
		start := prefix
		if startAfter != nil {
			start = exclusiveLowerBound(startAfter)
		}
		e.tree.AscendGreaterOrEqual(kvItem{key: start}, func(i btree.Item) bool {
			it := i.(kvItem)
			if !bytes.HasPrefix(it.key, prefix) {
				return false
			}
			out = append(out, cloneEntry(it))
			return len(out) < limit
		})
		return out, nil
	}

	pivot := prefixUpperBoundPivot(prefix)
	e.tree.DescendLessOrEqual(kvItem{key: pivot}, func(i btree.Item) bool {
		it := i.(kvItem)
		if !bytes.HasPrefix(it.key, prefix) {
			return false
		}
		if startAfter != nil && bytes.Compare(it.key, startAfter) >= 0 {
			return true // skip, resume strictly before startAfter
		}
		out = append(out, cloneEntry(it))
		return len(out) < limit
	})
	return out, nil
}

func cloneEntry(it kvItem) kv.Entry {
	k := make([]byte, len(it.key))
	copy(k, it.key)
	v := make([]byte, len(it.value))
	copy(v, it.value)
	return kv.Entry{Key: k, Value: v}
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
