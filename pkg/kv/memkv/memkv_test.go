package memkv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edirooss/crdtstore/pkg/kv"
)

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	e := New(nil)

	require.NoError(t, e.Put(ctx, []byte("a"), []byte("1")))
	v, ok, err := e.Get(ctx, []byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)

	require.NoError(t, e.Delete(ctx, []byte("a")))
	_, ok, err = e.Get(ctx, []byte("a"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPrefixScanForwardAndReverseWithPaging(t *testing.T) {
	ctx := context.Background()
	e := New(nil)

	keys := []string{"p:1", "p:2", "p:3", "p:4", "q:1"}
	for _, k := range keys {
		require.NoError(t, e.Put(ctx, []byte(k), []byte(k)))
	}

	// forward, full scan
	entries, err := e.PrefixScan(ctx, []byte("p:"), false, nil, 10)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	require.Equal(t, "p:1", string(entries[0].Key))
	require.Equal(t, "p:4", string(entries[3].Key))

	// forward, paged
	page1, err := e.PrefixScan(ctx, []byte("p:"), false, nil, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.Equal(t, "p:1", string(page1[0].Key))
	require.Equal(t, "p:2", string(page1[1].Key))

	page2, err := e.PrefixScan(ctx, []byte("p:"), false, page1[len(page1)-1].Key, 2)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	require.Equal(t, "p:3", string(page2[0].Key))
	require.Equal(t, "p:4", string(page2[1].Key))

	// reverse, full scan
	rev, err := e.PrefixScan(ctx, []byte("p:"), true, nil, 10)
	require.NoError(t, err)
	require.Len(t, rev, 4)
	require.Equal(t, "p:4", string(rev[0].Key))
	require.Equal(t, "p:1", string(rev[3].Key))

	// reverse, paged: resumes strictly before the token in descending order
	revPage1, err := e.PrefixScan(ctx, []byte("p:"), true, nil, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"p:4", "p:3"}, entryKeys(revPage1))

	revPage2, err := e.PrefixScan(ctx, []byte("p:"), true, revPage1[len(revPage1)-1].Key, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"p:2", "p:1"}, entryKeys(revPage2))
}

func entryKeys(entries []kv.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = string(e.Key)
	}
	return out
}

func TestTxnCommitIsAtomicAndRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	e := New(nil)
	require.NoError(t, e.Put(ctx, []byte("k1"), []byte("old")))

	tx, err := e.NewTxn(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Put(ctx, []byte("k1"), []byte("new")))
	require.NoError(t, tx.Put(ctx, []byte("k2"), []byte("v2")))
	require.NoError(t, tx.Delete(ctx, []byte("k1")))

	// Uncommitted writes are not visible on the engine.
	v, ok, err := e.Get(ctx, []byte("k2"))
	require.NoError(t, err)
	require.False(t, ok)
	_ = v

	// Reads within the transaction see its own staged writes.
	_, ok, err = tx.Get(ctx, []byte("k1"))
	require.NoError(t, err)
	require.False(t, ok) // staged delete

	require.NoError(t, tx.Commit(ctx))

	_, ok, err = e.Get(ctx, []byte("k1"))
	require.NoError(t, err)
	require.False(t, ok)

	v2, ok, err := e.Get(ctx, []byte("k2"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v2"), v2)

	// A second, uncommitted transaction's writes never reach the engine.
	tx2, err := e.NewTxn(ctx)
	require.NoError(t, err)
	require.NoError(t, tx2.Put(ctx, []byte("k3"), []byte("v3")))
	require.NoError(t, tx2.Rollback(ctx))
	_, ok, err = e.Get(ctx, []byte("k3"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClearReturnsRemovedCount(t *testing.T) {
	ctx := context.Background()
	e := New(nil)
	require.NoError(t, e.Put(ctx, []byte("a"), []byte("1")))
	require.NoError(t, e.Put(ctx, []byte("b"), []byte("2")))

	n, err := e.Clear(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	entries, err := e.PrefixScan(ctx, []byte(""), false, nil, 10)
	require.NoError(t, err)
	require.Empty(t, entries)
}
