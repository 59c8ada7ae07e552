package eventsink

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edirooss/crdtstore/pkg/kv/memkv"
	"github.com/edirooss/crdtstore/pkg/wire"
)

func TestStampAndCommitAssignsMonotonicIDs(t *testing.T) {
	ctx := context.Background()
	eng := memkv.New(nil)
	sink := New(nil)

	for i := 1; i <= 3; i++ {
		txn, err := eng.NewTxn(ctx)
		require.NoError(t, err)

		ev := &wire.HubEvent{Type: wire.EventTypeMergeMessage}
		id, err := sink.StampAndCommit(ctx, txn, ev)
		require.NoError(t, err)
		require.Equal(t, uint64(i), id)
		require.Equal(t, uint64(i), ev.ID)

		require.NoError(t, txn.Commit(ctx))
	}
}

func TestStampAndCommitNotDurableWithoutCommit(t *testing.T) {
	ctx := context.Background()
	eng := memkv.New(nil)
	sink := New(nil)

	txn, err := eng.NewTxn(ctx)
	require.NoError(t, err)
	ev := &wire.HubEvent{Type: wire.EventTypeMergeMessage}
	_, err = sink.StampAndCommit(ctx, txn, ev)
	require.NoError(t, err)
	require.NoError(t, txn.Rollback(ctx))

	events, err := sink.Since(ctx, eng, 0, 10)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestSinceReturnsEventsAfterID(t *testing.T) {
	ctx := context.Background()
	eng := memkv.New(nil)
	sink := New(nil)

	var ids []uint64
	for i := 0; i < 5; i++ {
		txn, err := eng.NewTxn(ctx)
		require.NoError(t, err)
		id, err := sink.StampAndCommit(ctx, txn, &wire.HubEvent{Type: wire.EventTypeMergeMessage})
		require.NoError(t, err)
		require.NoError(t, txn.Commit(ctx))
		ids = append(ids, id)
	}

	events, err := sink.Since(ctx, eng, ids[1], 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, ids[2], events[0].ID)
	require.Equal(t, ids[4], events[2].ID)

	limited, err := sink.Since(ctx, eng, 0, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	require.Equal(t, ids[0], limited[0].ID)
	require.Equal(t, ids[1], limited[1].ID)
}
