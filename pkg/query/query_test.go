package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edirooss/crdtstore/pkg/eventsink"
	"github.com/edirooss/crdtstore/pkg/hubstoreerr"
	"github.com/edirooss/crdtstore/pkg/kv/memkv"
	"github.com/edirooss/crdtstore/pkg/message"
	"github.com/edirooss/crdtstore/pkg/store"
	"github.com/edirooss/crdtstore/pkg/storekind"
)

func hashOf(b byte) []byte {
	h := make([]byte, 20)
	h[19] = b
	return h
}

func castAdd(fid uint32, ts uint32, hash []byte) *message.Message {
	return &message.Message{
		Data: message.Data{Type: message.TypeCastAdd, Fid: fid, Timestamp: ts, CastAdd: &message.CastAddBody{Text: "hi"}},
		Hash: hash,
	}
}

func castRemove(fid uint32, ts uint32, hash, target []byte) *message.Message {
	return &message.Message{
		Data: message.Data{Type: message.TypeCastRemove, Fid: fid, Timestamp: ts, CastRemove: &message.CastRemoveBody{TargetHash: target}},
		Hash: hash,
	}
}

func newHarness(t *testing.T) (*store.Store, *Surface) {
	t.Helper()
	s := store.New(nil, memkv.New(nil), eventsink.New(nil), store.Options{}, storekind.NewCastStore())
	return s, New(nil, s)
}

func TestGetAddReturnsCurrentWinner(t *testing.T) {
	ctx := context.Background()
	s, q := newHarness(t)

	h1, h2 := hashOf(1), hashOf(2)
	_, err := s.Merge(ctx, 1, castAdd(1, 100, h1))
	require.NoError(t, err)
	_, err = s.Merge(ctx, 1, castAdd(1, 200, h2))
	require.NoError(t, err)

	got, err := q.GetAdd(ctx, 1, castAdd(1, 0, h2))
	require.NoError(t, err)
	require.Equal(t, h2, got.Hash)
	require.Equal(t, uint32(200), got.Data.Timestamp)
}

func TestGetAddNotFound(t *testing.T) {
	ctx := context.Background()
	_, q := newHarness(t)
	_, err := q.GetAdd(ctx, 1, castAdd(1, 0, hashOf(9)))
	require.Error(t, err)
	he, ok := err.(*hubstoreerr.HubError)
	require.True(t, ok)
	require.Equal(t, hubstoreerr.CodeNotFound, he.Code)
}

func TestGetRemoveRejectsWhenUnsupported(t *testing.T) {
	ctx := context.Background()
	s := store.New(nil, memkv.New(nil), eventsink.New(nil), store.Options{}, storekind.NewUserDataStore())
	q := New(nil, s)

	_, err := q.GetRemove(ctx, 4, &message.Message{Data: message.Data{Fid: 1}})
	require.Error(t, err)
	he, ok := err.(*hubstoreerr.HubError)
	require.True(t, ok)
	require.Equal(t, hubstoreerr.CodeValidationFailure, he.Code)
}

func TestGetAddsByFidAndGetAllMessagesByFid(t *testing.T) {
	ctx := context.Background()
	s, q := newHarness(t)

	h1, h2, h3 := hashOf(1), hashOf(2), hashOf(3)
	_, err := s.Merge(ctx, 1, castAdd(1, 100, h1))
	require.NoError(t, err)
	_, err = s.Merge(ctx, 1, castAdd(1, 200, h2))
	require.NoError(t, err)
	_, err = s.Merge(ctx, 1, castRemove(1, 300, h3, h2))
	require.NoError(t, err)

	adds, err := q.GetAddsByFid(ctx, 1, 1, PageOptions{}, nil)
	require.NoError(t, err)
	require.Len(t, adds.Messages, 1)
	require.Equal(t, h1, adds.Messages[0].Hash)

	removes, err := q.GetRemovesByFid(ctx, 1, 1, PageOptions{}, nil)
	require.NoError(t, err)
	require.Len(t, removes.Messages, 1)
	require.Equal(t, h3, removes.Messages[0].Hash)

	all, err := q.GetAllMessagesByFid(ctx, 1, 1, PageOptions{})
	require.NoError(t, err)
	require.Len(t, all.Messages, 2)
}

func TestGetAddsByFidPaginates(t *testing.T) {
	ctx := context.Background()
	s := store.New(nil, memkv.New(nil), eventsink.New(nil), store.Options{}, storekind.NewCastStore())
	q := New(nil, s)

	for i := 0; i < 5; i++ {
		_, err := s.Merge(ctx, 1, castAdd(1, uint32(100+i), hashOf(byte(i))))
		require.NoError(t, err)
	}

	page1, err := q.GetAddsByFid(ctx, 1, 1, PageOptions{PageSize: 2}, nil)
	require.NoError(t, err)
	require.Len(t, page1.Messages, 2)
	require.NotNil(t, page1.NextPageToken)

	page2, err := q.GetAddsByFid(ctx, 1, 1, PageOptions{PageSize: 2, PageToken: page1.NextPageToken}, nil)
	require.NoError(t, err)
	require.Len(t, page2.Messages, 2)

	page3, err := q.GetAddsByFid(ctx, 1, 1, PageOptions{PageSize: 2, PageToken: page2.NextPageToken}, nil)
	require.NoError(t, err)
	require.Len(t, page3.Messages, 1)
	require.Nil(t, page3.NextPageToken)
}

func TestClearRemovesEverything(t *testing.T) {
	ctx := context.Background()
	s, q := newHarness(t)
	_, err := s.Merge(ctx, 1, castAdd(1, 100, hashOf(1)))
	require.NoError(t, err)

	n, err := q.Clear(ctx)
	require.NoError(t, err)
	require.Positive(t, n)

	_, err = q.GetAdd(ctx, 1, castAdd(1, 0, hashOf(1)))
	require.Error(t, err)
}
