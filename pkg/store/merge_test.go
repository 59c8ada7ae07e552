package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edirooss/crdtstore/pkg/eventsink"
	"github.com/edirooss/crdtstore/pkg/hubstoreerr"
	"github.com/edirooss/crdtstore/pkg/keys"
	"github.com/edirooss/crdtstore/pkg/kv/memkv"
	"github.com/edirooss/crdtstore/pkg/message"
	"github.com/edirooss/crdtstore/pkg/storekind"
	"github.com/edirooss/crdtstore/pkg/wire"
)

func hashOf(b byte) []byte {
	h := make([]byte, 20)
	h[19] = b
	return h
}

// reactionAddMsg and reactionRemoveMsg share the same logical key (fid,
// reaction type, target URL) across calls regardless of timestamp/hash —
// unlike a cast, whose identity is its own hash. This is what makes them
// suited to exercising the generic "same logical key, competing ts_hash"
// scenarios (spec §8 S1-S4).
func reactionAddMsg(fid uint32, ts uint32, hash []byte, target string) *message.Message {
	return &message.Message{
		Data: message.Data{Type: message.TypeReactionAdd, Fid: fid, Timestamp: ts, Reaction: &message.ReactionBody{
			ReactionType: message.ReactionTypeLike, TargetURL: target,
		}},
		Hash: hash,
	}
}

func reactionRemoveMsg(fid uint32, ts uint32, hash []byte, target string) *message.Message {
	return &message.Message{
		Data: message.Data{Type: message.TypeReactionRemove, Fid: fid, Timestamp: ts, Reaction: &message.ReactionBody{
			ReactionType: message.ReactionTypeLike, TargetURL: target,
		}},
		Hash: hash,
	}
}

func castAddMsg(fid uint32, ts uint32, hash []byte) *message.Message {
	return &message.Message{
		Data: message.Data{Type: message.TypeCastAdd, Fid: fid, Timestamp: ts, CastAdd: &message.CastAddBody{Text: "hi"}},
		Hash: hash,
	}
}

func newTestStore(t *testing.T, kinds ...storekind.Kind) *Store {
	t.Helper()
	eng := memkv.New(nil)
	sink := eventsink.New(nil)
	return New(nil, eng, sink, Options{}, kinds...)
}

func TestMergeS1Duplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storekind.NewReactionStore())

	h1 := hashOf(1)
	_, err := s.Merge(ctx, 2, reactionAddMsg(1, 100, h1, "https://example.com/a"))
	require.NoError(t, err)

	_, err = s.Merge(ctx, 2, reactionAddMsg(1, 100, h1, "https://example.com/a"))
	require.Error(t, err)
	he, ok := err.(*hubstoreerr.HubError)
	require.True(t, ok)
	require.Equal(t, hubstoreerr.CodeDuplicate, he.Code)
}

func TestMergeS2LaterAddWins(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storekind.NewReactionStore())

	h1, h2 := hashOf(1), hashOf(2)
	target := "https://example.com/a"
	_, err := s.Merge(ctx, 2, reactionAddMsg(1, 100, h1, target))
	require.NoError(t, err)

	event, err := s.Merge(ctx, 2, reactionAddMsg(1, 200, h2, target))
	require.NoError(t, err)
	require.Len(t, event.Body.DeletedMessages, 1)
	require.Equal(t, h1, event.Body.DeletedMessages[0].Hash)

	kind := storekind.NewReactionStore()
	addKey, err := kind.MakeAddKey(reactionAddMsg(1, 200, h2, target))
	require.NoError(t, err)
	v, ok, err := s.Engine().Get(ctx, addKey)
	require.NoError(t, err)
	require.True(t, ok)
	ts, err := keys.TSHashFromBytes(v)
	require.NoError(t, err)
	require.Equal(t, uint32(200), ts.Timestamp())
	require.Equal(t, h2, ts.Hash())

	oldTSHash, err := keys.MakeTSHash(100, h1)
	require.NoError(t, err)
	oldPrimary := keys.MakeMessagePrimaryKey(1, kind.Postfix(), &oldTSHash)
	_, ok, err = s.Engine().Get(ctx, oldPrimary)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMergeS3RemoveBeatsAddAtTie(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storekind.NewReactionStore())
	target := "https://example.com/a"

	h1 := hashOf(1)
	_, err := s.Merge(ctx, 2, reactionAddMsg(1, 100, h1, target))
	require.NoError(t, err)

	hr := hashOf(9)
	event, err := s.Merge(ctx, 2, reactionRemoveMsg(1, 100, hr, target))
	require.NoError(t, err)
	require.Len(t, event.Body.DeletedMessages, 1)

	kind := storekind.NewReactionStore()
	addKey, err := kind.MakeAddKey(reactionAddMsg(1, 100, h1, target))
	require.NoError(t, err)
	_, ok, err := s.Engine().Get(ctx, addKey)
	require.NoError(t, err)
	require.False(t, ok, "add pointer must be cleared once a remove wins")

	removeKey, err := kind.MakeRemoveKey(reactionRemoveMsg(1, 100, hr, target))
	require.NoError(t, err)
	_, ok, err = s.Engine().Get(ctx, removeKey)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMergeS4EarlierRemoveLosesToLaterAdd(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storekind.NewReactionStore())
	target := "https://example.com/a"

	hR, hA := hashOf(1), hashOf(2)
	_, err := s.Merge(ctx, 2, reactionRemoveMsg(1, 100, hR, target))
	require.NoError(t, err)

	event, err := s.Merge(ctx, 2, reactionAddMsg(1, 200, hA, target))
	require.NoError(t, err)
	require.Len(t, event.Body.DeletedMessages, 1)
	require.Equal(t, hR, event.Body.DeletedMessages[0].Hash)

	kind := storekind.NewReactionStore()
	removeKey, err := kind.MakeRemoveKey(reactionRemoveMsg(1, 100, hR, target))
	require.NoError(t, err)
	_, ok, err := s.Engine().Get(ctx, removeKey)
	require.NoError(t, err)
	require.False(t, ok)

	addKey, err := kind.MakeAddKey(reactionAddMsg(1, 200, hA, target))
	require.NoError(t, err)
	_, ok, err = s.Engine().Get(ctx, addKey)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMergeS5UnsupportedRemove(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storekind.NewUserDataStore())

	m := &message.Message{
		Data: message.Data{Type: message.TypeUserDataAdd, Fid: 1, Timestamp: 100, UserData: &message.UserDataBody{
			Type: message.UserDataTypePfp, Value: "x",
		}},
		Hash: hashOf(1),
	}
	// UserDataStore recognizes no remove type at all, so any message that
	// isn't its one add type is rejected the same way a genuine remove
	// attempt would be.
	notAnAdd := &message.Message{
		Data: message.Data{Type: message.TypeCastRemove, Fid: 1, Timestamp: 100},
		Hash: hashOf(2),
	}

	_, err := s.Merge(ctx, 4, m)
	require.NoError(t, err)

	_, err = s.Merge(ctx, 4, notAnAdd)
	require.Error(t, err)
	he, ok := err.(*hubstoreerr.HubError)
	require.True(t, ok)
	require.Equal(t, hubstoreerr.CodeValidationFailure, he.Code)
}

func TestMergeS6ConcurrentFidsShareALock(t *testing.T) {
	ctx := context.Background()
	s := New(nil, memkv.New(nil), eventsink.New(nil), Options{FidLockCount: 4}, storekind.NewCastStore())

	done := make(chan error, 2)
	go func() {
		_, err := s.Merge(ctx, 1, castAddMsg(1, 100, hashOf(1)))
		done <- err
	}()
	go func() {
		_, err := s.Merge(ctx, 1, castAddMsg(5, 100, hashOf(5)))
		done <- err
	}()
	require.NoError(t, <-done)
	require.NoError(t, <-done)

	kind := storekind.NewCastStore()
	for _, fid := range []uint32{1, 5} {
		hash := hashOf(byte(fid))
		addKey, err := kind.MakeAddKey(castAddMsg(fid, 100, hash))
		require.NoError(t, err)
		_, ok, err := s.Engine().Get(ctx, addKey)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestMergeEventIDsAreMonotonic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storekind.NewCastStore())

	var lastID uint64
	for i := uint32(0); i < 5; i++ {
		event, err := s.Merge(ctx, 1, castAddMsg(1, 100+i, hashOf(byte(i))))
		require.NoError(t, err)
		require.Greater(t, event.ID, lastID)
		lastID = event.ID
	}
}

func TestMergeRejectsZeroFid(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storekind.NewCastStore())
	m := castAddMsg(0, 100, hashOf(1))
	_, err := s.Merge(ctx, 1, m)
	require.Error(t, err)
	he, ok := err.(*hubstoreerr.HubError)
	require.True(t, ok)
	require.Equal(t, hubstoreerr.CodeInvalidParam, he.Code)
}

func TestMergeEventRoundTripsThroughWire(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storekind.NewCastStore())

	event, err := s.Merge(ctx, 1, castAddMsg(1, 100, hashOf(1)))
	require.NoError(t, err)

	decoded, err := wire.DecodeEvent(wire.EncodeEvent(event))
	require.NoError(t, err)
	require.Equal(t, event.ID, decoded.ID)
	require.Equal(t, event.Body.Message.Hash, decoded.Body.Message.Hash)
}
