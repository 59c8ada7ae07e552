package storekind

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edirooss/crdtstore/pkg/message"
)

func castAdd(fid uint32, hash []byte) *message.Message {
	return &message.Message{
		Data: message.Data{Type: message.TypeCastAdd, Fid: fid, CastAdd: &message.CastAddBody{Text: "hi"}},
		Hash: hash,
	}
}

func TestCastStoreAddRemoveKeysAgree(t *testing.T) {
	k := NewCastStore()
	hash := make([]byte, 20)
	hash[0] = 0x9
	add := castAdd(1, hash)

	addKey, err := k.MakeAddKey(add)
	require.NoError(t, err)

	remove := &message.Message{
		Data: message.Data{Type: message.TypeCastRemove, Fid: 1, CastRemove: &message.CastRemoveBody{TargetHash: hash}},
	}
	removeKey, err := k.MakeRemoveKey(remove)
	require.NoError(t, err)
	require.NotEqual(t, addKey, removeKey)

	// The add message's own remove key (were it to be removed) must match
	// the dedicated remove message's key, since both identify the same cast.
	selfRemoveKey, err := k.MakeRemoveKey(add)
	require.NoError(t, err)
	require.Equal(t, removeKey, selfRemoveKey)

	require.True(t, k.IsAddType(add))
	require.False(t, k.IsRemoveType(add))
	require.True(t, k.RemoveSupported())
}

func TestReactionStoreTargetMustBeExclusive(t *testing.T) {
	k := NewReactionStore()
	m := &message.Message{
		Data: message.Data{
			Type: message.TypeReactionAdd,
			Fid:  1,
			Reaction: &message.ReactionBody{
				ReactionType: message.ReactionTypeLike,
				TargetCast:   &message.CastID{Fid: 2, Hash: make([]byte, 20)},
				TargetURL:    "https://example.com",
			},
		},
	}
	_, err := k.MakeAddKey(m)
	require.Error(t, err)
}

func TestReactionStoreAddAndRemoveKeysMatchSameTarget(t *testing.T) {
	k := NewReactionStore()
	target := &message.CastID{Fid: 2, Hash: make([]byte, 20)}
	add := &message.Message{Data: message.Data{Type: message.TypeReactionAdd, Fid: 1, Reaction: &message.ReactionBody{
		ReactionType: message.ReactionTypeLike, TargetCast: target,
	}}}
	remove := &message.Message{Data: message.Data{Type: message.TypeReactionRemove, Fid: 1, Reaction: &message.ReactionBody{
		ReactionType: message.ReactionTypeLike, TargetCast: target,
	}}}

	addKey, err := k.MakeAddKey(add)
	require.NoError(t, err)
	removeKey, err := k.MakeRemoveKey(remove)
	require.NoError(t, err)
	require.NotEqual(t, addKey, removeKey)

	// The add message's own remove key must match the remove message's,
	// since both name the same target.
	selfRemoveKey, err := k.MakeRemoveKey(add)
	require.NoError(t, err)
	require.Equal(t, removeKey, selfRemoveKey)

	require.NoError(t, k.FindMergeAddConflicts(context.Background(), add))
	require.NoError(t, k.FindMergeRemoveConflicts(context.Background(), remove))
}

func TestLinkStoreRejectsSelfLink(t *testing.T) {
	k := NewLinkStore()
	m := &message.Message{Data: message.Data{Type: message.TypeLinkAdd, Fid: 5, Link: &message.LinkBody{
		LinkType: "follow", TargetFid: 5,
	}}}
	require.Error(t, k.FindMergeAddConflicts(context.Background(), m))
}

func TestLinkStoreKeyIdentifiesEdgeNotTimestamp(t *testing.T) {
	k := NewLinkStore()
	m1 := &message.Message{Data: message.Data{Type: message.TypeLinkAdd, Fid: 5, Timestamp: 100, Link: &message.LinkBody{
		LinkType: "follow", TargetFid: 9,
	}}}
	m2 := &message.Message{Data: message.Data{Type: message.TypeLinkAdd, Fid: 5, Timestamp: 200, Link: &message.LinkBody{
		LinkType: "follow", TargetFid: 9,
	}}}
	k1, err := k.MakeAddKey(m1)
	require.NoError(t, err)
	k2, err := k.MakeAddKey(m2)
	require.NoError(t, err)
	require.Equal(t, k1, k2)
}

func TestUserDataStoreHasNoRemoveType(t *testing.T) {
	k := NewUserDataStore()
	require.False(t, k.RemoveSupported())
	require.Equal(t, message.TypeNone, k.RemoveMessageType())

	m := &message.Message{Data: message.Data{Type: message.TypeUserDataAdd, Fid: 1, UserData: &message.UserDataBody{
		Type: message.UserDataTypePfp, Value: "https://example.com/pfp.png",
	}}}
	_, err := k.MakeRemoveKey(m)
	require.Error(t, err)
	require.Error(t, k.FindMergeRemoveConflicts(context.Background(), m))

	addKey, err := k.MakeAddKey(m)
	require.NoError(t, err)
	require.NotEmpty(t, addKey)
}

func TestUserDataStoreAddKeyIsPerField(t *testing.T) {
	k := NewUserDataStore()
	pfp := &message.Message{Data: message.Data{Type: message.TypeUserDataAdd, Fid: 1, UserData: &message.UserDataBody{
		Type: message.UserDataTypePfp, Value: "a",
	}}}
	bio := &message.Message{Data: message.Data{Type: message.TypeUserDataAdd, Fid: 1, UserData: &message.UserDataBody{
		Type: message.UserDataTypeBio, Value: "b",
	}}}
	pfpKey, err := k.MakeAddKey(pfp)
	require.NoError(t, err)
	bioKey, err := k.MakeAddKey(bio)
	require.NoError(t, err)
	require.NotEqual(t, pfpKey, bioKey)
}
