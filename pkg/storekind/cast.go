package storekind

import (
	"context"
	"encoding/binary"

	"github.com/edirooss/crdtstore/pkg/hubstoreerr"
	"github.com/edirooss/crdtstore/pkg/keys"
	"github.com/edirooss/crdtstore/pkg/kv"
	"github.com/edirooss/crdtstore/pkg/message"
)

const (
	postfixCast = 1

	// Reverse index: parent hash -> child ts_hash, so a reply can be
	// located by its parent without a second primary-key scan. Opaque to
	// the core (spec §3); exercised only from within this kind.
	castParentIndexPrefix = 0xC1
)

// CastStore implements Kind for top-level casts and replies.
type CastStore struct{}

func NewCastStore() *CastStore { return &CastStore{} }

var _ Kind = (*CastStore)(nil)

func (k *CastStore) Postfix() byte                       { return postfixCast }
func (k *CastStore) AddMessageType() message.Type         { return message.TypeCastAdd }
func (k *CastStore) RemoveMessageType() message.Type      { return message.TypeCastRemove }
func (k *CastStore) RemoveSupported() bool                { return k.RemoveMessageType() != message.TypeNone }
func (k *CastStore) IsAddType(m *message.Message) bool    { return m.Data.Type == message.TypeCastAdd }
func (k *CastStore) IsRemoveType(m *message.Message) bool { return m.Data.Type == message.TypeCastRemove }

// castTargetHash resolves the hash that identifies a cast's logical
// record, whether m is the CastAdd itself (its own hash) or a CastRemove
// pointing at it (its target hash). Both MakeAddKey and MakeRemoveKey must
// use this so a CastRemove's keys land on the CastAdd it targets, not on
// the CastRemove's own unrelated hash.
func castTargetHash(m *message.Message) ([]byte, error) {
	if m.Data.CastRemove != nil {
		return m.Data.CastRemove.TargetHash, nil
	}
	if len(m.Hash) == 20 {
		return m.Hash, nil
	}
	return nil, hubstoreerr.ValidationFailure("cast message missing body")
}

func (k *CastStore) castKey(prefix string, m *message.Message) ([]byte, error) {
	targetHash, err := castTargetHash(m)
	if err != nil {
		return nil, err
	}
	if len(targetHash) != 20 {
		return nil, hubstoreerr.InvalidParam("cast target hash must be 20 bytes")
	}
	var fidBuf [4]byte
	binary.BigEndian.PutUint32(fidBuf[:], m.Data.Fid)
	out := make([]byte, 0, len(prefix)+4+20)
	out = append(out, prefix...)
	out = append(out, fidBuf[:]...)
	out = append(out, targetHash...)
	return out, nil
}

// MakeAddKey derives the add pointer from the cast's logical identity: the
// hash of the CastAdd being referred to, whether m is that CastAdd or a
// CastRemove targeting it.
func (k *CastStore) MakeAddKey(m *message.Message) ([]byte, error) {
	return k.castKey("cadd:", m)
}

func (k *CastStore) MakeRemoveKey(m *message.Message) ([]byte, error) {
	return k.castKey("crem:", m)
}

func (k *CastStore) FindMergeAddConflicts(_ context.Context, m *message.Message) error {
	if m.Data.CastAdd == nil {
		return hubstoreerr.ValidationFailure("cast add message missing body")
	}
	if m.Data.CastAdd.ParentCast != nil && m.Data.CastAdd.ParentURL != "" {
		return hubstoreerr.ValidationFailure("cast add cannot set both parent cast and parent url")
	}
	return nil
}

func (k *CastStore) FindMergeRemoveConflicts(_ context.Context, m *message.Message) error {
	if m.Data.CastRemove == nil || len(m.Data.CastRemove.TargetHash) != 20 {
		return hubstoreerr.ValidationFailure("cast remove message missing target hash")
	}
	return nil
}

func (k *CastStore) BuildSecondaryIndicies(ctx context.Context, txn kv.Txn, tsHash keys.TSHash, m *message.Message) error {
	if m.Data.CastAdd == nil || m.Data.CastAdd.ParentCast == nil {
		return nil
	}
	parentTSHash, err := keys.MakeTSHash(0, m.Data.CastAdd.ParentCast.Hash)
	if err != nil {
		return err
	}
	indexKey := castParentIndexKey(parentTSHash, tsHash)
	return txn.Put(ctx, indexKey, tsHash.Bytes())
}

func (k *CastStore) DeleteSecondaryIndicies(ctx context.Context, txn kv.Txn, tsHash keys.TSHash, m *message.Message) error {
	if m.Data.CastAdd == nil || m.Data.CastAdd.ParentCast == nil {
		return nil
	}
	parentTSHash, err := keys.MakeTSHash(0, m.Data.CastAdd.ParentCast.Hash)
	if err != nil {
		return err
	}
	indexKey := castParentIndexKey(parentTSHash, tsHash)
	return txn.Delete(ctx, indexKey)
}

// castParentIndexKey ignores the parent's timestamp component (only its
// hash identifies it) — the index is keyed by parent hash, not parent
// ts_hash, so only the hash half of parentTSHash is meaningful here.
func castParentIndexKey(parentTSHash, childTSHash keys.TSHash) []byte {
	out := make([]byte, 0, 1+20+keys.TSHashLength)
	out = append(out, castParentIndexPrefix)
	out = append(out, parentTSHash.Hash()...)
	out = append(out, childTSHash.Bytes()...)
	return out
}
