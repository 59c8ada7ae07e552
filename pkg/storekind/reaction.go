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
	postfixReaction = 2

	// Secondary index: target || ts_hash -> ts_hash, so
	// ReactionsByTarget can answer "who reacted to X" without a per-fid
	// scan. Not part of the core Kind contract (spec §3 names no such
	// query); exposed as a convenience on ReactionStore itself.
	reactionTargetIndexPrefix = 0xC2

	// reactionTargetFidIndexPrefix tracks how many live reactions a given
	// fid has against a target (target || fid -> big-endian uint32 count),
	// so ReactionFidsByTarget can list distinct reacting fids without
	// counting duplicates across reaction types.
	reactionTargetFidIndexPrefix = 0xC3

	// reactionTargetCountPrefix tracks the number of distinct fids
	// currently reacting to a target (target -> big-endian uint32 count),
	// incremented/decremented only when a fid's entry above crosses 0.
	reactionTargetCountPrefix = 0xC4
)

// ReactionStore implements Kind for likes and recasts.
type ReactionStore struct{}

func NewReactionStore() *ReactionStore { return &ReactionStore{} }

var _ Kind = (*ReactionStore)(nil)

func (k *ReactionStore) Postfix() byte                  { return postfixReaction }
func (k *ReactionStore) AddMessageType() message.Type    { return message.TypeReactionAdd }
func (k *ReactionStore) RemoveMessageType() message.Type { return message.TypeReactionRemove }
func (k *ReactionStore) RemoveSupported() bool           { return k.RemoveMessageType() != message.TypeNone }
func (k *ReactionStore) IsAddType(m *message.Message) bool {
	return m.Data.Type == message.TypeReactionAdd
}
func (k *ReactionStore) IsRemoveType(m *message.Message) bool {
	return m.Data.Type == message.TypeReactionRemove
}

// reactionTarget extracts the target bytes a reaction points at, cast or
// URL, so add/remove keys for the same logical reaction collide regardless
// of which message variant carries the body.
func reactionTarget(r *message.ReactionBody) ([]byte, error) {
	switch {
	case r == nil:
		return nil, hubstoreerr.ValidationFailure("reaction message missing body")
	case r.TargetCast != nil && r.TargetURL != "":
		return nil, hubstoreerr.ValidationFailure("reaction cannot set both target cast and target url")
	case r.TargetCast != nil:
		if len(r.TargetCast.Hash) != 20 {
			return nil, hubstoreerr.InvalidParam("reaction target cast hash must be 20 bytes")
		}
		var fidBuf [4]byte
		binary.BigEndian.PutUint32(fidBuf[:], r.TargetCast.Fid)
		out := make([]byte, 0, 4+20)
		out = append(out, fidBuf[:]...)
		out = append(out, r.TargetCast.Hash...)
		return out, nil
	case r.TargetURL != "":
		return []byte(r.TargetURL), nil
	default:
		return nil, hubstoreerr.ValidationFailure("reaction message missing target")
	}
}

func (k *ReactionStore) reactionKey(prefix byte, m *message.Message) ([]byte, error) {
	target, err := reactionTarget(m.Data.Reaction)
	if err != nil {
		return nil, err
	}
	var fidBuf [4]byte
	binary.BigEndian.PutUint32(fidBuf[:], m.Data.Fid)
	out := make([]byte, 0, 2+4+1+len(target))
	out = append(out, prefix)
	out = append(out, fidBuf[:]...)
	out = append(out, byte(m.Data.Reaction.ReactionType))
	out = append(out, target...)
	return out, nil
}

func (k *ReactionStore) MakeAddKey(m *message.Message) ([]byte, error) {
	return k.reactionKey('a', m)
}

func (k *ReactionStore) MakeRemoveKey(m *message.Message) ([]byte, error) {
	return k.reactionKey('r', m)
}

func (k *ReactionStore) FindMergeAddConflicts(_ context.Context, m *message.Message) error {
	if m.Data.Reaction == nil {
		return hubstoreerr.ValidationFailure("reaction add message missing body")
	}
	if m.Data.Reaction.ReactionType == message.ReactionTypeNone {
		return hubstoreerr.ValidationFailure("reaction add must set a reaction type")
	}
	_, err := reactionTarget(m.Data.Reaction)
	return err
}

func (k *ReactionStore) FindMergeRemoveConflicts(_ context.Context, m *message.Message) error {
	if m.Data.Reaction == nil {
		return hubstoreerr.ValidationFailure("reaction remove message missing body")
	}
	_, err := reactionTarget(m.Data.Reaction)
	return err
}

func (k *ReactionStore) BuildSecondaryIndicies(ctx context.Context, txn kv.Txn, tsHash keys.TSHash, m *message.Message) error {
	target, err := reactionTarget(m.Data.Reaction)
	if err != nil {
		return err
	}
	if err := txn.Put(ctx, reactionTargetIndexKey(target, tsHash), tsHash.Bytes()); err != nil {
		return err
	}

	fidKey := reactionTargetFidIndexKey(target, m.Data.Fid)
	fidCount, err := getUint32(ctx, txn, fidKey)
	if err != nil {
		return err
	}
	if err := putUint32(ctx, txn, fidKey, fidCount+1); err != nil {
		return err
	}
	if fidCount != 0 {
		// Fid already had a live reaction against this target; the
		// distinct-fid count doesn't change.
		return nil
	}

	countKey := reactionTargetCountKey(target)
	count, err := getUint32(ctx, txn, countKey)
	if err != nil {
		return err
	}
	return putUint32(ctx, txn, countKey, count+1)
}

func (k *ReactionStore) DeleteSecondaryIndicies(ctx context.Context, txn kv.Txn, tsHash keys.TSHash, m *message.Message) error {
	target, err := reactionTarget(m.Data.Reaction)
	if err != nil {
		return err
	}
	if err := txn.Delete(ctx, reactionTargetIndexKey(target, tsHash)); err != nil {
		return err
	}

	fidKey := reactionTargetFidIndexKey(target, m.Data.Fid)
	fidCount, err := getUint32(ctx, txn, fidKey)
	if err != nil {
		return err
	}
	if fidCount == 0 {
		// Nothing to retire; tolerate a remove racing ahead of its add.
		return nil
	}
	if fidCount > 1 {
		return putUint32(ctx, txn, fidKey, fidCount-1)
	}
	if err := txn.Delete(ctx, fidKey); err != nil {
		return err
	}

	countKey := reactionTargetCountKey(target)
	count, err := getUint32(ctx, txn, countKey)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	if count == 1 {
		return txn.Delete(ctx, countKey)
	}
	return putUint32(ctx, txn, countKey, count-1)
}

func getUint32(ctx context.Context, txn kv.Txn, key []byte) (uint32, error) {
	v, ok, err := txn.Get(ctx, key)
	if err != nil || !ok {
		return 0, err
	}
	if len(v) != 4 {
		return 0, hubstoreerr.BadRequestInternal("reaction index counter has wrong width")
	}
	return binary.BigEndian.Uint32(v), nil
}

func putUint32(ctx context.Context, txn kv.Txn, key []byte, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return txn.Put(ctx, key, buf[:])
}

func reactionTargetIndexKey(target []byte, tsHash keys.TSHash) []byte {
	out := make([]byte, 0, 1+len(target)+keys.TSHashLength)
	out = append(out, reactionTargetIndexPrefix)
	out = append(out, target...)
	out = append(out, tsHash.Bytes()...)
	return out
}

func reactionTargetFidIndexKey(target []byte, fid uint32) []byte {
	out := make([]byte, 0, 1+len(target)+4)
	out = append(out, reactionTargetFidIndexPrefix)
	out = append(out, target...)
	var fidBuf [4]byte
	binary.BigEndian.PutUint32(fidBuf[:], fid)
	return append(out, fidBuf[:]...)
}

func reactionTargetCountKey(target []byte) []byte {
	out := make([]byte, 0, 1+len(target))
	out = append(out, reactionTargetCountPrefix)
	return append(out, target...)
}

// ReactionsByTarget lists the ts_hashes of reactions currently indexed
// against target, oldest first. Convenience query, not part of Kind: a
// caller who already knows the target bytes (spec §3's opaque body) uses
// this instead of a per-fid GetAddsByFid scan.
func (k *ReactionStore) ReactionsByTarget(ctx context.Context, eng kv.Engine, target []byte, limit int) ([]keys.TSHash, error) {
	prefix := append([]byte{reactionTargetIndexPrefix}, target...)
	entries, err := eng.PrefixScan(ctx, prefix, false, nil, limit)
	if err != nil {
		return nil, err
	}
	out := make([]keys.TSHash, 0, len(entries))
	for _, e := range entries {
		ts, err := keys.TSHashFromBytes(e.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, nil
}

// ReactionCountByTarget returns the number of distinct fids currently
// reacting to target, maintained incrementally by Build/DeleteSecondaryIndicies
// rather than counted by scanning.
func (k *ReactionStore) ReactionCountByTarget(ctx context.Context, eng kv.Engine, target []byte) (uint32, error) {
	v, ok, err := eng.Get(ctx, reactionTargetCountKey(target))
	if err != nil || !ok {
		return 0, err
	}
	if len(v) != 4 {
		return 0, hubstoreerr.BadRequestInternal("reaction index counter has wrong width")
	}
	return binary.BigEndian.Uint32(v), nil
}

// ReactionFidsByTarget lists the distinct fids currently reacting to target,
// ascending fid order, up to limit.
func (k *ReactionStore) ReactionFidsByTarget(ctx context.Context, eng kv.Engine, target []byte, limit int) ([]uint32, error) {
	prefix := append([]byte{reactionTargetFidIndexPrefix}, target...)
	entries, err := eng.PrefixScan(ctx, prefix, false, nil, limit)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, 0, len(entries))
	for _, e := range entries {
		if len(e.Key) < len(prefix)+4 {
			return nil, hubstoreerr.BadRequestInternal("reaction fid index key too short")
		}
		fidBytes := e.Key[len(e.Key)-4:]
		out = append(out, binary.BigEndian.Uint32(fidBytes))
	}
	return out, nil
}
