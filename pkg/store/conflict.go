package store

import (
	"context"

	"github.com/edirooss/crdtstore/pkg/hubstoreerr"
	"github.com/edirooss/crdtstore/pkg/keys"
	"github.com/edirooss/crdtstore/pkg/kv"
	"github.com/edirooss/crdtstore/pkg/message"
	"github.com/edirooss/crdtstore/pkg/storekind"
	"github.com/edirooss/crdtstore/pkg/wire"
)

// findConflicts is the Conflict Resolver (spec §4.3): given an incoming
// message and its ts_hash, it returns the existing messages the merge must
// delete to make room for it, or a HubError rejecting the merge outright.
// It only reads through txn — the caller is responsible for writing
// anything, and for running this before any write in the same transaction.
func findConflicts(ctx context.Context, txn kv.Txn, kind storekind.Kind, m *message.Message, tsHash keys.TSHash) ([]*message.Message, error) {
	isRemove := kind.IsRemoveType(m)
	if isRemove {
		if err := kind.FindMergeRemoveConflicts(ctx, m); err != nil {
			return nil, err
		}
	} else {
		if err := kind.FindMergeAddConflicts(ctx, m); err != nil {
			return nil, err
		}
	}

	var conflicts []*message.Message

	if kind.RemoveSupported() {
		removeKey, err := kind.MakeRemoveKey(m)
		if err != nil {
			return nil, err
		}
		existing, err := resolvePointer(ctx, txn, kind, m.Data.Fid, removeKey, true, isRemove, tsHash, "remove")
		if err != nil {
			return nil, err
		}
		if existing != nil {
			conflicts = append(conflicts, existing)
		}
	}

	addKey, err := kind.MakeAddKey(m)
	if err != nil {
		return nil, err
	}
	existing, err := resolvePointer(ctx, txn, kind, m.Data.Fid, addKey, false, isRemove, tsHash, "add")
	if err != nil {
		return nil, err
	}
	if existing != nil {
		conflicts = append(conflicts, existing)
	}

	return conflicts, nil
}

// resolvePointer looks up a single pointer (add or remove) and decides
// whether the incoming record beats it, ties it, or loses to it.
func resolvePointer(
	ctx context.Context, txn kv.Txn, kind storekind.Kind,
	fid uint32, pointerKey []byte, existingIsRemove, newIsRemove bool,
	newTSHash keys.TSHash, pointerName string,
) (*message.Message, error) {
	v, ok, err := txn.Get(ctx, pointerKey)
	if err != nil {
		return nil, hubstoreerr.DBInternal(err)
	}
	if !ok {
		return nil, nil
	}
	existingTSHash, err := keys.TSHashFromBytes(v)
	if err != nil {
		return nil, err
	}

	switch cmp := compareRecords(existingIsRemove, existingTSHash, newIsRemove, newTSHash); {
	case cmp > 0:
		return nil, hubstoreerr.Conflict("more recent " + pointerName + " already exists")
	case cmp == 0:
		return nil, hubstoreerr.Duplicate(pointerName + " already exists")
	default:
		return loadPrimary(ctx, txn, fid, kind.Postfix(), existingTSHash)
	}
}

// loadPrimary fetches and decodes the primary row a pointer references.
// A missing row means a secondary structure (the pointer) outlived the
// primary store's actual contents — an internal invariant violation, not a
// caller mistake (spec §7's bad_request.internal_error).
func loadPrimary(ctx context.Context, txn kv.Txn, fid uint32, postfix byte, tsHash keys.TSHash) (*message.Message, error) {
	key := keys.MakeMessagePrimaryKey(fid, postfix, &tsHash)
	v, ok, err := txn.Get(ctx, key)
	if err != nil {
		return nil, hubstoreerr.DBInternal(err)
	}
	if !ok {
		return nil, hubstoreerr.BadRequestInternal("pointer references a missing primary row")
	}
	return wire.DecodeMessage(v)
}
