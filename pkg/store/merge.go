package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/edirooss/crdtstore/pkg/hubstoreerr"
	"github.com/edirooss/crdtstore/pkg/keys"
	"github.com/edirooss/crdtstore/pkg/kv"
	"github.com/edirooss/crdtstore/pkg/message"
	"github.com/edirooss/crdtstore/pkg/storekind"
	"github.com/edirooss/crdtstore/pkg/wire"
)

// Merge is the Merge Engine's public operation (spec §4.4): validate,
// acquire the fid's lock, gather conflicts, and, inside a single
// transaction, issue the compensating deletes and the new write before
// stamping and committing an event.
//
// Merges are not retried internally; a caller whose merge fails re-submits.
func (s *Store) Merge(ctx context.Context, postfix byte, m *message.Message) (*wire.HubEvent, error) {
	if m == nil || m.Data.Fid == 0 {
		return nil, hubstoreerr.InvalidParam("fid must be non-zero")
	}

	kind, ok := s.Kind(postfix)
	if !ok {
		return nil, errUnregisteredKind
	}

	lock := s.lockFor(m.Data.Fid)
	lock.Lock()
	defer lock.Unlock()

	isAdd := kind.IsAddType(m)
	isRemove := kind.IsRemoveType(m)
	if !isAdd && !(isRemove && kind.RemoveSupported()) {
		return nil, hubstoreerr.ValidationFailure("message is not a supported add or remove for this store kind")
	}

	tsHash, err := keys.MakeTSHash(m.Data.Timestamp, m.Hash)
	if err != nil {
		return nil, err
	}

	txn, err := s.eng.NewTxn(ctx)
	if err != nil {
		return nil, hubstoreerr.DBInternal(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = txn.Rollback(ctx)
		}
	}()

	conflicts, err := findConflicts(ctx, txn, kind, m, tsHash)
	if err != nil {
		return nil, err
	}

	for _, conflict := range conflicts {
		if err := deleteConflict(ctx, txn, kind, conflict); err != nil {
			return nil, err
		}
	}

	if err := writeRecord(ctx, txn, kind, m, tsHash, isAdd); err != nil {
		return nil, err
	}

	event := &wire.HubEvent{
		Type: wire.EventTypeMergeMessage,
		Body: wire.MergeMessageBody{
			Message:         m,
			DeletedMessages: conflicts,
		},
	}
	if _, err := s.sink.StampAndCommit(ctx, txn, event); err != nil {
		return nil, err
	}

	if err := txn.Commit(ctx); err != nil {
		if he, ok := err.(*hubstoreerr.HubError); ok {
			return nil, he
		}
		return nil, hubstoreerr.DBInternal(err)
	}
	committed = true

	if s.log.Core().Enabled(zap.DebugLevel) {
		s.log.Debug("merged message",
			zap.Uint32("fid", m.Data.Fid),
			zap.Uint8("postfix", postfix),
			zap.Uint64("event_id", event.ID),
			zap.Int("superseded", len(conflicts)),
		)
	}
	return event, nil
}

// deleteConflict removes a superseded message's secondary indices,
// pointer, and primary row (spec §4.4 step 6a). The conflict's ts_hash is
// recomputed from its own timestamp and hash — deterministic, so it's
// identical to the ts_hash it was originally merged under.
func deleteConflict(ctx context.Context, txn kv.Txn, kind storekind.Kind, conflict *message.Message) error {
	tsHash, err := keys.MakeTSHash(conflict.Data.Timestamp, conflict.Hash)
	if err != nil {
		return err
	}

	if kind.IsAddType(conflict) {
		if err := kind.DeleteSecondaryIndicies(ctx, txn, tsHash, conflict); err != nil {
			return err
		}
		pointerKey, err := kind.MakeAddKey(conflict)
		if err != nil {
			return err
		}
		if err := txn.Delete(ctx, pointerKey); err != nil {
			return hubstoreerr.DBInternal(err)
		}
	} else {
		pointerKey, err := kind.MakeRemoveKey(conflict)
		if err != nil {
			return err
		}
		if err := txn.Delete(ctx, pointerKey); err != nil {
			return hubstoreerr.DBInternal(err)
		}
	}

	primaryKey := keys.MakeMessagePrimaryKey(conflict.Data.Fid, kind.Postfix(), &tsHash)
	if err := txn.Delete(ctx, primaryKey); err != nil {
		return hubstoreerr.DBInternal(err)
	}
	return nil
}

// writeRecord writes the incoming message's primary row and its add/remove
// pointer, building secondary indices for an add (spec §4.4 step 6b).
func writeRecord(ctx context.Context, txn kv.Txn, kind storekind.Kind, m *message.Message, tsHash keys.TSHash, isAdd bool) error {
	primaryKey := keys.MakeMessagePrimaryKey(m.Data.Fid, kind.Postfix(), &tsHash)
	if err := txn.Put(ctx, primaryKey, wire.EncodeMessage(m)); err != nil {
		return hubstoreerr.DBInternal(err)
	}

	if isAdd {
		addKey, err := kind.MakeAddKey(m)
		if err != nil {
			return err
		}
		if err := txn.Put(ctx, addKey, tsHash.Bytes()); err != nil {
			return hubstoreerr.DBInternal(err)
		}
		return kind.BuildSecondaryIndicies(ctx, txn, tsHash, m)
	}

	removeKey, err := kind.MakeRemoveKey(m)
	if err != nil {
		return err
	}
	if err := txn.Put(ctx, removeKey, tsHash.Bytes()); err != nil {
		return hubstoreerr.DBInternal(err)
	}
	return nil
}
