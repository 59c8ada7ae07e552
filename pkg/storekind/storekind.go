// Package storekind defines the per-set policy capability (spec §4.2, C3):
// which two message types form a set's Adds/Removes, how a message's
// logical identity maps to an add/remove pointer key, and how a kind
// maintains its own secondary indices. The merge engine only ever talks to
// this interface; it never knows which concrete kind it is driving.
package storekind

import (
	"context"

	"github.com/edirooss/crdtstore/pkg/keys"
	"github.com/edirooss/crdtstore/pkg/kv"
	"github.com/edirooss/crdtstore/pkg/message"
)

// Kind is a Send+Sync capability set in the original's terms: a value shared
// by reference across goroutines, never mutated after construction.
type Kind interface {
	// Postfix is the one-byte discriminator unique to this kind within a
	// database (spec §3).
	Postfix() byte

	// AddMessageType and RemoveMessageType are the type tags that make a
	// message an add or a remove for this kind. RemoveMessageType returns
	// message.TypeNone when the kind does not support removes.
	AddMessageType() message.Type
	RemoveMessageType() message.Type

	IsAddType(m *message.Message) bool
	IsRemoveType(m *message.Message) bool

	// RemoveSupported reports whether RemoveMessageType is set.
	RemoveSupported() bool

	// MakeAddKey and MakeRemoveKey derive the add/remove pointer key from
	// a message's logical identity — e.g. (fid, target) for a reaction —
	// not from its ts_hash (spec §4.2).
	MakeAddKey(m *message.Message) ([]byte, error)
	MakeRemoveKey(m *message.Message) ([]byte, error)

	// FindMergeAddConflicts and FindMergeRemoveConflicts run kind-specific
	// preconditions before any write happens. A non-nil error aborts the
	// merge before the conflict resolver runs pointer comparisons.
	FindMergeAddConflicts(ctx context.Context, m *message.Message) error
	FindMergeRemoveConflicts(ctx context.Context, m *message.Message) error

	// BuildSecondaryIndicies and DeleteSecondaryIndicies must be
	// symmetric: replaying Build then Delete against the same message and
	// ts_hash leaves the transaction unchanged (spec §4.2).
	BuildSecondaryIndicies(ctx context.Context, txn kv.Txn, tsHash keys.TSHash, m *message.Message) error
	DeleteSecondaryIndicies(ctx context.Context, txn kv.Txn, tsHash keys.TSHash, m *message.Message) error
}
