package storekind

import (
	"context"
	"encoding/binary"

	"github.com/edirooss/crdtstore/pkg/hubstoreerr"
	"github.com/edirooss/crdtstore/pkg/keys"
	"github.com/edirooss/crdtstore/pkg/kv"
	"github.com/edirooss/crdtstore/pkg/message"
)

const postfixLink = 3

// LinkStore implements Kind for directed follow-style edges between fids.
type LinkStore struct{}

func NewLinkStore() *LinkStore { return &LinkStore{} }

var _ Kind = (*LinkStore)(nil)

func (k *LinkStore) Postfix() byte                  { return postfixLink }
func (k *LinkStore) AddMessageType() message.Type    { return message.TypeLinkAdd }
func (k *LinkStore) RemoveMessageType() message.Type { return message.TypeLinkRemove }
func (k *LinkStore) RemoveSupported() bool           { return k.RemoveMessageType() != message.TypeNone }
func (k *LinkStore) IsAddType(m *message.Message) bool {
	return m.Data.Type == message.TypeLinkAdd
}
func (k *LinkStore) IsRemoveType(m *message.Message) bool {
	return m.Data.Type == message.TypeLinkRemove
}

// linkKey is keyed by (fid, link type, target fid): the logical identity of
// a link is the edge, not the timestamp it was created at.
func (k *LinkStore) linkKey(prefix byte, m *message.Message) ([]byte, error) {
	l := m.Data.Link
	if l == nil || l.LinkType == "" || l.TargetFid == 0 {
		return nil, hubstoreerr.ValidationFailure("link message missing body")
	}
	var fidBuf, targetBuf [4]byte
	binary.BigEndian.PutUint32(fidBuf[:], m.Data.Fid)
	binary.BigEndian.PutUint32(targetBuf[:], l.TargetFid)
	out := make([]byte, 0, 2+4+len(l.LinkType)+1+4)
	out = append(out, prefix)
	out = append(out, fidBuf[:]...)
	out = append(out, l.LinkType...)
	out = append(out, ':')
	out = append(out, targetBuf[:]...)
	return out, nil
}

func (k *LinkStore) MakeAddKey(m *message.Message) ([]byte, error)    { return k.linkKey('a', m) }
func (k *LinkStore) MakeRemoveKey(m *message.Message) ([]byte, error) { return k.linkKey('r', m) }

func (k *LinkStore) FindMergeAddConflicts(_ context.Context, m *message.Message) error {
	if m.Data.Link == nil || m.Data.Link.LinkType == "" {
		return hubstoreerr.ValidationFailure("link add message missing link type")
	}
	if m.Data.Link.TargetFid == m.Data.Fid {
		return hubstoreerr.ValidationFailure("link cannot target its own fid")
	}
	return nil
}

func (k *LinkStore) FindMergeRemoveConflicts(_ context.Context, m *message.Message) error {
	if m.Data.Link == nil || m.Data.Link.LinkType == "" {
		return hubstoreerr.ValidationFailure("link remove message missing link type")
	}
	return nil
}

func (k *LinkStore) BuildSecondaryIndicies(_ context.Context, _ kv.Txn, _ keys.TSHash, _ *message.Message) error {
	return nil
}

func (k *LinkStore) DeleteSecondaryIndicies(_ context.Context, _ kv.Txn, _ keys.TSHash, _ *message.Message) error {
	return nil
}
