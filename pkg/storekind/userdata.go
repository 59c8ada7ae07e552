package storekind

import (
	"context"
	"encoding/binary"

	"github.com/edirooss/crdtstore/pkg/hubstoreerr"
	"github.com/edirooss/crdtstore/pkg/keys"
	"github.com/edirooss/crdtstore/pkg/kv"
	"github.com/edirooss/crdtstore/pkg/message"
)

const postfixUserData = 4

// UserDataStore implements Kind for profile fields (pfp, display name,
// bio). It has no remove type: a profile field is only ever superseded by
// a later UserDataAdd for the same field, never explicitly retracted
// (realizes the kind-without-removes scenario).
type UserDataStore struct{}

func NewUserDataStore() *UserDataStore { return &UserDataStore{} }

var _ Kind = (*UserDataStore)(nil)

func (k *UserDataStore) Postfix() byte                  { return postfixUserData }
func (k *UserDataStore) AddMessageType() message.Type    { return message.TypeUserDataAdd }
func (k *UserDataStore) RemoveMessageType() message.Type { return message.TypeNone }
func (k *UserDataStore) RemoveSupported() bool           { return false }
func (k *UserDataStore) IsAddType(m *message.Message) bool {
	return m.Data.Type == message.TypeUserDataAdd
}
func (k *UserDataStore) IsRemoveType(_ *message.Message) bool { return false }

// MakeAddKey is keyed by (fid, field type): one slot per profile field.
func (k *UserDataStore) MakeAddKey(m *message.Message) ([]byte, error) {
	if m.Data.UserData == nil || m.Data.UserData.Type == message.UserDataTypeNone {
		return nil, hubstoreerr.ValidationFailure("user data message missing field type")
	}
	var fidBuf [4]byte
	binary.BigEndian.PutUint32(fidBuf[:], m.Data.Fid)
	out := make([]byte, 0, 1+4+1)
	out = append(out, 'u')
	out = append(out, fidBuf[:]...)
	out = append(out, byte(m.Data.UserData.Type))
	return out, nil
}

func (k *UserDataStore) MakeRemoveKey(_ *message.Message) ([]byte, error) {
	return nil, hubstoreerr.BadRequestInternal("user data store does not support removes")
}

func (k *UserDataStore) FindMergeAddConflicts(_ context.Context, m *message.Message) error {
	if m.Data.UserData == nil || m.Data.UserData.Type == message.UserDataTypeNone {
		return hubstoreerr.ValidationFailure("user data add message missing field type")
	}
	return nil
}

func (k *UserDataStore) FindMergeRemoveConflicts(_ context.Context, _ *message.Message) error {
	return hubstoreerr.BadRequestInternal("user data store does not support removes")
}

func (k *UserDataStore) BuildSecondaryIndicies(_ context.Context, _ kv.Txn, _ keys.TSHash, _ *message.Message) error {
	return nil
}

func (k *UserDataStore) DeleteSecondaryIndicies(_ context.Context, _ kv.Txn, _ keys.TSHash, _ *message.Message) error {
	return nil
}
