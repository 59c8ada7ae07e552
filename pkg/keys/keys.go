// Package keys builds the deterministic byte keys the store's ordering
// invariant depends on (spec §4.1). Every function here is pure; none touch
// the KV engine.
package keys

import (
	"encoding/binary"

	"github.com/edirooss/crdtstore/pkg/hubstoreerr"
)

const (
	// TSHashLength is the width of a ts_hash: 4-byte timestamp + 20-byte hash.
	TSHashLength = 24
	hashLength   = 20

	fidLength     = 4
	postfixLength = 1

	// PrimaryKeyLength is fidLength + postfixLength + TSHashLength.
	PrimaryKeyLength = fidLength + postfixLength + TSHashLength
	// PrefixLength is fidLength + postfixLength: the scan prefix for a
	// single (fid, postfix) set.
	PrefixLength = fidLength + postfixLength
)

// TSHash is the 24-byte timestamp||hash composite. Its byte order is, by
// construction, identical to (timestamp, hash) lexicographic order.
type TSHash [TSHashLength]byte

// Timestamp returns the big-endian timestamp component.
func (h TSHash) Timestamp() uint32 { return binary.BigEndian.Uint32(h[0:4]) }

// Hash returns the 20-byte content hash component.
func (h TSHash) Hash() []byte { return h[4:24] }

// Bytes returns the ts_hash as a plain slice, for use as a KV value.
func (h TSHash) Bytes() []byte { return h[:] }

// MakeTSHash composes a ts_hash from a timestamp and a 20-byte content hash.
func MakeTSHash(timestamp uint32, hash []byte) (TSHash, error) {
	var out TSHash
	if len(hash) != hashLength {
		return out, hubstoreerr.InvalidParam("hash must be 20 bytes")
	}
	binary.BigEndian.PutUint32(out[0:4], timestamp)
	copy(out[4:24], hash)
	return out, nil
}

// TSHashFromBytes reinterprets a 24-byte slice (e.g. a KV value read back
// from a pointer) as a TSHash.
func TSHashFromBytes(b []byte) (TSHash, error) {
	var out TSHash
	if len(b) != TSHashLength {
		return out, hubstoreerr.BadRequestInternal("stored ts_hash has wrong length")
	}
	copy(out[:], b)
	return out, nil
}

// MakeMessagePrimaryKey builds the primary key fid_be(4) || postfix(1) ||
// ts_hash(24). Passing a nil tsHash yields the 5-byte scan prefix for the
// (fid, postfix) set.
func MakeMessagePrimaryKey(fid uint32, postfix byte, tsHash *TSHash) []byte {
	if tsHash == nil {
		return MakeMessagePrimaryKeyPrefix(fid, postfix)
	}
	out := make([]byte, 0, PrimaryKeyLength)
	var fidBuf [fidLength]byte
	binary.BigEndian.PutUint32(fidBuf[:], fid)
	out = append(out, fidBuf[:]...)
	out = append(out, postfix)
	out = append(out, tsHash[:]...)
	return out
}

// MakeMessagePrimaryKeyPrefix builds the 5-byte (fid, postfix) scan prefix.
func MakeMessagePrimaryKeyPrefix(fid uint32, postfix byte) []byte {
	out := make([]byte, 0, PrefixLength)
	var fidBuf [fidLength]byte
	binary.BigEndian.PutUint32(fidBuf[:], fid)
	out = append(out, fidBuf[:]...)
	out = append(out, postfix)
	return out
}

// SplitPrimaryKey decodes a primary key back into its (fid, postfix,
// ts_hash) components without re-parsing the message body.
func SplitPrimaryKey(key []byte) (fid uint32, postfix byte, tsHash TSHash, err error) {
	if len(key) != PrimaryKeyLength {
		return 0, 0, TSHash{}, hubstoreerr.BadRequestInternal("malformed primary key")
	}
	fid = binary.BigEndian.Uint32(key[0:4])
	postfix = key[4]
	copy(tsHash[:], key[5:29])
	return fid, postfix, tsHash, nil
}
