package store

import (
	"bytes"
	"encoding/binary"

	"github.com/edirooss/crdtstore/pkg/keys"
)

// compareRecords is the canonical total ordering over two candidate
// records for the same logical key (spec §4.3 message_compare):
//
//  1. compare timestamps (the first 4 bytes of the ts_hash);
//  2. if equal, a remove dominates an add;
//  3. else (both sides the same role) compare the 20-byte hash.
//
// It returns -1, 0, or +1 the way bytes.Compare does: -1 when b wins the
// merge over a, 0 when they tie, +1 when a wins over b.
func compareRecords(aIsRemove bool, aTSHash keys.TSHash, bIsRemove bool, bTSHash keys.TSHash) int {
	aTS := binary.BigEndian.Uint32(aTSHash[0:4])
	bTS := binary.BigEndian.Uint32(bTSHash[0:4])
	if aTS != bTS {
		if aTS < bTS {
			return -1
		}
		return 1
	}
	if aIsRemove != bIsRemove {
		if aIsRemove {
			return 1
		}
		return -1
	}
	return bytes.Compare(aTSHash.Hash(), bTSHash.Hash())
}
