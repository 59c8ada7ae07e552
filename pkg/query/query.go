// Package query is the Query Surface (spec §4.6, C7): best-effort snapshot
// reads against whatever a Store's merges have committed so far. No read
// here takes the fid lock — merges are the only mutators, and each commits
// atomically, so a read observes a merge in its entirety or not at all.
package query

import (
	"bytes"
	"context"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/edirooss/crdtstore/pkg/hubstoreerr"
	"github.com/edirooss/crdtstore/pkg/keys"
	"github.com/edirooss/crdtstore/pkg/message"
	"github.com/edirooss/crdtstore/pkg/store"
	"github.com/edirooss/crdtstore/pkg/wire"
)

// MaxPageSize is the hard cap on PageOptions.PageSize (spec §4.6).
const MaxPageSize = 10_000

// DefaultPageSize is used when PageOptions.PageSize is unset.
const DefaultPageSize = 100

// PageOptions controls a prefix-scan read (spec §4.6).
type PageOptions struct {
	// PageSize defaults to DefaultPageSize and is clamped to MaxPageSize.
	PageSize int
	// PageToken is an opaque continuation equal to the last primary key a
	// previous page returned.
	PageToken []byte
	// Reverse walks the prefix in descending order; continuation then
	// resumes strictly before PageToken in descending key order.
	Reverse bool
}

func (o PageOptions) normalized() (pageSize int, token []byte, reverse bool) {
	pageSize = o.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return pageSize, o.PageToken, o.Reverse
}

// Page is one page of a prefix-scan read. NextPageToken is nil at
// end-of-stream.
type Page struct {
	Messages      []*message.Message
	NextPageToken []byte
}

// Filter is an optional user predicate applied after the kind-type filter.
type Filter func(*message.Message) bool

// Surface is the Query Surface over a Store.
type Surface struct {
	store *store.Store
	log   *zap.Logger
	sg    singleflight.Group
}

// New constructs a Surface over store.
func New(log *zap.Logger, s *store.Store) *Surface {
	if log == nil {
		log = zap.NewNop()
	}
	return &Surface{store: s, log: log.Named("query")}
}

type decoded struct {
	key []byte
	msg *message.Message
}

// GetAdd looks up the add pointer for partial (spec §4.6: "looks up the add
// pointer via make_add_key, then fetches the primary row"). partial need
// only carry the fields make_add_key reads.
func (s *Surface) GetAdd(ctx context.Context, postfix byte, partial *message.Message) (*message.Message, error) {
	return s.getPointed(ctx, postfix, partial, false)
}

// GetRemove is symmetric to GetAdd; it rejects if the kind doesn't support
// removes.
func (s *Surface) GetRemove(ctx context.Context, postfix byte, partial *message.Message) (*message.Message, error) {
	return s.getPointed(ctx, postfix, partial, true)
}

func (s *Surface) getPointed(ctx context.Context, postfix byte, partial *message.Message, wantRemove bool) (*message.Message, error) {
	if partial == nil || partial.Data.Fid == 0 {
		return nil, hubstoreerr.InvalidParam("fid must be non-zero")
	}
	kind, ok := s.store.Kind(postfix)
	if !ok {
		return nil, hubstoreerr.BadRequestInternal("store kind not registered")
	}

	var pointerKey []byte
	var err error
	role := "add"
	if wantRemove {
		role = "remove"
		if !kind.RemoveSupported() {
			return nil, hubstoreerr.ValidationFailure("store kind does not support removes")
		}
		pointerKey, err = kind.MakeRemoveKey(partial)
	} else {
		pointerKey, err = kind.MakeAddKey(partial)
	}
	if err != nil {
		return nil, err
	}

	sgKey := role + ":" + string([]byte{postfix}) + ":" + string(pointerKey)
	v, err, _ := s.sg.Do(sgKey, func() (interface{}, error) {
		val, ok, err := s.store.Engine().Get(ctx, pointerKey)
		if err != nil {
			return nil, hubstoreerr.DBInternal(err)
		}
		if !ok {
			return nil, hubstoreerr.NotFound(role + " not found")
		}
		tsHash, err := keys.TSHashFromBytes(val)
		if err != nil {
			return nil, err
		}
		primaryKey := keys.MakeMessagePrimaryKey(partial.Data.Fid, kind.Postfix(), &tsHash)
		raw, ok, err := s.store.Engine().Get(ctx, primaryKey)
		if err != nil {
			return nil, hubstoreerr.DBInternal(err)
		}
		if !ok {
			return nil, hubstoreerr.BadRequestInternal("pointer references a missing primary row")
		}
		return wire.DecodeMessage(raw)
	})
	if err != nil {
		return nil, err
	}
	return v.(*message.Message), nil
}

// GetAddsByFid prefix-scans fid's rows for this kind, keeping only add-type
// messages passing the optional filter.
func (s *Surface) GetAddsByFid(ctx context.Context, postfix byte, fid uint32, opts PageOptions, filter Filter) (*Page, error) {
	kind, ok := s.store.Kind(postfix)
	if !ok {
		return nil, hubstoreerr.BadRequestInternal("store kind not registered")
	}
	return s.scanByFid(ctx, fid, kind.Postfix(), opts, func(m *message.Message) bool {
		return kind.IsAddType(m) && (filter == nil || filter(m))
	})
}

// GetRemovesByFid is symmetric to GetAddsByFid.
func (s *Surface) GetRemovesByFid(ctx context.Context, postfix byte, fid uint32, opts PageOptions, filter Filter) (*Page, error) {
	kind, ok := s.store.Kind(postfix)
	if !ok {
		return nil, hubstoreerr.BadRequestInternal("store kind not registered")
	}
	return s.scanByFid(ctx, fid, kind.Postfix(), opts, func(m *message.Message) bool {
		return kind.IsRemoveType(m) && (filter == nil || filter(m))
	})
}

// GetAllMessagesByFid returns every add-or-remove message for fid under
// this kind. It fans the adds scan and the removes scan out concurrently
// (each bounded to the requested page size) and merges the two streams
// back into one page in key order.
func (s *Surface) GetAllMessagesByFid(ctx context.Context, postfix byte, fid uint32, opts PageOptions) (*Page, error) {
	kind, ok := s.store.Kind(postfix)
	if !ok {
		return nil, hubstoreerr.BadRequestInternal("store kind not registered")
	}
	pageSize, token, reverse := opts.normalized()

	var adds, removes []decoded
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		adds, err = s.rawScan(gctx, fid, kind.Postfix(), pageSize, token, reverse, kind.IsAddType)
		return err
	})
	g.Go(func() error {
		var err error
		removes, err = s.rawScan(gctx, fid, kind.Postfix(), pageSize, token, reverse, kind.IsRemoveType)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := append(adds, removes...)
	sort.Slice(merged, func(i, j int) bool {
		cmp := bytes.Compare(merged[i].key, merged[j].key)
		if reverse {
			return cmp > 0
		}
		return cmp < 0
	})
	if len(merged) > pageSize {
		merged = merged[:pageSize]
	}
	return toPage(merged, pageSize), nil
}

// Clear delegates to the underlying Store's administrative clear (spec §6
// "clear() -> count" — SPEC_FULL §D.2).
func (s *Surface) Clear(ctx context.Context) (int, error) {
	return s.store.Clear(ctx)
}

func (s *Surface) scanByFid(ctx context.Context, fid uint32, postfix byte, opts PageOptions, keep func(*message.Message) bool) (*Page, error) {
	pageSize, token, reverse := opts.normalized()
	entries, err := s.rawScan(ctx, fid, postfix, pageSize, token, reverse, keep)
	if err != nil {
		return nil, err
	}
	return toPage(entries, pageSize), nil
}

// rawScan prefix-scans the (fid, postfix) primary key range, decoding and
// filtering each row with keep, and returns at most pageSize matches.
func (s *Surface) rawScan(ctx context.Context, fid uint32, postfix byte, pageSize int, token []byte, reverse bool, keep func(*message.Message) bool) ([]decoded, error) {
	prefix := keys.MakeMessagePrimaryKeyPrefix(fid, postfix)
	var out []decoded
	startAfter := token
	for len(out) < pageSize {
		entries, err := s.store.Engine().PrefixScan(ctx, prefix, reverse, startAfter, pageSize)
		if err != nil {
			return nil, hubstoreerr.DBInternal(err)
		}
		if len(entries) == 0 {
			break
		}
		for _, e := range entries {
			m, err := wire.DecodeMessage(e.Value)
			if err != nil {
				return nil, err
			}
			if keep(m) {
				out = append(out, decoded{key: e.Key, msg: m})
				if len(out) == pageSize {
					break
				}
			}
		}
		startAfter = entries[len(entries)-1].Key
		if len(entries) < pageSize {
			break
		}
	}
	return out, nil
}

func toPage(entries []decoded, pageSize int) *Page {
	page := &Page{Messages: make([]*message.Message, len(entries))}
	for i, e := range entries {
		page.Messages[i] = e.msg
	}
	if len(entries) == pageSize && len(entries) > 0 {
		page.NextPageToken = entries[len(entries)-1].key
	}
	return page
}
