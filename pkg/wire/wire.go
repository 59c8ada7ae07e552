// Package wire implements the stable binary encoding spec §6 requires at the
// host-runtime boundary: "length-delimited records with explicit field
// tags". Rather than running a protoc pipeline, the encoder/decoder are
// hand-built directly on protobuf's own low-level wire primitives
// (protowire), which already implement exactly that framing.
package wire

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/edirooss/crdtstore/pkg/hubstoreerr"
	"github.com/edirooss/crdtstore/pkg/message"
)

// Field numbers for Message.Data (mirrors the shape the original
// Message/MessageData protobuf schema would assign, field-for-field).
const (
	fieldDataType      = 1
	fieldDataFid       = 2
	fieldDataTimestamp = 3
	fieldDataNetwork   = 4
	fieldDataBody      = 5 // oneof: one of the Type* bodies below, tagged by Data.Type

	fieldMessageData            = 1
	fieldMessageHash            = 2
	fieldMessageHashScheme      = 3
	fieldMessageSignature       = 4
	fieldMessageSignatureScheme = 5
	fieldMessageSigner          = 6
)

// Body field numbers, scoped within whichever body is active.
const (
	fieldCastAddText       = 1
	fieldCastAddParentFid  = 2
	fieldCastAddParentHash = 3
	fieldCastAddParentURL  = 4
	fieldCastAddMentions   = 5
	fieldCastAddEmbeds     = 6

	fieldCastRemoveTargetHash = 1

	fieldReactionType       = 1
	fieldReactionTargetFid  = 2
	fieldReactionTargetHash = 3
	fieldReactionTargetURL  = 4

	fieldLinkType      = 1
	fieldLinkTargetFid = 2
	fieldLinkDisplayTS = 3

	fieldUserDataType  = 1
	fieldUserDataValue = 2
)

// EncodeMessage serializes a Message using length-delimited, explicitly
// tagged fields (the wire contract of spec §6).
func EncodeMessage(m *message.Message) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldMessageData, protowire.BytesType)
	b = protowire.AppendBytes(b, encodeData(&m.Data))
	if len(m.Hash) > 0 {
		b = protowire.AppendTag(b, fieldMessageHash, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Hash)
	}
	b = protowire.AppendTag(b, fieldMessageHashScheme, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.HashScheme))
	if len(m.Signature) > 0 {
		b = protowire.AppendTag(b, fieldMessageSignature, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Signature)
	}
	b = protowire.AppendTag(b, fieldMessageSignatureScheme, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.SignatureScheme))
	if len(m.Signer) > 0 {
		b = protowire.AppendTag(b, fieldMessageSigner, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Signer)
	}
	return b
}

// DecodeMessage parses bytes produced by EncodeMessage.
func DecodeMessage(b []byte) (*message.Message, error) {
	m := &message.Message{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, hubstoreerr.ValidationFailure("malformed message: bad tag")
		}
		b = b[n:]
		switch num {
		case fieldMessageData:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed message: bad data field")
			}
			b = b[n:]
			data, err := decodeData(v)
			if err != nil {
				return nil, err
			}
			m.Data = *data
		case fieldMessageHash:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed message: bad hash field")
			}
			b = b[n:]
			m.Hash = append([]byte(nil), v...)
		case fieldMessageHashScheme:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed message: bad hash_scheme field")
			}
			b = b[n:]
			m.HashScheme = uint8(v)
		case fieldMessageSignature:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed message: bad signature field")
			}
			b = b[n:]
			m.Signature = append([]byte(nil), v...)
		case fieldMessageSignatureScheme:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed message: bad signature_scheme field")
			}
			b = b[n:]
			m.SignatureScheme = uint8(v)
		case fieldMessageSigner:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed message: bad signer field")
			}
			b = b[n:]
			m.Signer = append([]byte(nil), v...)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed message: unknown field")
			}
			b = b[n:]
		}
	}
	return m, nil
}

func encodeData(d *message.Data) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldDataType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.Type))
	b = protowire.AppendTag(b, fieldDataFid, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.Fid))
	b = protowire.AppendTag(b, fieldDataTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.Timestamp))
	b = protowire.AppendTag(b, fieldDataNetwork, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.Network))

	var body []byte
	switch d.Type {
	case message.TypeCastAdd:
		if d.CastAdd != nil {
			body = encodeCastAdd(d.CastAdd)
		}
	case message.TypeCastRemove:
		if d.CastRemove != nil {
			body = encodeCastRemove(d.CastRemove)
		}
	case message.TypeReactionAdd, message.TypeReactionRemove:
		if d.Reaction != nil {
			body = encodeReaction(d.Reaction)
		}
	case message.TypeLinkAdd, message.TypeLinkRemove:
		if d.Link != nil {
			body = encodeLink(d.Link)
		}
	case message.TypeUserDataAdd:
		if d.UserData != nil {
			body = encodeUserData(d.UserData)
		}
	}
	if body != nil {
		b = protowire.AppendTag(b, fieldDataBody, protowire.BytesType)
		b = protowire.AppendBytes(b, body)
	}
	return b
}

func decodeData(b []byte) (*message.Data, error) {
	d := &message.Data{}
	var body []byte
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, hubstoreerr.ValidationFailure("malformed data: bad tag")
		}
		b = b[n:]
		switch num {
		case fieldDataType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed data: bad type field")
			}
			b = b[n:]
			d.Type = message.Type(v)
		case fieldDataFid:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed data: bad fid field")
			}
			b = b[n:]
			d.Fid = uint32(v)
		case fieldDataTimestamp:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed data: bad timestamp field")
			}
			b = b[n:]
			d.Timestamp = uint32(v)
		case fieldDataNetwork:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed data: bad network field")
			}
			b = b[n:]
			d.Network = uint8(v)
		case fieldDataBody:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed data: bad body field")
			}
			b = b[n:]
			body = append([]byte(nil), v...)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed data: unknown field")
			}
			b = b[n:]
		}
	}

	if body != nil {
		var err error
		switch d.Type {
		case message.TypeCastAdd:
			d.CastAdd, err = decodeCastAdd(body)
		case message.TypeCastRemove:
			d.CastRemove, err = decodeCastRemove(body)
		case message.TypeReactionAdd, message.TypeReactionRemove:
			d.Reaction, err = decodeReaction(body)
		case message.TypeLinkAdd, message.TypeLinkRemove:
			d.Link, err = decodeLink(body)
		case message.TypeUserDataAdd:
			d.UserData, err = decodeUserData(body)
		}
		if err != nil {
			return nil, err
		}
	}
	return d, nil
}

func encodeCastAdd(c *message.CastAddBody) []byte {
	var b []byte
	if c.Text != "" {
		b = protowire.AppendTag(b, fieldCastAddText, protowire.BytesType)
		b = protowire.AppendString(b, c.Text)
	}
	if c.ParentCast != nil {
		b = protowire.AppendTag(b, fieldCastAddParentFid, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(c.ParentCast.Fid))
		b = protowire.AppendTag(b, fieldCastAddParentHash, protowire.BytesType)
		b = protowire.AppendBytes(b, c.ParentCast.Hash)
	}
	if c.ParentURL != "" {
		b = protowire.AppendTag(b, fieldCastAddParentURL, protowire.BytesType)
		b = protowire.AppendString(b, c.ParentURL)
	}
	for _, mention := range c.Mentions {
		b = protowire.AppendTag(b, fieldCastAddMentions, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(mention))
	}
	for _, embed := range c.Embeds {
		b = protowire.AppendTag(b, fieldCastAddEmbeds, protowire.BytesType)
		b = protowire.AppendString(b, embed)
	}
	return b
}

func decodeCastAdd(b []byte) (*message.CastAddBody, error) {
	c := &message.CastAddBody{}
	var parentFid uint32
	var haveParentFid bool
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, hubstoreerr.ValidationFailure("malformed cast_add: bad tag")
		}
		b = b[n:]
		switch num {
		case fieldCastAddText:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed cast_add: bad text")
			}
			b = b[n:]
			c.Text = string(v)
		case fieldCastAddParentFid:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed cast_add: bad parent_fid")
			}
			b = b[n:]
			parentFid = uint32(v)
			haveParentFid = true
		case fieldCastAddParentHash:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed cast_add: bad parent_hash")
			}
			b = b[n:]
			if haveParentFid || c.ParentCast != nil {
				if c.ParentCast == nil {
					c.ParentCast = &message.CastID{}
				}
				c.ParentCast.Hash = append([]byte(nil), v...)
			}
		case fieldCastAddParentURL:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed cast_add: bad parent_url")
			}
			b = b[n:]
			c.ParentURL = string(v)
		case fieldCastAddMentions:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed cast_add: bad mention")
			}
			b = b[n:]
			c.Mentions = append(c.Mentions, uint32(v))
		case fieldCastAddEmbeds:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed cast_add: bad embed")
			}
			b = b[n:]
			c.Embeds = append(c.Embeds, string(v))
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed cast_add: unknown field")
			}
			b = b[n:]
		}
	}
	if haveParentFid {
		if c.ParentCast == nil {
			c.ParentCast = &message.CastID{}
		}
		c.ParentCast.Fid = parentFid
	}
	return c, nil
}

func encodeCastRemove(c *message.CastRemoveBody) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldCastRemoveTargetHash, protowire.BytesType)
	b = protowire.AppendBytes(b, c.TargetHash)
	return b
}

func decodeCastRemove(b []byte) (*message.CastRemoveBody, error) {
	c := &message.CastRemoveBody{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, hubstoreerr.ValidationFailure("malformed cast_remove: bad tag")
		}
		b = b[n:]
		switch num {
		case fieldCastRemoveTargetHash:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed cast_remove: bad target_hash")
			}
			b = b[n:]
			c.TargetHash = append([]byte(nil), v...)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed cast_remove: unknown field")
			}
			b = b[n:]
		}
	}
	return c, nil
}

func encodeReaction(r *message.ReactionBody) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldReactionType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.ReactionType))
	if r.TargetCast != nil {
		b = protowire.AppendTag(b, fieldReactionTargetFid, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.TargetCast.Fid))
		b = protowire.AppendTag(b, fieldReactionTargetHash, protowire.BytesType)
		b = protowire.AppendBytes(b, r.TargetCast.Hash)
	}
	if r.TargetURL != "" {
		b = protowire.AppendTag(b, fieldReactionTargetURL, protowire.BytesType)
		b = protowire.AppendString(b, r.TargetURL)
	}
	return b
}

func decodeReaction(b []byte) (*message.ReactionBody, error) {
	r := &message.ReactionBody{}
	var targetFid uint32
	var haveTargetFid bool
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, hubstoreerr.ValidationFailure("malformed reaction: bad tag")
		}
		b = b[n:]
		switch num {
		case fieldReactionType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed reaction: bad type")
			}
			b = b[n:]
			r.ReactionType = message.ReactionType(v)
		case fieldReactionTargetFid:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed reaction: bad target_fid")
			}
			b = b[n:]
			targetFid = uint32(v)
			haveTargetFid = true
		case fieldReactionTargetHash:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed reaction: bad target_hash")
			}
			b = b[n:]
			if r.TargetCast == nil {
				r.TargetCast = &message.CastID{}
			}
			r.TargetCast.Hash = append([]byte(nil), v...)
		case fieldReactionTargetURL:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed reaction: bad target_url")
			}
			b = b[n:]
			r.TargetURL = string(v)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed reaction: unknown field")
			}
			b = b[n:]
		}
	}
	if haveTargetFid {
		if r.TargetCast == nil {
			r.TargetCast = &message.CastID{}
		}
		r.TargetCast.Fid = targetFid
	}
	return r, nil
}

func encodeLink(l *message.LinkBody) []byte {
	var b []byte
	if l.LinkType != "" {
		b = protowire.AppendTag(b, fieldLinkType, protowire.BytesType)
		b = protowire.AppendString(b, l.LinkType)
	}
	b = protowire.AppendTag(b, fieldLinkTargetFid, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(l.TargetFid))
	b = protowire.AppendTag(b, fieldLinkDisplayTS, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(l.DisplayTS))
	return b
}

func decodeLink(b []byte) (*message.LinkBody, error) {
	l := &message.LinkBody{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, hubstoreerr.ValidationFailure("malformed link: bad tag")
		}
		b = b[n:]
		switch num {
		case fieldLinkType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed link: bad link_type")
			}
			b = b[n:]
			l.LinkType = string(v)
		case fieldLinkTargetFid:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed link: bad target_fid")
			}
			b = b[n:]
			l.TargetFid = uint32(v)
		case fieldLinkDisplayTS:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed link: bad display_ts")
			}
			b = b[n:]
			l.DisplayTS = uint32(v)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed link: unknown field")
			}
			b = b[n:]
		}
	}
	return l, nil
}

func encodeUserData(u *message.UserDataBody) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldUserDataType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(u.Type))
	if u.Value != "" {
		b = protowire.AppendTag(b, fieldUserDataValue, protowire.BytesType)
		b = protowire.AppendString(b, u.Value)
	}
	return b
}

func decodeUserData(b []byte) (*message.UserDataBody, error) {
	u := &message.UserDataBody{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, hubstoreerr.ValidationFailure("malformed user_data: bad tag")
		}
		b = b[n:]
		switch num {
		case fieldUserDataType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed user_data: bad type")
			}
			b = b[n:]
			u.Type = message.UserDataType(v)
		case fieldUserDataValue:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed user_data: bad value")
			}
			b = b[n:]
			u.Value = string(v)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed user_data: unknown field")
			}
			b = b[n:]
		}
	}
	return u, nil
}
