package wire

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/edirooss/crdtstore/pkg/hubstoreerr"
	"github.com/edirooss/crdtstore/pkg/message"
)

// EventType classifies a HubEvent. MergeMessage is the only type the core
// emits (spec §4.4 step 7); the enum leaves room for future event kinds at
// the binding layer without changing the wire contract.
type EventType uint8

const (
	EventTypeNone         EventType = 0
	EventTypeMergeMessage EventType = 1
)

// MergeMessageBody is the body of a MergeMessage HubEvent: the message that
// was merged, plus every existing message it superseded in the same
// transaction (spec §4.4 step 7, §8 scenario S2).
type MergeMessageBody struct {
	Message         *message.Message
	DeletedMessages []*message.Message
}

// HubEvent is the durable record of a state change, carrying a monotonic id
// (spec §4.5/§4.6, GLOSSARY).
type HubEvent struct {
	ID   uint64
	Type EventType
	Body MergeMessageBody
}

const (
	fieldEventID   = 1
	fieldEventType = 2
	fieldEventBody = 3

	fieldBodyMessage         = 1
	fieldBodyDeletedMessages = 2
)

// EncodeEvent serializes a HubEvent using the same length-delimited,
// explicitly tagged framing as EncodeMessage.
func EncodeEvent(e *HubEvent) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldEventID, protowire.VarintType)
	b = protowire.AppendVarint(b, e.ID)
	b = protowire.AppendTag(b, fieldEventType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Type))
	b = protowire.AppendTag(b, fieldEventBody, protowire.BytesType)
	b = protowire.AppendBytes(b, encodeMergeMessageBody(&e.Body))
	return b
}

// DecodeEvent parses bytes produced by EncodeEvent.
func DecodeEvent(b []byte) (*HubEvent, error) {
	e := &HubEvent{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, hubstoreerr.ValidationFailure("malformed event: bad tag")
		}
		b = b[n:]
		switch num {
		case fieldEventID:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed event: bad id")
			}
			b = b[n:]
			e.ID = v
		case fieldEventType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed event: bad type")
			}
			b = b[n:]
			e.Type = EventType(v)
		case fieldEventBody:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed event: bad body")
			}
			b = b[n:]
			body, err := decodeMergeMessageBody(v)
			if err != nil {
				return nil, err
			}
			e.Body = *body
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed event: unknown field")
			}
			b = b[n:]
		}
	}
	return e, nil
}

func encodeMergeMessageBody(body *MergeMessageBody) []byte {
	var b []byte
	if body.Message != nil {
		b = protowire.AppendTag(b, fieldBodyMessage, protowire.BytesType)
		b = protowire.AppendBytes(b, EncodeMessage(body.Message))
	}
	for _, deleted := range body.DeletedMessages {
		b = protowire.AppendTag(b, fieldBodyDeletedMessages, protowire.BytesType)
		b = protowire.AppendBytes(b, EncodeMessage(deleted))
	}
	return b
}

func decodeMergeMessageBody(b []byte) (*MergeMessageBody, error) {
	body := &MergeMessageBody{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, hubstoreerr.ValidationFailure("malformed merge_message_body: bad tag")
		}
		b = b[n:]
		switch num {
		case fieldBodyMessage:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed merge_message_body: bad message")
			}
			b = b[n:]
			m, err := DecodeMessage(v)
			if err != nil {
				return nil, err
			}
			body.Message = m
		case fieldBodyDeletedMessages:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed merge_message_body: bad deleted_message")
			}
			b = b[n:]
			m, err := DecodeMessage(v)
			if err != nil {
				return nil, err
			}
			body.DeletedMessages = append(body.DeletedMessages, m)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, hubstoreerr.ValidationFailure("malformed merge_message_body: unknown field")
			}
			b = b[n:]
		}
	}
	return body, nil
}
