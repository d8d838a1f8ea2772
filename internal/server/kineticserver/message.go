package kineticserver

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/stephzylstra/kinetic-sim/internal/core/domain"
)

// MessageType identifies a command. A response type is its request type
// minus one.
type MessageType int32

// Message types.
const (
	MessageGetResponse        MessageType = 1
	MessageGet                MessageType = 2
	MessagePutResponse        MessageType = 3
	MessagePut                MessageType = 4
	MessageDeleteResponse     MessageType = 5
	MessageDelete             MessageType = 6
	MessageSecurityResponse   MessageType = 23
	MessageSecurity           MessageType = 24
	MessageNoopResponse       MessageType = 29
	MessageNoop               MessageType = 30
	MessageStartBatchResponse MessageType = 41
	MessageStartBatch         MessageType = 42
	MessageEndBatchResponse   MessageType = 43
	MessageEndBatch           MessageType = 44
	MessageAbortBatchResponse MessageType = 45
	MessageAbortBatch         MessageType = 46
)

var messageTypeNames = map[MessageType]string{
	MessageGetResponse:        "GET_RESPONSE",
	MessageGet:                "GET",
	MessagePutResponse:        "PUT_RESPONSE",
	MessagePut:                "PUT",
	MessageDeleteResponse:     "DELETE_RESPONSE",
	MessageDelete:             "DELETE",
	MessageSecurityResponse:   "SECURITY_RESPONSE",
	MessageSecurity:           "SECURITY",
	MessageNoopResponse:       "NOOP_RESPONSE",
	MessageNoop:               "NOOP",
	MessageStartBatchResponse: "START_BATCH_RESPONSE",
	MessageStartBatch:         "START_BATCH",
	MessageEndBatchResponse:   "END_BATCH_RESPONSE",
	MessageEndBatch:           "END_BATCH",
	MessageAbortBatchResponse: "ABORT_BATCH_RESPONSE",
	MessageAbortBatch:         "ABORT_BATCH",
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MessageType(%d)", int32(t))
}

// Response returns the response type for a request type.
func (t MessageType) Response() MessageType {
	return t - 1
}

// AuthType says how a message is authenticated.
type AuthType int32

// Authentication types.
const (
	AuthHMAC              AuthType = 1
	AuthPIN               AuthType = 2
	AuthUnsolicitedStatus AuthType = 3
)

// Synchronization selects the durability of a write.
type Synchronization int32

// Synchronization modes.
const (
	SyncWriteThrough Synchronization = 1
	SyncWriteBack    Synchronization = 2
	SyncFlush        Synchronization = 3
)

// Durable reports whether the write must be durable before the response.
// An unset mode is write-through.
func (s Synchronization) Durable() bool {
	return s != SyncWriteBack
}

// Message is the authenticated envelope of a command.
type Message struct {
	AuthType     AuthType
	Identity     int64
	HMAC         []byte
	CommandBytes []byte
}

// Command is a request or response.
type Command struct {
	Header Header
	Body   Body
	Status Status
}

// Header carries command routing fields.
type Header struct {
	ConnectionID int64
	Sequence     int64
	AckSequence  int64
	MessageType  MessageType
	BatchID      uint32
}

// Body holds the command payload. At most the fields relevant to the
// message type are set.
type Body struct {
	KeyValue *KeyValue
	Security *Security
	Batch    *BatchBody
}

// KeyValue is the payload of GET, PUT and DELETE.
type KeyValue struct {
	NewVersion      []byte
	Key             []byte
	DBVersion       []byte
	Force           bool
	Synchronization Synchronization
}

// Security is the payload of SECURITY.
type Security struct {
	ACLs []*domain.ACL
}

// BatchBody is the payload of END_BATCH and its response.
type BatchBody struct {
	Count int32
	// FailedSequence is set only when HasFailedSequence is.
	FailedSequence    int64
	HasFailedSequence bool
}

// Status reports the outcome of a command.
type Status struct {
	Code            StatusCode
	Message         string
	DetailedMessage []byte
}

// Field numbers.
const (
	fieldMessageAuthType     protowire.Number = 4
	fieldMessageHMACAuth     protowire.Number = 5
	fieldMessageCommandBytes protowire.Number = 7

	fieldHMACIdentity protowire.Number = 1
	fieldHMACHMAC     protowire.Number = 2

	fieldCommandHeader protowire.Number = 1
	fieldCommandBody   protowire.Number = 2
	fieldCommandStatus protowire.Number = 3

	fieldHeaderConnectionID protowire.Number = 3
	fieldHeaderSequence     protowire.Number = 4
	fieldHeaderAckSequence  protowire.Number = 6
	fieldHeaderMessageType  protowire.Number = 7
	fieldHeaderBatchID      protowire.Number = 14

	fieldBodyKeyValue protowire.Number = 1
	fieldBodySecurity protowire.Number = 7
	fieldBodyBatch    protowire.Number = 10

	fieldKVNewVersion      protowire.Number = 2
	fieldKVKey             protowire.Number = 3
	fieldKVDBVersion       protowire.Number = 4
	fieldKVForce           protowire.Number = 8
	fieldKVSynchronization protowire.Number = 9

	fieldSecurityACL protowire.Number = 2

	fieldACLIdentity      protowire.Number = 1
	fieldACLKey           protowire.Number = 2
	fieldACLHMACAlgorithm protowire.Number = 3
	fieldACLScope         protowire.Number = 4
	fieldACLMaxPriority   protowire.Number = 5

	fieldScopeOffset      protowire.Number = 1
	fieldScopeValue       protowire.Number = 2
	fieldScopePermission  protowire.Number = 3
	fieldScopeTLSRequired protowire.Number = 4

	fieldBatchCount          protowire.Number = 1
	fieldBatchFailedSequence protowire.Number = 3

	fieldStatusCode            protowire.Number = 1
	fieldStatusMessage         protowire.Number = 2
	fieldStatusDetailedMessage protowire.Number = 3
)

// Marshal encodes the message.
func (m *Message) Marshal() []byte {
	var b []byte
	b = appendVarint(b, fieldMessageAuthType, uint64(int64(m.AuthType)))
	if m.AuthType == AuthHMAC {
		var auth []byte
		auth = appendVarint(auth, fieldHMACIdentity, uint64(m.Identity))
		auth = appendBytes(auth, fieldHMACHMAC, m.HMAC)
		b = appendBytes(b, fieldMessageHMACAuth, auth)
	}
	return appendBytes(b, fieldMessageCommandBytes, m.CommandBytes)
}

// UnmarshalMessage decodes a message.
func UnmarshalMessage(b []byte) (*Message, error) {
	m := &Message{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldMessageAuthType:
			v, n, err := varintField(num, typ, b)
			m.AuthType = AuthType(int32(v))
			return n, err
		case fieldMessageHMACAuth:
			v, n, err := bytesField(num, typ, b)
			if err != nil {
				return 0, err
			}
			return n, walk(v, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
				switch num {
				case fieldHMACIdentity:
					v, n, err := varintField(num, typ, b)
					m.Identity = int64(v)
					return n, err
				case fieldHMACHMAC:
					v, n, err := bytesField(num, typ, b)
					m.HMAC = v
					return n, err
				}
				return 0, nil
			})
		case fieldMessageCommandBytes:
			v, n, err := bytesField(num, typ, b)
			m.CommandBytes = v
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Marshal encodes the command.
func (c *Command) Marshal() []byte {
	var b []byte
	b = appendBytes(b, fieldCommandHeader, c.Header.marshal())
	if body := c.Body.marshal(); len(body) > 0 {
		b = appendBytes(b, fieldCommandBody, body)
	}
	if c.Status.Code != 0 {
		b = appendBytes(b, fieldCommandStatus, c.Status.marshal())
	}
	return b
}

// UnmarshalCommand decodes a command.
func UnmarshalCommand(b []byte) (*Command, error) {
	c := &Command{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldCommandHeader:
			v, n, err := bytesField(num, typ, b)
			if err != nil {
				return 0, err
			}
			return n, c.Header.unmarshal(v)
		case fieldCommandBody:
			v, n, err := bytesField(num, typ, b)
			if err != nil {
				return 0, err
			}
			return n, c.Body.unmarshal(v)
		case fieldCommandStatus:
			v, n, err := bytesField(num, typ, b)
			if err != nil {
				return 0, err
			}
			return n, c.Status.unmarshal(v)
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (h *Header) marshal() []byte {
	var b []byte
	if h.ConnectionID != 0 {
		b = appendVarint(b, fieldHeaderConnectionID, uint64(h.ConnectionID))
	}
	b = appendVarint(b, fieldHeaderSequence, uint64(h.Sequence))
	b = appendVarint(b, fieldHeaderAckSequence, uint64(h.AckSequence))
	b = appendVarint(b, fieldHeaderMessageType, uint64(int64(h.MessageType)))
	if h.BatchID != 0 {
		b = appendVarint(b, fieldHeaderBatchID, uint64(h.BatchID))
	}
	return b
}

func (h *Header) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldHeaderConnectionID:
			v, n, err := varintField(num, typ, b)
			h.ConnectionID = int64(v)
			return n, err
		case fieldHeaderSequence:
			v, n, err := varintField(num, typ, b)
			h.Sequence = int64(v)
			return n, err
		case fieldHeaderAckSequence:
			v, n, err := varintField(num, typ, b)
			h.AckSequence = int64(v)
			return n, err
		case fieldHeaderMessageType:
			v, n, err := varintField(num, typ, b)
			h.MessageType = MessageType(int32(v))
			return n, err
		case fieldHeaderBatchID:
			v, n, err := varintField(num, typ, b)
			h.BatchID = uint32(v)
			return n, err
		}
		return 0, nil
	})
}

func (bd *Body) marshal() []byte {
	var b []byte
	if kv := bd.KeyValue; kv != nil {
		b = appendBytes(b, fieldBodyKeyValue, kv.marshal())
	}
	if sec := bd.Security; sec != nil {
		var s []byte
		for _, acl := range sec.ACLs {
			s = appendBytes(s, fieldSecurityACL, marshalACL(acl))
		}
		b = appendBytes(b, fieldBodySecurity, s)
	}
	if bt := bd.Batch; bt != nil {
		var s []byte
		if bt.Count != 0 {
			s = appendVarint(s, fieldBatchCount, uint64(int64(bt.Count)))
		}
		if bt.HasFailedSequence {
			s = appendVarint(s, fieldBatchFailedSequence, uint64(bt.FailedSequence))
		}
		b = appendBytes(b, fieldBodyBatch, s)
	}
	return b
}

func (bd *Body) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldBodyKeyValue:
			v, n, err := bytesField(num, typ, b)
			if err != nil {
				return 0, err
			}
			bd.KeyValue = &KeyValue{}
			return n, bd.KeyValue.unmarshal(v)
		case fieldBodySecurity:
			v, n, err := bytesField(num, typ, b)
			if err != nil {
				return 0, err
			}
			bd.Security = &Security{}
			return n, bd.Security.unmarshal(v)
		case fieldBodyBatch:
			v, n, err := bytesField(num, typ, b)
			if err != nil {
				return 0, err
			}
			bd.Batch = &BatchBody{}
			return n, bd.Batch.unmarshal(v)
		}
		return 0, nil
	})
}

func (kv *KeyValue) marshal() []byte {
	var b []byte
	if len(kv.NewVersion) > 0 {
		b = appendBytes(b, fieldKVNewVersion, kv.NewVersion)
	}
	if len(kv.Key) > 0 {
		b = appendBytes(b, fieldKVKey, kv.Key)
	}
	if len(kv.DBVersion) > 0 {
		b = appendBytes(b, fieldKVDBVersion, kv.DBVersion)
	}
	if kv.Force {
		b = appendVarint(b, fieldKVForce, 1)
	}
	if kv.Synchronization != 0 {
		b = appendVarint(b, fieldKVSynchronization, uint64(int64(kv.Synchronization)))
	}
	return b
}

func (kv *KeyValue) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldKVNewVersion:
			v, n, err := bytesField(num, typ, b)
			kv.NewVersion = v
			return n, err
		case fieldKVKey:
			v, n, err := bytesField(num, typ, b)
			kv.Key = v
			return n, err
		case fieldKVDBVersion:
			v, n, err := bytesField(num, typ, b)
			kv.DBVersion = v
			return n, err
		case fieldKVForce:
			v, n, err := varintField(num, typ, b)
			kv.Force = protowire.DecodeBool(v)
			return n, err
		case fieldKVSynchronization:
			v, n, err := varintField(num, typ, b)
			kv.Synchronization = Synchronization(int32(v))
			return n, err
		}
		return 0, nil
	})
}

func (s *Security) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != fieldSecurityACL {
			return 0, nil
		}
		v, n, err := bytesField(num, typ, b)
		if err != nil {
			return 0, err
		}
		acl, err := unmarshalACL(v)
		if err != nil {
			return 0, err
		}
		s.ACLs = append(s.ACLs, acl)
		return n, nil
	})
}

func (bt *BatchBody) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldBatchCount:
			v, n, err := varintField(num, typ, b)
			bt.Count = int32(v)
			return n, err
		case fieldBatchFailedSequence:
			v, n, err := varintField(num, typ, b)
			bt.FailedSequence = int64(v)
			bt.HasFailedSequence = true
			return n, err
		}
		return 0, nil
	})
}

func (s *Status) marshal() []byte {
	var b []byte
	b = appendVarint(b, fieldStatusCode, uint64(int64(s.Code)))
	if s.Message != "" {
		b = protowire.AppendTag(b, fieldStatusMessage, protowire.BytesType)
		b = protowire.AppendString(b, s.Message)
	}
	if len(s.DetailedMessage) > 0 {
		b = appendBytes(b, fieldStatusDetailedMessage, s.DetailedMessage)
	}
	return b
}

func (s *Status) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldStatusCode:
			v, n, err := varintField(num, typ, b)
			s.Code = StatusCode(int32(v))
			return n, err
		case fieldStatusMessage:
			v, n, err := bytesField(num, typ, b)
			s.Message = string(v)
			return n, err
		case fieldStatusDetailedMessage:
			v, n, err := bytesField(num, typ, b)
			s.DetailedMessage = v
			return n, err
		}
		return 0, nil
	})
}

func marshalACL(acl *domain.ACL) []byte {
	var b []byte
	b = appendVarint(b, fieldACLIdentity, uint64(acl.Identity))
	if len(acl.Key) > 0 {
		b = appendBytes(b, fieldACLKey, acl.Key)
	}
	b = appendVarint(b, fieldACLHMACAlgorithm, uint64(int64(acl.HMACAlgorithm)))
	for _, sc := range acl.Scopes {
		var s []byte
		if sc.Offset != 0 {
			s = appendVarint(s, fieldScopeOffset, uint64(sc.Offset))
		}
		if len(sc.Value) > 0 {
			s = appendBytes(s, fieldScopeValue, sc.Value)
		}
		for _, p := range sc.Permissions {
			s = appendVarint(s, fieldScopePermission, uint64(int64(p)))
		}
		if sc.TLSRequired {
			s = appendVarint(s, fieldScopeTLSRequired, 1)
		}
		b = appendBytes(b, fieldACLScope, s)
	}
	if acl.MaxPriority != 0 {
		b = appendVarint(b, fieldACLMaxPriority, uint64(int64(acl.MaxPriority)))
	}
	return b
}

func unmarshalACL(b []byte) (*domain.ACL, error) {
	acl := &domain.ACL{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldACLIdentity:
			v, n, err := varintField(num, typ, b)
			acl.Identity = int64(v)
			return n, err
		case fieldACLKey:
			v, n, err := bytesField(num, typ, b)
			acl.Key = v
			return n, err
		case fieldACLHMACAlgorithm:
			v, n, err := varintField(num, typ, b)
			acl.HMACAlgorithm = domain.HMACAlgorithm(int32(v))
			return n, err
		case fieldACLScope:
			v, n, err := bytesField(num, typ, b)
			if err != nil {
				return 0, err
			}
			sc, err := unmarshalScope(v)
			if err != nil {
				return 0, err
			}
			acl.Scopes = append(acl.Scopes, sc)
			return n, nil
		case fieldACLMaxPriority:
			v, n, err := varintField(num, typ, b)
			acl.MaxPriority = int32(v)
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	return acl, nil
}

func unmarshalScope(b []byte) (domain.Scope, error) {
	var sc domain.Scope
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldScopeOffset:
			v, n, err := varintField(num, typ, b)
			sc.Offset = int64(v)
			return n, err
		case fieldScopeValue:
			v, n, err := bytesField(num, typ, b)
			sc.Value = v
			return n, err
		case fieldScopePermission:
			// Repeated enum, packed or not.
			if typ == protowire.BytesType {
				v, n, err := bytesField(num, typ, b)
				if err != nil {
					return 0, err
				}
				for len(v) > 0 {
					p, m := protowire.ConsumeVarint(v)
					if m < 0 {
						return 0, wireErr(m)
					}
					sc.Permissions = append(sc.Permissions, domain.Permission(int32(p)))
					v = v[m:]
				}
				return n, nil
			}
			v, n, err := varintField(num, typ, b)
			sc.Permissions = append(sc.Permissions, domain.Permission(int32(v)))
			return n, err
		case fieldScopeTLSRequired:
			v, n, err := varintField(num, typ, b)
			sc.TLSRequired = protowire.DecodeBool(v)
			return n, err
		}
		return 0, nil
	})
	return sc, err
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// walk calls fn for every field of b. fn returns the number of bytes it
// consumed after the tag; zero skips the field.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return wireErr(n)
		}
		b = b[n:]

		n, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if n == 0 {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return wireErr(n)
			}
		}
		b = b[n:]
	}
	return nil
}

func varintField(num protowire.Number, typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("%w: field %d: wire type %d, want varint", ErrProtocol, num, typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, wireErr(n)
	}
	return v, n, nil
}

func bytesField(num protowire.Number, typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("%w: field %d: wire type %d, want bytes", ErrProtocol, num, typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, wireErr(n)
	}
	return v, n, nil
}

func wireErr(n int) error {
	return fmt.Errorf("%w: %v", ErrProtocol, protowire.ParseError(n))
}
