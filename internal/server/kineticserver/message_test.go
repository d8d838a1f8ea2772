package kineticserver

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/stephzylstra/kinetic-sim/internal/core/domain"
)

func TestMessageType_Response(t *testing.T) {
	pairs := map[MessageType]MessageType{
		MessageGet:        MessageGetResponse,
		MessagePut:        MessagePutResponse,
		MessageDelete:     MessageDeleteResponse,
		MessageSecurity:   MessageSecurityResponse,
		MessageNoop:       MessageNoopResponse,
		MessageStartBatch: MessageStartBatchResponse,
		MessageEndBatch:   MessageEndBatchResponse,
		MessageAbortBatch: MessageAbortBatchResponse,
	}
	for req, want := range pairs {
		if got := req.Response(); got != want {
			t.Errorf("%s.Response() = %s, want %s", req, got, want)
		}
	}
}

func TestMessage_RoundTrip(t *testing.T) {
	in := &Message{
		AuthType:     AuthHMAC,
		Identity:     7,
		HMAC:         []byte{0xde, 0xad, 0xbe, 0xef},
		CommandBytes: []byte("command"),
	}
	out, err := UnmarshalMessage(in.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalMessage() error = %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("message mismatch (-want +got):\n%s", diff)
	}
}

func TestCommand_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		cmd  *Command
	}{
		{
			name: "put",
			cmd: &Command{
				Header: Header{Sequence: 12, MessageType: MessagePut, BatchID: 3},
				Body: Body{KeyValue: &KeyValue{
					NewVersion:      []byte("v2"),
					Key:             []byte("key"),
					DBVersion:       []byte("v1"),
					Force:           true,
					Synchronization: SyncWriteBack,
				}},
			},
		},
		{
			name: "security",
			cmd: &Command{
				Header: Header{Sequence: 1, MessageType: MessageSecurity},
				Body: Body{Security: &Security{ACLs: []*domain.ACL{
					{
						Identity:      7,
						Key:           []byte("secret"),
						HMACAlgorithm: domain.HMACSHA256,
						Scopes: []domain.Scope{
							{Offset: 2, Value: []byte("ab"), Permissions: []domain.Permission{domain.PermissionRead, domain.PermissionWrite}},
							{Permissions: []domain.Permission{domain.PermissionSecurity}, TLSRequired: true},
						},
						MaxPriority: 4,
					},
					{
						Identity:      8,
						HMACAlgorithm: domain.HMACSHA1,
						Scopes:        []domain.Scope{{Offset: -1, Permissions: []domain.Permission{domain.PermissionRead}}},
					},
				}}},
			},
		},
		{
			name: "end batch response",
			cmd: &Command{
				Header: Header{ConnectionID: 99, AckSequence: 5, MessageType: MessageEndBatchResponse, BatchID: 1},
				Body:   Body{Batch: &BatchBody{Count: 2, FailedSequence: 4, HasFailedSequence: true}},
				Status: Status{Code: StatusVersionMismatch, Message: "version mismatch", DetailedMessage: []byte("x")},
			},
		},
		{
			name: "failed at sequence zero",
			cmd: &Command{
				Header: Header{MessageType: MessageEndBatchResponse, BatchID: 2},
				Body:   Body{Batch: &BatchBody{HasFailedSequence: true}},
				Status: Status{Code: StatusVersionMismatch},
			},
		},
		{
			name: "noop",
			cmd:  &Command{Header: Header{Sequence: 0, MessageType: MessageNoop}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UnmarshalCommand(tt.cmd.Marshal())
			if err != nil {
				t.Fatalf("UnmarshalCommand() error = %v", err)
			}
			if diff := cmp.Diff(tt.cmd, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("command mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUnmarshalScope_PackedPermissions(t *testing.T) {
	var packed []byte
	packed = protowire.AppendVarint(packed, uint64(domain.PermissionRead))
	packed = protowire.AppendVarint(packed, uint64(domain.PermissionDelete))

	var scope []byte
	scope = appendVarint(scope, fieldScopeOffset, 1)
	scope = appendBytes(scope, fieldScopePermission, packed)
	scope = appendVarint(scope, fieldScopePermission, uint64(domain.PermissionGetLog))

	got, err := unmarshalScope(scope)
	if err != nil {
		t.Fatalf("unmarshalScope() error = %v", err)
	}
	want := domain.Scope{
		Offset:      1,
		Permissions: []domain.Permission{domain.PermissionRead, domain.PermissionDelete, domain.PermissionGetLog},
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("scope mismatch (-want +got):\n%s", diff)
	}
}

func TestUnmarshalCommand_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"truncated tag", []byte{0x80}},
		{"truncated bytes", []byte{0x0a, 0x05, 0x01}},
		{"wrong wire type", appendVarint(nil, fieldCommandHeader, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := UnmarshalCommand(tt.input); !errors.Is(err, ErrProtocol) {
				t.Errorf("UnmarshalCommand() error = %v, want ErrProtocol", err)
			}
		})
	}
}

func TestUnmarshalCommand_SkipsUnknownFields(t *testing.T) {
	cmd := &Command{Header: Header{Sequence: 3, MessageType: MessageGet}}
	b := cmd.Marshal()
	b = appendBytes(b, 15, []byte("future"))
	b = appendVarint(b, 16, 42)

	got, err := UnmarshalCommand(b)
	if err != nil {
		t.Fatalf("UnmarshalCommand() error = %v", err)
	}
	if got.Header != cmd.Header {
		t.Errorf("header = %+v, want %+v", got.Header, cmd.Header)
	}
}

func TestRecord_RoundTrip(t *testing.T) {
	tests := []struct {
		name           string
		version, value []byte
	}{
		{"both", []byte("v1"), []byte("payload")},
		{"no version", nil, []byte("payload")},
		{"empty value", []byte("v1"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, value, err := decodeRecord(encodeRecord(tt.version, tt.value))
			if err != nil {
				t.Fatal(err)
			}
			if string(version) != string(tt.version) || string(value) != string(tt.value) {
				t.Errorf("decodeRecord() = (%q, %q), want (%q, %q)", version, value, tt.version, tt.value)
			}
		})
	}
}
