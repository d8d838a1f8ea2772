package kineticserver

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Stored values are a protobuf record of the entry version and the value.
const (
	fieldRecordVersion protowire.Number = 1
	fieldRecordValue   protowire.Number = 2
)

func encodeRecord(version, value []byte) []byte {
	b := make([]byte, 0, len(version)+len(value)+8)
	if len(version) > 0 {
		b = appendBytes(b, fieldRecordVersion, version)
	}
	if len(value) > 0 {
		b = appendBytes(b, fieldRecordValue, value)
	}
	return b
}

func decodeRecord(b []byte) (version, value []byte, err error) {
	err = walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldRecordVersion:
			v, n, err := bytesField(num, typ, b)
			version = v
			return n, err
		case fieldRecordValue:
			v, n, err := bytesField(num, typ, b)
			value = v
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("stored record: %w", err)
	}
	return version, value, nil
}
