package aclfile

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/stephzylstra/kinetic-sim/internal/core/domain"
)

// formatVersion is written into every document.
const formatVersion = 1

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("aclfile: cbor encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("aclfile: cbor decoder mode: %v", err))
	}
}

type document struct {
	Version int         `cbor:"1,keyasint"`
	SavedAt int64       `cbor:"2,keyasint"`
	ACLs    []aclRecord `cbor:"3,keyasint"`
}

type aclRecord struct {
	Identity      int64         `cbor:"1,keyasint"`
	Key           []byte        `cbor:"2,keyasint,omitempty"`
	HMACAlgorithm int32         `cbor:"3,keyasint"`
	Scopes        []scopeRecord `cbor:"4,keyasint"`
	MaxPriority   int32         `cbor:"5,keyasint,omitempty"`
}

type scopeRecord struct {
	Offset      int64   `cbor:"1,keyasint"`
	Value       []byte  `cbor:"2,keyasint,omitempty"`
	Permissions []int32 `cbor:"3,keyasint"`
	TLSRequired bool    `cbor:"4,keyasint,omitempty"`
}

func encodeDocument(entries []*domain.ACL, now time.Time) ([]byte, error) {
	doc := document{
		Version: formatVersion,
		SavedAt: now.UnixMilli(),
		ACLs:    make([]aclRecord, 0, len(entries)),
	}
	for _, a := range entries {
		if a == nil {
			continue
		}
		rec := aclRecord{
			Identity:      a.Identity,
			Key:           a.Key,
			HMACAlgorithm: int32(a.HMACAlgorithm),
			MaxPriority:   a.MaxPriority,
			Scopes:        make([]scopeRecord, 0, len(a.Scopes)),
		}
		for _, s := range a.Scopes {
			perms := make([]int32, len(s.Permissions))
			for i, p := range s.Permissions {
				perms[i] = int32(p)
			}
			rec.Scopes = append(rec.Scopes, scopeRecord{
				Offset:      s.Offset,
				Value:       s.Value,
				Permissions: perms,
				TLSRequired: s.TLSRequired,
			})
		}
		doc.ACLs = append(doc.ACLs, rec)
	}
	return encMode.Marshal(doc)
}

func decodeDocument(data []byte) ([]*domain.ACL, error) {
	var doc document
	if err := decMode.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if doc.Version != formatVersion {
		return nil, fmt.Errorf("unsupported format version %d", doc.Version)
	}

	entries := make([]*domain.ACL, 0, len(doc.ACLs))
	for _, rec := range doc.ACLs {
		a := &domain.ACL{
			Identity:      rec.Identity,
			Key:           rec.Key,
			HMACAlgorithm: domain.HMACAlgorithm(rec.HMACAlgorithm),
			MaxPriority:   rec.MaxPriority,
			Scopes:        make([]domain.Scope, 0, len(rec.Scopes)),
		}
		for _, s := range rec.Scopes {
			perms := make([]domain.Permission, len(s.Permissions))
			for i, p := range s.Permissions {
				perms[i] = domain.Permission(p)
			}
			a.Scopes = append(a.Scopes, domain.Scope{
				Offset:      s.Offset,
				Value:       s.Value,
				Permissions: perms,
				TLSRequired: s.TLSRequired,
			})
		}
		entries = append(entries, a)
	}
	return entries, nil
}
