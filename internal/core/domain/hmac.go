package domain

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"strings"
)

// HMACAlgorithm identifies the keyed hash an identity signs requests with.
// Values match the Kinetic wire encoding; the zero value is unsupported.
type HMACAlgorithm int32

// HMAC algorithms.
const (
	HMACInvalid HMACAlgorithm = -1
	HMACSHA1    HMACAlgorithm = 1
	HMACSHA256  HMACAlgorithm = 2
)

// Supported reports whether a is in the fixed set of supported algorithms.
func (a HMACAlgorithm) Supported() bool {
	return a == HMACSHA1 || a == HMACSHA256
}

func (a HMACAlgorithm) String() string {
	switch a {
	case HMACSHA1:
		return "HmacSHA1"
	case HMACSHA256:
		return "HmacSHA256"
	default:
		return fmt.Sprintf("INVALID_HMAC_ALGORITHM(%d)", int32(a))
	}
}

// ParseHMACAlgorithm parses an algorithm name such as "HmacSHA1".
func ParseHMACAlgorithm(s string) (HMACAlgorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hmacsha1", "sha1":
		return HMACSHA1, nil
	case "hmacsha256", "sha256":
		return HMACSHA256, nil
	}
	return HMACInvalid, ErrUnsupportedAlgorithm.WithDetailsf("unknown hmac algorithm %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (a HMACAlgorithm) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *HMACAlgorithm) UnmarshalText(text []byte) error {
	parsed, err := ParseHMACAlgorithm(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a HMACAlgorithm) newHash() (func() hash.Hash, error) {
	switch a {
	case HMACSHA1:
		return sha1.New, nil
	case HMACSHA256:
		return sha256.New, nil
	}
	return nil, ErrUnsupportedAlgorithm.WithDetails(a.String())
}

// ComputeHMAC signs msg with key. The message is prefixed with its
// big-endian 32-bit length before hashing.
func ComputeHMAC(alg HMACAlgorithm, key, msg []byte) ([]byte, error) {
	newHash, err := alg.newHash()
	if err != nil {
		return nil, err
	}
	mac := hmac.New(newHash, key)
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(msg)))
	mac.Write(lenPrefix[:])
	mac.Write(msg)
	return mac.Sum(nil), nil
}

// VerifyHMAC checks sum against the HMAC of msg in constant time.
func VerifyHMAC(alg HMACAlgorithm, key, msg, sum []byte) error {
	expected, err := ComputeHMAC(alg, key, msg)
	if err != nil {
		return err
	}
	if !hmac.Equal(expected, sum) {
		return ErrHMACFailure
	}
	return nil
}
