package aclfile

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// sealMagic prefixes files sealed at rest. Plain files start with a CBOR map.
var sealMagic = []byte("KACLSEAL1")

// MinSealKeyLength is the minimum length of the configured sealing secret.
const MinSealKeyLength = 16

var (
	// ErrSealKeyTooShort is returned for secrets below MinSealKeyLength.
	ErrSealKeyTooShort = errors.New("aclfile: seal key too short (minimum 16 bytes)")

	// ErrSealed is returned when a sealed file is read without a key.
	ErrSealed = errors.New("aclfile: file is sealed and no key is configured")

	// ErrUnsealFailed is returned for a wrong key or corrupted file.
	ErrUnsealFailed = errors.New("aclfile: unseal failed - wrong key or corrupted data")
)

// sealer encrypts file contents with XChaCha20-Poly1305 under a key
// derived from the configured secret with HKDF-SHA256.
type sealer struct {
	aead cipher.AEAD
}

func newSealer(secret []byte) (*sealer, error) {
	if len(secret) < MinSealKeyLength {
		return nil, ErrSealKeyTooShort
	}

	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, secret, nil, []byte("kinetic-sim acl file"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("aclfile: derive key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &sealer{aead: aead}, nil
}

func (s *sealer) seal(plain []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("aclfile: nonce: %w", err)
	}

	out := make([]byte, 0, len(sealMagic)+len(nonce)+len(plain)+s.aead.Overhead())
	out = append(out, sealMagic...)
	out = append(out, nonce...)
	return s.aead.Seal(out, nonce, plain, sealMagic), nil
}

func (s *sealer) open(data []byte) ([]byte, error) {
	body := data[len(sealMagic):]
	if len(body) < s.aead.NonceSize() {
		return nil, ErrUnsealFailed
	}
	nonce, ciphertext := body[:s.aead.NonceSize()], body[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, sealMagic)
	if err != nil {
		return nil, ErrUnsealFailed
	}
	return plain, nil
}

func isSealed(data []byte) bool {
	return bytes.HasPrefix(data, sealMagic)
}
