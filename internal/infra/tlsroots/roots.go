package tlsroots

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// ErrNoCertsFound is returned for PEM input without a CERTIFICATE block.
var ErrNoCertsFound = errors.New("tlsroots: no certificates found in PEM file")

// SystemPool returns a copy of the system roots, or an empty pool on
// platforms without one.
func SystemPool() *x509.CertPool {
	if pool, err := x509.SystemCertPool(); err == nil {
		return pool
	}
	return x509.NewCertPool()
}

// LoadPool adds the certificates of every file to base and returns it.
// A nil base starts from an empty pool.
func LoadPool(base *x509.CertPool, files ...string) (*x509.CertPool, error) {
	if base == nil {
		base = x509.NewCertPool()
	}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("tlsroots: read cert file %s: %w", f, err)
		}
		if err := AppendPEM(base, data); err != nil {
			return nil, fmt.Errorf("%w (%s)", err, f)
		}
	}
	return base, nil
}

// AppendPEM parses the CERTIFICATE blocks of data into pool, skipping other
// block types. Unlike x509.CertPool.AppendCertsFromPEM it reports a block
// that fails to parse.
func AppendPEM(pool *x509.CertPool, data []byte) error {
	found := false
	for {
		block, rest := pem.Decode(data)
		if block == nil {
			break
		}
		data = rest
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return fmt.Errorf("tlsroots: parse certificate: %w", err)
		}
		pool.AddCert(cert)
		found = true
	}
	if !found {
		return ErrNoCertsFound
	}
	return nil
}
