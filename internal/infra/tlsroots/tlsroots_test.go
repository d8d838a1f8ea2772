package tlsroots

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stephzylstra/kinetic-sim/internal/telemetry/logger"
)

// writeKeyPair writes a self-signed certificate for 127.0.0.1 with serial.
func writeKeyPair(t *testing.T, certFile, keyFile string, serial int64) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(serial),
		Subject:               pkix.Name{CommonName: "kinetic-simulator"},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0600); err != nil {
		t.Fatal(err)
	}
}

func keyPairFiles(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	certFile := filepath.Join(dir, "server.crt")
	keyFile := filepath.Join(dir, "server.key")
	writeKeyPair(t, certFile, keyFile, 1)
	return certFile, keyFile
}

func serialOf(t *testing.T, w *Watcher) int64 {
	t.Helper()
	cert, err := w.GetCertificate(nil)
	if err != nil || cert == nil {
		t.Fatalf("GetCertificate() = %v, %v", cert, err)
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatal(err)
	}
	return leaf.SerialNumber.Int64()
}

func TestLoadPool(t *testing.T) {
	certFile, keyFile := keyPairFiles(t)

	pool, err := LoadPool(nil, certFile)
	if err != nil || pool == nil {
		t.Fatalf("LoadPool() = %v, %v", pool, err)
	}
	if _, err := LoadPool(nil, keyFile); !errors.Is(err, ErrNoCertsFound) {
		t.Errorf("LoadPool(key) error = %v, want ErrNoCertsFound", err)
	}
	if _, err := LoadPool(SystemPool(), certFile, filepath.Join(t.TempDir(), "missing.pem")); err == nil {
		t.Error("LoadPool() with missing file succeeded")
	}
}

func TestAppendPEM_ParseError(t *testing.T) {
	bad := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte("junk")})
	if err := AppendPEM(x509.NewCertPool(), bad); err == nil || errors.Is(err, ErrNoCertsFound) {
		t.Errorf("AppendPEM(junk) error = %v, want parse error", err)
	}
	if err := AppendPEM(x509.NewCertPool(), nil); !errors.Is(err, ErrNoCertsFound) {
		t.Errorf("AppendPEM(nil) error = %v", err)
	}
}

func TestNewWatcher_Errors(t *testing.T) {
	certFile, _ := keyPairFiles(t)
	if _, err := NewWatcher("/nonexistent.crt", "/nonexistent.key"); err == nil {
		t.Error("NewWatcher() with missing files succeeded")
	}
	if _, err := NewWatcher(certFile, certFile); err == nil {
		t.Error("NewWatcher() with certificate as key succeeded")
	}
}

func TestWatcher_Reload(t *testing.T) {
	certFile, keyFile := keyPairFiles(t)
	w, err := NewWatcher(certFile, keyFile, WithLogger(logger.Discard()))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	if got := serialOf(t, w); got != 1 {
		t.Fatalf("serial = %d, want 1", got)
	}

	writeKeyPair(t, certFile, keyFile, 2)
	if err := w.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if got := serialOf(t, w); got != 2 {
		t.Errorf("serial after Reload() = %d, want 2", got)
	}

	// A broken pair keeps the previous one.
	if err := os.WriteFile(keyFile, []byte("garbage"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := w.Reload(); err == nil {
		t.Error("Reload() of broken key succeeded")
	}
	if got := serialOf(t, w); got != 2 {
		t.Errorf("serial after failed reload = %d, want 2", got)
	}
}

func TestWatcher_ReloadOnChange(t *testing.T) {
	certFile, keyFile := keyPairFiles(t)
	w, err := NewWatcher(certFile, keyFile, WithLogger(logger.Discard()), WithDebounce(10*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	w.StartAsync()
	defer w.Stop()
	time.Sleep(100 * time.Millisecond)

	writeKeyPair(t, certFile, keyFile, 3)

	deadline := time.Now().Add(3 * time.Second)
	for serialOf(t, w) != 3 {
		if time.Now().After(deadline) {
			t.Fatal("certificate not reloaded after change")
		}
		time.Sleep(50 * time.Millisecond)
	}
	w.Stop()
	w.Stop()
}

func TestServerConfig_Handshake(t *testing.T) {
	certFile, keyFile := keyPairFiles(t)
	serverCfg, w, err := ServerConfig(ServerOptions{CertFile: certFile, KeyFile: keyFile, ClientCAFile: certFile, Logger: logger.Discard()})
	if err != nil {
		t.Fatalf("ServerConfig() error = %v", err)
	}
	defer w.Stop()
	if serverCfg.ClientAuth != tls.VerifyClientCertIfGiven {
		t.Errorf("ClientAuth = %v", serverCfg.ClientAuth)
	}

	ln, err := tls.Listen("tcp", "127.0.0.1:0", serverCfg)
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		_ = c.(*tls.Conn).Handshake()
		c.Close()
	}()

	clientCfg, err := ClientConfig(certFile, false)
	if err != nil {
		t.Fatalf("ClientConfig() error = %v", err)
	}
	conn, err := tls.Dial("tcp", ln.Addr().String(), clientCfg)
	if err != nil {
		t.Fatalf("handshake with trusted CA failed: %v", err)
	}
	conn.Close()
}

func TestClientConfig(t *testing.T) {
	cfg, err := ClientConfig("", true)
	if err != nil || !cfg.InsecureSkipVerify {
		t.Errorf("ClientConfig(insecure) = %+v, %v", cfg, err)
	}
	if _, err := ClientConfig("/nonexistent.pem", false); err == nil {
		t.Error("ClientConfig() with missing CA succeeded")
	}
	if _, _, err := ServerConfig(ServerOptions{CertFile: "/nope.crt", KeyFile: "/nope.key"}); err == nil {
		t.Error("ServerConfig() with missing pair succeeded")
	}
}
