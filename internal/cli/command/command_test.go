package command

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stephzylstra/kinetic-sim/internal/core/service"
	"github.com/stephzylstra/kinetic-sim/internal/server/httpserver"
	"github.com/stephzylstra/kinetic-sim/internal/server/httpserver/handler"
	ks "github.com/stephzylstra/kinetic-sim/internal/server/kineticserver"
	"github.com/stephzylstra/kinetic-sim/internal/storage"
	"github.com/stephzylstra/kinetic-sim/internal/storage/aclfile"
	"github.com/stephzylstra/kinetic-sim/internal/telemetry/logger"
)

// harness runs a simulator with its ops endpoint and an isolated CLI
// config file.
type harness struct {
	t         *testing.T
	device    string
	ops       string
	configDir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := aclfile.New(t.TempDir(), aclfile.WithLogger(logger.Discard()))
	if err != nil {
		t.Fatal(err)
	}
	sec := service.NewSecurityService(store, service.DefaultSecurityServiceConfig(), logger.Discard())
	if err := sec.Init(context.Background()); err != nil {
		t.Fatal(err)
	}

	engine := storage.NewMemoryEngine()
	srvCfg := ks.DefaultConfig()
	srvCfg.Address = "127.0.0.1:0"
	srv := ks.New(srvCfg, ks.NewHandler(engine, sec, nil), nil, logger.Discard())
	if err := srv.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	routerCfg := httpserver.DefaultRouterConfig()
	routerCfg.Logger = logger.Discard()
	routerCfg.RateLimit = 0
	routerCfg.Deps = handler.Deps{Connections: srv, ACL: sec, Storage: engine, StartedAt: time.Now()}
	ops := httptest.NewServer(httpserver.NewRouter(routerCfg))
	t.Cleanup(ops.Close)

	return &harness{t: t, device: srv.Addr().String(), ops: ops.URL, configDir: t.TempDir()}
}

// run executes kinetic-cli against the harness and returns stdout.
func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	app := App()
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = io.Discard

	argv := []string{
		"kinetic-cli",
		"--config", filepath.Join(h.configDir, "cli.yaml"),
		"--server", h.device,
		"--ops-server", h.ops,
		"--timeout", "5s",
	}
	err := app.Run(append(argv, args...))
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	if err != nil {
		h.t.Fatalf("kinetic-cli %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestApp_Commands(t *testing.T) {
	app := App()
	if app.Name != "kinetic-cli" {
		t.Errorf("Name = %q", app.Name)
	}

	names := make(map[string]bool)
	for _, cmd := range app.Commands {
		names[cmd.Name] = true
	}
	for _, want := range []string{"noop", "put", "get", "delete", "batch", "security", "status", "connections", "acl", "storage", "config"} {
		if !names[want] {
			t.Errorf("missing command %q", want)
		}
	}
}

func TestNoop(t *testing.T) {
	h := newHarness(t)
	if out := h.mustRun("noop"); !strings.HasPrefix(out, "OK connection=") {
		t.Errorf("noop output = %q", out)
	}

	if _, err := h.run("--key", "wrong", "noop"); err == nil {
		t.Error("noop with a wrong key succeeded")
	}
}

func TestKV_PutGetDelete(t *testing.T) {
	h := newHarness(t)

	h.mustRun("put", "--new-version", "v1", "sensor/1", "21.5")

	var got EntryView
	out := h.mustRun("-o", "json", "get", "sensor/1")
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got != (EntryView{Key: "sensor/1", Value: "21.5", Version: "v1"}) {
		t.Errorf("get = %+v", got)
	}

	if out := h.mustRun("get", "--raw", "sensor/1"); out != "21.5" {
		t.Errorf("get --raw = %q", out)
	}

	if _, err := h.run("put", "sensor/1", "22"); err == nil || !strings.Contains(err.Error(), "VERSION_MISMATCH") {
		t.Errorf("put without db-version error = %v", err)
	}
	h.mustRun("put", "--db-version", "v1", "--new-version", "v2", "sensor/1", "22")

	h.mustRun("delete", "--db-version", "v2", "sensor/1")
	if _, err := h.run("get", "sensor/1"); err == nil || !strings.Contains(err.Error(), "NOT_FOUND") {
		t.Errorf("get after delete error = %v", err)
	}
}

func TestKV_HexAndFile(t *testing.T) {
	h := newHarness(t)
	value := writeFile(t, "value.bin", "from-file")

	h.mustRun("put", "--hex", "--file", value, "00ff")
	out := h.mustRun("-o", "json", "get", "--hex", "00ff")
	if !strings.Contains(out, `"value": "66726f6d2d66696c65"`) {
		t.Errorf("get --hex = %s", out)
	}

	if _, err := h.run("put", "--hex", "zz", "00"); err == nil {
		t.Error("put with invalid hex key succeeded")
	}
	if _, err := h.run("put", "onlykey"); err == nil {
		t.Error("put without a value succeeded")
	}
}

func TestBatch(t *testing.T) {
	h := newHarness(t)
	h.mustRun("put", "old", "x")

	file := writeFile(t, "ops.yaml", `
operations:
  - op: put
    key: a
    value: "1"
  - op: put
    key: b
    value: "2"
    new_version: v1
  - op: delete
    key: old
    force: true
`)
	if out := h.mustRun("batch", "-f", file); !strings.Contains(out, "committed batch") {
		t.Errorf("batch output = %q", out)
	}
	if out := h.mustRun("get", "--raw", "b"); out != "2" {
		t.Errorf("b = %q", out)
	}
	if _, err := h.run("get", "old"); err == nil {
		t.Error("old still present after batch")
	}

	abort := writeFile(t, "abort.yaml", "operations:\n  - op: put\n    key: c\n    value: \"3\"\n")
	h.mustRun("batch", "--abort", "-f", abort)
	if _, err := h.run("get", "c"); err == nil {
		t.Error("aborted batch was applied")
	}
}

func TestLoadBatchFile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"empty", "operations: []", "no operations"},
		{"unknown op", "operations:\n  - op: range\n    key: a\n", "unknown op"},
		{"empty key", "operations:\n  - op: put\n", "empty key"},
		{"bad yaml", "operations: [", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadBatchFile(writeFile(t, "ops.yaml", tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadBatchFile() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

const readerACL = `
acls:
  - identity: 20
    key: reader
    algorithm: HmacSHA256
    scopes:
      - offset: 0
        value: "pub/"
        permissions: [read]
`

func TestSecurityApply(t *testing.T) {
	h := newHarness(t)
	h.mustRun("put", "pub/a", "hello")
	h.mustRun("put", "priv/a", "secret")

	if out := h.mustRun("security", "apply", "-f", writeFile(t, "acl.yaml", readerACL)); !strings.Contains(out, "applied 1") {
		t.Errorf("apply output = %q", out)
	}

	reader := []string{"--identity", "20", "--key", "reader", "--algorithm", "HmacSHA256"}
	if out, err := h.run(append(reader, "get", "--raw", "pub/a")...); err != nil || out != "hello" {
		t.Errorf("reader get pub/a = %q, %v", out, err)
	}
	if _, err := h.run(append(reader, "get", "priv/a")...); err == nil || !strings.Contains(err.Error(), "NOT_AUTHORIZED") {
		t.Errorf("reader get priv/a error = %v", err)
	}

	out := h.mustRun("acl")
	if !strings.Contains(out, "20") || strings.Contains(out, "reader") || strings.Contains(out, "asdfasdf") {
		t.Errorf("acl output = %q", out)
	}
}

func TestLoadACLFile(t *testing.T) {
	acls, err := LoadACLFile(writeFile(t, "acl.yaml", `
acls:
  - identity: 3
    key: k
    scopes:
      - offset: 2
        value_hex: "ff00"
        permissions: [READ, WRITE, delete]
        tls_required: true
`))
	if err != nil {
		t.Fatalf("LoadACLFile() error = %v", err)
	}
	sc := acls[0].Scopes[0]
	if acls[0].HMACAlgorithm.String() != "HmacSHA1" {
		t.Errorf("algorithm = %s, want default HmacSHA1", acls[0].HMACAlgorithm)
	}
	if !bytes.Equal(sc.Value, []byte{0xff, 0x00}) || sc.Offset != 2 || !sc.TLSRequired || len(sc.Permissions) != 3 {
		t.Errorf("scope = %+v", sc)
	}

	tests := []struct {
		name    string
		content string
	}{
		{"unknown permission", "acls:\n  - identity: 1\n    key: k\n    scopes:\n      - permissions: [fly]\n"},
		{"unknown algorithm", "acls:\n  - identity: 1\n    key: k\n    algorithm: md5\n"},
		{"negative offset", "acls:\n  - identity: 1\n    key: k\n    scopes:\n      - offset: -1\n        permissions: [read]\n"},
		{"bad hex", "acls:\n  - identity: 1\n    key: k\n    scopes:\n      - value_hex: xyz\n        permissions: [read]\n"},
		{"empty", "acls: []"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadACLFile(writeFile(t, "acl.yaml", tt.content)); err == nil {
				t.Error("LoadACLFile() succeeded")
			}
		})
	}
}

func TestOps(t *testing.T) {
	h := newHarness(t)
	h.mustRun("put", "k", "v")

	var status struct {
		Security bool `json:"security"`
	}
	out := h.mustRun("-o", "json", "status")
	if err := json.Unmarshal([]byte(out), &status); err != nil || !status.Security {
		t.Errorf("status = %s (%v)", out, err)
	}

	var st struct {
		Engine    string `json:"engine"`
		TotalKeys uint64 `json:"total_keys"`
	}
	out = h.mustRun("-o", "json", "storage")
	if err := json.Unmarshal([]byte(out), &st); err != nil || st.TotalKeys != 1 {
		t.Errorf("storage = %s (%v)", out, err)
	}

	if out := h.mustRun("connections"); !strings.HasPrefix(out, "ID") {
		t.Errorf("connections output = %q", out)
	}
	if _, err := h.run("connections", "12345"); err == nil || !strings.Contains(err.Error(), "KS-CONN-4040") {
		t.Errorf("connections 12345 error = %v", err)
	}
	if _, err := h.run("connections", "abc"); err == nil {
		t.Error("connections abc succeeded")
	}
}

func TestConfig_Profiles(t *testing.T) {
	h := newHarness(t)

	h.mustRun("--identity", "7", "--key", "lab-key", "config", "save", "lab")
	h.mustRun("config", "use", "lab")

	out := h.mustRun("-o", "json", "config", "show")
	var p struct {
		Server   string `json:"server"`
		Identity int64  `json:"identity"`
		Key      string `json:"key"`
	}
	if err := json.Unmarshal([]byte(out), &p); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if p.Identity != 7 || p.Key != "****" || p.Server != h.device {
		t.Errorf("profile = %+v", p)
	}

	if out := h.mustRun("config", "list"); !strings.Contains(out, "lab") || strings.Contains(out, "lab-key") {
		t.Errorf("config list = %q", out)
	}
	if _, err := h.run("config", "use", "missing"); err == nil {
		t.Error("use of an unknown profile succeeded")
	}
	if _, err := h.run("--profile", "missing", "noop"); err == nil {
		t.Error("--profile missing succeeded")
	}
}

func TestParseSync(t *testing.T) {
	tests := []struct {
		in      string
		want    ks.Synchronization
		wantErr bool
	}{
		{"", ks.SyncWriteThrough, false},
		{"writethrough", ks.SyncWriteThrough, false},
		{"WRITE_BACK", ks.SyncWriteBack, false},
		{"flush", ks.SyncFlush, false},
		{"later", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseSync(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseSync(%q) = %v, %v", tt.in, got, err)
		}
	}
}
