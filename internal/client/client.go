// Package client is a Kinetic protocol client for the simulator.
//
// A Client owns one connection. Calls are serialized; each request gets
// the next sequence number and waits for its response.
package client

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/stephzylstra/kinetic-sim/internal/core/domain"
	ks "github.com/stephzylstra/kinetic-sim/internal/server/kineticserver"
)

// ErrResponseHMAC is returned when a signed response does not verify.
var ErrResponseHMAC = errors.New("client: response hmac mismatch")

// Options configures a Client.
type Options struct {
	// Identity is the ACL identity the client authenticates as.
	Identity int64
	// Key signs requests. Empty sends unsigned requests.
	Key []byte
	// Algorithm is the HMAC algorithm for Key (default HmacSHA1).
	Algorithm domain.HMACAlgorithm
	// Timeout bounds each call when the context has no deadline.
	Timeout time.Duration
	// TLSConfig enables TLS when set.
	TLSConfig *tls.Config
}

// DefaultOptions returns options for the factory identity.
func DefaultOptions() Options {
	return Options{
		Identity:  1,
		Key:       []byte("asdfasdf"),
		Algorithm: domain.HMACSHA1,
		Timeout:   30 * time.Second,
	}
}

// StatusError is a non-success response.
type StatusError struct {
	Code    ks.StatusCode
	Message string
	// FailedSequence names the rejected op of a batch when
	// HasFailedSequence is set.
	FailedSequence    int64
	HasFailedSequence bool
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("kinetic: %s", e.Code)
	}
	return fmt.Sprintf("kinetic: %s: %s", e.Code, e.Message)
}

// IsStatus reports whether err is a StatusError with code.
func IsStatus(err error, code ks.StatusCode) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// WriteOptions controls versioning and durability of a write.
type WriteOptions struct {
	// NewVersion is stored with the entry.
	NewVersion []byte
	// DBVersion must equal the stored version unless Force is set.
	DBVersion []byte
	// Force skips the version check.
	Force bool
	// Sync selects durability; zero is write-through.
	Sync ks.Synchronization
}

// Entry is a stored key-value pair.
type Entry struct {
	Key     []byte
	Value   []byte
	Version []byte
}

// Client is a connection to a Kinetic device.
type Client struct {
	opts Options

	mu     sync.Mutex
	conn   net.Conn
	br     *bufio.Reader
	bw     *bufio.Writer
	seq    int64
	connID int64

	nextBatch uint32
}

// Dial connects to the device at addr.
func Dial(ctx context.Context, addr string, opts Options) (*Client, error) {
	if opts.Algorithm == 0 {
		opts.Algorithm = domain.HMACSHA1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	var d net.Dialer
	var conn net.Conn
	var err error
	if opts.TLSConfig != nil {
		td := tls.Dialer{NetDialer: &d, Config: opts.TLSConfig}
		conn, err = td.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return New(conn, opts), nil
}

// New wraps an established connection.
func New(conn net.Conn, opts Options) *Client {
	if opts.Algorithm == 0 {
		opts.Algorithm = domain.HMACSHA1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{
		opts: opts,
		conn: conn,
		br:   bufio.NewReader(conn),
		bw:   bufio.NewWriter(conn),
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// ConnectionID returns the id the device assigned, or 0 before the first
// response.
func (c *Client) ConnectionID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connID
}

// Noop checks that the device answers.
func (c *Client) Noop(ctx context.Context) error {
	_, _, err := c.call(ctx, &ks.Command{Header: ks.Header{MessageType: ks.MessageNoop}}, nil)
	return err
}

// Get returns the entry stored under key.
func (c *Client) Get(ctx context.Context, key []byte) (*Entry, error) {
	cmd := &ks.Command{
		Header: ks.Header{MessageType: ks.MessageGet},
		Body:   ks.Body{KeyValue: &ks.KeyValue{Key: key}},
	}
	resp, value, err := c.call(ctx, cmd, nil)
	if err != nil {
		return nil, err
	}
	e := &Entry{Key: key, Value: value}
	if kv := resp.Body.KeyValue; kv != nil {
		e.Version = kv.DBVersion
	}
	return e, nil
}

// Put stores value under key.
func (c *Client) Put(ctx context.Context, key, value []byte, o *WriteOptions) error {
	_, _, err := c.call(ctx, writeCommand(ks.MessagePut, key, o, 0), value)
	return err
}

// Delete removes key.
func (c *Client) Delete(ctx context.Context, key []byte, o *WriteOptions) error {
	_, _, err := c.call(ctx, writeCommand(ks.MessageDelete, key, o, 0), nil)
	return err
}

// SetACLs merges acls into the device ACL table by identity.
func (c *Client) SetACLs(ctx context.Context, acls []*domain.ACL) error {
	cmd := &ks.Command{
		Header: ks.Header{MessageType: ks.MessageSecurity},
		Body:   ks.Body{Security: &ks.Security{ACLs: acls}},
	}
	_, _, err := c.call(ctx, cmd, nil)
	return err
}

func writeCommand(t ks.MessageType, key []byte, o *WriteOptions, batchID uint32) *ks.Command {
	if o == nil {
		o = &WriteOptions{}
	}
	return &ks.Command{
		Header: ks.Header{MessageType: t, BatchID: batchID},
		Body: ks.Body{KeyValue: &ks.KeyValue{
			Key:             key,
			NewVersion:      o.NewVersion,
			DBVersion:       o.DBVersion,
			Force:           o.Force,
			Synchronization: o.Sync,
		}},
	}
}

// call sends cmd and waits for its response.
func (c *Client) call(ctx context.Context, cmd *ks.Command, value []byte) (*ks.Command, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq, err := c.sendLocked(ctx, cmd, value)
	if err != nil {
		return nil, nil, err
	}
	return c.receiveLocked(ctx, seq)
}

// sendLocked writes cmd with the next sequence number.
func (c *Client) sendLocked(ctx context.Context, cmd *ks.Command, value []byte) (int64, error) {
	seq := c.seq
	c.seq++
	cmd.Header.Sequence = seq
	cmd.Header.ConnectionID = c.connID

	cmdBytes := cmd.Marshal()
	msg := &ks.Message{AuthType: ks.AuthHMAC, Identity: c.opts.Identity, CommandBytes: cmdBytes}
	if len(c.opts.Key) > 0 {
		sum, err := domain.ComputeHMAC(c.opts.Algorithm, c.opts.Key, cmdBytes)
		if err != nil {
			return 0, err
		}
		msg.HMAC = sum
	}

	if err := c.conn.SetWriteDeadline(c.deadline(ctx)); err != nil {
		return 0, err
	}
	if err := ks.WriteFrame(c.bw, &ks.Frame{Message: msg.Marshal(), Value: value}); err != nil {
		return 0, fmt.Errorf("send: %w", err)
	}
	if err := c.bw.Flush(); err != nil {
		return 0, fmt.Errorf("send: %w", err)
	}
	return seq, nil
}

// receiveLocked reads the response acknowledging seq. Responses to
// earlier requests, such as a rejected batch operation, are skipped.
func (c *Client) receiveLocked(ctx context.Context, seq int64) (*ks.Command, []byte, error) {
	if err := c.conn.SetReadDeadline(c.deadline(ctx)); err != nil {
		return nil, nil, err
	}
	for {
		resp, value, err := c.readResponseLocked()
		if err != nil {
			return nil, nil, err
		}
		if resp.Header.AckSequence < seq && resp.Status.Code != ks.StatusSuccess {
			continue
		}
		if resp.Header.AckSequence != seq && resp.Status.Code == ks.StatusSuccess {
			return nil, nil, fmt.Errorf("receive: ack sequence %d, want %d", resp.Header.AckSequence, seq)
		}
		if resp.Status.Code != ks.StatusSuccess {
			se := &StatusError{Code: resp.Status.Code, Message: resp.Status.Message}
			if b := resp.Body.Batch; b != nil && b.HasFailedSequence {
				se.FailedSequence = b.FailedSequence
				se.HasFailedSequence = true
			}
			return resp, nil, se
		}
		return resp, value, nil
	}
}

func (c *Client) readResponseLocked() (*ks.Command, []byte, error) {
	f, err := ks.ReadFrame(c.br, ks.DefaultMaxMessageSize, ks.DefaultMaxValueSize)
	if err != nil {
		return nil, nil, fmt.Errorf("receive: %w", err)
	}
	msg, err := ks.UnmarshalMessage(f.Message)
	if err != nil {
		return nil, nil, fmt.Errorf("receive: %w", err)
	}
	if len(msg.HMAC) > 0 && len(c.opts.Key) > 0 {
		if err := domain.VerifyHMAC(c.opts.Algorithm, c.opts.Key, msg.CommandBytes, msg.HMAC); err != nil {
			return nil, nil, ErrResponseHMAC
		}
	}
	resp, err := ks.UnmarshalCommand(msg.CommandBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("receive: %w", err)
	}
	if resp.Header.ConnectionID != 0 {
		c.connID = resp.Header.ConnectionID
	}
	return resp, f.Value, nil
}

func (c *Client) deadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(c.opts.Timeout)
}
