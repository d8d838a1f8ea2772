package kineticserver

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/stephzylstra/kinetic-sim/internal/core/domain"
	"github.com/stephzylstra/kinetic-sim/internal/telemetry/logger"
	"github.com/stephzylstra/kinetic-sim/internal/telemetry/metric"
	"github.com/stephzylstra/kinetic-sim/pkg/cmap"
)

// Server accepts Kinetic connections and serves each on its own goroutine.
type Server struct {
	cfg     *Config
	handler *Handler
	metrics *metric.Registry
	logger  *slog.Logger

	lnMu    sync.Mutex
	plainLn net.Listener
	tlsLn   net.Listener

	running atomic.Bool
	wg      sync.WaitGroup

	conns  *cmap.Map[int64, *Conn]
	nextID atomic.Int64
}

// Conn is one client connection.
type Conn struct {
	netConn net.Conn
	br      *bufio.Reader
	bw      *bufio.Writer

	session  *Session
	limiter  *rate.Limiter
	traceID  string
	openedAt time.Time
	tls      bool
	requests atomic.Int64

	closed atomic.Bool
}

// Close closes the underlying connection once.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.netConn.Close()
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.netConn.RemoteAddr()
}

// ConnInfo describes an open connection.
type ConnInfo struct {
	ID           int64     `json:"id"`
	RemoteAddr   string    `json:"remote_addr"`
	TraceID      string    `json:"trace_id"`
	TLS          bool      `json:"tls"`
	OpenedAt     time.Time `json:"opened_at"`
	Requests     int64     `json:"requests"`
	LastSequence int64     `json:"last_sequence"`
	OpenBatches  int       `json:"open_batches"`
}

// New creates a Kinetic server.
func New(cfg *Config, handler *Handler, metrics *metric.Registry, logger *slog.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:     cfg,
		handler: handler,
		metrics: metrics,
		logger:  logger,
		conns:   cmap.New[int64, *Conn](),
	}
	// Connection ids are unique across restarts of the device.
	s.nextID.Store(time.Now().UnixNano())
	return s
}

// Start opens the listeners and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if s.cfg.Address == "" && s.cfg.TLSAddress == "" {
		return errors.New("kineticserver: no listen address configured")
	}

	s.lnMu.Lock()
	defer s.lnMu.Unlock()

	if s.cfg.Address != "" {
		ln, err := net.Listen("tcp", s.cfg.Address)
		if err != nil {
			return err
		}
		s.plainLn = ln
	}
	if s.cfg.TLSAddress != "" {
		if s.cfg.TLSConfig == nil {
			s.closeListenersLocked()
			return errors.New("kineticserver: TLS config is required for the TLS listener")
		}
		ln, err := tls.Listen("tcp", s.cfg.TLSAddress, s.cfg.TLSConfig)
		if err != nil {
			s.closeListenersLocked()
			return err
		}
		s.tlsLn = ln
	}

	s.running.Store(true)
	for _, ln := range []net.Listener{s.plainLn, s.tlsLn} {
		if ln == nil {
			continue
		}
		s.logger.Info("kinetic server listening", "address", ln.Addr().String(), "tls", ln == s.tlsLn)
		s.wg.Add(1)
		go func(ln net.Listener, isTLS bool) {
			defer s.wg.Done()
			if err := s.acceptLoop(ctx, ln, isTLS); err != nil && s.running.Load() {
				s.logger.Error("kinetic accept loop failed", "error", err)
			}
		}(ln, ln == s.tlsLn)
	}
	return nil
}

// Addr returns the plaintext listener address. It is nil before Start or
// when only TLS is configured.
func (s *Server) Addr() net.Addr {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	return listenerAddr(s.plainLn)
}

// TLSAddr returns the TLS listener address, or nil when TLS is off.
func (s *Server) TLSAddr() net.Addr {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	return listenerAddr(s.tlsLn)
}

func listenerAddr(ln net.Listener) net.Addr {
	if ln == nil {
		return nil
	}
	return ln.Addr()
}

// Shutdown stops accepting, closes open connections and waits for their
// goroutines to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.running.Store(false)

	s.lnMu.Lock()
	firstErr := s.closeListenersLocked()
	s.lnMu.Unlock()

	s.conns.Range(func(_ int64, c *Conn) bool {
		_ = c.Close()
		return true
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return firstErr
}

func (s *Server) closeListenersLocked() error {
	var firstErr error
	for _, ln := range []net.Listener{s.plainLn, s.tlsLn} {
		if ln == nil {
			continue
		}
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Conn) info(id int64) ConnInfo {
	return ConnInfo{
		ID:           id,
		RemoteAddr:   c.RemoteAddr().String(),
		TraceID:      c.traceID,
		TLS:          c.tls,
		OpenedAt:     c.openedAt,
		Requests:     c.requests.Load(),
		LastSequence: c.session.Conn().LastSequence(),
		OpenBatches:  c.session.OpenBatches(),
	}
}

// Connections lists the open connections ordered by id.
func (s *Server) Connections() []ConnInfo {
	out := make([]ConnInfo, 0, s.conns.Count())
	for id, c := range s.conns.All() {
		out = append(out, c.info(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Connection describes the open connection with the given id.
func (s *Server) Connection(id int64) (ConnInfo, bool) {
	c, ok := s.conns.Get(id)
	if !ok {
		return ConnInfo{}, false
	}
	return c.info(id), true
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, isTLS bool) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		c := s.newConn(nc, isTLS)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, c)
		}()
	}
}

func (s *Server) newConn(nc net.Conn, isTLS bool) *Conn {
	conn := domain.NewConnection()
	conn.AssignID(s.nextID.Add(1))

	c := &Conn{
		netConn:  nc,
		br:       bufio.NewReader(nc),
		bw:       bufio.NewWriter(nc),
		session:  NewSession(conn),
		traceID:  ulid.Make().String(),
		openedAt: time.Now(),
		tls:      isTLS,
	}
	if s.cfg.RateLimit > 0 {
		burst := s.cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(s.cfg.RateLimit), burst)
	}
	return c
}

func (s *Server) serveConn(ctx context.Context, c *Conn) {
	id := c.session.Conn().ID()
	ctx = logger.WithLogger(ctx, s.logger.With("remote", c.RemoteAddr().String()))
	ctx = logger.WithConnID(ctx, id)
	ctx = logger.WithTraceID(ctx, c.traceID)
	connLog := logger.L(ctx)

	s.conns.Set(id, c)
	s.metrics.ConnOpened()
	connLog.Debug("connection opened")

	defer func() {
		s.handler.CloseSession(ctx, c.session)
		s.conns.Delete(id)
		s.metrics.ConnClosed()
		_ = c.Close()
		connLog.Debug("connection closed", "requests", c.requests.Load())
	}()

	// Shutdown may have swept the registry before this connection joined.
	if !s.running.Load() {
		return
	}

	readTimeout := s.cfg.readTimeout()
	writeTimeout := s.cfg.writeTimeout()
	idleTimeout := s.cfg.idleTimeout()

	for {
		// Idle connections may wait for the first byte of the next frame.
		if err := c.netConn.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
			return
		}
		if _, err := c.br.Peek(1); err != nil {
			logReadError(connLog, err)
			return
		}

		// Once a frame has started it must arrive within the read timeout.
		if err := c.netConn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return
		}
		f, err := ReadFrame(c.br, s.cfg.maxMessageSize(), s.cfg.maxValueSize())
		if err != nil {
			if errors.Is(err, ErrProtocol) || errors.Is(err, ErrLimitExceeded) {
				connLog.Warn("protocol error, closing connection", "error", err)
				resp := s.handler.Reject(ctx, c.session, nil, domain.ErrInvalidRequest.WithDetails(err.Error()))
				_ = c.netConn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if WriteFrame(c.bw, resp) == nil {
					_ = c.bw.Flush()
				}
				return
			}
			logReadError(connLog, err)
			return
		}
		c.requests.Add(1)

		var resp *Frame
		if c.limiter != nil && !c.limiter.Allow() {
			resp = s.handler.Reject(ctx, c.session, f, errServiceBusy)
		} else {
			resp = s.handler.Handle(ctx, c.session, f)
		}
		if resp == nil {
			continue
		}

		if err := c.netConn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return
		}
		if err := WriteFrame(c.bw, resp); err != nil {
			return
		}
		if err := c.bw.Flush(); err != nil {
			return
		}
		if !c.session.Conn().Announced() {
			c.session.Conn().MarkAnnounced()
		}
	}
}

func logReadError(l *slog.Logger, err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		l.Debug("connection timed out")
		return
	}
	l.Debug("connection read error", "error", err)
}
