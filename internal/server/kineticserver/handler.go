package kineticserver

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/stephzylstra/kinetic-sim/internal/core/domain"
	"github.com/stephzylstra/kinetic-sim/internal/core/service"
	"github.com/stephzylstra/kinetic-sim/internal/storage"
	"github.com/stephzylstra/kinetic-sim/internal/telemetry/logger"
	"github.com/stephzylstra/kinetic-sim/internal/telemetry/metric"
)

// MaxOpenBatches limits the batches a connection may have open at once.
const MaxOpenBatches = 16

// Handler executes requests against the device store.
type Handler struct {
	engine   storage.KVEngine
	security *service.SecurityService
	metrics  *metric.Registry

	locks keyLocks
}

// NewHandler creates a Handler. metrics may be nil.
func NewHandler(engine storage.KVEngine, security *service.SecurityService, metrics *metric.Registry) *Handler {
	return &Handler{
		engine:   engine,
		security: security,
		metrics:  metrics,
	}
}

// Session is the handler state of one connection. It is owned by the
// connection's goroutine.
type Session struct {
	conn    *domain.Connection
	batches map[uint32]*pendingBatch
	open    atomic.Int32
}

// NewSession creates the state for conn.
func NewSession(conn *domain.Connection) *Session {
	return &Session{
		conn:    conn,
		batches: make(map[uint32]*pendingBatch),
	}
}

// Conn returns the connection state.
func (s *Session) Conn() *domain.Connection {
	return s.conn
}

// OpenBatches returns the number of open batches. Safe from any goroutine.
func (s *Session) OpenBatches() int {
	return int(s.open.Load())
}

func (s *Session) addBatch(id uint32, pb *pendingBatch) {
	s.batches[id] = pb
	s.open.Add(1)
}

func (s *Session) takeBatch(id uint32) (*pendingBatch, bool) {
	pb, ok := s.batches[id]
	if ok {
		delete(s.batches, id)
		s.open.Add(-1)
	}
	return pb, ok
}

type pendingBatch struct {
	batch *storage.Batch
	ops   []batchedOp
}

// batchedOp records the version expectation of one queued mutation.
type batchedOp struct {
	seq        int64
	kind       storage.MutationKind
	key        []byte
	dbVersion  []byte
	newVersion []byte
	force      bool
}

// result is the payload of a successful dispatch.
type result struct {
	body   *Body
	value  []byte
	queued bool
}

// Handle runs one request and returns its response. It returns nil for
// an operation queued into a batch, which gets no response of its own.
func (h *Handler) Handle(ctx context.Context, s *Session, f *Frame) *Frame {
	start := time.Now()

	msg, err := UnmarshalMessage(f.Message)
	if err != nil {
		return h.reply(ctx, s, nil, &Command{}, result{}, domain.ErrInvalidRequest.WithDetails("undecodable message").WithCause(err), start)
	}
	cmd, err := UnmarshalCommand(msg.CommandBytes)
	if err != nil {
		return h.reply(ctx, s, nil, &Command{}, result{}, domain.ErrInvalidRequest.WithDetails("undecodable command").WithCause(err), start)
	}

	// One snapshot serves authentication and authorization.
	table := h.security.Table()

	acl, err := authenticate(table, msg)
	if err != nil {
		return h.reply(ctx, s, nil, cmd, result{}, err, start)
	}
	if err := s.conn.CheckAndAdvance(cmd.Header.Sequence); err != nil {
		h.metrics.SequenceRejected()
		return h.reply(ctx, s, acl, cmd, result{}, err, start)
	}

	res, err := h.dispatch(ctx, s, table, msg.Identity, cmd, f.Value)
	if res.queued && err == nil {
		h.metrics.ObserveRequest(cmd.Header.MessageType.String(), "QUEUED", time.Since(start))
		return nil
	}
	return h.reply(ctx, s, acl, cmd, res, err, start)
}

// Reject answers a frame with err without executing it. The request does
// not consume a sequence number.
func (h *Handler) Reject(ctx context.Context, s *Session, f *Frame, err error) *Frame {
	cmd := &Command{}
	if f != nil {
		if msg, derr := UnmarshalMessage(f.Message); derr == nil {
			if c, derr := UnmarshalCommand(msg.CommandBytes); derr == nil {
				cmd = c
			}
		}
	}
	return h.reply(ctx, s, nil, cmd, result{}, err, time.Now())
}

// CloseSession abandons every batch still open on s.
func (h *Handler) CloseSession(ctx context.Context, s *Session) {
	for id := range s.batches {
		pb, _ := s.takeBatch(id)
		pb.batch.Abandon()
		h.metrics.Batch(metric.ResultAborted)
		logger.L(ctx).Debug("batch abandoned on close", "batch_id", id, "ops", len(pb.ops))
	}
}

// authenticate verifies the message HMAC against the identity's ACL. A
// nil table disables authentication.
func authenticate(table *domain.ACLTable, msg *Message) (*domain.ACL, error) {
	if msg.AuthType != AuthHMAC {
		return nil, domain.ErrInvalidRequest.WithDetailsf("unsupported auth type %d", msg.AuthType)
	}
	if table == nil {
		return nil, nil
	}
	acl, ok := table.Lookup(msg.Identity)
	if !ok {
		return nil, domain.ErrHMACFailure.WithDetailsf("unknown identity %d", msg.Identity)
	}
	if len(acl.Key) == 0 {
		return acl, nil
	}
	if err := domain.VerifyHMAC(acl.HMACAlgorithm, acl.Key, msg.CommandBytes, msg.HMAC); err != nil {
		return nil, err
	}
	return acl, nil
}

func (h *Handler) dispatch(ctx context.Context, s *Session, table *domain.ACLTable, identity int64, cmd *Command, value []byte) (result, error) {
	switch cmd.Header.MessageType {
	case MessageNoop:
		return result{}, nil
	case MessageGet:
		return h.get(ctx, table, identity, cmd)
	case MessagePut:
		return h.put(ctx, s, table, identity, cmd, value)
	case MessageDelete:
		return h.delete(ctx, s, table, identity, cmd)
	case MessageSecurity:
		return h.applySecurity(ctx, table, identity, cmd)
	case MessageStartBatch:
		return h.startBatch(s, table, identity, cmd)
	case MessageEndBatch:
		return h.endBatch(ctx, s, table, identity, cmd)
	case MessageAbortBatch:
		return h.abortBatch(ctx, s, cmd)
	}
	return result{}, domain.ErrInvalidRequest.WithDetailsf("unsupported message type %s", cmd.Header.MessageType)
}

func keyValueOf(cmd *Command) (*KeyValue, error) {
	kv := cmd.Body.KeyValue
	if kv == nil || len(kv.Key) == 0 {
		return nil, domain.ErrInvalidRequest.WithDetails("key is required")
	}
	return kv, nil
}

func (h *Handler) get(ctx context.Context, table *domain.ACLTable, identity int64, cmd *Command) (result, error) {
	kv, err := keyValueOf(cmd)
	if err != nil {
		return result{}, err
	}
	if err := domain.AuthorizeKey(table, identity, domain.PermissionRead, kv.Key); err != nil {
		return result{}, err
	}

	version, value, exists, err := h.load(ctx, kv.Key)
	if err != nil {
		return result{}, err
	}
	if !exists {
		return result{}, domain.ErrNotFound
	}
	return result{
		body:  &Body{KeyValue: &KeyValue{Key: kv.Key, DBVersion: version}},
		value: value,
	}, nil
}

func (h *Handler) put(ctx context.Context, s *Session, table *domain.ACLTable, identity int64, cmd *Command, value []byte) (result, error) {
	kv, err := keyValueOf(cmd)
	if err != nil {
		return result{}, err
	}
	op := storage.Mutation{Kind: storage.MutationPut, Key: kv.Key, Value: encodeRecord(kv.NewVersion, value)}
	return h.mutate(ctx, s, table, identity, cmd, kv, domain.PermissionWrite, op)
}

func (h *Handler) delete(ctx context.Context, s *Session, table *domain.ACLTable, identity int64, cmd *Command) (result, error) {
	kv, err := keyValueOf(cmd)
	if err != nil {
		return result{}, err
	}
	op := storage.Mutation{Kind: storage.MutationDelete, Key: kv.Key}
	return h.mutate(ctx, s, table, identity, cmd, kv, domain.PermissionDelete, op)
}

// mutate authorizes op, then queues it into the request's batch or
// applies it directly.
func (h *Handler) mutate(ctx context.Context, s *Session, table *domain.ACLTable, identity int64, cmd *Command, kv *KeyValue, perm domain.Permission, op storage.Mutation) (result, error) {
	batchID := cmd.Header.BatchID

	if err := domain.AuthorizeKey(table, identity, perm, kv.Key); err != nil {
		if batchID != 0 {
			h.abandon(ctx, s, batchID, "operation not authorized")
		}
		return result{}, err
	}

	if batchID != 0 {
		return result{queued: true}, h.queue(s, batchID, cmd.Header.Sequence, kv, op)
	}

	if !kv.Force {
		defer h.locks.lock(kv.Key)()

		version, _, exists, err := h.load(ctx, kv.Key)
		if err != nil {
			return result{}, err
		}
		if err := checkVersion(op.Kind, version, exists, kv.DBVersion); err != nil {
			return result{}, err
		}
	}

	if err := h.engine.ApplyBatch(ctx, []storage.Mutation{op}, kv.Synchronization.Durable()); err != nil {
		return result{}, domain.ErrInternal.WithCause(err)
	}
	return result{}, nil
}

// checkVersion compares the stored version with the expected one. An
// absent entry matches an empty expectation, except that deleting an
// absent entry reports NotFound.
func checkVersion(kind storage.MutationKind, stored []byte, exists bool, expected []byte) error {
	if !exists {
		if kind == storage.MutationDelete {
			return domain.ErrNotFound
		}
		if len(expected) > 0 {
			return domain.ErrVersionMismatch.WithDetails("entry does not exist")
		}
		return nil
	}
	if !bytes.Equal(stored, expected) {
		return domain.ErrVersionMismatch.WithDetails("stored version differs")
	}
	return nil
}

// load reads and decodes a stored record.
func (h *Handler) load(ctx context.Context, key []byte) (version, value []byte, exists bool, err error) {
	raw, err := h.engine.Get(ctx, key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, domain.ErrInternal.WithCause(err)
	}
	version, value, err = decodeRecord(raw)
	if err != nil {
		return nil, nil, false, domain.ErrInternal.WithCause(err)
	}
	return version, value, true, nil
}

func (h *Handler) applySecurity(ctx context.Context, table *domain.ACLTable, identity int64, cmd *Command) (result, error) {
	if err := domain.Authorize(table, identity, domain.PermissionSecurity); err != nil {
		return result{}, err
	}
	if cmd.Body.Security == nil {
		return result{}, domain.ErrInvalidRequest.WithDetails("security body is required")
	}

	next, err := h.security.ApplySecurityUpdate(ctx, cmd.Body.Security.ACLs)
	if err != nil {
		h.metrics.ACLUpdate(metric.ResultFailure)
		return result{}, err
	}
	h.metrics.ACLUpdate(metric.ResultSuccess)
	logger.L(ctx).Info("acl updated", "identity", identity, "identities", next.Len())
	return result{}, nil
}

func (h *Handler) startBatch(s *Session, table *domain.ACLTable, identity int64, cmd *Command) (result, error) {
	if err := domain.Authorize(table, identity, domain.PermissionWrite); err != nil {
		return result{}, err
	}
	id := cmd.Header.BatchID
	if id == 0 {
		return result{}, domain.ErrInvalidBatch.WithDetails("batch id is required")
	}
	if _, ok := s.batches[id]; ok {
		return result{}, domain.ErrInvalidBatch.WithDetailsf("batch %d is already open", id)
	}
	if len(s.batches) >= MaxOpenBatches {
		return result{}, domain.ErrInvalidBatch.WithDetailsf("too many open batches (max %d)", MaxOpenBatches)
	}
	s.addBatch(id, &pendingBatch{batch: storage.NewBatch(h.engine)})
	return result{}, nil
}

func (h *Handler) queue(s *Session, id uint32, seq int64, kv *KeyValue, op storage.Mutation) error {
	pb, ok := s.batches[id]
	if !ok {
		return domain.ErrInvalidBatch.WithDetailsf("batch %d is not open", id)
	}

	var err error
	if op.Kind == storage.MutationPut {
		err = pb.batch.Put(op.Key, op.Value)
	} else {
		err = pb.batch.Delete(op.Key)
	}
	if err != nil {
		return err
	}
	pb.ops = append(pb.ops, batchedOp{
		seq:        seq,
		kind:       op.Kind,
		key:        bytes.Clone(kv.Key),
		dbVersion:  bytes.Clone(kv.DBVersion),
		newVersion: bytes.Clone(kv.NewVersion),
		force:      kv.Force,
	})
	return nil
}

// overlayEntry is the state of a key after the earlier ops of a batch.
type overlayEntry struct {
	version []byte
	exists  bool
}

func (h *Handler) endBatch(ctx context.Context, s *Session, table *domain.ACLTable, identity int64, cmd *Command) (result, error) {
	id := cmd.Header.BatchID
	if err := domain.Authorize(table, identity, domain.PermissionWrite); err != nil {
		h.abandon(ctx, s, id, "commit not authorized")
		return result{}, err
	}
	pb, ok := s.takeBatch(id)
	if !ok {
		return result{}, domain.ErrInvalidBatch.WithDetailsf("batch %d is not open", id)
	}

	// fail abandons the batch. A nil op means the batch as a whole was
	// rejected and no sequence is reported.
	fail := func(op *batchedOp, err error) (result, error) {
		pb.batch.Abandon()
		h.metrics.Batch(metric.ResultFailure)
		res := result{}
		if op != nil {
			res.body = &Body{Batch: &BatchBody{FailedSequence: op.seq, HasFailedSequence: true}}
		}
		return res, err
	}

	if b := cmd.Body.Batch; b != nil && b.Count != 0 && int(b.Count) != len(pb.ops) {
		return fail(nil, domain.ErrInvalidBatch.WithDetailsf("count %d, queued %d", b.Count, len(pb.ops)))
	}

	keys := make([][]byte, 0, len(pb.ops))
	for _, op := range pb.ops {
		keys = append(keys, op.key)
	}
	defer h.locks.lockAll(keys)()

	overlay := make(map[string]overlayEntry, len(pb.ops))
	for i := range pb.ops {
		op := &pb.ops[i]
		if !op.force {
			cur, seen := overlay[string(op.key)]
			if !seen {
				version, _, exists, err := h.load(ctx, op.key)
				if err != nil {
					return fail(op, err)
				}
				cur = overlayEntry{version: version, exists: exists}
			}
			if err := checkVersion(op.kind, cur.version, cur.exists, op.dbVersion); err != nil {
				return fail(op, err)
			}
		}
		overlay[string(op.key)] = overlayEntry{version: op.newVersion, exists: op.kind == storage.MutationPut}
	}

	if err := pb.batch.Commit(ctx); err != nil {
		h.metrics.Batch(metric.ResultFailure)
		return result{}, err
	}
	h.metrics.Batch(metric.ResultSuccess)
	logger.L(ctx).Debug("batch committed", "batch_id", id, "ops", len(pb.ops))
	return result{body: &Body{Batch: &BatchBody{Count: int32(len(pb.ops))}}}, nil
}

func (h *Handler) abortBatch(ctx context.Context, s *Session, cmd *Command) (result, error) {
	id := cmd.Header.BatchID
	if !h.abandon(ctx, s, id, "aborted by client") {
		return result{}, domain.ErrInvalidBatch.WithDetailsf("batch %d is not open", id)
	}
	return result{}, nil
}

// abandon drops batch id of s and reports whether it was open.
func (h *Handler) abandon(ctx context.Context, s *Session, id uint32, reason string) bool {
	pb, ok := s.takeBatch(id)
	if !ok {
		return false
	}
	pb.batch.Abandon()
	h.metrics.Batch(metric.ResultAborted)
	logger.L(ctx).Debug("batch abandoned", "batch_id", id, "reason", reason)
	return true
}

// reply builds the response frame for req. The response is signed with
// the requester's key when it authenticated with one, and carries the
// connection id until the connection has been announced.
func (h *Handler) reply(ctx context.Context, s *Session, acl *domain.ACL, req *Command, res result, err error, start time.Time) *Frame {
	status := statusFor(err)

	resp := &Command{
		Header: Header{
			AckSequence: req.Header.Sequence,
			MessageType: req.Header.MessageType.Response(),
			BatchID:     req.Header.BatchID,
		},
		Status: status,
	}
	if res.body != nil {
		resp.Body = *res.body
	}
	if !s.conn.Announced() {
		resp.Header.ConnectionID = s.conn.ID()
	}

	cmdBytes := resp.Marshal()
	msg := &Message{AuthType: AuthHMAC, CommandBytes: cmdBytes}
	if acl != nil && len(acl.Key) > 0 {
		if sum, herr := domain.ComputeHMAC(acl.HMACAlgorithm, acl.Key, cmdBytes); herr == nil {
			msg.Identity = acl.Identity
			msg.HMAC = sum
		}
	}

	h.metrics.ObserveRequest(req.Header.MessageType.String(), status.Code.String(), time.Since(start))
	switch {
	case status.Code == StatusInternalError:
		logger.L(ctx).Error("request failed",
			"type", req.Header.MessageType.String(), "seq", req.Header.Sequence, "error", err)
	case err != nil:
		logger.L(ctx).Debug("request rejected",
			"type", req.Header.MessageType.String(), "seq", req.Header.Sequence,
			"status", status.Code.String(), "error", err)
	}

	var value []byte
	if err == nil {
		value = res.value
	}
	return &Frame{Message: msg.Marshal(), Value: value}
}
