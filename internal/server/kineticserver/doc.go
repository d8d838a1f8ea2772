// Package kineticserver serves the Kinetic key-value protocol over TCP.
//
// Each request is a frame holding a protobuf-encoded message and an
// optional value. The message carries the sender identity, an HMAC over
// the command and the command itself. Requests on a connection are
// handled one at a time, in arrival order:
//
//	decode -> HMAC -> sequence check -> authorization -> dispatch
//
// Supported commands are GET, PUT, DELETE, SECURITY, NOOP and the batch
// commands START_BATCH, END_BATCH and ABORT_BATCH.
package kineticserver
