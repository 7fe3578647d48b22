// Package sqlmsg marshals typed Go values into and out of the binary messages a prepared
// statement engine exchanges. An engine (see package wire) describes every parameter and column
// with a wire type, scale and layout; Statement derives descriptors from that description and
// exposes typed getters and setters, record, tuple and variant binding over the message
// buffers. Transaction and Attachment wrap the engine's transactions and connections with
// explicit state and ownership.
//
// Service exposes any wire.Engine over net/rpc, RemoteEngine is the matching client, and the
// "sqlmsg" database/sql driver runs on top of either. `cmd/sqlmsgd` serves the SQLite engine in
// package sqlite.
package sqlmsg

import (
	"github.com/anacrolix/sqlmsg/wire"
)

type AttachArgs struct {
	URI    string
	DPB    []byte
	Create bool
}

type StartTransactionArgs struct {
	Attachment int
	TPB        []byte
}

type ExecuteTransactionArgs struct {
	Attachment int
	Command    string
}

type StartMultiArgs struct {
	Attachments []int
	TPB         []byte
}

type TxPrepareArgs struct {
	Transaction int
	Message     []byte
}

type PrepareArgs struct {
	Attachment  int
	Transaction int
	SQL         string
	Flags       wire.PrepareFlags
}

type PrepareReply struct {
	Statement int
	Type      wire.StatementType
	Input     *wire.MessageMetadata
	Output    *wire.MessageMetadata
}

type PlanArgs struct {
	Statement int
	Detailed  bool
}

type ExecuteArgs struct {
	Statement   int
	Transaction int
	InMeta      *wire.MessageMetadata
	In          []byte
	OutMeta     *wire.MessageMetadata
	// The output message as the caller holds it, for engines that leave parts unwritten.
	Out []byte
}

type ExecuteReply struct {
	Out []byte
}

type CursorReply struct {
	Cursor int
}

type FetchOp int

const (
	FetchNext FetchOp = iota
	FetchPrior
	FetchFirst
	FetchLast
	FetchAbsolute
	FetchRelative
)

type FetchArgs struct {
	Cursor    int
	Op        FetchOp
	Position  int
	OutLength int
}

type FetchReply struct {
	Ok  bool
	Out []byte
}

type BlobArgs struct {
	Attachment  int
	Transaction int
	Data        []byte
	Id          wire.BlobId
}
