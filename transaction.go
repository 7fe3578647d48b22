package sqlmsg

import (
	"fmt"
	"log"

	"github.com/anacrolix/sqlmsg/wire"
)

type TransactionState int

const (
	// The zero Transaction, or one that was moved from.
	TransactionInvalid TransactionState = iota
	TransactionActive
	TransactionPrepared
	TransactionCommitted
	TransactionRolledBack
)

func (me TransactionState) String() string {
	switch me {
	case TransactionInvalid:
		return "invalid"
	case TransactionActive:
		return "active"
	case TransactionPrepared:
		return "prepared"
	case TransactionCommitted:
		return "committed"
	case TransactionRolledBack:
		return "rolled back"
	}
	return fmt.Sprintf("TransactionState(%d)", int(me))
}

type IsolationLevel int

const (
	IsolationDefault IsolationLevel = iota
	IsolationConsistency
	// Snapshot isolation.
	IsolationConcurrency
	IsolationReadCommitted
)

type ReadCommittedMode int

const (
	ReadCommittedDefault ReadCommittedMode = iota
	ReadCommittedRecordVersion
	ReadCommittedNoRecordVersion
)

type AccessMode int

const (
	AccessDefault AccessMode = iota
	AccessReadWrite
	AccessReadOnly
)

type WaitMode int

const (
	WaitDefault WaitMode = iota
	WaitModeWait
	WaitModeNoWait
)

// TransactionOptions are added to TPB, the raw parameter block. The zero value leaves every
// choice to the engine.
type TransactionOptions struct {
	TPB               []byte
	IsolationLevel    IsolationLevel
	ReadCommittedMode ReadCommittedMode
	AccessMode        AccessMode
	WaitMode          WaitMode
	NoAutoUndo        bool
	IgnoreLimbo       bool
	RestartRequests   bool
	AutoCommit        bool
}

func (me TransactionOptions) tpb() []byte {
	var tags []byte
	switch me.IsolationLevel {
	case IsolationConsistency:
		tags = append(tags, wire.TpbConsistency)
	case IsolationConcurrency:
		tags = append(tags, wire.TpbConcurrency)
	case IsolationReadCommitted:
		tags = append(tags, wire.TpbReadCommitted)
		switch me.ReadCommittedMode {
		case ReadCommittedRecordVersion:
			tags = append(tags, wire.TpbRecVersion)
		case ReadCommittedNoRecordVersion:
			tags = append(tags, wire.TpbNoRecVersion)
		}
	}
	switch me.AccessMode {
	case AccessReadWrite:
		tags = append(tags, wire.TpbWrite)
	case AccessReadOnly:
		tags = append(tags, wire.TpbRead)
	}
	switch me.WaitMode {
	case WaitModeWait:
		tags = append(tags, wire.TpbWait)
	case WaitModeNoWait:
		tags = append(tags, wire.TpbNowait)
	}
	for _, flag := range []struct {
		set bool
		tag byte
	}{
		{me.NoAutoUndo, wire.TpbNoAutoUndo},
		{me.IgnoreLimbo, wire.TpbIgnoreLimbo},
		{me.RestartRequests, wire.TpbRestartRequests},
		{me.AutoCommit, wire.TpbAutocommit},
	} {
		if flag.set {
			tags = append(tags, flag.tag)
		}
	}
	if len(tags) == 0 {
		return me.TPB
	}
	w := wire.NewParamWriter(me.TPB, wire.TpbVersion3)
	for _, t := range tags {
		w.InsertTag(t)
	}
	return w.Bytes()
}

// Transaction is a unit of work on one or more attachments. Closing an active transaction rolls
// it back. A prepared transaction must be committed or rolled back explicitly.
type Transaction struct {
	atts   []*Attachment
	handle wire.Transaction
	state  TransactionState
}

func NewTransaction(att *Attachment, opts TransactionOptions) (ret *Transaction, err error) {
	if err = att.checkValid(); err != nil {
		return
	}
	handle, err := att.handle.StartTransaction(opts.tpb())
	if err != nil {
		err = engineError("start transaction", err)
		return
	}
	ret = newTransaction([]*Attachment{att}, handle)
	return
}

// NewTransactionFromCommand starts a transaction described by a SET TRANSACTION statement.
func NewTransactionFromCommand(att *Attachment, command string) (ret *Transaction, err error) {
	if err = att.checkValid(); err != nil {
		return
	}
	handle, err := att.handle.ExecuteTransactionCommand(command)
	if err != nil {
		err = engineError("execute transaction command", err)
		return
	}
	ret = newTransaction([]*Attachment{att}, handle)
	return
}

// NewMultiTransaction starts one transaction spanning atts, for two-phase commit across
// databases. Every attachment must have been made through the same Client.
func NewMultiTransaction(atts []*Attachment, opts TransactionOptions) (ret *Transaction, err error) {
	if len(atts) == 0 {
		err = usageErrorf(ErrInvalidHandle, "multi-database transaction needs at least one attachment")
		return
	}
	handles := make([]wire.Attachment, 0, len(atts))
	for _, att := range atts {
		if err = att.checkValid(); err != nil {
			return
		}
		if att.client != atts[0].client {
			err = usageErrorf(ErrClientMismatch,
				"All attachments must use the same Client for multi-database transactions")
			return
		}
		handles = append(handles, att.handle)
	}
	handle, err := atts[0].client.engine.StartMulti(handles, opts.tpb())
	if err != nil {
		err = engineError("start multi-database transaction", err)
		return
	}
	ret = newTransaction(append([]*Attachment(nil), atts...), handle)
	return
}

func newTransaction(atts []*Attachment, handle wire.Transaction) *Transaction {
	return &Transaction{
		atts:   atts,
		handle: handle,
		state:  TransactionActive,
	}
}

func (me *Transaction) State() TransactionState {
	if me == nil {
		return TransactionInvalid
	}
	return me.state
}

// IsValid reports whether the transaction is active or prepared.
func (me *Transaction) IsValid() bool {
	return me != nil && me.handle != nil
}

func (me *Transaction) Attachments() []*Attachment {
	return me.atts
}

// transition runs f when the transaction is in one of from, and moves to state to on success.
// Terminal states release the engine handle.
func (me *Transaction) transition(op string, to TransactionState, f func() error, from ...TransactionState) (err error) {
	state := me.State()
	legal := false
	for _, s := range from {
		legal = legal || s == state
	}
	if !legal || !me.IsValid() {
		return usageErrorf(ErrTransactionState, "cannot %s a %v transaction", op, state)
	}
	if err = engineError(op, f()); err != nil {
		return
	}
	me.state = to
	if to == TransactionCommitted || to == TransactionRolledBack {
		me.handle = nil
	}
	return
}

// Prepare is the first phase of a two-phase commit. message is recorded by the engine for
// recovery and may be nil.
func (me *Transaction) Prepare(message []byte) error {
	return me.transition("prepare", TransactionPrepared, func() error {
		return me.handle.Prepare(message)
	}, TransactionActive)
}

func (me *Transaction) Commit() error {
	return me.transition("commit", TransactionCommitted, func() error {
		return me.handle.Commit()
	}, TransactionActive, TransactionPrepared)
}

// CommitRetaining commits the work done so far and keeps the transaction active.
func (me *Transaction) CommitRetaining() error {
	return me.transition("commit retaining", TransactionActive, func() error {
		return me.handle.CommitRetaining()
	}, TransactionActive)
}

func (me *Transaction) Rollback() error {
	return me.transition("rollback", TransactionRolledBack, func() error {
		return me.handle.Rollback()
	}, TransactionActive, TransactionPrepared)
}

func (me *Transaction) RollbackRetaining() error {
	return me.transition("rollback retaining", TransactionActive, func() error {
		return me.handle.RollbackRetaining()
	}, TransactionActive)
}

// PreparedTransactionLeaked is called when a prepared transaction is closed without being
// resolved. The default logs at the location of the Close call.
var PreparedTransactionLeaked = func(tx *Transaction) {
	log.Output(3, "LEAK: prepared transaction closed without commit or rollback, it remains in limbo in the engine")
}

// Close rolls back an active transaction, logging failures. Closing a prepared transaction
// leaves it unresolved in the engine and returns ErrPreparedTransactionLeaked.
func (me *Transaction) Close() error {
	switch me.State() {
	case TransactionActive:
		if err := me.Rollback(); err != nil {
			log.Printf("error rolling back transaction on close: %v", err)
		}
	case TransactionPrepared:
		PreparedTransactionLeaked(me)
		return usageErrorf(ErrPreparedTransactionLeaked, "closing %v transaction", me.state)
	}
	return nil
}

// Move returns a Transaction owning the engine transaction. The receiver becomes invalid.
func (me *Transaction) Move() *Transaction {
	ret := new(Transaction)
	*ret = *me
	*me = Transaction{}
	return ret
}
