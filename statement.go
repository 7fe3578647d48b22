package sqlmsg

import (
	"log"

	"github.com/anacrolix/sqlmsg/wire"
)

type StatementOptions struct {
	// Have the engine compute plans while preparing.
	PrefetchLegacyPlan bool
	PrefetchPlan       bool
}

// Statement is a prepared statement with one input and one output message. Setters write the
// input message, getters read the row most recently fetched into the output message.
type Statement struct {
	att    *Attachment
	handle wire.Statement
	cursor wire.Cursor
	typ    wire.StatementType

	inMeta   wire.Metadata
	inDescs  []Descriptor
	inMsg    []byte
	outMeta  wire.Metadata
	outDescs []Descriptor
	outMsg   []byte
}

// NewStatement prepares sql in tx. Transaction control statements and blob segment statements
// are refused.
func NewStatement(att *Attachment, tx *Transaction, sql string, opts StatementOptions) (ret *Statement, err error) {
	if !att.IsValid() {
		err = usageErrorf(ErrInvalidHandle, "preparing statement on an invalid attachment")
		return
	}
	if !tx.IsValid() {
		err = usageErrorf(ErrTransactionState, "preparing statement in a %v transaction", tx.State())
		return
	}
	flags := wire.PrepareFlagPrefetchMetadata
	if opts.PrefetchLegacyPlan {
		flags |= wire.PrepareFlagPrefetchLegacyPlan
	}
	if opts.PrefetchPlan {
		flags |= wire.PrepareFlagPrefetchDetailedPlan
	}
	handle, err := att.handle.Prepare(tx.handle, sql, flags)
	if err != nil {
		err = engineError("prepare", err)
		return
	}
	me := &Statement{
		att:    att,
		handle: handle,
		typ:    handle.Type(),
	}
	switch me.typ {
	case wire.StatementStartTransaction:
		err = usageErrorf(ErrUnsupportedStatement,
			"cannot use SET TRANSACTION with a Statement, use NewTransactionFromCommand")
	case wire.StatementCommit:
		err = usageErrorf(ErrUnsupportedStatement,
			"cannot use COMMIT with a Statement, use Transaction.Commit")
	case wire.StatementRollback:
		err = usageErrorf(ErrUnsupportedStatement,
			"cannot use ROLLBACK with a Statement, use Transaction.Rollback")
	case wire.StatementGetSegment, wire.StatementPutSegment:
		err = usageErrorf(ErrUnsupportedStatement, "unsupported statement type: BLOB segment operations")
	}
	if err == nil {
		me.inDescs, me.inMsg, me.inMeta, err = deriveLayout(handle.InputMetadata())
	}
	if err == nil {
		me.outDescs, me.outMsg, me.outMeta, err = deriveLayout(handle.OutputMetadata())
	}
	if err != nil {
		me.Close()
		return
	}
	ret = me
	return
}

func (me *Statement) IsValid() bool {
	return me != nil && me.handle != nil
}

func (me *Statement) checkValid() error {
	if !me.IsValid() {
		return usageErrorf(ErrInvalidHandle, "statement is not valid")
	}
	return nil
}

func (me *Statement) Type() wire.StatementType {
	return me.typ
}

func (me *Statement) Attachment() *Attachment {
	return me.att
}

func (me *Statement) InputDescriptors() []Descriptor {
	return me.inDescs
}

func (me *Statement) OutputDescriptors() []Descriptor {
	return me.outDescs
}

// Plan returns the detailed execution plan.
func (me *Statement) Plan() (string, error) {
	return me.plan(true)
}

func (me *Statement) LegacyPlan() (string, error) {
	return me.plan(false)
}

func (me *Statement) plan(detailed bool) (ret string, err error) {
	if err = me.checkValid(); err != nil {
		return
	}
	ret, err = me.handle.Plan(detailed)
	err = engineError("plan", err)
	return
}

func (me *Statement) closeCursor() (err error) {
	if me.cursor == nil {
		return
	}
	err = me.cursor.Close()
	me.cursor = nil
	return engineError("close cursor", err)
}

// Execute runs the statement with the current parameters. Row returning statements open a
// cursor and fetch the first row, reporting whether there was one. Other statements report
// true.
func (me *Statement) Execute(tx *Transaction) (ok bool, err error) {
	if err = me.checkValid(); err != nil {
		return
	}
	if !tx.IsValid() {
		err = usageErrorf(ErrTransactionState, "executing in a %v transaction", tx.State())
		return
	}
	if err = me.closeCursor(); err != nil {
		return
	}
	resetNullFlags(me.outDescs, me.outMsg)
	switch me.typ {
	case wire.StatementSelect, wire.StatementSelectForUpdate:
		me.cursor, err = me.handle.OpenCursor(tx.handle, me.inMeta, me.inMsg, me.outMeta)
		if err != nil {
			me.cursor = nil
			err = engineError("open cursor", err)
			return
		}
		ok, err = me.cursor.FetchNext(me.outMsg)
		err = engineError("fetch", err)
	default:
		err = engineError("execute", me.handle.Execute(tx.handle, me.inMeta, me.inMsg, me.outMeta, me.outMsg))
		ok = err == nil
	}
	return
}

// fetch reports false without error when no cursor is open.
func (me *Statement) fetch(f func(c wire.Cursor, out []byte) (bool, error)) (ok bool, err error) {
	if err = me.checkValid(); err != nil {
		return
	}
	if me.cursor == nil {
		return
	}
	ok, err = f(me.cursor, me.outMsg)
	err = engineError("fetch", err)
	return
}

func (me *Statement) FetchNext() (bool, error) {
	return me.fetch(wire.Cursor.FetchNext)
}

func (me *Statement) FetchPrior() (bool, error) {
	return me.fetch(wire.Cursor.FetchPrior)
}

func (me *Statement) FetchFirst() (bool, error) {
	return me.fetch(wire.Cursor.FetchFirst)
}

func (me *Statement) FetchLast() (bool, error) {
	return me.fetch(wire.Cursor.FetchLast)
}

func (me *Statement) FetchAbsolute(position int) (bool, error) {
	return me.fetch(func(c wire.Cursor, out []byte) (bool, error) {
		return c.FetchAbsolute(position, out)
	})
}

func (me *Statement) FetchRelative(offset int) (bool, error) {
	return me.fetch(func(c wire.Cursor, out []byte) (bool, error) {
		return c.FetchRelative(offset, out)
	})
}

// ClearParameters sets every input parameter to null.
func (me *Statement) ClearParameters() {
	resetNullFlags(me.inDescs, me.inMsg)
}

// Free closes any open cursor and releases the engine statement. The Statement is invalid
// afterwards.
func (me *Statement) Free() (err error) {
	if err = me.checkValid(); err != nil {
		return
	}
	err = me.closeCursor()
	freeErr := engineError("free", me.handle.Free())
	if err == nil {
		err = freeErr
	}
	*me = Statement{att: me.att, typ: me.typ}
	return
}

// Close frees the statement if it is still valid, logging failures.
func (me *Statement) Close() {
	if !me.IsValid() {
		return
	}
	if err := me.Free(); err != nil {
		log.Printf("error freeing statement: %v", err)
	}
}

// Move returns a Statement owning the prepared statement. The receiver becomes invalid.
func (me *Statement) Move() *Statement {
	ret := new(Statement)
	*ret = *me
	*me = Statement{}
	return ret
}
