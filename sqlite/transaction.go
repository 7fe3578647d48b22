package sqlite

import (
	"context"
	"database/sql"
	"sync"

	"github.com/anacrolix/sqlmsg/wire"
)

type txOptions struct {
	readOnly   bool
	noWait     bool
	autoCommit bool
}

func parseTPB(tpb []byte) (ret txOptions, err error) {
	items, err := wire.ParseTPB(tpb)
	if err != nil {
		err = wire.Errorf(wire.CodeDsqlError, "invalid transaction parameter block: %v", err)
		return
	}
	for _, c := range items {
		switch c.Tag {
		case wire.TpbRead:
			ret.readOnly = true
		case wire.TpbWrite:
			ret.readOnly = false
		case wire.TpbNowait:
			ret.noWait = true
		case wire.TpbWait:
			ret.noWait = false
		case wire.TpbAutocommit:
			ret.autoCommit = true
		// SQLite transactions are always serializable.
		case wire.TpbConsistency, wire.TpbConcurrency, wire.TpbReadCommitted,
			wire.TpbRecVersion, wire.TpbNoRecVersion, wire.TpbNoAutoUndo, wire.TpbIgnoreLimbo,
			wire.TpbRestartRequests, wire.TpbLockRead, wire.TpbLockWrite:
		default:
			err = wire.Errorf(wire.CodeDsqlError, "unknown transaction parameter %d", c.Tag)
			return
		}
	}
	return
}

// setTransactionTPB translates the options of a SET TRANSACTION statement.
func setTransactionTPB(toks []token) (tpb []byte, err error) {
	if len(toks) < 2 || !toks[0].is("set") || !toks[1].is("transaction") {
		err = syntaxError("expected SET TRANSACTION")
		return
	}
	w := wire.NewParamWriter(nil, wire.TpbVersion3)
	phrases := []struct {
		words []string
		tags  []byte
	}{
		{[]string{"read", "only"}, []byte{wire.TpbRead}},
		{[]string{"read", "write"}, []byte{wire.TpbWrite}},
		{[]string{"no", "wait"}, []byte{wire.TpbNowait}},
		{[]string{"wait"}, []byte{wire.TpbWait}},
		{[]string{"isolation", "level", "snapshot", "table", "stability"}, []byte{wire.TpbConsistency}},
		{[]string{"isolation", "level", "snapshot"}, []byte{wire.TpbConcurrency}},
		{[]string{"isolation", "level", "read", "committed", "no", "record_version"}, []byte{wire.TpbReadCommitted, wire.TpbNoRecVersion}},
		{[]string{"isolation", "level", "read", "committed", "record_version"}, []byte{wire.TpbReadCommitted, wire.TpbRecVersion}},
		{[]string{"isolation", "level", "read", "committed"}, []byte{wire.TpbReadCommitted}},
		{[]string{"no", "auto", "undo"}, []byte{wire.TpbNoAutoUndo}},
		{[]string{"ignore", "limbo"}, []byte{wire.TpbIgnoreLimbo}},
		{[]string{"restart", "requests"}, []byte{wire.TpbRestartRequests}},
		{[]string{"auto", "commit"}, []byte{wire.TpbAutocommit}},
	}
	rest := toks[2:]
next:
	for len(rest) > 0 {
		for _, p := range phrases {
			if len(rest) < len(p.words) {
				continue
			}
			matched := true
			for i, w := range p.words {
				matched = matched && rest[i].is(w)
			}
			if !matched {
				continue
			}
			for _, t := range p.tags {
				w.InsertTag(t)
			}
			rest = rest[len(p.words):]
			continue next
		}
		err = syntaxError("token unknown: %s", rest[0].text)
		return
	}
	tpb = w.Bytes()
	return
}

// transaction holds one SQLite transaction per participating attachment.
type transaction struct {
	mu       sync.Mutex
	opts     txOptions
	order    []*attachment
	parts    map[*attachment]*sql.Tx
	prepared bool
	message  []byte
	done     bool
}

var _ wire.Transaction = (*transaction)(nil)

func begin(atts []*attachment, opts txOptions) (ret *transaction, err error) {
	tx := &transaction{
		opts:  opts,
		order: atts,
		parts: make(map[*attachment]*sql.Tx, len(atts)),
	}
	if err = tx.beginParts(); err != nil {
		return
	}
	for _, att := range atts {
		att.addTransaction(1)
	}
	ret = tx
	return
}

func (me *transaction) beginParts() (err error) {
	for _, att := range me.order {
		var sqlTx *sql.Tx
		sqlTx, err = att.db.BeginTx(context.Background(), nil)
		if err == nil {
			timeout := "5000"
			if me.opts.noWait {
				timeout = "0"
			}
			if _, err = sqlTx.Exec("pragma busy_timeout = " + timeout); err != nil {
				sqlTx.Rollback()
			}
		}
		if err != nil {
			for _, started := range me.parts {
				started.Rollback()
			}
			return sqliteError(err)
		}
		me.parts[att] = sqlTx
	}
	return
}

func (me *transaction) finish() {
	me.done = true
	for _, att := range me.order {
		att.addTransaction(-1)
	}
}

// tx returns the SQLite transaction for att, refusing work once prepared or finished.
func (me *transaction) tx(att *attachment) (ret *sql.Tx, err error) {
	me.mu.Lock()
	defer me.mu.Unlock()
	switch {
	case me.done:
		err = wire.Errorf(wire.CodeTransactionState, "transaction is no longer active")
	case me.prepared:
		err = wire.Errorf(wire.CodeTransactionState, "transaction is prepared and accepts no more work")
	default:
		var ok bool
		if ret, ok = me.parts[att]; !ok {
			err = wire.Errorf(wire.CodeTransactionState, "transaction does not include database %q", att.uri)
		}
	}
	return
}

func (me *transaction) checkActive() error {
	if me.done {
		return wire.Errorf(wire.CodeTransactionState, "transaction is no longer active")
	}
	return nil
}

// Prepare records message and refuses further work. SQLite keeps the transaction open until
// Commit or Rollback resolves it.
func (me *transaction) Prepare(message []byte) error {
	me.mu.Lock()
	defer me.mu.Unlock()
	if err := me.checkActive(); err != nil {
		return err
	}
	if me.prepared {
		return wire.Errorf(wire.CodeTransactionState, "transaction is already prepared")
	}
	me.prepared = true
	me.message = append([]byte(nil), message...)
	return nil
}

// end commits or rolls back every part. The first failure is returned after all parts are
// resolved.
func (me *transaction) end(commit bool) (err error) {
	for _, att := range me.order {
		sqlTx := me.parts[att]
		var partErr error
		if commit && err == nil {
			partErr = sqlTx.Commit()
		} else {
			partErr = sqlTx.Rollback()
		}
		if partErr != nil && err == nil {
			err = sqliteError(partErr)
		}
	}
	return
}

func (me *transaction) Commit() error {
	me.mu.Lock()
	defer me.mu.Unlock()
	if err := me.checkActive(); err != nil {
		return err
	}
	err := me.end(true)
	me.finish()
	return err
}

func (me *transaction) Rollback() error {
	me.mu.Lock()
	defer me.mu.Unlock()
	if err := me.checkActive(); err != nil {
		return err
	}
	err := me.end(false)
	me.finish()
	return err
}

func (me *transaction) retain(commit bool) error {
	me.mu.Lock()
	defer me.mu.Unlock()
	if err := me.checkActive(); err != nil {
		return err
	}
	if me.prepared {
		return wire.Errorf(wire.CodeTransactionState, "transaction is prepared")
	}
	if err := me.end(commit); err != nil {
		me.finish()
		return err
	}
	me.parts = make(map[*attachment]*sql.Tx, len(me.order))
	if err := me.beginParts(); err != nil {
		me.finish()
		return err
	}
	return nil
}

func (me *transaction) CommitRetaining() error {
	return me.retain(true)
}

func (me *transaction) RollbackRetaining() error {
	return me.retain(false)
}
