package sqlite

import (
	"database/sql"
	"sync"

	"github.com/anacrolix/sqlmsg/wire"
)

type attachment struct {
	engine *Engine
	uri    string
	db     *sql.DB
	params connectParams

	mu           sync.Mutex
	transactions int
	detached     bool
}

var _ wire.Attachment = (*attachment)(nil)

// init checks the database is usable and creates the system relations the engine relies on.
func (me *attachment) init(create bool) (err error) {
	if err = me.db.Ping(); err != nil {
		return sqliteError(err)
	}
	for _, stmt := range []string{
		"create table if not exists rdb_database (rdb_relation_id integer)",
		"insert into rdb_database select 0 where not exists (select * from rdb_database)",
		"create table if not exists rdb_blobs (id integer primary key autoincrement, data blob)",
	} {
		if _, err = me.db.Exec(stmt); err != nil {
			return sqliteError(err)
		}
	}
	if create {
		err = me.engine.keepMemory(me.uri, me.db)
	}
	return
}

func (me *attachment) addTransaction(delta int) {
	me.mu.Lock()
	me.transactions += delta
	me.mu.Unlock()
}

func (me *attachment) checkAttached() error {
	me.mu.Lock()
	defer me.mu.Unlock()
	if me.detached {
		return wire.Errorf(wire.CodeIoError, "attachment to %q is closed", me.uri)
	}
	return nil
}

func (me *attachment) StartTransaction(tpb []byte) (wire.Transaction, error) {
	if err := me.checkAttached(); err != nil {
		return nil, err
	}
	opts, err := parseTPB(tpb)
	if err != nil {
		return nil, err
	}
	tx, err := begin([]*attachment{me}, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (me *attachment) ExecuteTransactionCommand(cmd string) (wire.Transaction, error) {
	toks, err := lex(cmd)
	if err != nil {
		return nil, err
	}
	tpb, err := setTransactionTPB(toks)
	if err != nil {
		return nil, err
	}
	return me.StartTransaction(tpb)
}

// transaction checks tx is one of this engine's and returns its part for this attachment.
func (me *attachment) transaction(tx wire.Transaction) (*transaction, *sql.Tx, error) {
	t, ok := tx.(*transaction)
	if !ok {
		return nil, nil, wire.Errorf(wire.CodeTransactionState, "transaction %T does not belong to this engine", tx)
	}
	sqlTx, err := t.tx(me)
	if err != nil {
		return nil, nil, err
	}
	return t, sqlTx, nil
}

func (me *attachment) Prepare(tx wire.Transaction, sql string, flags wire.PrepareFlags) (wire.Statement, error) {
	if err := me.checkAttached(); err != nil {
		return nil, err
	}
	_, sqlTx, err := me.transaction(tx)
	if err != nil {
		return nil, err
	}
	stmt, err := prepare(me, sqlTx, sql, flags)
	if err != nil {
		return nil, err
	}
	return stmt, nil
}

func (me *attachment) CreateBlob(tx wire.Transaction, data []byte) (id wire.BlobId, err error) {
	t, sqlTx, err := me.transaction(tx)
	if err != nil {
		return
	}
	if t.opts.readOnly {
		err = readOnlyError()
		return
	}
	res, err := sqlTx.Exec("insert into rdb_blobs (data) values (?)", append([]byte{}, data...))
	if err != nil {
		err = sqliteError(err)
		return
	}
	n, err := res.LastInsertId()
	if err != nil {
		err = sqliteError(err)
		return
	}
	id = wire.BlobId{High: uint32(n >> 32), Low: uint32(n)}
	return
}

func (me *attachment) ReadBlob(tx wire.Transaction, id wire.BlobId) (data []byte, err error) {
	_, sqlTx, err := me.transaction(tx)
	if err != nil {
		return
	}
	n := int64(id.High)<<32 | int64(id.Low)
	err = sqlTx.QueryRow("select data from rdb_blobs where id = ?", n).Scan(&data)
	if err == sql.ErrNoRows {
		err = wire.Errorf(wire.CodeBadBlobId, "invalid BLOB ID")
		return
	}
	err = sqliteError(err)
	return
}

func (me *attachment) Detach() error {
	me.mu.Lock()
	defer me.mu.Unlock()
	if me.detached {
		return wire.Errorf(wire.CodeIoError, "attachment to %q is closed", me.uri)
	}
	if me.transactions != 0 {
		return wire.Errorf(wire.CodeTransactionState, "cannot disconnect database with open transactions (%d active)", me.transactions)
	}
	me.detached = true
	return sqliteError(me.db.Close())
}

func (me *attachment) DropDatabase() error {
	if err := me.Detach(); err != nil {
		return err
	}
	return me.engine.drop(me.uri)
}

func readOnlyError() *wire.Error {
	return wire.Errorf(wire.CodeReadOnlyTransaction, "attempted update during read-only transaction")
}
