// Package sqlite is an engine backed by SQLite. It describes statements the way the marshalling
// layer expects, with typed input and output messages, and emulates the parts of the engine
// SQLite lacks: transaction parameter blocks, two-phase commit and multi-database transactions.
package sqlite

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/anacrolix/sqlmsg/wire"
)

// URIs with this prefix name shared in-memory databases that live until dropped.
const MemoryPrefix = "memory:"

// NewMemoryURI returns the URI of a fresh in-memory database for CreateDatabase.
func NewMemoryURI() string {
	return MemoryPrefix + uuid.NewString()
}

type Engine struct {
	mu sync.Mutex
	// One connection is held open per in-memory database to keep it alive.
	memory map[string]*sql.Conn
}

var _ wire.Engine = (*Engine)(nil)

func NewEngine() *Engine {
	return &Engine{}
}

func sqliteError(err error) error {
	if err == nil {
		return nil
	}
	var we *wire.Error
	if errors.As(err, &we) {
		return we
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		code := wire.CodeDsqlError
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			code = wire.CodeLockConflict
		case sqlite3.ErrCantOpen, sqlite3.ErrIoErr:
			code = wire.CodeIoError
		case sqlite3.ErrNotADB, sqlite3.ErrCorrupt:
			code = wire.CodeBadDbFormat
		}
		return wire.Errorf(code, "%v", se)
	}
	return wire.Errorf(wire.CodeDsqlError, "%v", err)
}

func (me *Engine) dsn(uri string, create bool) (dsn string, err error) {
	if name, ok := strings.CutPrefix(uri, MemoryPrefix); ok {
		me.mu.Lock()
		_, exists := me.memory[name]
		me.mu.Unlock()
		if exists == create {
			err = ioError(uri, create)
			return
		}
		dsn = "file:" + name + "?mode=memory&cache=shared&_busy_timeout=5000"
		return
	}
	_, statErr := os.Stat(uri)
	if exists := statErr == nil; exists == create {
		err = ioError(uri, create)
		return
	}
	mode := "rw"
	if create {
		mode = "rwc"
	}
	dsn = "file:" + uri + "?mode=" + mode + "&_busy_timeout=5000"
	return
}

func ioError(uri string, create bool) *wire.Error {
	if create {
		return wire.Errorf(wire.CodeIoError, "I/O error during \"open O_CREAT\" operation for file %q: database already exists", uri)
	}
	return wire.Errorf(wire.CodeIoError, "I/O error during \"open\" operation for file %q: no such database", uri)
}

func (me *Engine) Attach(uri string, dpb []byte) (wire.Attachment, error) {
	att, err := me.open(uri, dpb, false)
	if err != nil {
		return nil, err
	}
	return att, nil
}

func (me *Engine) CreateDatabase(uri string, dpb []byte) (wire.Attachment, error) {
	att, err := me.open(uri, dpb, true)
	if err != nil {
		return nil, err
	}
	return att, nil
}

type connectParams struct {
	charset charset
	user    string
	role    string
}

func parseDPB(dpb []byte) (ret connectParams, err error) {
	items, err := wire.ParseDPB(dpb)
	if err != nil {
		err = wire.Errorf(wire.CodeBadDbFormat, "%v", err)
		return
	}
	var charsetName string
	for _, c := range items {
		switch c.Tag {
		case wire.DpbLcCtype:
			charsetName = string(c.Value)
		case wire.DpbUserName:
			ret.user = string(c.Value)
		case wire.DpbSqlRoleName:
			ret.role = string(c.Value)
		}
	}
	ret.charset, err = lookupCharset(charsetName)
	return
}

func (me *Engine) open(uri string, dpb []byte, create bool) (ret *attachment, err error) {
	params, err := parseDPB(dpb)
	if err != nil {
		return
	}
	dsn, err := me.dsn(uri, create)
	if err != nil {
		return
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		err = sqliteError(err)
		return
	}
	att := &attachment{
		engine: me,
		uri:    uri,
		db:     db,
		params: params,
	}
	if err = att.init(create); err != nil {
		db.Close()
		return
	}
	ret = att
	return
}

// keepMemory pins a connection to a new in-memory database.
func (me *Engine) keepMemory(uri string, db *sql.DB) error {
	name, ok := strings.CutPrefix(uri, MemoryPrefix)
	if !ok {
		return nil
	}
	conn, err := db.Conn(context.Background())
	if err != nil {
		return sqliteError(err)
	}
	me.mu.Lock()
	defer me.mu.Unlock()
	if me.memory == nil {
		me.memory = make(map[string]*sql.Conn)
	}
	me.memory[name] = conn
	return nil
}

func (me *Engine) drop(uri string) error {
	if name, ok := strings.CutPrefix(uri, MemoryPrefix); ok {
		me.mu.Lock()
		conn := me.memory[name]
		delete(me.memory, name)
		me.mu.Unlock()
		if conn != nil {
			return sqliteError(conn.Close())
		}
		return nil
	}
	if err := os.Remove(uri); err != nil {
		return wire.Errorf(wire.CodeIoError, "%v", err)
	}
	return nil
}

// StartMulti starts one transaction over attachments of this engine. Commit commits each in
// turn, so it is atomic only when every participant was prepared first.
func (me *Engine) StartMulti(atts []wire.Attachment, tpb []byte) (wire.Transaction, error) {
	opts, err := parseTPB(tpb)
	if err != nil {
		return nil, err
	}
	parts := make([]*attachment, 0, len(atts))
	for _, a := range atts {
		att, ok := a.(*attachment)
		if !ok || att.engine != me {
			return nil, wire.Errorf(wire.CodeTransactionState, "attachment %T does not belong to this engine", a)
		}
		parts = append(parts, att)
	}
	tx, err := begin(parts, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// Close releases the in-memory databases still held.
func (me *Engine) Close() error {
	me.mu.Lock()
	defer me.mu.Unlock()
	for name, conn := range me.memory {
		conn.Close()
		delete(me.memory, name)
	}
	return nil
}
