package sqlmsg

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/anacrolix/sqlmsg/wire"
)

// testEngine is an in-process engine whose statements echo their input message into their
// output message. Statement shapes are registered by SQL text.
type testEngine struct {
	statements map[string]testStatementDef
	closed     bool
}

type testStatementDef struct {
	typ wire.StatementType
	in  []wire.Field
	out []wire.Field
	// Rows a cursor yields before the echoed input row is exhausted.
	rows int
}

var _ wire.Engine = (*testEngine)(nil)

func newTestEngine() *testEngine {
	return &testEngine{statements: make(map[string]testStatementDef)}
}

// echo registers sql with identical input and output shapes.
func (me *testEngine) echo(sql string, typ wire.StatementType, fields ...wire.Field) {
	me.statements[sql] = testStatementDef{typ: typ, in: fields, out: fields, rows: 1}
}

func (me *testEngine) Attach(uri string, dpb []byte) (wire.Attachment, error) {
	if strings.HasPrefix(uri, "missing") {
		return nil, wire.Errorf(wire.CodeIoError, "no such database %q", uri)
	}
	return &testAttachment{engine: me, uri: uri, dpb: dpb}, nil
}

func (me *testEngine) CreateDatabase(uri string, dpb []byte) (wire.Attachment, error) {
	return &testAttachment{engine: me, uri: uri, dpb: dpb}, nil
}

func (me *testEngine) StartMulti(atts []wire.Attachment, tpb []byte) (wire.Transaction, error) {
	return &testTransaction{tpb: tpb, parts: len(atts)}, nil
}

func (me *testEngine) Close() error {
	me.closed = true
	return nil
}

type testAttachment struct {
	engine   *testEngine
	uri      string
	dpb      []byte
	detached bool
	dropped  bool
	blobs    [][]byte
}

func (me *testAttachment) StartTransaction(tpb []byte) (wire.Transaction, error) {
	return &testTransaction{tpb: tpb, parts: 1}, nil
}

func (me *testAttachment) ExecuteTransactionCommand(cmd string) (wire.Transaction, error) {
	if !strings.HasPrefix(strings.ToLower(cmd), "set transaction") {
		return nil, wire.Errorf(wire.CodeDsqlError, "Token unknown - %s", cmd)
	}
	return &testTransaction{command: cmd, parts: 1}, nil
}

func (me *testAttachment) Prepare(tx wire.Transaction, sql string, flags wire.PrepareFlags) (wire.Statement, error) {
	if tx.(*testTransaction).ended {
		return nil, wire.Errorf(wire.CodeTransactionState, "transaction is not active")
	}
	def, ok := me.engine.statements[sql]
	if !ok {
		switch strings.ToLower(sql) {
		case "commit":
			def.typ = wire.StatementCommit
		case "rollback":
			def.typ = wire.StatementRollback
		case "set transaction":
			def.typ = wire.StatementStartTransaction
		default:
			return nil, wire.Errorf(wire.CodeDsqlError, "Token unknown - %s", sql)
		}
	}
	ret := &testStatement{def: def}
	if def.in != nil {
		ret.in = wire.NewMessageMetadata(def.in)
	}
	if def.out != nil {
		ret.out = wire.NewMessageMetadata(def.out)
	}
	return ret, nil
}

func (me *testAttachment) CreateBlob(tx wire.Transaction, data []byte) (wire.BlobId, error) {
	me.blobs = append(me.blobs, append([]byte(nil), data...))
	return wire.BlobId{Low: uint32(len(me.blobs))}, nil
}

func (me *testAttachment) ReadBlob(tx wire.Transaction, id wire.BlobId) ([]byte, error) {
	if id.Low == 0 || int(id.Low) > len(me.blobs) {
		return nil, wire.Errorf(wire.CodeBadBlobId, "invalid BLOB ID")
	}
	return me.blobs[id.Low-1], nil
}

func (me *testAttachment) Detach() error {
	if me.detached {
		return wire.Errorf(wire.CodeIoError, "already detached")
	}
	me.detached = true
	return nil
}

func (me *testAttachment) DropDatabase() error {
	me.dropped = true
	return me.Detach()
}

type testTransaction struct {
	tpb      []byte
	command  string
	parts    int
	prepared []byte
	// Operations in the order they were called.
	calls []string
	ended bool
}

func (me *testTransaction) call(op string) error {
	if me.ended {
		return wire.Errorf(wire.CodeTransactionState, "transaction is not active")
	}
	me.calls = append(me.calls, op)
	return nil
}

func (me *testTransaction) Prepare(message []byte) error {
	me.prepared = message
	return me.call("prepare")
}

func (me *testTransaction) Commit() (err error) {
	err = me.call("commit")
	me.ended = true
	return
}

func (me *testTransaction) CommitRetaining() error {
	return me.call("commit retaining")
}

func (me *testTransaction) Rollback() (err error) {
	err = me.call("rollback")
	me.ended = true
	return
}

func (me *testTransaction) RollbackRetaining() error {
	return me.call("rollback retaining")
}

type testStatement struct {
	def     testStatementDef
	in, out *wire.MessageMetadata
	freed   bool
}

func (me *testStatement) Type() wire.StatementType {
	return me.def.typ
}

func (me *testStatement) InputMetadata() wire.Metadata {
	if me.in == nil {
		return nil
	}
	return me.in
}

func (me *testStatement) OutputMetadata() wire.Metadata {
	if me.out == nil {
		return nil
	}
	return me.out
}

func (me *testStatement) Plan(detailed bool) (string, error) {
	if detailed {
		return "Select Expression\n    -> Table \"T\" Full Scan", nil
	}
	return "PLAN (T NATURAL)", nil
}

func (me *testStatement) Execute(tx wire.Transaction, inMeta wire.Metadata, in []byte, outMeta wire.Metadata, out []byte) error {
	if me.freed {
		return errors.New("statement freed")
	}
	if inMeta != nil && outMeta != nil && inMeta.MessageLength() == outMeta.MessageLength() {
		copy(out, in)
	}
	return nil
}

func (me *testStatement) OpenCursor(tx wire.Transaction, inMeta wire.Metadata, in []byte, outMeta wire.Metadata) (wire.Cursor, error) {
	c := &testCursor{rows: me.def.rows}
	if inMeta != nil && outMeta != nil && inMeta.MessageLength() == outMeta.MessageLength() {
		c.row = append([]byte(nil), in...)
	}
	return c, nil
}

func (me *testStatement) Free() error {
	if me.freed {
		return errors.New("statement already freed")
	}
	me.freed = true
	return nil
}

// testCursor yields the same row rows times, supporting every movement.
type testCursor struct {
	row    []byte
	rows   int
	pos    int
	closed bool
}

func (me *testCursor) move(pos int, out []byte) (bool, error) {
	if me.closed {
		return false, wire.Errorf(wire.CodeNoCursor, "cursor is closed")
	}
	me.pos = min(max(pos, 0), me.rows+1)
	if me.pos == 0 || me.pos > me.rows {
		return false, nil
	}
	copy(out, me.row)
	return true, nil
}

func (me *testCursor) FetchNext(out []byte) (bool, error)  { return me.move(me.pos+1, out) }
func (me *testCursor) FetchPrior(out []byte) (bool, error) { return me.move(me.pos-1, out) }
func (me *testCursor) FetchFirst(out []byte) (bool, error) { return me.move(1, out) }
func (me *testCursor) FetchLast(out []byte) (bool, error)  { return me.move(me.rows, out) }

func (me *testCursor) FetchAbsolute(position int, out []byte) (bool, error) {
	return me.move(position, out)
}

func (me *testCursor) FetchRelative(offset int, out []byte) (bool, error) {
	return me.move(me.pos+offset, out)
}

func (me *testCursor) Close() error {
	me.closed = true
	return nil
}
