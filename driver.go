package sqlmsg

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bradfitz/iter"
	"github.com/cockroachdb/errors"
)

const DriverName = "sqlmsg"

func init() {
	sql.Register(DriverName, &sqlmsgDriver{})
}

type sqlmsgDriver struct{}

var _ driver.DriverContext = sqlmsgDriver{}

func (me sqlmsgDriver) Open(name string) (ret driver.Conn, err error) {
	c, err := me.OpenConnector(name)
	if err != nil {
		return
	}
	return c.Connect(context.Background())
}

// OpenConnector parses a DSN of the form
// sqlmsg://host:port/database?create=1&charset=UTF8&user=name&password=secret&role=name. The
// database is the path without its leading slash, so absolute paths need two.
func (sqlmsgDriver) OpenConnector(name string) (driver.Connector, error) {
	u, err := url.Parse(name)
	if err != nil {
		return nil, err
	}
	if u.Scheme != DriverName {
		return nil, errors.Newf("unexpected DSN scheme %q", u.Scheme)
	}
	q := u.Query()
	ret := &connector{
		address: u.Host,
		uri:     strings.TrimPrefix(u.Path, "/"),
		opts: AttachmentOptions{
			ConnectionCharSet: q.Get("charset"),
			UserName:          q.Get("user"),
			Password:          q.Get("password"),
			Role:              q.Get("role"),
		},
	}
	if create := q.Get("create"); create != "" {
		if ret.opts.CreateDatabase, err = strconv.ParseBool(create); err != nil {
			return nil, errors.Wrapf(err, "parsing create")
		}
	}
	return ret, nil
}

// NewConnector returns a connector attaching to uri through client, for use with sql.OpenDB.
// The caller keeps ownership of client.
func NewConnector(client *Client, uri string, opts AttachmentOptions) driver.Connector {
	return &connector{
		client: client,
		uri:    uri,
		opts:   opts,
	}
}

type connector struct {
	client  *Client
	address string
	uri     string

	mu   sync.Mutex
	opts AttachmentOptions
}

func (me *connector) Connect(ctx context.Context) (ret driver.Conn, err error) {
	client, owned := me.client, false
	if client == nil {
		var engine *RemoteEngine
		if engine, err = DialRemoteEngine(me.address); err != nil {
			return
		}
		client, owned = NewClient(engine), true
	}
	me.mu.Lock()
	att, err := NewAttachment(client, me.uri, me.opts)
	if err == nil {
		// Only the first connection creates the database.
		me.opts.CreateDatabase = false
	}
	me.mu.Unlock()
	if err != nil {
		if owned {
			client.Close()
		}
		return
	}
	ret = &conn{
		client:     client,
		ownsClient: owned,
		att:        att,
	}
	return
}

func (me *connector) Driver() driver.Driver {
	return sqlmsgDriver{}
}

type conn struct {
	client     *Client
	ownsClient bool
	att        *Attachment
	// The explicit transaction, nil when statements autocommit.
	tx     *Transaction
	txOpts TransactionOptions
}

func (me *conn) Begin() (driver.Tx, error) {
	return me.BeginTx(context.Background(), driver.TxOptions{})
}

func (me *conn) BeginTx(ctx context.Context, opts driver.TxOptions) (ret driver.Tx, err error) {
	if me.tx != nil {
		err = errors.New("already in a transaction")
		return
	}
	txOpts := me.txOpts
	if opts.ReadOnly {
		txOpts.AccessMode = AccessReadOnly
	}
	switch sql.IsolationLevel(opts.Isolation) {
	case sql.LevelDefault:
	case sql.LevelReadCommitted:
		txOpts.IsolationLevel = IsolationReadCommitted
	case sql.LevelSnapshot, sql.LevelRepeatableRead:
		txOpts.IsolationLevel = IsolationConcurrency
	case sql.LevelSerializable:
		txOpts.IsolationLevel = IsolationConsistency
	default:
		err = errors.Newf("unsupported isolation level %v", sql.IsolationLevel(opts.Isolation))
		return
	}
	me.tx, err = NewTransaction(me.att, txOpts)
	if err != nil {
		return
	}
	ret = &tx{me}
	return
}

type tx struct {
	conn *conn
}

func (me *tx) end(f func(*Transaction) error) error {
	t := me.conn.tx
	if t == nil {
		return errors.New("not in a transaction")
	}
	me.conn.tx = nil
	return f(t)
}

func (me *tx) Commit() error {
	return me.end((*Transaction).Commit)
}

func (me *tx) Rollback() error {
	return me.end((*Transaction).Rollback)
}

// transaction returns the explicit transaction, or starts one that the caller commits with
// finishAuto.
func (me *conn) transaction() (t *Transaction, auto bool, err error) {
	if me.tx != nil {
		return me.tx, false, nil
	}
	t, err = NewTransaction(me.att, me.txOpts)
	auto = err == nil
	return
}

func (me *conn) finishAuto(t *Transaction, err error) error {
	if err != nil {
		t.Close()
		return err
	}
	return t.Commit()
}

func (me *conn) Close() (err error) {
	if me.tx != nil {
		me.tx.Close()
		me.tx = nil
	}
	err = me.att.Disconnect()
	if me.ownsClient {
		if closeErr := me.client.Close(); err == nil {
			err = closeErr
		}
	}
	return
}

func (me *conn) Prepare(query string) (ret driver.Stmt, err error) {
	t, auto, err := me.transaction()
	if err != nil {
		return
	}
	s, err := NewStatement(me.att, t, query, StatementOptions{})
	if auto {
		err = me.finishAuto(t, err)
	}
	if err != nil {
		if s != nil {
			s.Close()
		}
		return
	}
	ret = &stmt{me, s}
	return
}

type stmt struct {
	conn *conn
	s    *Statement
}

func (me *stmt) Close() error {
	if !me.s.IsValid() {
		return nil
	}
	return me.s.Free()
}

func (me *stmt) NumInput() int {
	return len(me.s.InputDescriptors())
}

// bind sets the parameters. Values for string parameters are bound as their text; byte slices
// for BLOB parameters are stored as a new blob.
func (me *stmt) bind(t *Transaction, args []driver.Value) (err error) {
	me.s.ClearParameters()
	descs := me.s.InputDescriptors()
	for i, v := range args {
		switch {
		case v == nil:
			err = me.s.SetNull(i)
		case descs[i].AdjustedType == AdjustedBlob:
			var data []byte
			switch v := v.(type) {
			case []byte:
				data = v
			case string:
				data = []byte(v)
			default:
				return errors.Newf("cannot bind %T to BLOB parameter %d", v, i)
			}
			var id BlobId
			if id, err = me.conn.att.CreateBlob(t, data); err == nil {
				err = me.s.SetBlobId(i, id)
			}
		case descs[i].AdjustedType == AdjustedString:
			err = me.s.SetString(i, valueText(v))
		default:
			err = me.s.Set(i, v)
		}
		if err != nil {
			return
		}
	}
	return
}

func valueText(v driver.Value) string {
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return floatText(v, 64)
	case bool:
		return boolText(v)
	case time.Time:
		return TimestampOf(v).String()
	}
	return ""
}

func (me *stmt) Exec(args []driver.Value) (ret driver.Result, err error) {
	t, auto, err := me.conn.transaction()
	if err != nil {
		return
	}
	err = me.bind(t, args)
	if err == nil {
		_, err = me.s.Execute(t)
	}
	if auto {
		err = me.conn.finishAuto(t, err)
	}
	if err != nil {
		return
	}
	ret = driver.ResultNoRows
	return
}

func (me *stmt) Query(args []driver.Value) (ret driver.Rows, err error) {
	t, auto, err := me.conn.transaction()
	if err != nil {
		return
	}
	var ok bool
	err = me.bind(t, args)
	if err == nil {
		ok, err = me.s.Execute(t)
	}
	if err != nil {
		if auto {
			me.conn.finishAuto(t, err)
		}
		return
	}
	// Statements without output, such as DDL, have no rows.
	ok = ok && len(me.s.OutputDescriptors()) != 0
	r := &rows{
		stmt:    me,
		tx:      t,
		pending: ok,
		eof:     !ok,
	}
	if auto {
		r.autoTx = t
	}
	ret = r
	return
}

type rows struct {
	stmt *stmt
	tx   *Transaction
	// Committed when the rows are closed.
	autoTx *Transaction
	// Execute already fetched the first row.
	pending bool
	eof     bool
}

func (me *rows) Columns() (ret []string) {
	for _, d := range me.stmt.s.OutputDescriptors() {
		name := d.Alias
		if name == "" {
			name = d.Field
		}
		ret = append(ret, name)
	}
	return
}

func (me *rows) Close() (err error) {
	me.eof = true
	if me.autoTx != nil {
		err = me.stmt.conn.finishAuto(me.autoTx, nil)
		me.autoTx = nil
	}
	return
}

func (me *rows) Next(dest []driver.Value) (err error) {
	if me.eof {
		return io.EOF
	}
	if me.pending {
		me.pending = false
	} else {
		var ok bool
		if ok, err = me.stmt.s.FetchNext(); err != nil {
			return
		}
		if !ok {
			me.eof = true
			return io.EOF
		}
	}
	for i := range iter.N(len(dest)) {
		if dest[i], err = me.value(i); err != nil {
			return
		}
	}
	return
}

// value converts a column to one of the driver.Value types. Exact numbers that don't fit an
// int64 and times of day are returned as text.
func (me *rows) value(i int) (v driver.Value, err error) {
	s := me.stmt.s
	if null, err := s.IsNull(i); err != nil || null {
		return nil, err
	}
	d := s.OutputDescriptors()[i]
	switch d.AdjustedType {
	case AdjustedBoolean:
		v, _, err = s.GetBool(i)
	case AdjustedInt16, AdjustedInt32, AdjustedInt64:
		if d.Scale != 0 {
			v, _, err = s.GetString(i)
		} else {
			v, _, err = s.GetInt64(i)
		}
	case AdjustedFloat, AdjustedDouble:
		v, _, err = s.GetFloat64(i)
	case AdjustedDate:
		var date Date
		if date, _, err = s.GetDate(i); err == nil {
			v = time.Date(date.Year, date.Month, date.Day, 0, 0, 0, 0, time.UTC)
		}
	case AdjustedTimestamp:
		var ts Timestamp
		if ts, _, err = s.GetTimestamp(i); err == nil {
			v = ts.In(time.UTC)
		}
	case AdjustedTimestampTz:
		var ts TimestampTz
		if ts, _, err = s.GetTimestampTz(i); err == nil {
			v, err = ts.Time()
		}
	case AdjustedBlob:
		var id BlobId
		if id, _, err = s.GetBlobId(i); err == nil {
			v, err = me.stmt.conn.att.ReadBlob(me.tx, id)
		}
	case AdjustedNull:
	default:
		v, _, err = s.GetString(i)
	}
	return
}
