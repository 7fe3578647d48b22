package sqlite

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anacrolix/sqlmsg/wire"
)

func newTestDatabase(t *testing.T, e *Engine, dpb []byte) wire.Attachment {
	att, err := e.CreateDatabase(NewMemoryURI(), dpb)
	require.NoError(t, err)
	t.Cleanup(func() { att.Detach() })
	return att
}

func newTestEngine(t *testing.T) *Engine {
	e := NewEngine()
	t.Cleanup(func() { e.Close() })
	return e
}

func exec(t testing.TB, att wire.Attachment, tx wire.Transaction, sql string) {
	t.Helper()
	s, err := att.Prepare(tx, sql, wire.PrepareFlagPrefetchMetadata)
	require.NoError(t, err)
	defer s.Free()
	require.NoError(t, s.Execute(tx, nil, nil, nil, nil))
}

func TestClassify(t *testing.T) {
	for _, c := range []struct {
		sql string
		typ wire.StatementType
	}{
		{"select 1", wire.StatementSelect},
		{"with x as (select 1) select * from x", wire.StatementSelect},
		{"select * from t for update", wire.StatementSelectForUpdate},
		{"insert into t values (1)", wire.StatementInsert},
		{"insert into t values (1) returning id", wire.StatementExecProcedure},
		{"update t set a = 1", wire.StatementUpdate},
		{"delete from t", wire.StatementDelete},
		{"create table t (a int)", wire.StatementDDL},
		{"set transaction read only", wire.StatementStartTransaction},
		{"set generator g to 1", wire.StatementSetGenerator},
		{"commit", wire.StatementCommit},
		{"rollback", wire.StatementRollback},
		{"rollback to savepoint s", wire.StatementSavepoint},
		{"release savepoint s", wire.StatementSavepoint},
	} {
		toks, err := lex(c.sql)
		require.NoError(t, err)
		typ, err := classify(toks)
		require.NoError(t, err, c.sql)
		assert.Equal(t, c.typ, typ, c.sql)
	}
	for _, sql := range []string{"execute procedure p", "frobnicate"} {
		toks, _ := lex(sql)
		_, err := classify(toks)
		requireCode(t, err, wire.CodeDsqlError)
	}
}

func TestSetTransactionTPB(t *testing.T) {
	toks, err := lex("set transaction read only no wait isolation level read committed record_version")
	require.NoError(t, err)
	tpb, err := setTransactionTPB(toks)
	require.NoError(t, err)
	assert.Equal(t, []byte{wire.TpbVersion3, wire.TpbRead, wire.TpbNowait, wire.TpbReadCommitted, wire.TpbRecVersion}, tpb)
	opts, err := parseTPB(tpb)
	require.NoError(t, err)
	assert.Equal(t, txOptions{readOnly: true, noWait: true}, opts)
	toks, _ = lex("set transaction bogus")
	_, err = setTransactionTPB(toks)
	requireCode(t, err, wire.CodeDsqlError)
}

func TestParseTPB(t *testing.T) {
	opts, err := parseTPB(nil)
	require.NoError(t, err)
	assert.Equal(t, txOptions{}, opts)
	opts, err = parseTPB([]byte{wire.TpbVersion3, wire.TpbConcurrency, wire.TpbWrite, wire.TpbAutocommit})
	require.NoError(t, err)
	assert.Equal(t, txOptions{autoCommit: true}, opts)
	_, err = parseTPB([]byte{wire.TpbVersion3, 99})
	requireCode(t, err, wire.CodeDsqlError)
	_, err = parseTPB([]byte{42})
	requireCode(t, err, wire.CodeDsqlError)
}

func TestMessagesRoundTrip(t *testing.T) {
	att := newTestDatabase(t, newTestEngine(t), nil)
	tx, err := att.StartTransaction(nil)
	require.NoError(t, err)
	exec(t, att, tx, "create table t (id integer, amount numeric(18,2), name varchar(10), at timestamp)")

	ins, err := att.Prepare(tx, "insert into t (id, amount, name, at) values (?, ?, ?, ?)", wire.PrepareFlagPrefetchMetadata)
	require.NoError(t, err)
	assert.Equal(t, wire.StatementInsert, ins.Type())
	assert.Nil(t, ins.OutputMetadata())
	in := ins.InputMetadata()
	require.Equal(t, 4, in.Count())
	assert.Equal(t, wire.TypeLong, in.Field(0).Type)
	assert.Equal(t, wire.TypeInt64, in.Field(1).Type)
	assert.Equal(t, -2, in.Field(1).Scale)
	assert.Equal(t, wire.TypeVarying, in.Field(2).Type)
	assert.Equal(t, 40, in.Field(2).Length)
	assert.Equal(t, wire.TypeTimestamp, in.Field(3).Type)

	at := time.Date(2024, time.March, 10, 12, 30, 0, 0, time.UTC)
	msg := make([]byte, in.MessageLength())
	wire.PutInt32(msg[in.Field(0).Offset:], 1)
	wire.PutInt64(msg[in.Field(1).Offset:], 12345)
	wire.PutVarying(msg[in.Field(2).Offset:], []byte("abc"))
	wire.PutTimestamp(msg[in.Field(3).Offset:], wire.TimestampFromTime(at))
	require.NoError(t, ins.Execute(tx, in, msg, nil, nil))
	wire.PutInt32(msg[in.Field(0).Offset:], 2)
	for i := 1; i < in.Count(); i++ {
		wire.SetNullFlag(msg, in.Field(i), true)
	}
	require.NoError(t, ins.Execute(tx, in, msg, nil, nil))
	require.NoError(t, ins.Free())

	sel, err := att.Prepare(tx, "select id, amount, name, at from t order by id", wire.PrepareFlagPrefetchMetadata)
	require.NoError(t, err)
	defer sel.Free()
	assert.Nil(t, sel.InputMetadata())
	out := sel.OutputMetadata()
	require.Equal(t, 4, out.Count())
	assert.Equal(t, "amount", out.Field(1).Alias)
	assert.Equal(t, "t", out.Field(1).Relation)
	c, err := sel.OpenCursor(tx, nil, nil, out)
	require.NoError(t, err)
	defer c.Close()
	row := make([]byte, out.MessageLength())
	ok, err := c.FetchNext(row)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 1, wire.GetInt32(row[out.Field(0).Offset:]))
	assert.EqualValues(t, 12345, wire.GetInt64(row[out.Field(1).Offset:]))
	assert.Equal(t, []byte("abc"), wire.GetVarying(row[out.Field(2).Offset:]))
	assert.Equal(t, wire.TimestampFromTime(at), wire.GetTimestamp(row[out.Field(3).Offset:]))
	ok, err = c.FetchNext(row)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 2, wire.GetInt32(row[out.Field(0).Offset:]))
	for i := 1; i < out.Count(); i++ {
		assert.True(t, wire.IsNull(row, out.Field(i)), i)
	}
	ok, err = c.FetchNext(row)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, tx.Commit())
	requireCode(t, tx.Commit(), wire.CodeTransactionState)
}

func TestNullParameter(t *testing.T) {
	att := newTestDatabase(t, newTestEngine(t), nil)
	tx, err := att.StartTransaction(nil)
	require.NoError(t, err)
	defer tx.Rollback()
	s, err := att.Prepare(tx, "select cast(? as integer) from rdb$database", wire.PrepareFlagPrefetchMetadata)
	require.NoError(t, err)
	defer s.Free()
	in, out := s.InputMetadata(), s.OutputMetadata()
	require.Equal(t, wire.TypeLong, in.Field(0).Type)
	require.Equal(t, wire.TypeLong, out.Field(0).Type)
	msg := make([]byte, in.MessageLength())
	wire.SetNullFlag(msg, in.Field(0), true)
	row := make([]byte, out.MessageLength())
	require.NoError(t, s.Execute(tx, in, msg, out, row))
	assert.True(t, wire.IsNull(row, out.Field(0)))
	wire.SetNullFlag(msg, in.Field(0), false)
	wire.PutInt32(msg[in.Field(0).Offset:], -5)
	require.NoError(t, s.Execute(tx, in, msg, out, row))
	assert.False(t, wire.IsNull(row, out.Field(0)))
	assert.EqualValues(t, -5, wire.GetInt32(row[out.Field(0).Offset:]))
}

func TestOutputOverflow(t *testing.T) {
	att := newTestDatabase(t, newTestEngine(t), nil)
	tx, err := att.StartTransaction(nil)
	require.NoError(t, err)
	defer tx.Rollback()
	exec(t, att, tx, "create table w (v bigint)")
	exec(t, att, tx, "insert into w values (100000)")
	s, err := att.Prepare(tx, "select cast(v as smallint) from w", wire.PrepareFlagPrefetchMetadata)
	require.NoError(t, err)
	defer s.Free()
	out := s.OutputMetadata()
	require.Equal(t, wire.TypeShort, out.Field(0).Type)
	err = s.Execute(tx, nil, nil, out, make([]byte, out.MessageLength()))
	requireCode(t, err, wire.CodeNumericOutOfRange)
}

func TestCursorScrolling(t *testing.T) {
	att := newTestDatabase(t, newTestEngine(t), nil)
	tx, err := att.StartTransaction(nil)
	require.NoError(t, err)
	defer tx.Rollback()
	exec(t, att, tx, "create table n (i integer)")
	for _, sql := range []string{"insert into n values (1)", "insert into n values (2)", "insert into n values (3)"} {
		exec(t, att, tx, sql)
	}
	s, err := att.Prepare(tx, "select i from n order by i", wire.PrepareFlagPrefetchMetadata)
	require.NoError(t, err)
	defer s.Free()
	out := s.OutputMetadata()
	c, err := s.OpenCursor(tx, nil, nil, out)
	require.NoError(t, err)
	row := make([]byte, out.MessageLength())
	expect := func(ok bool, err error) func(want int32) {
		return func(want int32) {
			t.Helper()
			require.NoError(t, err)
			if want == 0 {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, want, wire.GetInt32(row[out.Field(0).Offset:]))
		}
	}
	expect(c.FetchLast(row))(3)
	expect(c.FetchPrior(row))(2)
	expect(c.FetchFirst(row))(1)
	expect(c.FetchAbsolute(-1, row))(3)
	expect(c.FetchRelative(-2, row))(1)
	expect(c.FetchRelative(5, row))(0)
	expect(c.FetchPrior(row))(3)
	expect(c.FetchAbsolute(0, row))(0)
	expect(c.FetchNext(row))(1)
	require.NoError(t, c.Close())
	requireCode(t, c.Close(), wire.CodeNoCursor)
	_, err = c.FetchNext(row)
	requireCode(t, err, wire.CodeNoCursor)
}

func TestReadOnlyTransaction(t *testing.T) {
	att := newTestDatabase(t, newTestEngine(t), nil)
	tx, err := att.ExecuteTransactionCommand("set transaction read only")
	require.NoError(t, err)
	defer tx.Rollback()
	s, err := att.Prepare(tx, "create table x (i integer)", wire.PrepareFlagPrefetchMetadata)
	require.NoError(t, err)
	defer s.Free()
	requireCode(t, s.Execute(tx, nil, nil, nil, nil), wire.CodeReadOnlyTransaction)
	_, err = att.CreateBlob(tx, []byte("x"))
	requireCode(t, err, wire.CodeReadOnlyTransaction)
	exec(t, att, tx, "select * from rdb$database")
}

func TestBlobs(t *testing.T) {
	att := newTestDatabase(t, newTestEngine(t), nil)
	tx, err := att.StartTransaction(nil)
	require.NoError(t, err)
	defer tx.Rollback()
	id, err := att.CreateBlob(tx, []byte("hello"))
	require.NoError(t, err)
	assert.False(t, id.IsZero())
	data, err := att.ReadBlob(tx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
	_, err = att.ReadBlob(tx, wire.BlobId{Low: 999})
	requireCode(t, err, wire.CodeBadBlobId)
}

func TestPlan(t *testing.T) {
	att := newTestDatabase(t, newTestEngine(t), nil)
	tx, err := att.StartTransaction(nil)
	require.NoError(t, err)
	defer tx.Rollback()
	exec(t, att, tx, "create table p (i integer)")
	s, err := att.Prepare(tx, "select * from p", wire.PrepareFlagPrefetchMetadata|wire.PrepareFlagPrefetchDetailedPlan)
	require.NoError(t, err)
	defer s.Free()
	plan, err := s.Plan(true)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(plan, "Select Expression\n"), plan)
	assert.Contains(t, plan, "-> SCAN")
	legacy, err := s.Plan(false)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(legacy, "PLAN ("), legacy)
	ddl, err := att.Prepare(tx, "create table q (i integer)", wire.PrepareFlagPrefetchMetadata)
	require.NoError(t, err)
	defer ddl.Free()
	_, err = ddl.Plan(true)
	requireCode(t, err, wire.CodeDsqlError)
}

func TestFreedStatement(t *testing.T) {
	att := newTestDatabase(t, newTestEngine(t), nil)
	tx, err := att.StartTransaction(nil)
	require.NoError(t, err)
	defer tx.Rollback()
	s, err := att.Prepare(tx, "select * from rdb$database", wire.PrepareFlagPrefetchMetadata)
	require.NoError(t, err)
	require.NoError(t, s.Free())
	_, err = s.OpenCursor(tx, nil, nil, s.OutputMetadata())
	requireCode(t, err, wire.CodeDsqlError)
}

func TestTransactionControlStatements(t *testing.T) {
	att := newTestDatabase(t, newTestEngine(t), nil)
	tx, err := att.StartTransaction(nil)
	require.NoError(t, err)
	defer tx.Rollback()
	for _, sql := range []string{"commit", "rollback", "set transaction"} {
		s, err := att.Prepare(tx, sql, wire.PrepareFlagPrefetchMetadata)
		require.NoError(t, err, sql)
		assert.Nil(t, s.InputMetadata())
		assert.Nil(t, s.OutputMetadata())
		requireCode(t, s.Execute(tx, nil, nil, nil, nil), wire.CodeDsqlError)
		s.Free()
	}
}

func TestAutoCommit(t *testing.T) {
	att := newTestDatabase(t, newTestEngine(t), nil)
	auto, err := att.StartTransaction([]byte{wire.TpbVersion3, wire.TpbAutocommit})
	require.NoError(t, err)
	exec(t, att, auto, "create table a (i integer)")
	exec(t, att, auto, "insert into a values (1)")
	require.NoError(t, auto.Rollback())
	tx, err := att.StartTransaction(nil)
	require.NoError(t, err)
	defer tx.Rollback()
	s, err := att.Prepare(tx, "select count(*) from a", wire.PrepareFlagPrefetchMetadata)
	require.NoError(t, err)
	defer s.Free()
	out := s.OutputMetadata()
	require.Equal(t, wire.TypeInt64, out.Field(0).Type)
	row := make([]byte, out.MessageLength())
	require.NoError(t, s.Execute(tx, nil, nil, out, row))
	assert.EqualValues(t, 1, wire.GetInt64(row[out.Field(0).Offset:]))
}

func TestTwoPhaseMultiDatabase(t *testing.T) {
	e := newTestEngine(t)
	a, b := newTestDatabase(t, e, nil), newTestDatabase(t, e, nil)
	tx, err := e.StartMulti([]wire.Attachment{a, b}, nil)
	require.NoError(t, err)
	exec(t, a, tx, "create table x (i integer)")
	exec(t, b, tx, "create table y (i integer)")
	requireCode(t, a.Detach(), wire.CodeTransactionState)
	require.NoError(t, tx.Prepare([]byte("recovery")))
	requireCode(t, tx.Prepare(nil), wire.CodeTransactionState)
	_, err = a.Prepare(tx, "select * from x", wire.PrepareFlagPrefetchMetadata)
	requireCode(t, err, wire.CodeTransactionState)
	requireCode(t, tx.CommitRetaining(), wire.CodeTransactionState)
	require.NoError(t, tx.Commit())
	for att, sql := range map[wire.Attachment]string{a: "select * from x", b: "select * from y"} {
		check, err := att.StartTransaction(nil)
		require.NoError(t, err)
		exec(t, att, check, sql)
		check.Rollback()
	}
}

func TestDatabaseLifecycle(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Attach(MemoryPrefix+"missing", nil)
	requireCode(t, err, wire.CodeIoError)
	uri := NewMemoryURI()
	att, err := e.CreateDatabase(uri, nil)
	require.NoError(t, err)
	_, err = e.CreateDatabase(uri, nil)
	requireCode(t, err, wire.CodeIoError)
	second, err := e.Attach(uri, nil)
	require.NoError(t, err)
	require.NoError(t, second.Detach())
	requireCode(t, second.Detach(), wire.CodeIoError)
	require.NoError(t, att.DropDatabase())
	_, err = e.Attach(uri, nil)
	requireCode(t, err, wire.CodeIoError)

	path := filepath.Join(t.TempDir(), "test.db")
	att, err = e.CreateDatabase(path, nil)
	require.NoError(t, err)
	require.NoError(t, att.Detach())
	att, err = e.Attach(path, nil)
	require.NoError(t, err)
	require.NoError(t, att.DropDatabase())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestConnectionCharSet(t *testing.T) {
	w := wire.NewParamWriter(nil, wire.DpbVersion1)
	require.NoError(t, w.InsertString(wire.DpbLcCtype, "WIN1252"))
	e := newTestEngine(t)
	att := newTestDatabase(t, e, w.Bytes())
	tx, err := att.StartTransaction(nil)
	require.NoError(t, err)
	defer tx.Rollback()
	s, err := att.Prepare(tx, "select 'é', 'Ж' from rdb$database", wire.PrepareFlagPrefetchMetadata)
	require.NoError(t, err)
	defer s.Free()
	out := s.OutputMetadata()
	require.Equal(t, 2, out.Count())
	f := out.Field(0)
	assert.Equal(t, wire.TypeText, f.Type)
	assert.Equal(t, CharSetWin1252, f.CharSet)
	assert.Equal(t, 1, f.Length)
	err = s.Execute(tx, nil, nil, out, make([]byte, out.MessageLength()))
	requireCode(t, err, wire.CodeTransliteration)
	_, err = e.Attach("", []byte{wire.DpbVersion1, wire.DpbLcCtype, 3, 'X', 'Y', 'Z'})
	requireCode(t, err, wire.CodeBadDbFormat)
}
