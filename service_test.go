package sqlmsg

import (
	"database/sql"
	"log"
	"math"
	"net"
	"net/http"
	"net/rpc"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/anacrolix/envpprof"
	"github.com/bradfitz/iter"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anacrolix/sqlmsg/sqlite"
	"github.com/anacrolix/sqlmsg/wire"
)

var (
	serverAddr string
	service    *Service
)

func init() {
	log.SetFlags(log.Flags() | log.Lshortfile)
	rpc.HandleHTTP()
	service = &Service{
		Engine: sqlite.NewEngine(),
		Expiry: time.Second,
	}
	err := rpc.RegisterName(ServiceName, service)
	if err != nil {
		log.Fatal(err)
	}
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		log.Fatal(err)
	}
	serverAddr = l.Addr().String()
	go http.Serve(l, nil)
}

// testDSN names a new database file in a temporary directory.
func testDSN(t testing.TB) string {
	return "sqlmsg://" + serverAddr + "/" + filepath.Join(t.TempDir(), "test.db") + "?create=1"
}

func openTestDB(t testing.TB) *sql.DB {
	db, err := sql.Open(DriverName, testDSN(t))
	require.NoError(t, err)
	return db
}

func TestPing(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	err := db.Ping()
	if err != nil {
		t.Fatal(err)
	}
}

func TestSimple(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec("create table test(universe integer)")
	require.NoError(t, err)
	_, err = db.Exec("insert into test values(?)", 42)
	require.NoError(t, err)
	var answer int
	row := db.QueryRow("select * from test")
	err = row.Scan(&answer)
	if err != nil {
		t.Fatal(err)
	}
	assert.EqualValues(t, 42, answer)
	_, err = db.Exec("insert into test values(?)", 43)
	require.NoError(t, err)
	var count int64
	require.NoError(t, db.QueryRow("select count(*) from test").Scan(&count))
	assert.EqualValues(t, 2, count)
	require.NoError(t, db.Close())
	assert.Equal(t, 0, service.refs.Len())
}

func TestTransactionSingleConnection(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	tx, err := db.Begin()
	require.NoError(t, err)
	_, err = tx.Exec("create table a(b integer)")
	require.NoError(t, err)
	_, err = tx.Exec("insert into a values(?)", 1)
	require.NoError(t, err)
	row := tx.QueryRow("select * from a where b < ?", 2)
	var i int
	err = row.Scan(&i)
	require.NoError(t, err)
	require.EqualValues(t, 1, i)
	_, err = tx.Exec("insert into a values(?)", 2)
	require.NoError(t, err)
	rows, err := tx.Query("select b from a where b > ?", 0)
	require.NoError(t, err)
	cols, _ := rows.Columns()
	require.EqualValues(t, []string{"b"}, cols)
	require.True(t, rows.Next())
	rows.Scan(&i)
	require.EqualValues(t, 1, i)
	require.True(t, rows.Next())
	rows.Scan(&i)
	require.EqualValues(t, 2, i)
	require.False(t, rows.Next())
	require.NoError(t, rows.Err())
	require.NoError(t, tx.Rollback())
	// The table went with the transaction.
	_, err = db.Exec("select * from a")
	require.Error(t, err)
}

func TestDriverTypes(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	_, err := db.Exec("create table t (id integer, amount numeric(18,2), name varchar(20), data blob)")
	require.NoError(t, err)
	_, err = db.Exec("insert into t (id, amount, name, data) values (?, ?, ?, ?)", 1, "12.34", "one", []byte("payload"))
	require.NoError(t, err)
	_, err = db.Exec("insert into t (id, amount, name, data) values (?, ?, ?, ?)", 2, nil, nil, nil)
	require.NoError(t, err)
	rows, err := db.Query("select id, amount, name, data from t order by id")
	require.NoError(t, err)
	defer rows.Close()
	var (
		id     int64
		amount sql.NullString
		name   sql.NullString
		data   []byte
	)
	require.True(t, rows.Next())
	require.NoError(t, rows.Scan(&id, &amount, &name, &data))
	assert.EqualValues(t, 1, id)
	assert.Equal(t, "12.34", amount.String)
	assert.Equal(t, "one", name.String)
	assert.Equal(t, []byte("payload"), data)
	require.True(t, rows.Next())
	require.NoError(t, rows.Scan(&id, &amount, &name, &data))
	assert.EqualValues(t, 2, id)
	assert.False(t, amount.Valid)
	assert.False(t, name.Valid)
	assert.Nil(t, data)
	assert.False(t, rows.Next())
	assert.NoError(t, rows.Err())
}

func TestRemoteDatabaseError(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	_, err := db.Exec("select * from missing")
	require.Error(t, err)
	var de *DatabaseError
	require.True(t, errors.As(err, &de), "%#v", err)
	assert.True(t, de.HasCode(wire.CodeDsqlError))
	assert.Equal(t, "prepare", de.Op)
	assert.Contains(t, de.Message, "no such table")
}

func TestRemoteStatement(t *testing.T) {
	engine, err := DialRemoteEngine(serverAddr)
	require.NoError(t, err)
	client := NewClient(engine)
	defer client.Close()
	att, err := NewAttachment(client, sqlite.NewMemoryURI(), AttachmentOptions{CreateDatabase: true})
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, att.DropDatabase())
	}()
	tx, err := NewTransaction(att, TransactionOptions{})
	require.NoError(t, err)
	defer tx.Close()
	s, err := NewStatement(att, tx, "select cast(? as integer) as n from rdb$database", StatementOptions{})
	require.NoError(t, err)
	defer s.Close()
	require.Len(t, s.InputDescriptors(), 1)
	assert.Equal(t, AdjustedInt32, s.InputDescriptors()[0].AdjustedType)
	require.NoError(t, s.SetNull(0))
	ok, err := s.Execute(tx)
	require.NoError(t, err)
	require.True(t, ok)
	null, err := s.IsNull(0)
	require.NoError(t, err)
	assert.True(t, null)
	require.NoError(t, s.SetInt32(0, 7))
	ok, err = s.Execute(tx)
	require.NoError(t, err)
	require.True(t, ok)
	v, ok, err := s.GetInt32(0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 7, v)
	ok, err = s.FetchNext()
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, s.Free())
	require.NoError(t, tx.Commit())
}

func TestRemoteTransactionCommand(t *testing.T) {
	engine, err := DialRemoteEngine(serverAddr)
	require.NoError(t, err)
	client := NewClient(engine)
	defer client.Close()
	att, err := NewAttachment(client, sqlite.NewMemoryURI(), AttachmentOptions{CreateDatabase: true})
	require.NoError(t, err)
	defer att.DropDatabase()
	tx, err := NewTransactionFromCommand(att, "set transaction read only")
	require.NoError(t, err)
	defer tx.Close()
	s, err := NewStatement(att, tx, "create table t (i integer)", StatementOptions{})
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Execute(tx)
	var de *DatabaseError
	require.True(t, errors.As(err, &de), "%#v", err)
	assert.True(t, de.HasCode(wire.CodeReadOnlyTransaction))
	require.NoError(t, tx.Prepare(nil))
	assert.Equal(t, TransactionPrepared, tx.State())
	require.NoError(t, tx.Rollback())
}

func Benchmark(b *testing.B) {
	db := openTestDB(b)
	defer db.Close()
	db.Exec("create table a(b integer)")
	for range iter.N(b.N) {
		for i := range iter.N(10) {
			db.Exec("insert into a values (?)", i)
		}
		rows, _ := db.Query("select * from a where b < ?", 3)
		var count int
		for rows.Next() {
			var b int
			rows.Scan(&b)
			if b < 3 {
				count++
			}
		}
		assert.Nil(b, rows.Err())
		assert.EqualValues(b, 3, count)
		rows.Close()
		db.Exec("delete from a")
	}
}

func TestExpires(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	db.Exec("create table a(b integer)")
	db.Exec("insert into a values (1)")
	db.Exec("insert into a values (2)")
	rows, err := db.Query("select * from a where b < ?", 3)
	require.NoError(t, err)
	require.True(t, rows.Next())
	time.Sleep(1500 * time.Millisecond)
	assert.False(t, rows.Next())
	// Cursor handle should be expired.
	require.Error(t, rows.Err())
	rows.Close()
}

func TestMaxIntTimerDuration(t *testing.T) {
	tr := time.AfterFunc(math.MaxInt64, func() {
		t.Fatal("timer fired")
	})
	time.Sleep(time.Millisecond)
	require.True(t, tr.Stop())
}
