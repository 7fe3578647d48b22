package sqlmsg

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anacrolix/sqlmsg/wire"
)

func engineTransaction(tx *Transaction) *testTransaction {
	return tx.handle.(*testTransaction)
}

func TestTransactionOptionsTPB(t *testing.T) {
	att := newTestAttachment(t, newTestEngine())
	tx, err := NewTransaction(att, TransactionOptions{
		IsolationLevel:    IsolationReadCommitted,
		ReadCommittedMode: ReadCommittedRecordVersion,
		AccessMode:        AccessReadOnly,
		WaitMode:          WaitModeNoWait,
		AutoCommit:        true,
	})
	require.NoError(t, err)
	defer tx.Close()
	assert.Equal(t, []byte{
		wire.TpbVersion3,
		wire.TpbReadCommitted, wire.TpbRecVersion,
		wire.TpbRead,
		wire.TpbNowait,
		wire.TpbAutocommit,
	}, engineTransaction(tx).tpb)

	tx2, err := NewTransaction(att, TransactionOptions{})
	require.NoError(t, err)
	defer tx2.Close()
	assert.Empty(t, engineTransaction(tx2).tpb)

	tx3, err := NewTransaction(att, TransactionOptions{
		TPB:            []byte{wire.TpbVersion3, wire.TpbWrite},
		IsolationLevel: IsolationConcurrency,
	})
	require.NoError(t, err)
	defer tx3.Close()
	assert.Equal(t, []byte{wire.TpbVersion3, wire.TpbWrite, wire.TpbConcurrency}, engineTransaction(tx3).tpb)
}

func TestTransactionStates(t *testing.T) {
	att := newTestAttachment(t, newTestEngine())
	tx, err := NewTransaction(att, TransactionOptions{})
	require.NoError(t, err)
	assert.Equal(t, TransactionActive, tx.State())
	require.NoError(t, tx.CommitRetaining())
	require.NoError(t, tx.RollbackRetaining())
	assert.Equal(t, TransactionActive, tx.State())
	require.NoError(t, tx.Prepare([]byte("xa")))
	assert.Equal(t, TransactionPrepared, tx.State())
	assert.True(t, tx.IsValid())
	err = tx.CommitRetaining()
	assert.True(t, errors.Is(err, ErrTransactionState))
	assert.True(t, errors.Is(tx.Prepare(nil), ErrTransactionState))
	require.NoError(t, tx.Commit())
	assert.Equal(t, TransactionCommitted, tx.State())
	assert.False(t, tx.IsValid())
	assert.True(t, errors.Is(tx.Rollback(), ErrTransactionState))
	assert.NoError(t, tx.Close())
}

func TestTransactionEngineCalls(t *testing.T) {
	att := newTestAttachment(t, newTestEngine())
	tx, err := NewTransaction(att, TransactionOptions{})
	require.NoError(t, err)
	handle := engineTransaction(tx)
	require.NoError(t, tx.CommitRetaining())
	require.NoError(t, tx.Prepare([]byte("xa")))
	require.NoError(t, tx.Rollback())
	assert.Equal(t, []string{"commit retaining", "prepare", "rollback"}, handle.calls)
	assert.Equal(t, []byte("xa"), handle.prepared)
	assert.Equal(t, TransactionRolledBack, tx.State())
}

func TestCloseRollsBackActive(t *testing.T) {
	att := newTestAttachment(t, newTestEngine())
	tx, err := NewTransaction(att, TransactionOptions{})
	require.NoError(t, err)
	handle := engineTransaction(tx)
	require.NoError(t, tx.Close())
	assert.Equal(t, []string{"rollback"}, handle.calls)
	assert.Equal(t, TransactionRolledBack, tx.State())
}

func TestClosePreparedTransactionIsLoud(t *testing.T) {
	att := newTestAttachment(t, newTestEngine())
	tx, err := NewTransaction(att, TransactionOptions{})
	require.NoError(t, err)
	require.NoError(t, tx.Prepare(nil))
	var leaked []*Transaction
	defaultLeaked := PreparedTransactionLeaked
	PreparedTransactionLeaked = func(tx *Transaction) {
		leaked = append(leaked, tx)
	}
	t.Cleanup(func() { PreparedTransactionLeaked = defaultLeaked })
	err = tx.Close()
	assert.Equal(t, []*Transaction{tx}, leaked)
	assert.True(t, errors.Is(err, ErrPreparedTransactionLeaked))
	assert.True(t, errors.Is(err, ErrUsage))
	// The transaction is left for the caller to resolve.
	assert.Equal(t, TransactionPrepared, tx.State())
	require.NoError(t, tx.Rollback())
}

func TestMoveTransaction(t *testing.T) {
	att := newTestAttachment(t, newTestEngine())
	tx, err := NewTransaction(att, TransactionOptions{})
	require.NoError(t, err)
	moved := tx.Move()
	assert.Equal(t, TransactionInvalid, tx.State())
	assert.True(t, errors.Is(tx.Commit(), ErrTransactionState))
	assert.NoError(t, tx.Close())
	require.NoError(t, moved.Commit())
}

func TestTransactionFromCommand(t *testing.T) {
	att := newTestAttachment(t, newTestEngine())
	tx, err := NewTransactionFromCommand(att, "SET TRANSACTION READ ONLY")
	require.NoError(t, err)
	assert.Equal(t, "SET TRANSACTION READ ONLY", engineTransaction(tx).command)
	require.NoError(t, tx.Commit())
	_, err = NewTransactionFromCommand(att, "select 1")
	var de *DatabaseError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "execute transaction command", de.Op)
}

func TestMultiTransaction(t *testing.T) {
	e := newTestEngine()
	client := NewClient(e)
	att1, err := NewAttachment(client, "one.db", AttachmentOptions{})
	require.NoError(t, err)
	defer att1.Close()
	att2, err := NewAttachment(client, "two.db", AttachmentOptions{})
	require.NoError(t, err)
	defer att2.Close()
	tx, err := NewMultiTransaction([]*Attachment{att1, att2}, TransactionOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, engineTransaction(tx).parts)
	assert.Len(t, tx.Attachments(), 2)
	require.NoError(t, tx.Prepare(nil))
	require.NoError(t, tx.Commit())

	other := newTestAttachment(t, e)
	_, err = NewMultiTransaction([]*Attachment{att1, other}, TransactionOptions{})
	assert.True(t, errors.Is(err, ErrClientMismatch))
	_, err = NewMultiTransaction(nil, TransactionOptions{})
	assert.True(t, errors.Is(err, ErrInvalidHandle))
}

func TestAttachmentLifecycle(t *testing.T) {
	e := newTestEngine()
	client := NewClient(e)
	att, err := NewAttachment(client, "new.db", AttachmentOptions{
		CreateDatabase:    true,
		ConnectionCharSet: "UTF8",
		UserName:          "SYSDBA",
	})
	require.NoError(t, err)
	assert.Equal(t, "new.db", att.URI())
	assert.Same(t, client, att.Client())
	handle := att.handle.(*testAttachment)
	assert.Equal(t, []byte{wire.DpbVersion1, wire.DpbLcCtype, 4, 'U', 'T', 'F', '8', wire.DpbUserName, 6, 'S', 'Y', 'S', 'D', 'B', 'A'}, handle.dpb)

	tx, err := NewTransaction(att, TransactionOptions{})
	require.NoError(t, err)
	id, err := att.CreateBlob(tx, []byte("payload"))
	require.NoError(t, err)
	data, err := att.ReadBlob(tx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
	_, err = att.ReadBlob(tx, BlobId{Low: 99})
	var de *DatabaseError
	require.True(t, errors.As(err, &de))
	assert.True(t, de.HasCode(wire.CodeBadBlobId))
	require.NoError(t, tx.Commit())
	_, err = att.CreateBlob(tx, nil)
	assert.True(t, errors.Is(err, ErrTransactionState))

	require.NoError(t, att.DropDatabase())
	assert.True(t, handle.dropped)
	assert.False(t, att.IsValid())
	_, err = NewTransaction(att, TransactionOptions{})
	assert.True(t, errors.Is(err, ErrInvalidHandle))

	_, err = NewAttachment(client, "missing.db", AttachmentOptions{})
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "attach", de.Op)
	assert.True(t, de.HasCode(wire.CodeIoError))

	require.NoError(t, client.Close())
	assert.True(t, e.closed)
	assert.False(t, client.IsValid())
	_, err = NewAttachment(client, "new.db", AttachmentOptions{})
	assert.True(t, errors.Is(err, ErrInvalidHandle))
}
