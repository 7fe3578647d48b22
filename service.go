package sqlmsg

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/anacrolix/sqlmsg/refs"
	"github.com/anacrolix/sqlmsg/wire"
)

// ServiceName is the net/rpc name the Service is registered under.
const ServiceName = "SQLMSG"

// Service exposes an engine over net/rpc. Attachments, transactions, statements and cursors are
// held as refs, released after Expiry without use.
type Service struct {
	Engine wire.Engine
	Expiry time.Duration

	initOnce sync.Once
	refs     refs.Manager
}

func (me *Service) newRef(obj interface{}, closer func() error) int {
	me.initOnce.Do(func() {
		me.refs.Expiry = me.Expiry
	})
	return int(me.refs.New(obj, closer))
}

// net/rpc complains about this method's signature, but it needs to be public to export this
// information to a status page.
func (me *Service) Refs() map[refs.Id]interface{} {
	return me.refs.GetAll()
}

// Close releases every outstanding ref.
func (me *Service) Close() error {
	return me.refs.Close()
}

func ref[T any](me *Service, id int) (ret T, err error) {
	obj, err := me.refs.Get(refs.Id(id))
	if err != nil {
		return
	}
	ret, ok := obj.(T)
	if !ok {
		err = errors.Newf("ref %d is a %T", id, obj)
	}
	return
}

func (me *Service) Attach(args AttachArgs, attId *int) (err error) {
	var att wire.Attachment
	if args.Create {
		att, err = me.Engine.CreateDatabase(args.URI, args.DPB)
	} else {
		att, err = me.Engine.Attach(args.URI, args.DPB)
	}
	if err != nil {
		return
	}
	*attId = me.newRef(att, att.Detach)
	return
}

func (me *Service) Detach(attId int, reply *struct{}) (err error) {
	att, err := ref[wire.Attachment](me, attId)
	if err != nil {
		return
	}
	if err = att.Detach(); err != nil {
		return
	}
	_, err = me.refs.Pop(refs.Id(attId))
	return
}

func (me *Service) Drop(attId int, reply *struct{}) (err error) {
	att, err := ref[wire.Attachment](me, attId)
	if err != nil {
		return
	}
	if err = att.DropDatabase(); err != nil {
		return
	}
	_, err = me.refs.Pop(refs.Id(attId))
	return
}

func (me *Service) newTransaction(tx wire.Transaction, txId *int) {
	*txId = me.newRef(tx, tx.Rollback)
}

func (me *Service) StartTransaction(args StartTransactionArgs, txId *int) (err error) {
	att, err := ref[wire.Attachment](me, args.Attachment)
	if err != nil {
		return
	}
	tx, err := att.StartTransaction(args.TPB)
	if err != nil {
		return
	}
	me.newTransaction(tx, txId)
	return
}

func (me *Service) ExecuteTransaction(args ExecuteTransactionArgs, txId *int) (err error) {
	att, err := ref[wire.Attachment](me, args.Attachment)
	if err != nil {
		return
	}
	tx, err := att.ExecuteTransactionCommand(args.Command)
	if err != nil {
		return
	}
	me.newTransaction(tx, txId)
	return
}

func (me *Service) StartMulti(args StartMultiArgs, txId *int) (err error) {
	atts := make([]wire.Attachment, 0, len(args.Attachments))
	for _, id := range args.Attachments {
		var att wire.Attachment
		if att, err = ref[wire.Attachment](me, id); err != nil {
			return
		}
		atts = append(atts, att)
	}
	tx, err := me.Engine.StartMulti(atts, args.TPB)
	if err != nil {
		return
	}
	me.newTransaction(tx, txId)
	return
}

func (me *Service) TxPrepare(args TxPrepareArgs, reply *struct{}) (err error) {
	tx, err := ref[wire.Transaction](me, args.Transaction)
	if err != nil {
		return
	}
	return tx.Prepare(args.Message)
}

// endTransaction runs a terminal transaction operation and forgets the transaction.
func (me *Service) endTransaction(txId int, f func(wire.Transaction) error) (err error) {
	tx, err := ref[wire.Transaction](me, txId)
	if err != nil {
		return
	}
	if err = f(tx); err != nil {
		return
	}
	_, err = me.refs.Pop(refs.Id(txId))
	return
}

func (me *Service) TxCommit(txId int, reply *struct{}) error {
	return me.endTransaction(txId, wire.Transaction.Commit)
}

func (me *Service) TxRollback(txId int, reply *struct{}) error {
	return me.endTransaction(txId, wire.Transaction.Rollback)
}

func (me *Service) TxCommitRetaining(txId int, reply *struct{}) (err error) {
	tx, err := ref[wire.Transaction](me, txId)
	if err != nil {
		return
	}
	return tx.CommitRetaining()
}

func (me *Service) TxRollbackRetaining(txId int, reply *struct{}) (err error) {
	tx, err := ref[wire.Transaction](me, txId)
	if err != nil {
		return
	}
	return tx.RollbackRetaining()
}

func (me *Service) Prepare(args PrepareArgs, reply *PrepareReply) (err error) {
	att, err := ref[wire.Attachment](me, args.Attachment)
	if err != nil {
		return
	}
	tx, err := ref[wire.Transaction](me, args.Transaction)
	if err != nil {
		return
	}
	stmt, err := att.Prepare(tx, args.SQL, args.Flags)
	if err != nil {
		return
	}
	reply.Statement = me.newRef(stmt, stmt.Free)
	reply.Type = stmt.Type()
	reply.Input = wire.MetadataOf(stmt.InputMetadata())
	reply.Output = wire.MetadataOf(stmt.OutputMetadata())
	return
}

func (me *Service) Plan(args PlanArgs, plan *string) (err error) {
	stmt, err := ref[wire.Statement](me, args.Statement)
	if err != nil {
		return
	}
	*plan, err = stmt.Plan(args.Detailed)
	return
}

// metadata keeps nil metadata a nil interface.
func metadata(md *wire.MessageMetadata) wire.Metadata {
	if md == nil {
		return nil
	}
	return md
}

func (me *Service) Execute(args ExecuteArgs, reply *ExecuteReply) (err error) {
	stmt, err := ref[wire.Statement](me, args.Statement)
	if err != nil {
		return
	}
	tx, err := ref[wire.Transaction](me, args.Transaction)
	if err != nil {
		return
	}
	reply.Out = make([]byte, args.OutMeta.MessageLength())
	copy(reply.Out, args.Out)
	return stmt.Execute(tx, metadata(args.InMeta), args.In, metadata(args.OutMeta), reply.Out)
}

func (me *Service) OpenCursor(args ExecuteArgs, reply *CursorReply) (err error) {
	stmt, err := ref[wire.Statement](me, args.Statement)
	if err != nil {
		return
	}
	tx, err := ref[wire.Transaction](me, args.Transaction)
	if err != nil {
		return
	}
	cursor, err := stmt.OpenCursor(tx, metadata(args.InMeta), args.In, metadata(args.OutMeta))
	if err != nil {
		return
	}
	reply.Cursor = me.newRef(cursor, cursor.Close)
	return
}

func (me *Service) Fetch(args FetchArgs, reply *FetchReply) (err error) {
	cursor, err := ref[wire.Cursor](me, args.Cursor)
	if err != nil {
		return
	}
	out := make([]byte, args.OutLength)
	switch args.Op {
	case FetchNext:
		reply.Ok, err = cursor.FetchNext(out)
	case FetchPrior:
		reply.Ok, err = cursor.FetchPrior(out)
	case FetchFirst:
		reply.Ok, err = cursor.FetchFirst(out)
	case FetchLast:
		reply.Ok, err = cursor.FetchLast(out)
	case FetchAbsolute:
		reply.Ok, err = cursor.FetchAbsolute(args.Position, out)
	case FetchRelative:
		reply.Ok, err = cursor.FetchRelative(args.Position, out)
	default:
		err = errors.Newf("unknown fetch operation %d", args.Op)
	}
	if reply.Ok {
		reply.Out = out
	}
	return
}

// releaseRef runs the closer of id. Unknown ids were already released or expired.
func (me *Service) releaseRef(id int) (err error) {
	err = me.refs.Release(refs.Id(id))
	if errors.Is(err, refs.ErrBadRef) {
		err = nil
	}
	return
}

func (me *Service) CloseCursor(cursorId int, reply *struct{}) error {
	return me.releaseRef(cursorId)
}

func (me *Service) FreeStatement(stmtId int, reply *struct{}) error {
	return me.releaseRef(stmtId)
}

func (me *Service) CreateBlob(args BlobArgs, id *wire.BlobId) (err error) {
	att, err := ref[wire.Attachment](me, args.Attachment)
	if err != nil {
		return
	}
	tx, err := ref[wire.Transaction](me, args.Transaction)
	if err != nil {
		return
	}
	*id, err = att.CreateBlob(tx, args.Data)
	return
}

func (me *Service) ReadBlob(args BlobArgs, data *[]byte) (err error) {
	att, err := ref[wire.Attachment](me, args.Attachment)
	if err != nil {
		return
	}
	tx, err := ref[wire.Transaction](me, args.Transaction)
	if err != nil {
		return
	}
	*data, err = att.ReadBlob(tx, args.Id)
	return
}
