package sqlmsg

import (
	"database/sql/driver"
	"log"
	"net/rpc"

	"github.com/cockroachdb/errors"

	"github.com/anacrolix/sqlmsg/refs"
	"github.com/anacrolix/sqlmsg/wire"
)

const logCalls = false

// RemoteEngine is a wire.Engine served by a Service in another process.
type RemoteEngine struct {
	rpcCl   *rpc.Client
	address string
}

var _ wire.Engine = (*RemoteEngine)(nil)

// DialRemoteEngine connects to a Service registered with rpc.HandleHTTP at address.
func DialRemoteEngine(address string) (ret *RemoteEngine, err error) {
	cl, err := rpc.DialHTTP("tcp", address)
	if err != nil {
		return
	}
	ret = &RemoteEngine{cl, address}
	return
}

func (me *RemoteEngine) Address() string {
	return me.address
}

func (me *RemoteEngine) Close() error {
	return me.rpcCl.Close()
}

// Call invokes a Service method. Engine statuses are restored as *wire.Error, and a lost
// connection or a handle the service no longer holds become driver.ErrBadConn.
func (me *RemoteEngine) Call(method string, args, reply interface{}) (err error) {
	if logCalls {
		log.Print(method)
	}
	err = me.rpcCl.Call(ServiceName+"."+method, args, reply)
	if logCalls && err != nil {
		log.Print(err)
	}
	if err == rpc.ErrShutdown {
		return driver.ErrBadConn
	}
	var se rpc.ServerError
	if errors.As(err, &se) {
		if string(se) == refs.ErrBadRef.Error() {
			return driver.ErrBadConn
		}
		if we := wire.ParseError(string(se)); len(we.Codes) != 0 {
			return we
		}
	}
	return
}

func (me *RemoteEngine) attach(uri string, dpb []byte, create bool) (wire.Attachment, error) {
	var id int
	if err := me.Call("Attach", AttachArgs{uri, dpb, create}, &id); err != nil {
		return nil, err
	}
	return &remoteAttachment{me, id}, nil
}

func (me *RemoteEngine) Attach(uri string, dpb []byte) (wire.Attachment, error) {
	return me.attach(uri, dpb, false)
}

func (me *RemoteEngine) CreateDatabase(uri string, dpb []byte) (wire.Attachment, error) {
	return me.attach(uri, dpb, true)
}

func (me *RemoteEngine) StartMulti(atts []wire.Attachment, tpb []byte) (wire.Transaction, error) {
	args := StartMultiArgs{TPB: tpb}
	for _, a := range atts {
		att, ok := a.(*remoteAttachment)
		if !ok || att.engine != me {
			return nil, errors.Newf("attachment %T does not belong to this engine", a)
		}
		args.Attachments = append(args.Attachments, att.id)
	}
	var id int
	if err := me.Call("StartMulti", args, &id); err != nil {
		return nil, err
	}
	return &remoteTransaction{me, id}, nil
}

type remoteAttachment struct {
	engine *RemoteEngine
	id     int
}

func (me *remoteAttachment) StartTransaction(tpb []byte) (wire.Transaction, error) {
	var id int
	if err := me.engine.Call("StartTransaction", StartTransactionArgs{me.id, tpb}, &id); err != nil {
		return nil, err
	}
	return &remoteTransaction{me.engine, id}, nil
}

func (me *remoteAttachment) ExecuteTransactionCommand(cmd string) (wire.Transaction, error) {
	var id int
	if err := me.engine.Call("ExecuteTransaction", ExecuteTransactionArgs{me.id, cmd}, &id); err != nil {
		return nil, err
	}
	return &remoteTransaction{me.engine, id}, nil
}

func (me *remoteAttachment) transactionId(tx wire.Transaction) (int, error) {
	rtx, ok := tx.(*remoteTransaction)
	if !ok || rtx.engine != me.engine {
		return 0, errors.Newf("transaction %T does not belong to this engine", tx)
	}
	return rtx.id, nil
}

func (me *remoteAttachment) Prepare(tx wire.Transaction, sql string, flags wire.PrepareFlags) (wire.Statement, error) {
	txId, err := me.transactionId(tx)
	if err != nil {
		return nil, err
	}
	var reply PrepareReply
	if err = me.engine.Call("Prepare", PrepareArgs{me.id, txId, sql, flags}, &reply); err != nil {
		return nil, err
	}
	return &remoteStatement{
		att: me,
		id:  reply.Statement,
		typ: reply.Type,
		in:  reply.Input,
		out: reply.Output,
	}, nil
}

func (me *remoteAttachment) CreateBlob(tx wire.Transaction, data []byte) (id wire.BlobId, err error) {
	txId, err := me.transactionId(tx)
	if err != nil {
		return
	}
	err = me.engine.Call("CreateBlob", BlobArgs{Attachment: me.id, Transaction: txId, Data: data}, &id)
	return
}

func (me *remoteAttachment) ReadBlob(tx wire.Transaction, id wire.BlobId) (data []byte, err error) {
	txId, err := me.transactionId(tx)
	if err != nil {
		return
	}
	err = me.engine.Call("ReadBlob", BlobArgs{Attachment: me.id, Transaction: txId, Id: id}, &data)
	return
}

func (me *remoteAttachment) Detach() error {
	return me.engine.Call("Detach", me.id, nil)
}

func (me *remoteAttachment) DropDatabase() error {
	return me.engine.Call("Drop", me.id, nil)
}

type remoteTransaction struct {
	engine *RemoteEngine
	id     int
}

func (me *remoteTransaction) Prepare(message []byte) error {
	return me.engine.Call("TxPrepare", TxPrepareArgs{me.id, message}, nil)
}

func (me *remoteTransaction) Commit() error {
	return me.engine.Call("TxCommit", me.id, nil)
}

func (me *remoteTransaction) CommitRetaining() error {
	return me.engine.Call("TxCommitRetaining", me.id, nil)
}

func (me *remoteTransaction) Rollback() error {
	return me.engine.Call("TxRollback", me.id, nil)
}

func (me *remoteTransaction) RollbackRetaining() error {
	return me.engine.Call("TxRollbackRetaining", me.id, nil)
}

type remoteStatement struct {
	att *remoteAttachment
	id  int
	typ wire.StatementType
	in  *wire.MessageMetadata
	out *wire.MessageMetadata
}

func (me *remoteStatement) Type() wire.StatementType {
	return me.typ
}

func (me *remoteStatement) InputMetadata() wire.Metadata {
	return metadata(me.in)
}

func (me *remoteStatement) OutputMetadata() wire.Metadata {
	return metadata(me.out)
}

func (me *remoteStatement) Plan(detailed bool) (plan string, err error) {
	err = me.att.engine.Call("Plan", PlanArgs{me.id, detailed}, &plan)
	return
}

func (me *remoteStatement) executeArgs(tx wire.Transaction, inMeta wire.Metadata, in []byte, outMeta wire.Metadata) (args ExecuteArgs, err error) {
	txId, err := me.att.transactionId(tx)
	if err != nil {
		return
	}
	args = ExecuteArgs{
		Statement:   me.id,
		Transaction: txId,
		InMeta:      wire.MetadataOf(inMeta),
		In:          in,
		OutMeta:     wire.MetadataOf(outMeta),
	}
	return
}

func (me *remoteStatement) Execute(tx wire.Transaction, inMeta wire.Metadata, in []byte, outMeta wire.Metadata, out []byte) error {
	args, err := me.executeArgs(tx, inMeta, in, outMeta)
	if err != nil {
		return err
	}
	args.Out = out
	var reply ExecuteReply
	if err = me.att.engine.Call("Execute", args, &reply); err != nil {
		return err
	}
	copy(out, reply.Out)
	return nil
}

func (me *remoteStatement) OpenCursor(tx wire.Transaction, inMeta wire.Metadata, in []byte, outMeta wire.Metadata) (wire.Cursor, error) {
	args, err := me.executeArgs(tx, inMeta, in, outMeta)
	if err != nil {
		return nil, err
	}
	var reply CursorReply
	if err = me.att.engine.Call("OpenCursor", args, &reply); err != nil {
		return nil, err
	}
	return &remoteCursor{me.att.engine, reply.Cursor}, nil
}

func (me *remoteStatement) Free() error {
	return me.att.engine.Call("FreeStatement", me.id, nil)
}

type remoteCursor struct {
	engine *RemoteEngine
	id     int
}

func (me *remoteCursor) fetch(op FetchOp, position int, out []byte) (bool, error) {
	var reply FetchReply
	err := me.engine.Call("Fetch", FetchArgs{me.id, op, position, len(out)}, &reply)
	if err != nil {
		return false, err
	}
	if reply.Ok {
		copy(out, reply.Out)
	}
	return reply.Ok, nil
}

func (me *remoteCursor) FetchNext(out []byte) (bool, error) {
	return me.fetch(FetchNext, 0, out)
}

func (me *remoteCursor) FetchPrior(out []byte) (bool, error) {
	return me.fetch(FetchPrior, 0, out)
}

func (me *remoteCursor) FetchFirst(out []byte) (bool, error) {
	return me.fetch(FetchFirst, 0, out)
}

func (me *remoteCursor) FetchLast(out []byte) (bool, error) {
	return me.fetch(FetchLast, 0, out)
}

func (me *remoteCursor) FetchAbsolute(position int, out []byte) (bool, error) {
	return me.fetch(FetchAbsolute, position, out)
}

func (me *remoteCursor) FetchRelative(offset int, out []byte) (bool, error) {
	return me.fetch(FetchRelative, offset, out)
}

func (me *remoteCursor) Close() error {
	return me.engine.Call("CloseCursor", me.id, nil)
}
