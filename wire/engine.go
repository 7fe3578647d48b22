package wire

// Engine is the external collaborator that owns connections, transactions and statement
// execution. All calls block until the engine answers.
type Engine interface {
	Attach(uri string, dpb []byte) (Attachment, error)
	CreateDatabase(uri string, dpb []byte) (Attachment, error)
	// StartMulti starts one transaction spanning several attachments of this engine.
	StartMulti(atts []Attachment, tpb []byte) (Transaction, error)
}

type Attachment interface {
	StartTransaction(tpb []byte) (Transaction, error)
	// ExecuteTransactionCommand starts a transaction described by a SET TRANSACTION command.
	ExecuteTransactionCommand(cmd string) (Transaction, error)
	Prepare(tx Transaction, sql string, flags PrepareFlags) (Statement, error)
	CreateBlob(tx Transaction, data []byte) (BlobId, error)
	ReadBlob(tx Transaction, id BlobId) ([]byte, error)
	Detach() error
	DropDatabase() error
}

type Transaction interface {
	Prepare(message []byte) error
	Commit() error
	CommitRetaining() error
	Rollback() error
	RollbackRetaining() error
}

type Statement interface {
	Type() StatementType
	// InputMetadata and OutputMetadata return nil when the statement has no such message.
	InputMetadata() Metadata
	OutputMetadata() Metadata
	Plan(detailed bool) (string, error)
	Execute(tx Transaction, inMeta Metadata, in []byte, outMeta Metadata, out []byte) error
	OpenCursor(tx Transaction, inMeta Metadata, in []byte, outMeta Metadata) (Cursor, error)
	Free() error
}

// Cursor fetch methods write the row into out and report whether a row was available.
type Cursor interface {
	FetchNext(out []byte) (bool, error)
	FetchPrior(out []byte) (bool, error)
	FetchFirst(out []byte) (bool, error)
	FetchLast(out []byte) (bool, error)
	FetchAbsolute(position int, out []byte) (bool, error)
	FetchRelative(offset int, out []byte) (bool, error)
	Close() error
}
