package sqlmsg

import (
	"log"

	"github.com/anacrolix/sqlmsg/wire"
)

type AttachmentOptions struct {
	// Character set the engine converts text to and from, for example "UTF8".
	ConnectionCharSet string
	UserName          string
	Password          string
	Role              string
	// Raw parameter block the options above are added to.
	DPB            []byte
	CreateDatabase bool
}

func (me AttachmentOptions) dpb() ([]byte, error) {
	w := wire.NewParamWriter(me.DPB, wire.DpbVersion1)
	for _, item := range []struct {
		tag   byte
		value string
	}{
		{wire.DpbLcCtype, me.ConnectionCharSet},
		{wire.DpbUserName, me.UserName},
		{wire.DpbPassword, me.Password},
		{wire.DpbSqlRoleName, me.Role},
	} {
		if item.value == "" {
			continue
		}
		if err := w.InsertString(item.tag, item.value); err != nil {
			return nil, usageErrorf(ErrInvalidType, "%v", err)
		}
	}
	return w.Bytes(), nil
}

// Attachment is a connection to one database.
type Attachment struct {
	client *Client
	uri    string
	handle wire.Attachment
}

// NewAttachment attaches to, or with CreateDatabase creates, the database at uri.
func NewAttachment(client *Client, uri string, opts AttachmentOptions) (ret *Attachment, err error) {
	if !client.IsValid() {
		err = usageErrorf(ErrInvalidHandle, "attaching with an invalid client")
		return
	}
	dpb, err := opts.dpb()
	if err != nil {
		return
	}
	var handle wire.Attachment
	if opts.CreateDatabase {
		handle, err = client.engine.CreateDatabase(uri, dpb)
		err = engineError("create database", err)
	} else {
		handle, err = client.engine.Attach(uri, dpb)
		err = engineError("attach", err)
	}
	if err != nil {
		return
	}
	ret = &Attachment{
		client: client,
		uri:    uri,
		handle: handle,
	}
	return
}

func (me *Attachment) IsValid() bool {
	return me != nil && me.handle != nil
}

func (me *Attachment) Client() *Client {
	return me.client
}

func (me *Attachment) URI() string {
	return me.uri
}

func (me *Attachment) checkValid() error {
	if !me.IsValid() {
		return usageErrorf(ErrInvalidHandle, "attachment is not valid")
	}
	return nil
}

// CreateBlob stores data and returns its id for binding to a BLOB parameter.
func (me *Attachment) CreateBlob(tx *Transaction, data []byte) (id BlobId, err error) {
	if err = me.checkValid(); err != nil {
		return
	}
	if !tx.IsValid() {
		err = usageErrorf(ErrTransactionState, "creating blob in a %v transaction", tx.State())
		return
	}
	id, err = me.handle.CreateBlob(tx.handle, data)
	err = engineError("create blob", err)
	return
}

func (me *Attachment) ReadBlob(tx *Transaction, id BlobId) (data []byte, err error) {
	if err = me.checkValid(); err != nil {
		return
	}
	if !tx.IsValid() {
		err = usageErrorf(ErrTransactionState, "reading blob in a %v transaction", tx.State())
		return
	}
	data, err = me.handle.ReadBlob(tx.handle, id)
	err = engineError("read blob", err)
	return
}

// Disconnect detaches from the database. The Attachment is invalid afterwards, even on error.
func (me *Attachment) Disconnect() (err error) {
	if err = me.checkValid(); err != nil {
		return
	}
	err = engineError("detach", me.handle.Detach())
	me.handle = nil
	return
}

// DropDatabase deletes the database and detaches.
func (me *Attachment) DropDatabase() (err error) {
	if err = me.checkValid(); err != nil {
		return
	}
	err = engineError("drop database", me.handle.DropDatabase())
	me.handle = nil
	return
}

// Close disconnects if still attached, logging failures.
func (me *Attachment) Close() {
	if !me.IsValid() {
		return
	}
	if err := me.Disconnect(); err != nil {
		log.Printf("error disconnecting from %q: %v", me.uri, err)
	}
}

// Move returns an Attachment owning the connection. The receiver becomes invalid.
func (me *Attachment) Move() *Attachment {
	ret := new(Attachment)
	*ret = *me
	*me = Attachment{}
	return ret
}
