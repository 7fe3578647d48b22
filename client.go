package sqlmsg

import (
	"github.com/google/uuid"

	"github.com/anacrolix/sqlmsg/wire"
)

// Client is the shared handle to an engine. Attachments made through one Client can join a
// multi-database transaction.
type Client struct {
	engine wire.Engine
	id     uuid.UUID
}

func NewClient(engine wire.Engine) *Client {
	return &Client{
		engine: engine,
		id:     uuid.New(),
	}
}

func (me *Client) IsValid() bool {
	return me != nil && me.engine != nil
}

func (me *Client) Engine() wire.Engine {
	return me.engine
}

// ID identifies the Client in diagnostics.
func (me *Client) ID() uuid.UUID {
	return me.id
}

func (me *Client) String() string {
	return "client " + me.id.String()
}

// Close releases the engine if it has a Close method. Attachments made through the Client
// should be closed first.
func (me *Client) Close() (err error) {
	if !me.IsValid() {
		return
	}
	if c, ok := me.engine.(interface{ Close() error }); ok {
		err = c.Close()
	}
	me.engine = nil
	return
}
