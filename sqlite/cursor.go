package sqlite

import (
	"github.com/anacrolix/sqlmsg/wire"
)

// cursor scrolls over a buffered result. Position 0 is before the first row and len(rows)+1
// after the last.
type cursor struct {
	meta   wire.Metadata
	rows   [][]any
	cs     charset
	pos    int
	closed bool
}

var _ wire.Cursor = (*cursor)(nil)

func (me *cursor) move(pos int, out []byte) (bool, error) {
	if me.closed {
		return false, wire.Errorf(wire.CodeNoCursor, "Attempt to fetch from a closed cursor")
	}
	me.pos = min(max(pos, 0), len(me.rows)+1)
	if me.pos == 0 || me.pos > len(me.rows) {
		return false, nil
	}
	if me.meta == nil {
		return true, nil
	}
	if err := encodeRow(me.meta, me.rows[me.pos-1], out, me.cs); err != nil {
		return false, err
	}
	return true, nil
}

func (me *cursor) FetchNext(out []byte) (bool, error) {
	return me.move(me.pos+1, out)
}

func (me *cursor) FetchPrior(out []byte) (bool, error) {
	return me.move(me.pos-1, out)
}

func (me *cursor) FetchFirst(out []byte) (bool, error) {
	return me.move(1, out)
}

func (me *cursor) FetchLast(out []byte) (bool, error) {
	return me.move(len(me.rows), out)
}

// FetchAbsolute counts negative positions back from the last row.
func (me *cursor) FetchAbsolute(position int, out []byte) (bool, error) {
	if position < 0 {
		position = len(me.rows) + 1 + position
	}
	return me.move(position, out)
}

func (me *cursor) FetchRelative(offset int, out []byte) (bool, error) {
	return me.move(me.pos+offset, out)
}

func (me *cursor) Close() error {
	if me.closed {
		return wire.Errorf(wire.CodeNoCursor, "Attempt to reclose a closed cursor")
	}
	me.closed = true
	me.rows = nil
	return nil
}
