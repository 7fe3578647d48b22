package wire

import (
	"github.com/cockroachdb/errors"
)

// Database parameter block tags.
const (
	DpbVersion1    = 1
	DpbUserName    = 28
	DpbPassword    = 29
	DpbLcCtype     = 48
	DpbSqlRoleName = 60
)

// Transaction parameter block tags.
const (
	TpbVersion3        = 3
	TpbConsistency     = 1
	TpbConcurrency     = 2
	TpbWait            = 6
	TpbNowait          = 7
	TpbRead            = 8
	TpbWrite           = 9
	TpbLockRead        = 10
	TpbLockWrite       = 11
	TpbIgnoreLimbo     = 14
	TpbReadCommitted   = 15
	TpbAutocommit      = 16
	TpbRecVersion      = 17
	TpbNoRecVersion    = 18
	TpbRestartRequests = 19
	TpbNoAutoUndo      = 20
)

// Clumplet is one tagged item of a parameter block. Value is nil for bare tags.
type Clumplet struct {
	Tag   byte
	Value []byte
}

// ParamWriter builds a parameter block: a version byte followed by clumplets.
type ParamWriter struct {
	buf []byte
}

// NewParamWriter continues base when it is not empty, otherwise starts a block with version.
func NewParamWriter(base []byte, version byte) *ParamWriter {
	if len(base) == 0 {
		return &ParamWriter{buf: []byte{version}}
	}
	return &ParamWriter{buf: append([]byte(nil), base...)}
}

// InsertTag appends a bare tag, as TPB options are.
func (me *ParamWriter) InsertTag(tag byte) {
	me.buf = append(me.buf, tag)
}

// InsertString appends tag with a one byte length and s.
func (me *ParamWriter) InsertString(tag byte, s string) error {
	if len(s) > 255 {
		return errors.Newf("parameter %d value too long: %d bytes", tag, len(s))
	}
	me.buf = append(me.buf, tag, byte(len(s)))
	me.buf = append(me.buf, s...)
	return nil
}

func (me *ParamWriter) Bytes() []byte {
	return me.buf
}

// ParseDPB splits a database parameter block. Every item carries a length prefixed value.
func ParseDPB(b []byte) (ret []Clumplet, err error) {
	if len(b) == 0 {
		return
	}
	if b[0] != DpbVersion1 {
		err = errors.Newf("unsupported DPB version %d", b[0])
		return
	}
	b = b[1:]
	for len(b) > 0 {
		var c Clumplet
		if c, b, err = parseValued(b); err != nil {
			return
		}
		ret = append(ret, c)
	}
	return
}

// ParseTPB splits a transaction parameter block. Only the table lock tags carry values.
func ParseTPB(b []byte) (ret []Clumplet, err error) {
	if len(b) == 0 {
		return
	}
	if b[0] != TpbVersion3 && b[0] != 1 {
		err = errors.Newf("unsupported TPB version %d", b[0])
		return
	}
	b = b[1:]
	for len(b) > 0 {
		switch b[0] {
		case TpbLockRead, TpbLockWrite:
			var c Clumplet
			if c, b, err = parseValued(b); err != nil {
				return
			}
			ret = append(ret, c)
		default:
			ret = append(ret, Clumplet{Tag: b[0]})
			b = b[1:]
		}
	}
	return
}

func parseValued(b []byte) (c Clumplet, rest []byte, err error) {
	if len(b) < 2 || len(b) < 2+int(b[1]) {
		err = errors.New("truncated parameter block item")
		return
	}
	n := int(b[1])
	c = Clumplet{Tag: b[0], Value: b[2 : 2+n]}
	rest = b[2+n:]
	return
}
