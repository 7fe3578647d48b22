package wire

import (
	"github.com/cockroachdb/errors"
)

// Field is the engine's description of one parameter or column inside a message.
type Field struct {
	Type     Type
	SubType  int
	Scale    int
	Length   int
	Nullable bool
	CharSet  int

	Field    string
	Alias    string
	Relation string

	Offset     int
	NullOffset int
}

// storage is the number of bytes the value occupies in a message.
func (me Field) storage() int {
	switch me.Type {
	case TypeVarying:
		return me.Length + 2
	case TypeText:
		return me.Length
	}
	return me.Type.Size()
}

// Metadata describes the layout of one message (an input parameter set or an output row).
type Metadata interface {
	Count() int
	Field(index int) Field
	MessageLength() int
	// Builder starts a revision of the metadata. The receiver is left unchanged.
	Builder() MetadataBuilder
}

// MetadataBuilder collects shape changes and produces revised metadata with recomputed
// offsets.
type MetadataBuilder interface {
	SetType(index int, t Type) error
	Metadata() (Metadata, error)
}

// MessageMetadata is the concrete Metadata used by engines and carried over RPC.
type MessageMetadata struct {
	Fields []Field
	Length int
}

var _ Metadata = (*MessageMetadata)(nil)

// NewMessageMetadata lays out fields in order: each value is aligned to its type, followed by a
// 2-byte aligned null flag.
func NewMessageMetadata(fields []Field) *MessageMetadata {
	ret := &MessageMetadata{
		Fields: append([]Field(nil), fields...),
	}
	offset := 0
	for i := range ret.Fields {
		f := &ret.Fields[i]
		if f.Length == 0 {
			f.Length = f.Type.Size()
		}
		offset = align(offset, f.Type.alignment())
		f.Offset = offset
		offset += f.storage()
		offset = align(offset, 2)
		f.NullOffset = offset
		offset += 2
	}
	ret.Length = offset
	return ret
}

func align(n, to int) int {
	return (n + to - 1) / to * to
}

func (me *MessageMetadata) Count() int {
	if me == nil {
		return 0
	}
	return len(me.Fields)
}

func (me *MessageMetadata) Field(index int) Field {
	return me.Fields[index]
}

func (me *MessageMetadata) MessageLength() int {
	if me == nil {
		return 0
	}
	return me.Length
}

func (me *MessageMetadata) Builder() MetadataBuilder {
	return &messageBuilder{
		fields: append([]Field(nil), me.Fields...),
	}
}

type messageBuilder struct {
	fields []Field
}

func (me *messageBuilder) SetType(index int, t Type) error {
	if index < 0 || index >= len(me.fields) {
		return errors.Newf("metadata builder: index %d out of range", index)
	}
	f := &me.fields[index]
	switch {
	case f.Type == TypeText && t == TypeVarying:
	case t.Size() != 0:
		f.Length = t.Size()
	default:
		return errors.Newf("metadata builder: cannot change %v to %v", f.Type, t)
	}
	f.Type = t
	return nil
}

func (me *messageBuilder) Metadata() (Metadata, error) {
	return NewMessageMetadata(me.fields), nil
}

// MetadataOf returns md as a *MessageMetadata, copying when md is another implementation.
func MetadataOf(md Metadata) *MessageMetadata {
	if md == nil {
		return nil
	}
	if mm, ok := md.(*MessageMetadata); ok {
		return mm
	}
	ret := &MessageMetadata{
		Fields: make([]Field, md.Count()),
		Length: md.MessageLength(),
	}
	for i := range ret.Fields {
		ret.Fields[i] = md.Field(i)
	}
	return ret
}
