package sqlmsg

import (
	"fmt"

	"github.com/anacrolix/sqlmsg/wire"
)

// AdjustedType is the normalized type accessors dispatch on. Values share the engine's codes
// where a wire type maps directly.
type AdjustedType uint32

const (
	AdjustedNull        = AdjustedType(wire.TypeNull)
	AdjustedString      = AdjustedType(wire.TypeVarying)
	AdjustedInt16       = AdjustedType(wire.TypeShort)
	AdjustedInt32       = AdjustedType(wire.TypeLong)
	AdjustedInt64       = AdjustedType(wire.TypeInt64)
	AdjustedInt128      = AdjustedType(wire.TypeInt128)
	AdjustedFloat       = AdjustedType(wire.TypeFloat)
	AdjustedDouble      = AdjustedType(wire.TypeDouble)
	AdjustedDecFloat16  = AdjustedType(wire.TypeDec16)
	AdjustedDecFloat34  = AdjustedType(wire.TypeDec34)
	AdjustedDate        = AdjustedType(wire.TypeDate)
	AdjustedTime        = AdjustedType(wire.TypeTime)
	AdjustedTimestamp   = AdjustedType(wire.TypeTimestamp)
	AdjustedTimeTz      = AdjustedType(wire.TypeTimeTz)
	AdjustedTimestampTz = AdjustedType(wire.TypeTimestampTz)
	AdjustedBlob        = AdjustedType(wire.TypeBlob)
	AdjustedBoolean     = AdjustedType(wire.TypeBoolean)
)

var adjustedTypeNames = map[AdjustedType]string{
	AdjustedNull:        "NULL",
	AdjustedString:      "STRING",
	AdjustedInt16:       "INT16",
	AdjustedInt32:       "INT32",
	AdjustedInt64:       "INT64",
	AdjustedInt128:      "INT128",
	AdjustedFloat:       "FLOAT",
	AdjustedDouble:      "DOUBLE",
	AdjustedDecFloat16:  "DECFLOAT16",
	AdjustedDecFloat34:  "DECFLOAT34",
	AdjustedDate:        "DATE",
	AdjustedTime:        "TIME",
	AdjustedTimestamp:   "TIMESTAMP",
	AdjustedTimeTz:      "TIME_TZ",
	AdjustedTimestampTz: "TIMESTAMP_TZ",
	AdjustedBlob:        "BLOB",
	AdjustedBoolean:     "BOOLEAN",
}

func (me AdjustedType) String() string {
	if s, ok := adjustedTypeNames[me]; ok {
		return s
	}
	return fmt.Sprintf("AdjustedType(%d)", uint32(me))
}

// Descriptor is the layout and type of one parameter or column. Field, Alias and Relation are
// only used in diagnostics.
type Descriptor struct {
	OriginalType wire.Type
	AdjustedType AdjustedType
	Scale        int
	Length       int
	Offset       int
	NullOffset   int
	IsNullable   bool

	Field    string
	Alias    string
	Relation string
}

func (me Descriptor) String() string {
	name := me.Alias
	if name == "" {
		name = me.Field
	}
	if me.Relation != "" {
		name = me.Relation + "." + name
	}
	return fmt.Sprintf("%s %v(%d, %d)", name, me.AdjustedType, me.Length, me.Scale)
}

// adjust maps a wire type to the type accessors see and the wire type the message is rebuilt
// with. rebuild is zero when the engine's shape is kept.
func adjust(t wire.Type) (adjusted AdjustedType, rebuild wire.Type) {
	switch t {
	case wire.TypeText:
		return AdjustedString, wire.TypeVarying
	case wire.TypeTimeTzEx:
		return AdjustedTimeTz, wire.TypeTimeTz
	case wire.TypeTimestampTzEx:
		return AdjustedTimestampTz, wire.TypeTimestampTz
	}
	return AdjustedType(t), 0
}
