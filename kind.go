package sqlmsg

import (
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/anacrolix/sqlmsg/wire"
)

// Values stored verbatim in the engine's encoding.
type (
	OpaqueInt128      = wire.Int128
	OpaqueDecFloat16  = wire.DecFloat16
	OpaqueDecFloat34  = wire.DecFloat34
	OpaqueDate        = wire.Date
	OpaqueTime        = wire.Time
	OpaqueTimestamp   = wire.Timestamp
	OpaqueTimeTz      = wire.TimeTz
	OpaqueTimestampTz = wire.TimestampTz
	BlobId            = wire.BlobId
)

// Kind is one of the closed set of value types accessors read and write.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt16
	KindScaledInt16
	KindInt32
	KindScaledInt32
	KindInt64
	KindScaledInt64
	KindScaledOpaqueInt128
	KindBigInt
	KindScaledBigInt
	KindFloat32
	KindFloat64
	KindOpaqueDecFloat16
	KindDecFloat16
	KindOpaqueDecFloat34
	KindDecFloat34
	KindString
	KindOpaqueDate
	KindDate
	KindOpaqueTime
	KindTime
	KindOpaqueTimestamp
	KindTimestamp
	KindOpaqueTimeTz
	KindTimeTz
	KindOpaqueTimestampTz
	KindTimestampTz
	KindBlobId
	numKinds
)

var kindNames = [numKinds]string{
	"null",
	"bool",
	"int16",
	"scaledint16",
	"int32",
	"scaledint32",
	"int64",
	"scaledint64",
	"scaledopaqueint128",
	"bigint",
	"scaledbigint",
	"float32",
	"float64",
	"opaquedecfloat16",
	"decfloat16",
	"opaquedecfloat34",
	"decfloat34",
	"string",
	"opaquedate",
	"date",
	"opaquetime",
	"time",
	"opaquetimestamp",
	"timestamp",
	"opaquetimetz",
	"timetz",
	"opaquetimestamptz",
	"timestamptz",
	"blobid",
}

var kindTypes = [numKinds]reflect.Type{
	KindNull:               nil,
	KindBool:               reflect.TypeOf(false),
	KindInt16:              reflect.TypeOf(int16(0)),
	KindScaledInt16:        reflect.TypeOf(ScaledInt16{}),
	KindInt32:              reflect.TypeOf(int32(0)),
	KindScaledInt32:        reflect.TypeOf(ScaledInt32{}),
	KindInt64:              reflect.TypeOf(int64(0)),
	KindScaledInt64:        reflect.TypeOf(ScaledInt64{}),
	KindScaledOpaqueInt128: reflect.TypeOf(ScaledOpaqueInt128{}),
	KindBigInt:             reflect.TypeOf((*big.Int)(nil)),
	KindScaledBigInt:       reflect.TypeOf(ScaledBigInt{}),
	KindFloat32:            reflect.TypeOf(float32(0)),
	KindFloat64:            reflect.TypeOf(float64(0)),
	KindOpaqueDecFloat16:   reflect.TypeOf(OpaqueDecFloat16{}),
	KindDecFloat16:         reflect.TypeOf(DecFloat16{}),
	KindOpaqueDecFloat34:   reflect.TypeOf(OpaqueDecFloat34{}),
	KindDecFloat34:         reflect.TypeOf(DecFloat34{}),
	KindString:             reflect.TypeOf(""),
	KindOpaqueDate:         reflect.TypeOf(OpaqueDate(0)),
	KindDate:               reflect.TypeOf(Date{}),
	KindOpaqueTime:         reflect.TypeOf(OpaqueTime(0)),
	KindTime:               reflect.TypeOf(Time(0)),
	KindOpaqueTimestamp:    reflect.TypeOf(OpaqueTimestamp{}),
	KindTimestamp:          reflect.TypeOf(Timestamp{}),
	KindOpaqueTimeTz:       reflect.TypeOf(OpaqueTimeTz{}),
	KindTimeTz:             reflect.TypeOf(TimeTz{}),
	KindOpaqueTimestampTz:  reflect.TypeOf(OpaqueTimestampTz{}),
	KindTimestampTz:        reflect.TypeOf(TimestampTz{}),
	KindBlobId:             reflect.TypeOf(BlobId{}),
}

var typeKinds = func() map[reflect.Type]Kind {
	ret := make(map[reflect.Type]Kind, numKinds)
	for k, t := range kindTypes {
		if t != nil {
			ret[t] = Kind(k)
		}
	}
	return ret
}()

func (me Kind) String() string {
	if me >= 0 && me < numKinds {
		return kindNames[me]
	}
	return fmt.Sprintf("Kind(%d)", int(me))
}

// Type is the Go type values of this kind have. It is nil for KindNull.
func (me Kind) Type() reflect.Type {
	if me < 0 || me >= numKinds {
		return nil
	}
	return kindTypes[me]
}

// Opaque kinds only ever match their own adjusted type.
func (me Kind) Opaque() bool {
	switch me {
	case KindScaledOpaqueInt128, KindOpaqueDecFloat16, KindOpaqueDecFloat34, KindOpaqueDate,
		KindOpaqueTime, KindOpaqueTimestamp, KindOpaqueTimeTz, KindOpaqueTimestampTz:
		return true
	}
	return false
}

// ParseKind accepts the names Kind.String returns, case-insensitively.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return 0, usageErrorf(ErrInvalidType, "unknown kind %q", s)
}

// KindOf returns the kind of values of type t.
func KindOf(t reflect.Type) (k Kind, ok bool) {
	k, ok = typeKinds[t]
	return
}

// Variant is a value tagged with its kind. The zero Variant is null.
type Variant struct {
	Kind  Kind
	Value any
}

func (me Variant) IsNull() bool {
	return me.Kind == KindNull
}

func (me Variant) String() string {
	if me.IsNull() {
		return "null"
	}
	return fmt.Sprintf("%v(%v)", me.Kind, me.Value)
}

// VariantOf tags v with the kind of its type. Untyped nil gives the null variant.
func VariantOf(v any) (ret Variant, err error) {
	if v == nil {
		return
	}
	k, ok := KindOf(reflect.TypeOf(v))
	if !ok {
		err = usageErrorf(ErrInvalidType, "no kind for %T", v)
		return
	}
	ret = Variant{k, v}
	return
}

// Choice is a variant destination for tuple and record binding: Alternatives are resolved
// against the column and the result stored in Variant.
type Choice struct {
	Alternatives []Kind
	Variant
}

func hasKind(kinds []Kind, k Kind) bool {
	for _, a := range kinds {
		if a == k {
			return true
		}
	}
	return false
}
