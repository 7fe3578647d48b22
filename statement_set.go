package sqlmsg

import (
	"math/big"
	"reflect"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/anacrolix/sqlmsg/wire"
)

func (me *Statement) inDescriptor(index int) (d *Descriptor, err error) {
	if err = me.checkValid(); err != nil {
		return
	}
	if index < 0 || index >= len(me.inDescs) {
		err = usageErrorf(ErrIndexOutOfRange, "parameter index %d out of range (%d parameters)", index, len(me.inDescs))
		return
	}
	d = &me.inDescs[index]
	return
}

func (me *Statement) setPresent(d *Descriptor) {
	wire.PutInt16(me.inMsg[d.NullOffset:], wire.NullFlagNotNull)
}

func (me *Statement) SetNull(index int) (err error) {
	d, err := me.inDescriptor(index)
	if err != nil {
		return
	}
	wire.PutInt16(me.inMsg[d.NullOffset:], wire.NullFlagNull)
	return
}

// setOpaque writes a value verbatim when the parameter has exactly the adjusted type want.
func (me *Statement) setOpaque(index int, want AdjustedType, typeName string, put func(b []byte)) (err error) {
	d, err := me.inDescriptor(index)
	if err != nil {
		return
	}
	if d.AdjustedType != want {
		return invalidTypeError(typeName, d.AdjustedType)
	}
	put(me.inMsg[d.Offset:])
	me.setPresent(d)
	return
}

func (me *Statement) SetBool(index int, v bool) error {
	return me.setOpaque(index, AdjustedBoolean, "bool", func(b []byte) {
		wire.PutBool(b, v)
	})
}

// setNumber converts n to the parameter's type and scale. The message is untouched when the
// conversion fails.
func (me *Statement) setNumber(index int, n number, typeName string) (err error) {
	d, err := me.inDescriptor(index)
	if err != nil {
		return
	}
	var put func(b []byte)
	switch d.AdjustedType {
	case AdjustedInt16:
		var v int16
		v, err = toInt[int16](n, d.Scale, "SMALLINT")
		put = func(b []byte) { wire.PutInt16(b, v) }
	case AdjustedInt32:
		var v int32
		v, err = toInt[int32](n, d.Scale, "INTEGER")
		put = func(b []byte) { wire.PutInt32(b, v) }
	case AdjustedInt64:
		var v int64
		v, err = toInt[int64](n, d.Scale, "BIGINT")
		put = func(b []byte) { wire.PutInt64(b, v) }
	case AdjustedInt128:
		var v wire.Int128
		v, err = toInt128(n, d.Scale)
		put = func(b []byte) { wire.PutInt128(b, v) }
	case AdjustedFloat:
		var v float32
		v, err = toFloat32(n, d.Scale)
		put = func(b []byte) { wire.PutFloat32(b, v) }
	case AdjustedDouble:
		var v float64
		v, err = toFloat64(n, d.Scale)
		put = func(b []byte) { wire.PutFloat64(b, v) }
	case AdjustedDecFloat16:
		var v wire.DecFloat16
		v, err = toDecFloat16(n, d.Scale)
		put = func(b []byte) { wire.PutDecFloat16(b, v) }
	case AdjustedDecFloat34:
		var v wire.DecFloat34
		v, err = toDecFloat34(n, d.Scale)
		put = func(b []byte) { wire.PutDecFloat34(b, v) }
	default:
		return invalidTypeError(typeName, d.AdjustedType)
	}
	if err != nil {
		return
	}
	put(me.inMsg[d.Offset:])
	me.setPresent(d)
	return
}

func (me *Statement) SetInt16(index int, v int16) error {
	return me.setNumber(index, scaledNumber(int64(v), 0), "int16")
}

func (me *Statement) SetScaledInt16(index int, v ScaledInt16) error {
	return me.setNumber(index, scaledNumber(int64(v.Value), v.Scale), "ScaledInt16")
}

func (me *Statement) SetInt32(index int, v int32) error {
	return me.setNumber(index, scaledNumber(int64(v), 0), "int32")
}

func (me *Statement) SetScaledInt32(index int, v ScaledInt32) error {
	return me.setNumber(index, scaledNumber(int64(v.Value), v.Scale), "ScaledInt32")
}

func (me *Statement) SetInt64(index int, v int64) error {
	return me.setNumber(index, scaledNumber(v, 0), "int64")
}

func (me *Statement) SetScaledInt64(index int, v ScaledInt64) error {
	return me.setNumber(index, scaledNumber(v.Value, v.Scale), "ScaledInt64")
}

// SetOpaqueInt128 stores v verbatim in an INT128 parameter.
func (me *Statement) SetOpaqueInt128(index int, v OpaqueInt128) error {
	return me.setOpaque(index, AdjustedInt128, "OpaqueInt128", func(b []byte) {
		wire.PutInt128(b, v)
	})
}

// SetScaledOpaqueInt128 stores v in an INT128 parameter, rescaling when the scales differ.
func (me *Statement) SetScaledOpaqueInt128(index int, v ScaledOpaqueInt128) (err error) {
	d, err := me.inDescriptor(index)
	if err != nil {
		return
	}
	if d.AdjustedType != AdjustedInt128 {
		return invalidTypeError("ScaledOpaqueInt128", d.AdjustedType)
	}
	if v.Scale == d.Scale {
		return me.SetOpaqueInt128(index, v.Value)
	}
	return me.setNumber(index, bigNumber(v.Value.Big(), v.Scale), "ScaledOpaqueInt128")
}

// SetBigInt sets an integer of up to 128 bits. A nil v sets null.
func (me *Statement) SetBigInt(index int, v *big.Int) error {
	if v == nil {
		return me.SetNull(index)
	}
	return me.setNumber(index, bigNumber(v, 0), "*big.Int")
}

func (me *Statement) SetScaledBigInt(index int, v ScaledBigInt) error {
	if v.Value == nil {
		return me.SetNull(index)
	}
	return me.setNumber(index, bigNumber(v.Value, v.Scale), "ScaledBigInt")
}

func (me *Statement) SetFloat32(index int, v float32) error {
	return me.setNumber(index, floatNumber(float64(v)), "float32")
}

func (me *Statement) SetFloat64(index int, v float64) error {
	return me.setNumber(index, floatNumber(v), "float64")
}

func (me *Statement) SetOpaqueDecFloat16(index int, v OpaqueDecFloat16) error {
	return me.setOpaque(index, AdjustedDecFloat16, "OpaqueDecFloat16", func(b []byte) {
		wire.PutDecFloat16(b, v)
	})
}

func (me *Statement) SetDecFloat16(index int, v DecFloat16) error {
	return me.setNumber(index, decimalNumber(&v.Decimal), "DecFloat16")
}

func (me *Statement) SetOpaqueDecFloat34(index int, v OpaqueDecFloat34) error {
	return me.setOpaque(index, AdjustedDecFloat34, "OpaqueDecFloat34", func(b []byte) {
		wire.PutDecFloat34(b, v)
	})
}

func (me *Statement) SetDecFloat34(index int, v DecFloat34) error {
	return me.setNumber(index, decimalNumber(&v.Decimal), "DecFloat34")
}

// setConverted writes a calendar value that needed a fallible conversion first.
func (me *Statement) setConverted(index int, want AdjustedType, typeName string, convErr error, put func(b []byte)) (err error) {
	d, err := me.inDescriptor(index)
	if err != nil {
		return
	}
	if d.AdjustedType != want {
		return invalidTypeError(typeName, d.AdjustedType)
	}
	if convErr != nil {
		return convErr
	}
	put(me.inMsg[d.Offset:])
	me.setPresent(d)
	return
}

func (me *Statement) SetDate(index int, v Date) error {
	o, err := dateToOpaque(v)
	return me.setConverted(index, AdjustedDate, "Date", err, func(b []byte) {
		wire.PutDate(b, o)
	})
}

func (me *Statement) SetOpaqueDate(index int, v OpaqueDate) error {
	return me.setOpaque(index, AdjustedDate, "OpaqueDate", func(b []byte) {
		wire.PutDate(b, v)
	})
}

func (me *Statement) SetTime(index int, v Time) error {
	o, err := timeToOpaque(v)
	return me.setConverted(index, AdjustedTime, "Time", err, func(b []byte) {
		wire.PutTime(b, o)
	})
}

func (me *Statement) SetOpaqueTime(index int, v OpaqueTime) error {
	return me.setOpaque(index, AdjustedTime, "OpaqueTime", func(b []byte) {
		wire.PutTime(b, v)
	})
}

func (me *Statement) SetTimestamp(index int, v Timestamp) error {
	o, err := timestampToOpaque(v)
	return me.setConverted(index, AdjustedTimestamp, "Timestamp", err, func(b []byte) {
		wire.PutTimestamp(b, o)
	})
}

func (me *Statement) SetOpaqueTimestamp(index int, v OpaqueTimestamp) error {
	return me.setOpaque(index, AdjustedTimestamp, "OpaqueTimestamp", func(b []byte) {
		wire.PutTimestamp(b, v)
	})
}

func (me *Statement) SetTimeTz(index int, v TimeTz) error {
	o, err := timeTzToOpaque(v)
	return me.setConverted(index, AdjustedTimeTz, "TimeTz", err, func(b []byte) {
		wire.PutTimeTz(b, o)
	})
}

func (me *Statement) SetOpaqueTimeTz(index int, v OpaqueTimeTz) error {
	return me.setOpaque(index, AdjustedTimeTz, "OpaqueTimeTz", func(b []byte) {
		wire.PutTimeTz(b, v)
	})
}

func (me *Statement) SetTimestampTz(index int, v TimestampTz) error {
	o, err := timestampTzToOpaque(v)
	return me.setConverted(index, AdjustedTimestampTz, "TimestampTz", err, func(b []byte) {
		wire.PutTimestampTz(b, o)
	})
}

func (me *Statement) SetOpaqueTimestampTz(index int, v OpaqueTimestampTz) error {
	return me.setOpaque(index, AdjustedTimestampTz, "OpaqueTimestampTz", func(b []byte) {
		wire.PutTimestampTz(b, v)
	})
}

func (me *Statement) SetBlobId(index int, v BlobId) error {
	return me.setOpaque(index, AdjustedBlob, "BlobId", func(b []byte) {
		wire.PutBlobId(b, v)
	})
}

// SetString converts s to the parameter's type. Text longer than a string parameter's length
// is refused the way the engine refuses it.
func (me *Statement) SetString(index int, s string) (err error) {
	d, err := me.inDescriptor(index)
	if err != nil {
		return
	}
	b := me.inMsg[d.Offset:]
	switch d.AdjustedType {
	case AdjustedBoolean:
		var v bool
		if v, err = parseBool(s); err != nil {
			return
		}
		wire.PutBool(b, v)
	case AdjustedInt16, AdjustedInt32, AdjustedInt64:
		var v ScaledInt64
		if v, err = parseScaledInt64(s); err != nil {
			return
		}
		if v.Scale != d.Scale {
			if v.Value, err = toInt[int64](scaledNumber(v.Value, v.Scale), d.Scale, "BIGINT"); err != nil {
				return
			}
			v.Scale = d.Scale
		}
		return me.SetScaledInt64(index, v)
	case AdjustedInt128, AdjustedDecFloat16, AdjustedDecFloat34:
		var v *apd.Decimal
		if v, err = parseDecimal(s); err != nil {
			return
		}
		return me.setNumber(index, decimalNumber(v), "string")
	case AdjustedFloat, AdjustedDouble:
		var v float64
		if v, err = parseFloat(s); err != nil {
			return
		}
		return me.SetFloat64(index, v)
	case AdjustedDate:
		var v wire.Date
		if v, err = parseDate(s); err != nil {
			return
		}
		wire.PutDate(b, v)
	case AdjustedTime:
		var v wire.Time
		if v, err = parseTime(s); err != nil {
			return
		}
		wire.PutTime(b, v)
	case AdjustedTimestamp:
		var v wire.Timestamp
		if v, err = parseTimestamp(s); err != nil {
			return
		}
		wire.PutTimestamp(b, v)
	case AdjustedTimeTz:
		var v wire.TimeTz
		if v, err = parseTimeTz(s); err != nil {
			return
		}
		wire.PutTimeTz(b, v)
	case AdjustedTimestampTz:
		var v wire.TimestampTz
		if v, err = parseTimestampTz(s); err != nil {
			return
		}
		wire.PutTimestampTz(b, v)
	case AdjustedString:
		if len(s) > d.Length {
			return newDatabaseError("set string", wire.CodeArithExcept, wire.CodeStringTruncation)
		}
		wire.PutVarying(b, []byte(s))
	default:
		return invalidTypeError("string", d.AdjustedType)
	}
	me.setPresent(d)
	return
}

// setTime binds t according to the parameter's calendar type.
func (me *Statement) setTime(index int, t time.Time) (err error) {
	d, err := me.inDescriptor(index)
	if err != nil {
		return
	}
	switch d.AdjustedType {
	case AdjustedDate:
		y, m, day := t.Date()
		return me.SetDate(index, Date{y, m, day})
	case AdjustedTime:
		return me.SetTime(index, TimestampOf(t).Time)
	case AdjustedTimestamp:
		return me.SetTimestamp(index, TimestampOf(t))
	case AdjustedTimeTz:
		ts := TimestampTzOf(t)
		return me.SetTimeTz(index, TimeTz{ts.UTCTimestamp.Time, ts.Zone})
	case AdjustedTimestampTz:
		return me.SetTimestampTz(index, TimestampTzOf(t))
	case AdjustedString:
		return me.SetString(index, TimestampOf(t).String())
	}
	return invalidTypeError("time.Time", d.AdjustedType)
}

// setKind dispatches v, which must have kind k's type, to the typed setter.
func (me *Statement) setKind(index int, k Kind, v any) (err error) {
	if k == KindNull {
		return me.SetNull(index)
	}
	if t := k.Type(); t == nil || reflect.TypeOf(v) != t {
		return usageErrorf(ErrInvalidType, "value of type %T is not a %v", v, k)
	}
	switch k {
	case KindBool:
		return me.SetBool(index, v.(bool))
	case KindInt16:
		return me.SetInt16(index, v.(int16))
	case KindScaledInt16:
		return me.SetScaledInt16(index, v.(ScaledInt16))
	case KindInt32:
		return me.SetInt32(index, v.(int32))
	case KindScaledInt32:
		return me.SetScaledInt32(index, v.(ScaledInt32))
	case KindInt64:
		return me.SetInt64(index, v.(int64))
	case KindScaledInt64:
		return me.SetScaledInt64(index, v.(ScaledInt64))
	case KindScaledOpaqueInt128:
		return me.SetScaledOpaqueInt128(index, v.(ScaledOpaqueInt128))
	case KindBigInt:
		return me.SetBigInt(index, v.(*big.Int))
	case KindScaledBigInt:
		return me.SetScaledBigInt(index, v.(ScaledBigInt))
	case KindFloat32:
		return me.SetFloat32(index, v.(float32))
	case KindFloat64:
		return me.SetFloat64(index, v.(float64))
	case KindOpaqueDecFloat16:
		return me.SetOpaqueDecFloat16(index, v.(OpaqueDecFloat16))
	case KindDecFloat16:
		return me.SetDecFloat16(index, v.(DecFloat16))
	case KindOpaqueDecFloat34:
		return me.SetOpaqueDecFloat34(index, v.(OpaqueDecFloat34))
	case KindDecFloat34:
		return me.SetDecFloat34(index, v.(DecFloat34))
	case KindString:
		return me.SetString(index, v.(string))
	case KindOpaqueDate:
		return me.SetOpaqueDate(index, v.(OpaqueDate))
	case KindDate:
		return me.SetDate(index, v.(Date))
	case KindOpaqueTime:
		return me.SetOpaqueTime(index, v.(OpaqueTime))
	case KindTime:
		return me.SetTime(index, v.(Time))
	case KindOpaqueTimestamp:
		return me.SetOpaqueTimestamp(index, v.(OpaqueTimestamp))
	case KindTimestamp:
		return me.SetTimestamp(index, v.(Timestamp))
	case KindOpaqueTimeTz:
		return me.SetOpaqueTimeTz(index, v.(OpaqueTimeTz))
	case KindTimeTz:
		return me.SetTimeTz(index, v.(TimeTz))
	case KindOpaqueTimestampTz:
		return me.SetOpaqueTimestampTz(index, v.(OpaqueTimestampTz))
	case KindTimestampTz:
		return me.SetTimestampTz(index, v.(TimestampTz))
	case KindBlobId:
		return me.SetBlobId(index, v.(BlobId))
	}
	return usageErrorf(ErrInvalidType, "unhandled kind %v", k)
}

// Set binds v by its Go type. nil and nil pointers set null, other pointers are dereferenced.
// Plain Go integer and byte slice types are widened to the nearest supported kind.
func (me *Statement) Set(index int, v any) error {
	return me.setValue(index, reflect.ValueOf(v))
}

func (me *Statement) setValue(index int, rv reflect.Value) error {
	for rv.IsValid() && rv.Kind() == reflect.Pointer && rv.Type() != bigIntType {
		if rv.IsNil() {
			return me.SetNull(index)
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() || (rv.Type() == bigIntType && rv.IsNil()) {
		return me.SetNull(index)
	}
	switch v := rv.Interface().(type) {
	case Variant:
		return me.SetVariant(index, v)
	case Choice:
		return me.SetVariant(index, v.Variant)
	case time.Time:
		return me.setTime(index, v)
	case []byte:
		return me.SetString(index, string(v))
	case int:
		return me.SetInt64(index, int64(v))
	case int8:
		return me.SetInt16(index, int16(v))
	case uint8:
		return me.SetInt16(index, int16(v))
	case uint16:
		return me.SetInt32(index, int32(v))
	case uint32:
		return me.SetInt64(index, int64(v))
	case uint:
		return me.SetBigInt(index, new(big.Int).SetUint64(uint64(v)))
	case uint64:
		return me.SetBigInt(index, new(big.Int).SetUint64(v))
	}
	k, ok := KindOf(rv.Type())
	if !ok {
		return usageErrorf(ErrInvalidType, "cannot bind value of type %v", rv.Type())
	}
	return me.setKind(index, k, rv.Interface())
}

var bigIntType = reflect.TypeOf((*big.Int)(nil))
