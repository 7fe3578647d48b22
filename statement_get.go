package sqlmsg

import (
	"math/big"
	"reflect"

	"github.com/anacrolix/sqlmsg/wire"
)

func (me *Statement) outDescriptor(index int) (d *Descriptor, err error) {
	if err = me.checkValid(); err != nil {
		return
	}
	if index < 0 || index >= len(me.outDescs) {
		err = usageErrorf(ErrIndexOutOfRange, "column index %d out of range (%d columns)", index, len(me.outDescs))
		return
	}
	d = &me.outDescs[index]
	return
}

// column returns the column's value bytes. ok is false when the column is null.
func (me *Statement) column(index int) (d *Descriptor, b []byte, ok bool, err error) {
	d, err = me.outDescriptor(index)
	if err != nil {
		return
	}
	if wire.GetInt16(me.outMsg[d.NullOffset:]) != wire.NullFlagNotNull {
		return
	}
	b = me.outMsg[d.Offset:]
	ok = true
	return
}

// IsNull reports whether the column is null in the current row.
func (me *Statement) IsNull(index int) (null bool, err error) {
	_, _, ok, err := me.column(index)
	null = err == nil && !ok
	return
}

// getOpaque returns the column bytes when the column has exactly the adjusted type want.
func (me *Statement) getOpaque(index int, want AdjustedType, typeName string) (b []byte, ok bool, err error) {
	d, b, ok, err := me.column(index)
	if !ok {
		return
	}
	if d.AdjustedType != want {
		ok = false
		err = invalidTypeError(typeName, d.AdjustedType)
	}
	return
}

func (me *Statement) GetBool(index int) (v bool, ok bool, err error) {
	b, ok, err := me.getOpaque(index, AdjustedBoolean, "bool")
	if ok {
		v = wire.GetBool(b)
	}
	return
}

// getNumber reads a numeric column. When scaled, the column's scale is returned, and
// floating point columns are refused since they have none.
func (me *Statement) getNumber(index int, typeName string, scaled bool) (n number, scale int, ok bool, err error) {
	d, b, ok, err := me.column(index)
	if !ok {
		return
	}
	switch d.AdjustedType {
	case AdjustedInt16:
		n = scaledNumber(int64(wire.GetInt16(b)), d.Scale)
	case AdjustedInt32:
		n = scaledNumber(int64(wire.GetInt32(b)), d.Scale)
	case AdjustedInt64:
		n = scaledNumber(wire.GetInt64(b), d.Scale)
	case AdjustedInt128:
		n = bigNumber(wire.GetInt128(b).Big(), d.Scale)
	case AdjustedFloat, AdjustedDouble, AdjustedDecFloat16, AdjustedDecFloat34:
		if scaled {
			ok = false
			err = invalidTypeError(typeName, d.AdjustedType)
			return
		}
		switch d.AdjustedType {
		case AdjustedFloat:
			n = floatNumber(float64(wire.GetFloat32(b)))
		case AdjustedDouble:
			n = floatNumber(wire.GetFloat64(b))
		case AdjustedDecFloat16:
			n = decimalNumber(wire.GetDecFloat16(b).Decimal())
		default:
			n = decimalNumber(wire.GetDecFloat34(b).Decimal())
		}
	default:
		ok = false
		err = invalidTypeError(typeName, d.AdjustedType)
		return
	}
	if scaled {
		scale = d.Scale
	}
	return
}

func getInt[T int16 | int32 | int64](me *Statement, index int, typeName string) (v T, ok bool, err error) {
	n, _, ok, err := me.getNumber(index, typeName, false)
	if !ok {
		return
	}
	if v, err = toInt[T](n, 0, typeName); err != nil {
		ok = false
	}
	return
}

func getScaledInt[T int16 | int32 | int64](me *Statement, index int, typeName string) (v ScaledNumber[T], ok bool, err error) {
	n, scale, ok, err := me.getNumber(index, typeName, true)
	if !ok {
		return
	}
	v.Scale = scale
	if v.Value, err = toInt[T](n, scale, typeName); err != nil {
		ok = false
	}
	return
}

// GetInt16 reads the column at scale 0, so fixed-point values lose their fraction.
func (me *Statement) GetInt16(index int) (int16, bool, error) {
	return getInt[int16](me, index, "int16")
}

// GetScaledInt16 reads the column at its own scale.
func (me *Statement) GetScaledInt16(index int) (ScaledInt16, bool, error) {
	return getScaledInt[int16](me, index, "ScaledInt16")
}

func (me *Statement) GetInt32(index int) (int32, bool, error) {
	return getInt[int32](me, index, "int32")
}

func (me *Statement) GetScaledInt32(index int) (ScaledInt32, bool, error) {
	return getScaledInt[int32](me, index, "ScaledInt32")
}

func (me *Statement) GetInt64(index int) (int64, bool, error) {
	return getInt[int64](me, index, "int64")
}

func (me *Statement) GetScaledInt64(index int) (ScaledInt64, bool, error) {
	return getScaledInt[int64](me, index, "ScaledInt64")
}

// GetScaledOpaqueInt128 returns an INT128 column verbatim.
func (me *Statement) GetScaledOpaqueInt128(index int) (v ScaledOpaqueInt128, ok bool, err error) {
	b, ok, err := me.getOpaque(index, AdjustedInt128, "ScaledOpaqueInt128")
	if ok {
		v = ScaledOpaqueInt128{wire.GetInt128(b), me.outDescs[index].Scale}
	}
	return
}

func (me *Statement) GetBigInt(index int) (v *big.Int, ok bool, err error) {
	n, _, ok, err := me.getNumber(index, "*big.Int", false)
	if !ok {
		return
	}
	i, err := toInt128(n, 0)
	if err != nil {
		ok = false
		return
	}
	v = i.Big()
	return
}

func (me *Statement) GetScaledBigInt(index int) (v ScaledBigInt, ok bool, err error) {
	n, scale, ok, err := me.getNumber(index, "ScaledBigInt", true)
	if !ok {
		return
	}
	i, err := toInt128(n, scale)
	if err != nil {
		ok = false
		return
	}
	v = ScaledBigInt{i.Big(), scale}
	return
}

func (me *Statement) GetFloat32(index int) (v float32, ok bool, err error) {
	n, _, ok, err := me.getNumber(index, "float32", false)
	if !ok {
		return
	}
	if v, err = toFloat32(n, 0); err != nil {
		ok = false
	}
	return
}

func (me *Statement) GetFloat64(index int) (v float64, ok bool, err error) {
	n, _, ok, err := me.getNumber(index, "float64", false)
	if !ok {
		return
	}
	if v, err = toFloat64(n, 0); err != nil {
		ok = false
	}
	return
}

func (me *Statement) GetOpaqueDecFloat16(index int) (v OpaqueDecFloat16, ok bool, err error) {
	b, ok, err := me.getOpaque(index, AdjustedDecFloat16, "OpaqueDecFloat16")
	if ok {
		v = wire.GetDecFloat16(b)
	}
	return
}

func (me *Statement) GetDecFloat16(index int) (v DecFloat16, ok bool, err error) {
	n, _, ok, err := me.getNumber(index, "DecFloat16", false)
	if !ok {
		return
	}
	if v, err = NewDecFloat16(n.decimal()); err != nil {
		ok = false
	}
	return
}

func (me *Statement) GetOpaqueDecFloat34(index int) (v OpaqueDecFloat34, ok bool, err error) {
	b, ok, err := me.getOpaque(index, AdjustedDecFloat34, "OpaqueDecFloat34")
	if ok {
		v = wire.GetDecFloat34(b)
	}
	return
}

func (me *Statement) GetDecFloat34(index int) (v DecFloat34, ok bool, err error) {
	n, _, ok, err := me.getNumber(index, "DecFloat34", false)
	if !ok {
		return
	}
	if v, err = NewDecFloat34(n.decimal()); err != nil {
		ok = false
	}
	return
}

func (me *Statement) GetOpaqueDate(index int) (v OpaqueDate, ok bool, err error) {
	b, ok, err := me.getOpaque(index, AdjustedDate, "OpaqueDate")
	if ok {
		v = wire.GetDate(b)
	}
	return
}

func (me *Statement) GetDate(index int) (v Date, ok bool, err error) {
	o, ok, err := me.GetOpaqueDate(index)
	if ok {
		v = opaqueToDate(o)
	}
	return
}

func (me *Statement) GetOpaqueTime(index int) (v OpaqueTime, ok bool, err error) {
	b, ok, err := me.getOpaque(index, AdjustedTime, "OpaqueTime")
	if ok {
		v = wire.GetTime(b)
	}
	return
}

func (me *Statement) GetTime(index int) (v Time, ok bool, err error) {
	o, ok, err := me.GetOpaqueTime(index)
	if ok {
		v = opaqueToTime(o)
	}
	return
}

func (me *Statement) GetOpaqueTimestamp(index int) (v OpaqueTimestamp, ok bool, err error) {
	b, ok, err := me.getOpaque(index, AdjustedTimestamp, "OpaqueTimestamp")
	if ok {
		v = wire.GetTimestamp(b)
	}
	return
}

func (me *Statement) GetTimestamp(index int) (v Timestamp, ok bool, err error) {
	o, ok, err := me.GetOpaqueTimestamp(index)
	if ok {
		v = opaqueToTimestamp(o)
	}
	return
}

func (me *Statement) GetOpaqueTimeTz(index int) (v OpaqueTimeTz, ok bool, err error) {
	b, ok, err := me.getOpaque(index, AdjustedTimeTz, "OpaqueTimeTz")
	if ok {
		v = wire.GetTimeTz(b)
	}
	return
}

func (me *Statement) GetTimeTz(index int) (v TimeTz, ok bool, err error) {
	o, ok, err := me.GetOpaqueTimeTz(index)
	if !ok {
		return
	}
	if v, err = opaqueToTimeTz(o); err != nil {
		ok = false
	}
	return
}

func (me *Statement) GetOpaqueTimestampTz(index int) (v OpaqueTimestampTz, ok bool, err error) {
	b, ok, err := me.getOpaque(index, AdjustedTimestampTz, "OpaqueTimestampTz")
	if ok {
		v = wire.GetTimestampTz(b)
	}
	return
}

func (me *Statement) GetTimestampTz(index int) (v TimestampTz, ok bool, err error) {
	o, ok, err := me.GetOpaqueTimestampTz(index)
	if !ok {
		return
	}
	if v, err = opaqueToTimestampTz(o); err != nil {
		ok = false
	}
	return
}

func (me *Statement) GetBlobId(index int) (v BlobId, ok bool, err error) {
	b, ok, err := me.getOpaque(index, AdjustedBlob, "BlobId")
	if ok {
		v = wire.GetBlobId(b)
	}
	return
}

// GetString renders any column as text. Fixed-point values are exact, calendar values use
// ISO-like forms with the zone name appended for zoned types.
func (me *Statement) GetString(index int) (v string, ok bool, err error) {
	d, b, ok, err := me.column(index)
	if !ok {
		return
	}
	switch d.AdjustedType {
	case AdjustedBoolean:
		v = boolText(wire.GetBool(b))
	case AdjustedInt16:
		v = scaledNumber(int64(wire.GetInt16(b)), d.Scale).text()
	case AdjustedInt32:
		v = scaledNumber(int64(wire.GetInt32(b)), d.Scale).text()
	case AdjustedInt64:
		v = scaledNumber(wire.GetInt64(b), d.Scale).text()
	case AdjustedInt128:
		v = bigNumber(wire.GetInt128(b).Big(), d.Scale).text()
	case AdjustedFloat:
		v = floatText(float64(wire.GetFloat32(b)), 32)
	case AdjustedDouble:
		v = floatText(wire.GetFloat64(b), 64)
	case AdjustedDecFloat16:
		v = decimalText(wire.GetDecFloat16(b).Decimal())
	case AdjustedDecFloat34:
		v = decimalText(wire.GetDecFloat34(b).Decimal())
	case AdjustedDate:
		v = formatOpaqueDate(wire.GetDate(b))
	case AdjustedTime:
		v = formatOpaqueTime(wire.GetTime(b))
	case AdjustedTimestamp:
		v = formatOpaqueTimestamp(wire.GetTimestamp(b))
	case AdjustedTimeTz:
		v, err = formatOpaqueTimeTz(wire.GetTimeTz(b))
	case AdjustedTimestampTz:
		v, err = formatOpaqueTimestampTz(wire.GetTimestampTz(b))
	case AdjustedString:
		v = string(wire.GetVarying(b))
	default:
		err = invalidTypeError("string", d.AdjustedType)
	}
	if err != nil {
		ok = false
	}
	return
}

// getKind reads the column as kind k.
func (me *Statement) getKind(index int, k Kind) (v any, ok bool, err error) {
	switch k {
	case KindBool:
		v, ok, err = me.GetBool(index)
	case KindInt16:
		v, ok, err = me.GetInt16(index)
	case KindScaledInt16:
		v, ok, err = me.GetScaledInt16(index)
	case KindInt32:
		v, ok, err = me.GetInt32(index)
	case KindScaledInt32:
		v, ok, err = me.GetScaledInt32(index)
	case KindInt64:
		v, ok, err = me.GetInt64(index)
	case KindScaledInt64:
		v, ok, err = me.GetScaledInt64(index)
	case KindScaledOpaqueInt128:
		v, ok, err = me.GetScaledOpaqueInt128(index)
	case KindBigInt:
		v, ok, err = me.GetBigInt(index)
	case KindScaledBigInt:
		v, ok, err = me.GetScaledBigInt(index)
	case KindFloat32:
		v, ok, err = me.GetFloat32(index)
	case KindFloat64:
		v, ok, err = me.GetFloat64(index)
	case KindOpaqueDecFloat16:
		v, ok, err = me.GetOpaqueDecFloat16(index)
	case KindDecFloat16:
		v, ok, err = me.GetDecFloat16(index)
	case KindOpaqueDecFloat34:
		v, ok, err = me.GetOpaqueDecFloat34(index)
	case KindDecFloat34:
		v, ok, err = me.GetDecFloat34(index)
	case KindString:
		v, ok, err = me.GetString(index)
	case KindOpaqueDate:
		v, ok, err = me.GetOpaqueDate(index)
	case KindDate:
		v, ok, err = me.GetDate(index)
	case KindOpaqueTime:
		v, ok, err = me.GetOpaqueTime(index)
	case KindTime:
		v, ok, err = me.GetTime(index)
	case KindOpaqueTimestamp:
		v, ok, err = me.GetOpaqueTimestamp(index)
	case KindTimestamp:
		v, ok, err = me.GetTimestamp(index)
	case KindOpaqueTimeTz:
		v, ok, err = me.GetOpaqueTimeTz(index)
	case KindTimeTz:
		v, ok, err = me.GetTimeTz(index)
	case KindOpaqueTimestampTz:
		v, ok, err = me.GetOpaqueTimestampTz(index)
	case KindTimestampTz:
		v, ok, err = me.GetTimestampTz(index)
	case KindBlobId:
		v, ok, err = me.GetBlobId(index)
	default:
		err = usageErrorf(ErrInvalidType, "cannot read kind %v", k)
	}
	if !ok {
		v = nil
	}
	return
}

// NaturalKind is the kind that represents a column's adjusted type without loss.
func NaturalKind(d Descriptor) Kind {
	switch d.AdjustedType {
	case AdjustedBoolean:
		return KindBool
	case AdjustedInt16:
		if d.Scale != 0 {
			return KindScaledInt16
		}
		return KindInt16
	case AdjustedInt32:
		if d.Scale != 0 {
			return KindScaledInt32
		}
		return KindInt32
	case AdjustedInt64:
		if d.Scale != 0 {
			return KindScaledInt64
		}
		return KindInt64
	case AdjustedInt128:
		if d.Scale != 0 {
			return KindScaledBigInt
		}
		return KindBigInt
	case AdjustedFloat:
		return KindFloat32
	case AdjustedDouble:
		return KindFloat64
	case AdjustedDecFloat16:
		return KindDecFloat16
	case AdjustedDecFloat34:
		return KindDecFloat34
	case AdjustedString:
		return KindString
	case AdjustedDate:
		return KindDate
	case AdjustedTime:
		return KindTime
	case AdjustedTimestamp:
		return KindTimestamp
	case AdjustedTimeTz:
		return KindTimeTz
	case AdjustedTimestampTz:
		return KindTimestampTz
	case AdjustedBlob:
		return KindBlobId
	}
	return KindNull
}

// Get stores the column in the value dest points to. Pointer and *big.Int destinations are
// optional and receive nil for null; other destinations fail on null. A *any destination
// receives the column's natural kind.
func (me *Statement) Get(index int, dest any) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return usageErrorf(ErrInvalidType, "destination must be a non-nil pointer, got %T", dest)
	}
	return me.getValue(index, rv.Elem(), nil)
}

var (
	variantType = reflect.TypeOf(Variant{})
	choiceType  = reflect.TypeOf(Choice{})
	anyType     = reflect.TypeOf((*any)(nil)).Elem()
)

// getValue stores column index in the settable v. alternatives are used when v is a Variant.
func (me *Statement) getValue(index int, v reflect.Value, alternatives []Kind) (err error) {
	t := v.Type()
	switch {
	case t == variantType:
		var vr Variant
		if vr, err = me.GetVariant(index, alternatives...); err == nil {
			v.Set(reflect.ValueOf(vr))
		}
		return
	case t == choiceType:
		c := v.Addr().Interface().(*Choice)
		c.Variant, err = me.GetVariant(index, c.Alternatives...)
		return
	case t == anyType:
		var d *Descriptor
		if d, err = me.outDescriptor(index); err != nil {
			return
		}
		var (
			val any
			ok  bool
		)
		if val, ok, err = me.getKind(index, NaturalKind(*d)); err != nil {
			return
		}
		if ok {
			v.Set(reflect.ValueOf(val))
		} else {
			v.Set(reflect.Zero(t))
		}
		return
	case t.Kind() == reflect.Pointer && t != bigIntType:
		var null bool
		if null, err = me.IsNull(index); err != nil {
			return
		}
		if null {
			v.Set(reflect.Zero(t))
			return
		}
		elem := reflect.New(t.Elem())
		if err = me.getValue(index, elem.Elem(), alternatives); err == nil {
			v.Set(elem)
		}
		return
	}
	k, ok := KindOf(t)
	if !ok {
		return usageErrorf(ErrInvalidType, "cannot read into %v", t)
	}
	val, ok, err := me.getKind(index, k)
	if err != nil {
		return
	}
	if !ok {
		if t == bigIntType {
			v.Set(reflect.Zero(t))
			return
		}
		return usageErrorf(ErrNullForRequired, "null value encountered for non-optional field at index %d", index)
	}
	v.Set(reflect.ValueOf(val))
	return
}
