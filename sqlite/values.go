package sqlite

import (
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/bradfitz/iter"
	"github.com/cockroachdb/apd/v3"

	"github.com/anacrolix/sqlmsg/wire"
)

// Values are stored in SQLite in these forms: integers without scale as INTEGER, scaled and
// decimal values as their exact text (column affinity may turn them into REAL), calendar values
// as ISO text, zoned values as UTC text followed by the zone name, blobs as their INTEGER id.

const (
	dateLayout      = "2006-01-02"
	timeLayout      = "15:04:05.0000"
	timestampLayout = dateLayout + " " + timeLayout
)

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Zoned TIME values take their offset on this date.
var timeTzReferenceDate = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

func numericOutOfRange() *wire.Error {
	return &wire.Error{
		Codes:   []int{wire.CodeArithExcept, wire.CodeNumericOutOfRange},
		Message: "arithmetic exception, numeric overflow, or string truncation; numeric value is out of range",
	}
}

func conversionError(v any, t wire.Type) *wire.Error {
	return wire.Errorf(wire.CodeArithExcept, "conversion error from string %q to %v", textOf(v), t)
}

func scaledText(v int64, scale int) string {
	return apd.New(v, int32(scale)).Text('f')
}

func bigScaledText(v *big.Int, scale int) string {
	return apd.NewWithBigInt(new(apd.BigInt).SetMathBigInt(v), int32(scale)).Text('f')
}

func formatClock(t wire.Time) string {
	return time.Time{}.Add(t.Duration()).Format(timeLayout)
}

func formatDate(d wire.Date) string {
	y, m, day := d.Civil()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC).Format(dateLayout)
}

func formatTimestamp(ts wire.Timestamp) string {
	return ts.In(time.UTC).Format(timestampLayout)
}

// decodeArgs converts the input message into SQLite arguments.
func decodeArgs(md wire.Metadata, msg []byte, cs charset) (args []any, err error) {
	if md == nil {
		return
	}
	args = make([]any, md.Count())
	for i := range iter.N(md.Count()) {
		f := md.Field(i)
		if wire.IsNull(msg, f) {
			continue
		}
		if args[i], err = decodeValue(f, msg[f.Offset:], cs); err != nil {
			return
		}
	}
	return
}

func decodeValue(f wire.Field, b []byte, cs charset) (v any, err error) {
	scaled := func(i int64) any {
		if f.Scale == 0 {
			return i
		}
		return scaledText(i, f.Scale)
	}
	switch f.Type {
	case wire.TypeShort:
		v = scaled(int64(wire.GetInt16(b)))
	case wire.TypeLong:
		v = scaled(int64(wire.GetInt32(b)))
	case wire.TypeInt64:
		v = scaled(wire.GetInt64(b))
	case wire.TypeInt128:
		v = bigScaledText(wire.GetInt128(b).Big(), f.Scale)
	case wire.TypeFloat:
		v = float64(wire.GetFloat32(b))
	case wire.TypeDouble:
		v = wire.GetFloat64(b)
	case wire.TypeDec16:
		v = wire.GetDecFloat16(b).Decimal().String()
	case wire.TypeDec34:
		v = wire.GetDecFloat34(b).Decimal().String()
	case wire.TypeBoolean:
		v = wire.GetBool(b)
	case wire.TypeVarying:
		v, err = cs.decode(wire.GetVarying(b))
	case wire.TypeText:
		v, err = cs.decode(b[:f.Length])
	case wire.TypeDate:
		v = formatDate(wire.GetDate(b))
	case wire.TypeTime:
		v = formatClock(wire.GetTime(b))
	case wire.TypeTimestamp:
		v = formatTimestamp(wire.GetTimestamp(b))
	case wire.TypeTimeTz, wire.TypeTimeTzEx:
		v, err = zoned(formatClock(wire.GetTimeTz(b).Time), wire.GetTimeTz(b).Zone)
	case wire.TypeTimestampTz, wire.TypeTimestampTzEx:
		ts := wire.GetTimestampTz(b)
		v, err = zoned(formatTimestamp(ts.Timestamp), ts.Zone)
	case wire.TypeBlob:
		id := wire.GetBlobId(b)
		v = int64(id.High)<<32 | int64(id.Low)
	case wire.TypeNull:
	default:
		err = wire.Errorf(wire.CodeDsqlError, "unsupported parameter type %v", f.Type)
	}
	return
}

func zoned(utc string, zone uint16) (ret string, err error) {
	name, err := wire.ZoneName(zone)
	if err != nil {
		err = wire.Errorf(wire.CodeArithExcept, "%v", err)
		return
	}
	ret = utc + " " + name
	return
}

// encodeRow writes a SQLite row into out laid out by md.
func encodeRow(md wire.Metadata, row []any, out []byte, cs charset) (err error) {
	for i := range iter.N(md.Count()) {
		f := md.Field(i)
		var v any
		if i < len(row) {
			v = row[i]
		}
		if v == nil || f.Type == wire.TypeNull {
			wire.SetNullFlag(out, f, true)
			continue
		}
		if err = encodeValue(f, v, out[f.Offset:], cs); err != nil {
			return
		}
		wire.SetNullFlag(out, f, false)
	}
	return
}

// nullRow marks every field of out null.
func nullRow(md wire.Metadata, out []byte) {
	for i := range iter.N(md.Count()) {
		wire.SetNullFlag(out, md.Field(i), true)
	}
}

func textOf(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return v.Format(dateLayout)
		}
		return v.Format(timestampLayout)
	}
	return ""
}

func decimalOf(v any, t wire.Type) (d *apd.Decimal, err error) {
	switch v := v.(type) {
	case int64:
		return apd.New(v, 0), nil
	case float64:
		d, err = new(apd.Decimal).SetFloat64(v)
		return
	case bool:
		if v {
			return apd.New(1, 0), nil
		}
		return apd.New(0, 0), nil
	case string, []byte:
		d, _, err = apd.NewFromString(strings.TrimSpace(textOf(v)))
		if err == nil {
			return
		}
	}
	err = conversionError(v, t)
	return
}

func integerBits(t wire.Type) int {
	switch t {
	case wire.TypeShort:
		return 16
	case wire.TypeLong:
		return 32
	case wire.TypeInt64:
		return 64
	}
	return 128
}

// scaledInteger rounds v half-even to scale and checks it fits t.
func scaledInteger(v any, t wire.Type, scale int) (ret *big.Int, err error) {
	d, err := decimalOf(v, t)
	if err != nil {
		return
	}
	if d.Form != apd.Finite {
		err = numericOutOfRange()
		return
	}
	ctx := apd.BaseContext.WithPrecision(60)
	ctx.Rounding = apd.RoundHalfEven
	var r apd.Decimal
	if _, err = ctx.Quantize(&r, d, int32(scale)); err != nil {
		err = numericOutOfRange()
		return
	}
	ret = r.Coeff.MathBigInt()
	if r.Negative {
		ret.Neg(ret)
	}
	bits := integerBits(t)
	limit := new(big.Int).Lsh(big.NewInt(1), uint(bits-1))
	if ret.Cmp(limit) >= 0 || ret.Cmp(new(big.Int).Neg(limit)) < 0 {
		err = numericOutOfRange()
	}
	return
}

func floatOf(v any, t wire.Type) (ret float64, err error) {
	switch v := v.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	}
	ret, err = strconv.ParseFloat(strings.TrimSpace(textOf(v)), 64)
	if err != nil {
		err = conversionError(v, t)
	}
	return
}

func boolOf(v any) (ret bool, err error) {
	switch v := v.(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	}
	switch strings.ToUpper(strings.TrimSpace(textOf(v))) {
	case "TRUE", "1":
		ret = true
	case "FALSE", "0":
	default:
		err = conversionError(v, wire.TypeBoolean)
	}
	return
}

func timestampOf(v any, t wire.Type) (ret time.Time, err error) {
	if tm, ok := v.(time.Time); ok {
		return tm, nil
	}
	s := strings.TrimSpace(textOf(v))
	for _, layout := range timestampLayouts {
		if ret, err = time.Parse(layout, s); err == nil {
			return
		}
	}
	err = conversionError(v, t)
	return
}

func clockOf(v any) (ret wire.Time, err error) {
	if tm, ok := v.(time.Time); ok {
		y, m, d := tm.Date()
		return wire.TimeFromDuration(tm.Sub(time.Date(y, m, d, 0, 0, 0, 0, tm.Location()))), nil
	}
	tm, err := time.Parse("15:04:05.999999999", strings.TrimSpace(textOf(v)))
	if err != nil {
		err = conversionError(v, wire.TypeTime)
		return
	}
	ret = wire.TimeFromDuration(tm.Sub(time.Time{}))
	return
}

// splitZoned separates the trailing zone name of a stored zoned value.
func splitZoned(v any, t wire.Type) (value string, zone uint16, loc *time.Location, err error) {
	s := strings.TrimSpace(textOf(v))
	i := strings.LastIndexByte(s, ' ')
	if i < 0 {
		err = conversionError(v, t)
		return
	}
	value = s[:i]
	if zone, err = wire.ZoneID(s[i+1:]); err != nil {
		err = conversionError(v, t)
		return
	}
	if loc, err = wire.ZoneLocation(zone); err != nil {
		err = conversionError(v, t)
	}
	return
}

func offsetMinutes(t time.Time) int16 {
	_, offset := t.Zone()
	return int16(offset / 60)
}

func encodeText(f wire.Field, s string, b []byte, cs charset) error {
	enc, err := cs.encode(s)
	if err != nil {
		return err
	}
	if f.Type == wire.TypeText {
		enc = []byte(strings.TrimRight(string(enc), " "))
	}
	if len(enc) > f.Length {
		return &wire.Error{
			Codes: []int{wire.CodeArithExcept, wire.CodeStringTruncation},
			Message: "arithmetic exception, numeric overflow, or string truncation; string right truncation; " +
				"expected length " + strconv.Itoa(f.Length) + ", actual " + strconv.Itoa(len(enc)),
		}
	}
	if f.Type == wire.TypeText {
		n := copy(b[:f.Length], enc)
		for i := n; i < f.Length; i++ {
			b[i] = ' '
		}
		return nil
	}
	wire.PutVarying(b, enc)
	return nil
}

func encodeValue(f wire.Field, v any, b []byte, cs charset) (err error) {
	switch f.Type {
	case wire.TypeShort, wire.TypeLong, wire.TypeInt64, wire.TypeInt128:
		var i *big.Int
		if i, err = scaledInteger(v, f.Type, f.Scale); err != nil {
			return
		}
		switch f.Type {
		case wire.TypeShort:
			wire.PutInt16(b, int16(i.Int64()))
		case wire.TypeLong:
			wire.PutInt32(b, int32(i.Int64()))
		case wire.TypeInt64:
			wire.PutInt64(b, i.Int64())
		default:
			i128, _ := wire.Int128FromBig(i)
			wire.PutInt128(b, i128)
		}
	case wire.TypeFloat, wire.TypeDouble:
		var fl float64
		if fl, err = floatOf(v, f.Type); err != nil {
			return
		}
		if f.Type == wire.TypeFloat {
			wire.PutFloat32(b, float32(fl))
		} else {
			wire.PutFloat64(b, fl)
		}
	case wire.TypeDec16, wire.TypeDec34:
		var d *apd.Decimal
		if d, err = decimalOf(v, f.Type); err != nil {
			return
		}
		format := wire.Decimal128
		if f.Type == wire.TypeDec16 {
			format = wire.Decimal64
		}
		var r apd.Decimal
		if _, err = format.Context().Round(&r, d); err != nil {
			return numericOutOfRange()
		}
		d = &r
		if f.Type == wire.TypeDec16 {
			var enc wire.DecFloat16
			if enc, err = wire.EncodeDecFloat16(d); err != nil {
				return numericOutOfRange()
			}
			wire.PutDecFloat16(b, enc)
		} else {
			var enc wire.DecFloat34
			if enc, err = wire.EncodeDecFloat34(d); err != nil {
				return numericOutOfRange()
			}
			wire.PutDecFloat34(b, enc)
		}
	case wire.TypeText, wire.TypeVarying:
		return encodeText(f, textOf(v), b, cs)
	case wire.TypeBoolean:
		var bl bool
		if bl, err = boolOf(v); err != nil {
			return
		}
		wire.PutBool(b, bl)
	case wire.TypeDate:
		var t time.Time
		if t, err = timestampOf(v, f.Type); err != nil {
			return
		}
		wire.PutDate(b, wire.DateFromCivil(t.Date()))
	case wire.TypeTime:
		var t wire.Time
		if t, err = clockOf(v); err != nil {
			return
		}
		wire.PutTime(b, t)
	case wire.TypeTimestamp:
		var t time.Time
		if t, err = timestampOf(v, f.Type); err != nil {
			return
		}
		wire.PutTimestamp(b, wire.TimestampFromTime(t))
	case wire.TypeTimeTz, wire.TypeTimeTzEx:
		var (
			value string
			tz    wire.TimeTz
			loc   *time.Location
			clock wire.Time
		)
		if value, tz.Zone, loc, err = splitZoned(v, f.Type); err != nil {
			return
		}
		if clock, err = clockOf(value); err != nil {
			return
		}
		tz.Time = clock
		if f.Type == wire.TypeTimeTz {
			wire.PutTimeTz(b, tz)
			return
		}
		local := timeTzReferenceDate.Add(clock.Duration()).In(loc)
		wire.PutTimeTzEx(b, wire.TimeTzEx{TimeTz: tz, ExtOffset: offsetMinutes(local)})
	case wire.TypeTimestampTz, wire.TypeTimestampTzEx:
		var (
			value string
			tz    wire.TimestampTz
			loc   *time.Location
			utc   time.Time
		)
		if value, tz.Zone, loc, err = splitZoned(v, f.Type); err != nil {
			return
		}
		if utc, err = timestampOf(value, f.Type); err != nil {
			return
		}
		tz.Timestamp = wire.TimestampFromTime(utc)
		if f.Type == wire.TypeTimestampTz {
			wire.PutTimestampTz(b, tz)
			return
		}
		wire.PutTimestampTzEx(b, wire.TimestampTzEx{TimestampTz: tz, ExtOffset: offsetMinutes(utc.In(loc))})
	case wire.TypeBlob:
		id, ok := v.(int64)
		if !ok {
			return wire.Errorf(wire.CodeBadBlobId, "invalid BLOB ID")
		}
		wire.PutBlobId(b, wire.BlobId{High: uint32(id >> 32), Low: uint32(id)})
	default:
		err = wire.Errorf(wire.CodeDsqlError, "unsupported column type %v", f.Type)
	}
	return
}
