package sqlmsg

import (
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"golang.org/x/exp/constraints"

	"github.com/anacrolix/sqlmsg/wire"
)

// ScaledNumber is a fixed-point value: Value × 10^Scale.
type ScaledNumber[T constraints.Signed] struct {
	Value T
	Scale int
}

type (
	ScaledInt16 = ScaledNumber[int16]
	ScaledInt32 = ScaledNumber[int32]
	ScaledInt64 = ScaledNumber[int64]
)

func (me ScaledNumber[T]) String() string {
	if me.Value == 0 && me.Scale > 0 {
		return "0"
	}
	return apd.New(int64(me.Value), int32(me.Scale)).Text('f')
}

// Rescale returns the same value at another scale, truncating toward zero when digits are
// dropped.
func (me ScaledNumber[T]) Rescale(scale int) (ret ScaledNumber[T], err error) {
	v, ok := rescale(me.Value, me.Scale, scale)
	if !ok {
		err = conversionErrorf("numeric overflow rescaling %v to scale %d", me, scale)
		return
	}
	ret = ScaledNumber[T]{v, scale}
	return
}

// ScaledOpaqueInt128 is a 128-bit column value in the engine's encoding with its scale.
type ScaledOpaqueInt128 struct {
	Value OpaqueInt128
	Scale int
}

func (me ScaledOpaqueInt128) String() string {
	return bigNumber(me.Value.Big(), me.Scale).text()
}

// ScaledBigInt is a 128-bit fixed-point value held as a *big.Int.
type ScaledBigInt struct {
	Value *big.Int
	Scale int
}

func (me ScaledBigInt) String() string {
	return bigNumber(me.Value, me.Scale).text()
}

// DecFloat16 is a decimal float limited to 16 significant digits.
type DecFloat16 struct {
	apd.Decimal
}

// DecFloat34 is a decimal float limited to 34 significant digits.
type DecFloat34 struct {
	apd.Decimal
}

func (me DecFloat16) String() string { return decimalText(&me.Decimal) }
func (me DecFloat34) String() string { return decimalText(&me.Decimal) }

// NewDecFloat16 rounds d to 16 digits.
func NewDecFloat16(d *apd.Decimal) (ret DecFloat16, err error) {
	r, err := roundDecimal(d, wire.Decimal64.Context())
	if err == nil {
		ret.Set(r)
	}
	return
}

// NewDecFloat34 rounds d to 34 digits.
func NewDecFloat34(d *apd.Decimal) (ret DecFloat34, err error) {
	r, err := roundDecimal(d, wire.Decimal128.Context())
	if err == nil {
		ret.Set(r)
	}
	return
}

func ParseDecFloat16(s string) (ret DecFloat16, err error) {
	d, err := parseDecimal(s)
	if err != nil {
		return
	}
	return NewDecFloat16(d)
}

func ParseDecFloat34(s string) (ret DecFloat34, err error) {
	d, err := parseDecimal(s)
	if err != nil {
		return
	}
	return NewDecFloat34(d)
}

var pow10 = [...]int64{
	1, 1e1, 1e2, 1e3, 1e4, 1e5, 1e6, 1e7, 1e8, 1e9,
	1e10, 1e11, 1e12, 1e13, 1e14, 1e15, 1e16, 1e17, 1e18,
}

// rescale moves v from scale from to scale to. ok is false on overflow of T.
func rescale[T constraints.Signed](v T, from, to int) (ret T, ok bool) {
	switch {
	case from == to || v == 0:
		return v, true
	case from > to:
		n := from - to
		if n >= len(pow10) || int64(T(pow10[n])) != pow10[n] {
			return
		}
		p := T(pow10[n])
		ret = v * p
		if ret/p != v {
			return 0, false
		}
		return ret, true
	default:
		n := to - from
		if n >= len(pow10) || int64(T(pow10[n])) != pow10[n] {
			// |v| is smaller than the divisor.
			return 0, true
		}
		return v / T(pow10[n]), true
	}
}

type numberForm int

const (
	formScaled numberForm = iota
	formBig
	formDecimal
	formFloat
)

// number is any numeric value crossing between a message and a caller before it is converted.
type number struct {
	form  numberForm
	i     int64
	b     *big.Int
	d     *apd.Decimal
	f     float64
	scale int
}

func scaledNumber(v int64, scale int) number {
	return number{form: formScaled, i: v, scale: scale}
}

func bigNumber(v *big.Int, scale int) number {
	return number{form: formBig, b: v, scale: scale}
}

func decimalNumber(d *apd.Decimal) number {
	return number{form: formDecimal, d: d}
}

func floatNumber(f float64) number {
	return number{form: formFloat, f: f}
}

func (me number) finite() bool {
	switch me.form {
	case formFloat:
		return !math.IsInf(me.f, 0) && !math.IsNaN(me.f)
	case formDecimal:
		return me.d.Form == apd.Finite
	}
	return true
}

// decimal returns the exact value. The result must not be modified.
func (me number) decimal() *apd.Decimal {
	switch me.form {
	case formScaled:
		return apd.New(me.i, int32(me.scale))
	case formBig:
		return apd.NewWithBigInt(new(apd.BigInt).SetMathBigInt(me.b), int32(me.scale))
	case formDecimal:
		return me.d
	}
	ret := new(apd.Decimal)
	switch {
	case math.IsNaN(me.f):
		ret.Form = apd.NaN
	case math.IsInf(me.f, 0):
		ret.Form = apd.Infinite
		ret.Negative = me.f < 0
	default:
		// Shortest decimal that round trips, so 0.1 becomes 1E-1 and not the binary expansion.
		ret.SetFloat64(me.f)
	}
	return ret
}

// unscaled returns the value divided by 10^scale.
func (me number) unscaled(scale int) *apd.Decimal {
	d := me.decimal()
	if scale == 0 || d.Form != apd.Finite {
		return d
	}
	ret := new(apd.Decimal).Set(d)
	ret.Exponent -= int32(scale)
	return ret
}

func (me number) text() string {
	switch me.form {
	case formScaled, formBig:
		return me.decimal().Text('f')
	case formDecimal:
		return decimalText(me.d)
	}
	return floatText(me.f, 64)
}

func nonFiniteError(n number, target string) error {
	return conversionErrorf("cannot convert non-finite value %s to %s", n.text(), target)
}

func overflowError(n number, target string) error {
	return conversionErrorf("numeric overflow converting %s to %s", n.text(), target)
}

// toBigInt returns n as an integer at scale, truncating toward zero.
func toBigInt(n number, scale int, target string) (ret *big.Int, err error) {
	if !n.finite() {
		err = nonFiniteError(n, target)
		return
	}
	switch n.form {
	case formScaled:
		if v, ok := rescale(n.i, n.scale, scale); ok {
			ret = big.NewInt(v)
			return
		}
	case formBig:
		if n.scale == scale {
			ret = new(big.Int).Set(n.b)
			return
		}
	}
	d := n.decimal()
	if d.IsZero() {
		ret = new(big.Int)
		return
	}
	// Digits left of the target scale; anything this large overflows every target.
	if d.NumDigits()+int64(d.Exponent)-int64(scale) > 80 {
		err = overflowError(n, target)
		return
	}
	ctx := apd.BaseContext.WithPrecision(160)
	ctx.Rounding = apd.RoundDown
	var r apd.Decimal
	if _, err = ctx.Quantize(&r, d, int32(scale)); err != nil {
		err = overflowError(n, target)
		return
	}
	ret = r.Coeff.MathBigInt()
	if r.Negative {
		ret.Neg(ret)
	}
	return
}

func toInt[T constraints.Signed](n number, scale int, target string) (ret T, err error) {
	if n.form == formScaled {
		v, ok := rescale(n.i, n.scale, scale)
		if ok && int64(T(v)) == v {
			ret = T(v)
			return
		}
		err = overflowError(n, target)
		return
	}
	b, err := toBigInt(n, scale, target)
	if err != nil {
		return
	}
	if !b.IsInt64() {
		err = overflowError(n, target)
		return
	}
	v := b.Int64()
	if int64(T(v)) != v {
		err = overflowError(n, target)
		return
	}
	ret = T(v)
	return
}

func toInt128(n number, scale int) (ret wire.Int128, err error) {
	b, err := toBigInt(n, scale, "INT128")
	if err != nil {
		return
	}
	v, ok := wire.Int128FromBig(b)
	if !ok {
		err = overflowError(n, "INT128")
		return
	}
	ret = v
	return
}

func toFloat64(n number, scale int) (ret float64, err error) {
	if n.form == formFloat && scale == 0 {
		ret = n.f
		return
	}
	d := n.unscaled(scale)
	switch d.Form {
	case apd.Infinite:
		ret = math.Inf(1)
		if d.Negative {
			ret = math.Inf(-1)
		}
		return
	case apd.NaN, apd.NaNSignaling:
		ret = math.NaN()
		return
	}
	ret, err = d.Float64()
	if err != nil {
		err = overflowError(n, "double")
	}
	return
}

func toFloat32(n number, scale int) (ret float32, err error) {
	f, err := toFloat64(n, scale)
	if err != nil {
		return
	}
	ret = float32(f)
	if math.IsInf(float64(ret), 0) && !math.IsInf(f, 0) {
		err = overflowError(n, "float")
	}
	return
}

func roundDecimal(d *apd.Decimal, ctx *apd.Context) (ret *apd.Decimal, err error) {
	ret = new(apd.Decimal)
	if d.Form != apd.Finite {
		ret.Set(d)
		return
	}
	if _, err = ctx.Round(ret, d); err != nil {
		err = conversionErrorf("rounding %s: %v", d.String(), err)
	}
	return
}

func toDecFloat16(n number, scale int) (ret wire.DecFloat16, err error) {
	ret, err = wire.EncodeDecFloat16(n.unscaled(scale))
	if err != nil {
		err = overflowError(n, "DECFLOAT(16)")
	}
	return
}

func toDecFloat34(n number, scale int) (ret wire.DecFloat34, err error) {
	ret, err = wire.EncodeDecFloat34(n.unscaled(scale))
	if err != nil {
		err = overflowError(n, "DECFLOAT(34)")
	}
	return
}

func decimalText(d *apd.Decimal) string {
	switch d.Form {
	case apd.Infinite:
		if d.Negative {
			return "-Infinity"
		}
		return "Infinity"
	case apd.NaN:
		return "NaN"
	case apd.NaNSignaling:
		return "sNaN"
	}
	return d.String()
}

func floatText(f float64, bitSize int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'g', -1, bitSize)
}

// parseScaledInt64 reads an optional decimal point: the digits after the last '.' give a
// negative scale and the remaining digits the magnitude.
func parseScaledInt64(s string) (ret ScaledInt64, err error) {
	digits := s
	if dot := strings.LastIndexByte(s, '.'); dot >= 0 {
		for _, c := range s[dot+1:] {
			if c < '0' || c > '9' {
				break
			}
			ret.Scale--
		}
		digits = s[:dot] + s[dot+1:]
	}
	ret.Value, err = strconv.ParseInt(digits, 10, 64)
	if err != nil {
		err = conversionErrorf("cannot convert string %q to a number", s)
	}
	return
}

func parseFloat(s string) (ret float64, err error) {
	ret, err = strconv.ParseFloat(s, 64)
	if err != nil {
		err = conversionErrorf("cannot convert string %q to a floating point number", s)
	}
	return
}

func parseDecimal(s string) (ret *apd.Decimal, err error) {
	ret, _, err = apd.NewFromString(strings.TrimSpace(s))
	if err != nil {
		err = conversionErrorf("cannot convert string %q to a decimal", s)
	}
	return
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, conversionErrorf("cannot convert string %q to a boolean", s)
}

func boolText(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
