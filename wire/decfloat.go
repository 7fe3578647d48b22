package wire

import (
	"math/big"

	"github.com/cockroachdb/apd/v3"
	"github.com/cockroachdb/errors"
)

// DecFloat16 is an IEEE 754 decimal64 value in binary integer decimal encoding.
type DecFloat16 struct {
	Bits uint64
}

// DecFloat34 is an IEEE 754 decimal128 value in binary integer decimal encoding.
type DecFloat34 struct {
	Lo uint64
	Hi uint64
}

func GetDecFloat16(b []byte) DecFloat16    { return DecFloat16{order.Uint64(b)} }
func PutDecFloat16(b []byte, v DecFloat16) { order.PutUint64(b, v.Bits) }

func GetDecFloat34(b []byte) DecFloat34 {
	return DecFloat34{Lo: order.Uint64(b), Hi: order.Uint64(b[8:])}
}

func PutDecFloat34(b []byte, v DecFloat34) {
	order.PutUint64(b, v.Lo)
	order.PutUint64(b[8:], v.Hi)
}

type decimalFormat struct {
	name      string
	bits      uint
	precision int
	bias      int
	expBits   uint
	coeffBits uint
	maxCoeff  *big.Int
}

func newDecimalFormat(name string, bits uint, precision, bias int, expBits uint) *decimalFormat {
	ret := &decimalFormat{
		name:      name,
		bits:      bits,
		precision: precision,
		bias:      bias,
		expBits:   expBits,
		coeffBits: bits - 1 - expBits,
	}
	ret.maxCoeff = new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(precision)), nil)
	ret.maxCoeff.Sub(ret.maxCoeff, big.NewInt(1))
	return ret
}

var (
	Decimal64  = newDecimalFormat("decimal64", 64, 16, 398, 10)
	Decimal128 = newDecimalFormat("decimal128", 128, 34, 6176, 14)
)

// Precision is the number of significant decimal digits.
func (me *decimalFormat) Precision() int { return me.precision }

func (me *decimalFormat) minQ() int { return -me.bias }

// maxQ is the largest exponent whose biased form keeps the top two exponent bits below 11.
func (me *decimalFormat) maxQ() int { return 3<<(me.expBits-2) - 1 - me.bias }

// Context returns an apd context rounding to the format's precision.
func (me *decimalFormat) Context() *apd.Context {
	ctx := apd.BaseContext.WithPrecision(uint32(me.precision))
	ctx.Rounding = apd.RoundHalfEven
	return ctx
}

func mask(n uint) *big.Int {
	return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), n), big.NewInt(1))
}

func bitsOf(v *big.Int, shift, n uint) int64 {
	return new(big.Int).And(new(big.Int).Rsh(v, shift), mask(n)).Int64()
}

// Encode rounds d to the format and returns the encoded bits.
func (me *decimalFormat) Encode(d *apd.Decimal) (ret *big.Int, err error) {
	ret = new(big.Int)
	top := me.bits - 1
	switch d.Form {
	case apd.Infinite:
		ret.Lsh(big.NewInt(0x1e), top-5)
	case apd.NaN:
		ret.Lsh(big.NewInt(0x1f), top-5)
	case apd.NaNSignaling:
		ret.Lsh(big.NewInt(0x3f), top-6)
	default:
		var r apd.Decimal
		ctx := me.Context()
		if _, err = ctx.Round(&r, d); err != nil {
			return
		}
		if int(r.Exponent) < me.minQ() {
			if _, err = ctx.Quantize(&r, &r, int32(me.minQ())); err != nil {
				return
			}
		}
		coeff := r.Coeff.MathBigInt()
		q := int(r.Exponent)
		if q > me.maxQ() {
			coeff.Mul(coeff, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(q-me.maxQ())), nil))
			q = me.maxQ()
			if coeff.Cmp(me.maxCoeff) > 0 {
				err = errors.Newf("%s overflow: %s", me.name, d.String())
				return
			}
		}
		exp := big.NewInt(int64(q + me.bias))
		if coeff.BitLen() <= int(me.coeffBits) {
			ret.Lsh(exp, me.coeffBits)
			ret.Or(ret, coeff)
		} else {
			ret.Lsh(big.NewInt(3), top-2)
			ret.Or(ret, new(big.Int).Lsh(exp, me.coeffBits-2))
			ret.Or(ret, new(big.Int).And(coeff, mask(me.coeffBits-2)))
		}
	}
	if d.Negative {
		ret.SetBit(ret, int(top), 1)
	}
	return
}

// Decode converts encoded bits back to a decimal. Non-canonical coefficients decode as zero.
func (me *decimalFormat) Decode(v *big.Int) *apd.Decimal {
	top := me.bits - 1
	ret := new(apd.Decimal)
	ret.Negative = v.Bit(int(top)) == 1
	if bitsOf(v, top-2, 2) == 3 {
		if bitsOf(v, top-4, 4) == 0xf {
			switch {
			case v.Bit(int(top-5)) == 0:
				ret.Form = apd.Infinite
			case v.Bit(int(top-6)) == 1:
				ret.Form = apd.NaNSignaling
			default:
				ret.Form = apd.NaN
			}
			return ret
		}
		exp := bitsOf(v, me.coeffBits-2, me.expBits)
		coeff := new(big.Int).And(v, mask(me.coeffBits-2))
		coeff.Or(coeff, new(big.Int).Lsh(big.NewInt(4), me.coeffBits-2))
		if coeff.Cmp(me.maxCoeff) > 0 {
			coeff.SetInt64(0)
		}
		ret.Coeff.SetMathBigInt(coeff)
		ret.Exponent = int32(int(exp) - me.bias)
		return ret
	}
	exp := bitsOf(v, me.coeffBits, me.expBits)
	coeff := new(big.Int).And(v, mask(me.coeffBits))
	if coeff.Cmp(me.maxCoeff) > 0 {
		coeff.SetInt64(0)
	}
	ret.Coeff.SetMathBigInt(coeff)
	ret.Exponent = int32(int(exp) - me.bias)
	return ret
}

func EncodeDecFloat16(d *apd.Decimal) (ret DecFloat16, err error) {
	bits, err := Decimal64.Encode(d)
	if err != nil {
		return
	}
	ret.Bits = bits.Uint64()
	return
}

func (me DecFloat16) Decimal() *apd.Decimal {
	return Decimal64.Decode(new(big.Int).SetUint64(me.Bits))
}

func EncodeDecFloat34(d *apd.Decimal) (ret DecFloat34, err error) {
	bits, err := Decimal128.Encode(d)
	if err != nil {
		return
	}
	ret.Lo = new(big.Int).And(bits, mask(64)).Uint64()
	ret.Hi = new(big.Int).Rsh(bits, 64).Uint64()
	return
}

func (me DecFloat34) Decimal() *apd.Decimal {
	v := new(big.Int).SetUint64(me.Hi)
	v.Lsh(v, 64)
	v.Or(v, new(big.Int).SetUint64(me.Lo))
	return Decimal128.Decode(v)
}
