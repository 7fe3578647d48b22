package wire

import (
	"math/big"
)

// Int128 is the engine's two's complement 128-bit integer, stored little-endian.
type Int128 struct {
	Lo uint64
	Hi uint64
}

var (
	two128    = new(big.Int).Lsh(big.NewInt(1), 128)
	MaxInt128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	MinInt128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
	mask64    = new(big.Int).SetUint64(^uint64(0))
)

func GetInt128(b []byte) Int128 {
	return Int128{
		Lo: order.Uint64(b),
		Hi: order.Uint64(b[8:]),
	}
}

func PutInt128(b []byte, v Int128) {
	order.PutUint64(b, v.Lo)
	order.PutUint64(b[8:], v.Hi)
}

func (me Int128) Negative() bool {
	return me.Hi>>63 != 0
}

// Big returns the value as a *big.Int.
func (me Int128) Big() *big.Int {
	ret := new(big.Int).SetUint64(me.Hi)
	ret.Lsh(ret, 64)
	ret.Or(ret, new(big.Int).SetUint64(me.Lo))
	if me.Negative() {
		ret.Sub(ret, two128)
	}
	return ret
}

// Int128FromBig converts v, reporting false when it does not fit in 128 bits.
func Int128FromBig(v *big.Int) (ret Int128, ok bool) {
	if v.Cmp(MaxInt128) > 0 || v.Cmp(MinInt128) < 0 {
		return
	}
	u := new(big.Int).Set(v)
	if u.Sign() < 0 {
		u.Add(u, two128)
	}
	ret.Lo = new(big.Int).And(u, mask64).Uint64()
	ret.Hi = new(big.Int).Rsh(u, 64).Uint64()
	ok = true
	return
}

func Int128FromInt64(v int64) Int128 {
	ret := Int128{Lo: uint64(v)}
	if v < 0 {
		ret.Hi = ^uint64(0)
	}
	return ret
}
