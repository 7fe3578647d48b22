package wire

import (
	"encoding/binary"
	"math"
)

// Messages are little-endian, matching the engine's native layout.
var order = binary.LittleEndian

func IsNull(msg []byte, f Field) bool {
	return int16(order.Uint16(msg[f.NullOffset:])) != NullFlagNotNull
}

func SetNullFlag(msg []byte, f Field, null bool) {
	v := NullFlagNotNull
	if null {
		v = NullFlagNull
	}
	order.PutUint16(msg[f.NullOffset:], uint16(v))
}

func GetInt16(b []byte) int16      { return int16(order.Uint16(b)) }
func PutInt16(b []byte, v int16)   { order.PutUint16(b, uint16(v)) }
func GetInt32(b []byte) int32      { return int32(order.Uint32(b)) }
func PutInt32(b []byte, v int32)   { order.PutUint32(b, uint32(v)) }
func GetInt64(b []byte) int64      { return int64(order.Uint64(b)) }
func PutInt64(b []byte, v int64)   { order.PutUint64(b, uint64(v)) }
func GetUint16(b []byte) uint16    { return order.Uint16(b) }
func PutUint16(b []byte, v uint16) { order.PutUint16(b, v) }
func GetUint32(b []byte) uint32    { return order.Uint32(b) }
func PutUint32(b []byte, v uint32) { order.PutUint32(b, v) }

func GetFloat32(b []byte) float32 { return math.Float32frombits(order.Uint32(b)) }

func PutFloat32(b []byte, v float32) { order.PutUint32(b, math.Float32bits(v)) }

func GetFloat64(b []byte) float64 { return math.Float64frombits(order.Uint64(b)) }

func PutFloat64(b []byte, v float64) { order.PutUint64(b, math.Float64bits(v)) }

func GetBool(b []byte) bool { return b[0] != 0 }

func PutBool(b []byte, v bool) {
	if v {
		b[0] = 1
	} else {
		b[0] = 0
	}
}

// GetVarying returns the bytes of a length-prefixed VARYING value. The result aliases b.
func GetVarying(b []byte) []byte {
	n := order.Uint16(b)
	return b[2 : 2+int(n)]
}

// PutVarying writes a length prefix and the value. The caller checks the declared length.
func PutVarying(b []byte, v []byte) {
	order.PutUint16(b, uint16(len(v)))
	copy(b[2:], v)
}
