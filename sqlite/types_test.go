package sqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anacrolix/sqlmsg/wire"
)

func TestFieldOf(t *testing.T) {
	utf8, err := lookupCharset("")
	require.NoError(t, err)
	win1252, err := lookupCharset("win1252")
	require.NoError(t, err)
	for _, c := range []struct {
		decl string
		cs   charset
		want wire.Field
	}{
		{"smallint", utf8, wire.Field{Type: wire.TypeShort}},
		{"numeric(9,2)", utf8, wire.Field{Type: wire.TypeLong, Scale: -2}},
		{"NUMERIC(20, 4)", utf8, wire.Field{Type: wire.TypeInt128, Scale: -4}},
		{"decimal", utf8, wire.Field{Type: wire.TypeInt64}},
		{"varchar(10)", utf8, wire.Field{Type: wire.TypeVarying, Length: 40, CharSet: CharSetUTF8}},
		{"char(3)", win1252, wire.Field{Type: wire.TypeText, Length: 3, CharSet: CharSetWin1252}},
		{"timestamp  with time zone", utf8, wire.Field{Type: wire.TypeTimestampTzEx}},
		{"time with time zone", utf8, wire.Field{Type: wire.TypeTimeTzEx}},
		{"decfloat(16)", utf8, wire.Field{Type: wire.TypeDec16}},
		{"decfloat", utf8, wire.Field{Type: wire.TypeDec34}},
		{"blob sub_type text", utf8, wire.Field{Type: wire.TypeBlob, SubType: 1}},
		{"double precision", utf8, wire.Field{Type: wire.TypeDouble}},
		{"boolean", utf8, wire.Field{Type: wire.TypeBoolean}},
	} {
		f, ok := fieldOf(c.decl, c.cs)
		assert.True(t, ok, c.decl)
		c.want.Nullable = true
		assert.Equal(t, c.want, f, c.decl)
	}
	f, ok := fieldOf("geometry", utf8)
	assert.False(t, ok)
	assert.Equal(t, textField(utf8), f)
}

func TestCharsets(t *testing.T) {
	_, err := lookupCharset("EBCDIC")
	requireCode(t, err, wire.CodeBadDbFormat)
	cs, err := lookupCharset("WIN1251")
	require.NoError(t, err)
	b, err := cs.encode("Ж")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xc6}, b)
	s, err := cs.decode(b)
	require.NoError(t, err)
	assert.Equal(t, "Ж", s)
	utf8, _ := lookupCharset("UTF8")
	_, err = utf8.decode([]byte{0xff})
	requireCode(t, err, wire.CodeTransliteration)
	latin1, _ := lookupCharset("ISO8859_1")
	_, err = latin1.encode("Ж")
	requireCode(t, err, wire.CodeTransliteration)
}

func TestEncodeTextTruncation(t *testing.T) {
	cs, _ := lookupCharset("NONE")
	f := wire.Field{Type: wire.TypeVarying, Length: 3}
	b := make([]byte, 2+f.Length)
	require.NoError(t, encodeText(f, "abc", b, cs))
	assert.Equal(t, []byte("abc"), wire.GetVarying(b))
	err := encodeText(f, "abcd", b, cs)
	requireCode(t, err, wire.CodeStringTruncation)
	// Trailing blanks of CHAR values don't count.
	f = wire.Field{Type: wire.TypeText, Length: 2}
	b = make([]byte, f.Length)
	require.NoError(t, encodeText(f, "a  ", b, cs))
	assert.Equal(t, []byte("a "), b)
}

func TestScaledInteger(t *testing.T) {
	i, err := scaledInteger("12.345", wire.TypeInt64, -2)
	require.NoError(t, err)
	assert.EqualValues(t, 1234, i.Int64())
	i, err = scaledInteger(12.355, wire.TypeInt64, -2)
	require.NoError(t, err)
	assert.EqualValues(t, 1236, i.Int64())
	_, err = scaledInteger(int64(40000), wire.TypeShort, 0)
	requireCode(t, err, wire.CodeNumericOutOfRange)
	_, err = scaledInteger("abc", wire.TypeLong, 0)
	requireCode(t, err, wire.CodeArithExcept)
}
