package sqlite

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/anacrolix/sqlmsg/wire"
)

// Character set ids as the engine reports them in wire.Field.CharSet.
const (
	CharSetNone     = 0
	CharSetOctets   = 1
	CharSetUTF8     = 4
	CharSetISO88591 = 21
	CharSetWin1251  = 52
	CharSetWin1252  = 53
	CharSetKOI8R    = 63
)

// charset converts between the connection character set and the UTF-8 SQLite stores.
type charset struct {
	id           int
	bytesPerChar int
	enc          encoding.Encoding
}

var charsets = map[string]charset{
	"NONE":      {CharSetNone, 1, nil},
	"OCTETS":    {CharSetOctets, 1, nil},
	"UTF8":      {CharSetUTF8, 4, nil},
	"ISO8859_1": {CharSetISO88591, 1, charmap.ISO8859_1},
	"WIN1251":   {CharSetWin1251, 1, charmap.Windows1251},
	"WIN1252":   {CharSetWin1252, 1, charmap.Windows1252},
	"KOI8R":     {CharSetKOI8R, 1, charmap.KOI8R},
}

func lookupCharset(name string) (ret charset, err error) {
	if name == "" {
		name = "UTF8"
	}
	ret, ok := charsets[strings.ToUpper(name)]
	if !ok {
		err = wire.Errorf(wire.CodeBadDbFormat, "CHARACTER SET %s is not defined", name)
	}
	return
}

func (me charset) encode(s string) (ret []byte, err error) {
	if me.enc == nil {
		return []byte(s), nil
	}
	ret, err = me.enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		err = wire.Errorf(wire.CodeTransliteration, "Cannot transliterate character between character sets")
	}
	return
}

func (me charset) decode(b []byte) (ret string, err error) {
	if me.enc == nil {
		if me.id == CharSetUTF8 && !utf8.Valid(b) {
			err = wire.Errorf(wire.CodeTransliteration, "Malformed string")
			return
		}
		return string(b), nil
	}
	d, err := me.enc.NewDecoder().Bytes(b)
	if err != nil {
		err = wire.Errorf(wire.CodeTransliteration, "Cannot transliterate character between character sets")
		return
	}
	ret = string(d)
	return
}

// Text without a declared length.
const defaultTextChars = 8191

// fieldOf maps a declared column type, as written in SQL, to a field. ok is false for types the
// engine doesn't know, which callers describe as text.
func fieldOf(decl string, cs charset) (f wire.Field, ok bool) {
	decl = strings.ToUpper(strings.Join(strings.Fields(decl), " "))
	base, args := decl, []int(nil)
	if i := strings.IndexByte(decl, '('); i >= 0 {
		base = strings.TrimSpace(decl[:i])
		end := strings.IndexByte(decl, ')')
		if end < i {
			return
		}
		for _, a := range strings.Split(decl[i+1:end], ",") {
			n, err := strconv.Atoi(strings.TrimSpace(a))
			if err != nil {
				return
			}
			args = append(args, n)
		}
		if rest := strings.TrimSpace(decl[end+1:]); rest != "" {
			base += " " + rest
		}
	}
	arg := func(i, def int) int {
		if i < len(args) {
			return args[i]
		}
		return def
	}
	ok = true
	f.Nullable = true
	switch base {
	case "SMALLINT":
		f.Type = wire.TypeShort
	case "INTEGER", "INT":
		f.Type = wire.TypeLong
	case "BIGINT":
		f.Type = wire.TypeInt64
	case "INT128":
		f.Type = wire.TypeInt128
	case "NUMERIC", "DECIMAL":
		precision := arg(0, 18)
		switch {
		case precision <= 4:
			f.Type = wire.TypeShort
		case precision <= 9:
			f.Type = wire.TypeLong
		case precision <= 18:
			f.Type = wire.TypeInt64
		default:
			f.Type = wire.TypeInt128
		}
		f.Scale = -arg(1, 0)
	case "FLOAT", "REAL":
		f.Type = wire.TypeFloat
	case "DOUBLE", "DOUBLE PRECISION":
		f.Type = wire.TypeDouble
	case "DECFLOAT":
		if arg(0, 34) == 16 {
			f.Type = wire.TypeDec16
		} else {
			f.Type = wire.TypeDec34
		}
	case "CHAR", "CHARACTER", "NCHAR":
		f.Type = wire.TypeText
		f.Length = arg(0, 1) * cs.bytesPerChar
		f.CharSet = cs.id
	case "VARCHAR", "CHARACTER VARYING", "CHAR VARYING", "TEXT", "STRING":
		f.Type = wire.TypeVarying
		f.Length = arg(0, defaultTextChars) * cs.bytesPerChar
		f.CharSet = cs.id
	case "DATE":
		f.Type = wire.TypeDate
	case "TIME", "TIME WITHOUT TIME ZONE":
		f.Type = wire.TypeTime
	case "TIMESTAMP", "DATETIME", "TIMESTAMP WITHOUT TIME ZONE":
		f.Type = wire.TypeTimestamp
	case "TIME WITH TIME ZONE":
		f.Type = wire.TypeTimeTzEx
	case "TIMESTAMP WITH TIME ZONE":
		f.Type = wire.TypeTimestampTzEx
	case "BOOLEAN", "BOOL":
		f.Type = wire.TypeBoolean
	case "BLOB", "BLOB SUB_TYPE TEXT", "BLOB SUB_TYPE 1":
		f.Type = wire.TypeBlob
		if base != "BLOB" {
			f.SubType = 1
		}
	case "NULL":
		f.Type = wire.TypeNull
	default:
		ok = false
		f = textField(cs)
	}
	return
}

func textField(cs charset) wire.Field {
	return wire.Field{
		Type:     wire.TypeVarying,
		Length:   defaultTextChars * cs.bytesPerChar,
		CharSet:  cs.id,
		Nullable: true,
	}
}
