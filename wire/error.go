package wire

import (
	"fmt"
	"strings"
)

// Status codes reported in Error.Codes.
const (
	CodeArithExcept         = 335544321
	CodeBadDbFormat         = 335544323
	CodeDsqlError           = 335544569
	CodeIoError             = 335544344
	CodeNumericOutOfRange   = 335544779
	CodeStringTruncation    = 335544914
	CodeTransactionState    = 335544332
	CodeNoCursor            = 335544577
	CodeBadBlobId           = 335544329
	CodeLockConflict        = 335544345
	CodeReadOnlyTransaction = 335544361
	CodeTransliteration     = 335544565
)

// Error is an engine status: one or more codes and a human readable message.
type Error struct {
	Codes   []int
	Message string
}

func (me *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(me.Message)
	if len(me.Codes) != 0 {
		sb.WriteString(" [")
		for i, c := range me.Codes {
			if i != 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%d", c)
		}
		sb.WriteString("]")
	}
	return sb.String()
}

// Errorf builds an engine status with a single code.
func Errorf(code int, format string, args ...interface{}) *Error {
	return &Error{
		Codes:   []int{code},
		Message: fmt.Sprintf(format, args...),
	}
}

// ParseError reverses Error.Error, recovering the codes from the trailing bracketed list. It is
// used where only the message text crossed a process boundary.
func ParseError(s string) *Error {
	ret := &Error{Message: s}
	if !strings.HasSuffix(s, "]") {
		return ret
	}
	i := strings.LastIndex(s, " [")
	if i < 0 {
		return ret
	}
	var codes []int
	for _, f := range strings.Split(s[i+2:len(s)-1], ", ") {
		var c int
		if _, err := fmt.Sscanf(f, "%d", &c); err != nil {
			return ret
		}
		codes = append(codes, c)
	}
	ret.Codes = codes
	ret.Message = s[:i]
	return ret
}
