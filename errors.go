package sqlmsg

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/anacrolix/sqlmsg/wire"
)

// Usage errors are programming errors and are never retried. Test with errors.Is.
var (
	ErrUsage                     = errors.New("usage error")
	ErrIndexOutOfRange           = errors.New("index out of range")
	ErrInvalidType               = errors.New("invalid type")
	ErrFieldCount                = errors.New("field count mismatch")
	ErrUnsupportedStatement      = errors.New("unsupported statement")
	ErrNullForRequired           = errors.New("null value for non-optional field")
	ErrNoVariantMatch            = errors.New("no matching variant alternative")
	ErrTransactionState          = errors.New("invalid transaction state")
	ErrInvalidHandle             = errors.New("invalid handle")
	ErrClientMismatch            = errors.New("attachments use different clients")
	ErrPreparedTransactionLeaked = errors.New("prepared transaction closed without commit or rollback")
)

// ErrConversion marks data errors: overflow, non-finite values for integer targets and malformed
// text.
var ErrConversion = errors.New("conversion error")

func usageErrorf(kind error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(kind, format, args...), ErrUsage)
}

func conversionErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrConversion)
}

func invalidTypeError(actual string, adjusted AdjustedType) error {
	return usageErrorf(ErrInvalidType, "Invalid type: actual type %s, descriptor type %v", actual, adjusted)
}

// DatabaseError is an engine status raised by the operation that triggered it.
type DatabaseError struct {
	Op      string
	Codes   []int
	Message string
}

func (me *DatabaseError) Error() string {
	if me.Op == "" {
		return me.Message
	}
	return fmt.Sprintf("%s: %s", me.Op, me.Message)
}

// HasCode reports whether code appears in the status vector.
func (me *DatabaseError) HasCode(code int) bool {
	for _, c := range me.Codes {
		if c == code {
			return true
		}
	}
	return false
}

func newDatabaseError(op string, codes ...int) *DatabaseError {
	return &DatabaseError{
		Op:      op,
		Codes:   codes,
		Message: engineMessages[codes[len(codes)-1]],
	}
}

var engineMessages = map[int]string{
	wire.CodeArithExcept:       "arithmetic exception, numeric overflow, or string truncation",
	wire.CodeStringTruncation:  "string right truncation",
	wire.CodeNumericOutOfRange: "numeric value is out of range",
}

// engineError wraps an error returned by the engine with the operation that raised it. Errors
// that already carry a kind pass through unchanged.
func engineError(op string, err error) error {
	if err == nil {
		return nil
	}
	var we *wire.Error
	if errors.As(err, &we) {
		return &DatabaseError{
			Op:      op,
			Codes:   we.Codes,
			Message: we.Message,
		}
	}
	var de *DatabaseError
	if errors.As(err, &de) || errors.Is(err, ErrUsage) || errors.Is(err, ErrConversion) {
		return err
	}
	return errors.Wrapf(err, "%s", op)
}
