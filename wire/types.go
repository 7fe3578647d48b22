// Package wire describes the binary contract shared with a prepared-statement engine: type
// codes, message metadata, opaque value encodings and the collaborator interfaces an engine
// implements.
package wire

import "fmt"

// Type is an engine wire type code.
type Type uint32

const (
	TypeNull          Type = 32766
	TypeText          Type = 452
	TypeVarying       Type = 448
	TypeShort         Type = 500
	TypeLong          Type = 496
	TypeFloat         Type = 482
	TypeDouble        Type = 480
	TypeTimestamp     Type = 510
	TypeBlob          Type = 520
	TypeTime          Type = 560
	TypeDate          Type = 570
	TypeInt64         Type = 580
	TypeTimestampTz   Type = 32754
	TypeTimestampTzEx Type = 32748
	TypeTimeTz        Type = 32756
	TypeTimeTzEx      Type = 32750
	TypeInt128        Type = 32752
	TypeDec16         Type = 32760
	TypeDec34         Type = 32762
	TypeBoolean       Type = 32764
)

var typeNames = map[Type]string{
	TypeNull:          "NULL",
	TypeText:          "TEXT",
	TypeVarying:       "VARYING",
	TypeShort:         "SHORT",
	TypeLong:          "LONG",
	TypeFloat:         "FLOAT",
	TypeDouble:        "DOUBLE",
	TypeTimestamp:     "TIMESTAMP",
	TypeBlob:          "BLOB",
	TypeTime:          "TIME",
	TypeDate:          "DATE",
	TypeInt64:         "INT64",
	TypeTimestampTz:   "TIMESTAMP_TZ",
	TypeTimestampTzEx: "TIMESTAMP_TZ_EX",
	TypeTimeTz:        "TIME_TZ",
	TypeTimeTzEx:      "TIME_TZ_EX",
	TypeInt128:        "INT128",
	TypeDec16:         "DEC16",
	TypeDec34:         "DEC34",
	TypeBoolean:       "BOOLEAN",
}

func (me Type) String() string {
	if s, ok := typeNames[me]; ok {
		return s
	}
	return fmt.Sprintf("Type(%d)", uint32(me))
}

// Size returns the encoded value length for fixed-width types. Text types return 0, their length
// comes from the declared character length.
func (me Type) Size() int {
	switch me {
	case TypeShort:
		return 2
	case TypeLong, TypeFloat, TypeTime, TypeDate:
		return 4
	case TypeDouble, TypeInt64, TypeTimestamp, TypeBlob, TypeDec16, TypeTimeTz, TypeTimeTzEx:
		return 8
	case TypeTimestampTz, TypeTimestampTzEx:
		return 12
	case TypeInt128, TypeDec34:
		return 16
	case TypeBoolean:
		return 1
	}
	return 0
}

func (me Type) alignment() int {
	switch me {
	case TypeText, TypeBoolean, TypeNull:
		return 1
	case TypeVarying, TypeShort:
		return 2
	case TypeLong, TypeFloat, TypeTime, TypeDate, TypeTimestamp, TypeBlob,
		TypeTimeTz, TypeTimeTzEx, TypeTimestampTz, TypeTimestampTzEx:
		return 4
	case TypeDouble, TypeInt64, TypeInt128, TypeDec16, TypeDec34:
		return 8
	}
	return 1
}

// StatementType classifies a prepared statement.
type StatementType uint32

const (
	StatementSelect           StatementType = 1
	StatementInsert           StatementType = 2
	StatementUpdate           StatementType = 3
	StatementDelete           StatementType = 4
	StatementDDL              StatementType = 5
	StatementGetSegment       StatementType = 6
	StatementPutSegment       StatementType = 7
	StatementExecProcedure    StatementType = 8
	StatementStartTransaction StatementType = 9
	StatementCommit           StatementType = 10
	StatementRollback         StatementType = 11
	StatementSelectForUpdate  StatementType = 12
	StatementSetGenerator     StatementType = 13
	StatementSavepoint        StatementType = 14
)

var statementTypeNames = map[StatementType]string{
	StatementSelect:           "SELECT",
	StatementInsert:           "INSERT",
	StatementUpdate:           "UPDATE",
	StatementDelete:           "DELETE",
	StatementDDL:              "DDL",
	StatementGetSegment:       "GET_SEGMENT",
	StatementPutSegment:       "PUT_SEGMENT",
	StatementExecProcedure:    "EXEC_PROCEDURE",
	StatementStartTransaction: "START_TRANSACTION",
	StatementCommit:           "COMMIT",
	StatementRollback:         "ROLLBACK",
	StatementSelectForUpdate:  "SELECT_FOR_UPDATE",
	StatementSetGenerator:     "SET_GENERATOR",
	StatementSavepoint:        "SAVEPOINT",
}

func (me StatementType) String() string {
	if s, ok := statementTypeNames[me]; ok {
		return s
	}
	return fmt.Sprintf("StatementType(%d)", uint32(me))
}

// PrepareFlags select what the engine computes while preparing.
type PrepareFlags uint32

const (
	PrepareFlagPrefetchMetadata PrepareFlags = 1 << iota
	PrepareFlagPrefetchLegacyPlan
	PrepareFlagPrefetchDetailedPlan
)

// Null flag values stored in the 2-byte null slot of each field.
const (
	NullFlagNull    int16 = 1
	NullFlagNotNull int16 = 0
)
