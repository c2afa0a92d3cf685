package aidb

import (
	"math"
	"strconv"
)

// DataType tags a column type or a value kind. The numeric values are the
// on-disk tags.
type DataType uint8

const (
	TypeNull    DataType = 0
	TypeInteger DataType = 1
	TypeReal    DataType = 2
	TypeText    DataType = 3
)

func (t DataType) String() string {
	switch t {
	case TypeNull:
		return "NULL"
	case TypeInteger:
		return "INTEGER"
	case TypeReal:
		return "REAL"
	case TypeText:
		return "TEXT"
	default:
		return "DataType(" + strconv.Itoa(int(t)) + ")"
	}
}

// Valid reports whether t is a known column type. TypeNull tags values
// only, never columns.
func (t DataType) Valid() bool {
	return t == TypeInteger || t == TypeReal || t == TypeText
}

// Value is a tagged union over the four value kinds a column can hold.
// The zero Value is Null.
type Value struct {
	text string
	num  uint64
	kind DataType
}

func Null() Value { return Value{} }

func Integer(i int64) Value {
	return Value{kind: TypeInteger, num: uint64(i)}
}

func Real(f float64) Value {
	return Value{kind: TypeReal, num: math.Float64bits(f)}
}

func Text(s string) Value {
	return Value{kind: TypeText, text: s}
}

func (v Value) Kind() DataType { return v.kind }

func (v Value) IsNull() bool { return v.kind == TypeNull }

// Int returns the integer payload. Valid only when Kind is TypeInteger.
func (v Value) Int() int64 { return int64(v.num) }

// Float returns the real payload. Valid only when Kind is TypeReal.
func (v Value) Float() float64 { return math.Float64frombits(v.num) }

// Text returns the text payload. Valid only when Kind is TypeText.
func (v Value) Text() string { return v.text }

func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	if v.kind == TypeText {
		return v.text == other.text
	}
	return v.num == other.num
}

func (v Value) String() string {
	switch v.kind {
	case TypeInteger:
		return strconv.FormatInt(v.Int(), 10)
	case TypeReal:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case TypeText:
		return strconv.Quote(v.text)
	default:
		return "NULL"
	}
}
