// Package row packs and unpacks one row's columns into and out of a
// byte span. Long strings defer to a text store; short ones are
// inlined, so they cost no extra I/O.
package row

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/NKID00/aidb"
	"github.com/NKID00/aidb/schema"
)

type BlockIndex = aidb.BlockIndex

// InlineTextLimit is the longest text payload stored inside the row
// itself. Longer strings are written as a text chain and the row keeps
// the chain's first block index instead.
const InlineTextLimit = 8

// TextStore reads and writes overflow strings. *text.Chain implements
// it.
type TextStore interface {
	Write(body []byte) (BlockIndex, error)
	Read(start BlockIndex, length int) ([]byte, error)
	Free(start BlockIndex) error
}

// Encode appends the encoding of values to dst and returns the extended
// slice. The row is validated against def: a column count or value kind
// mismatch fails with aidb.ErrRowShape. Overflowing text columns are
// written to texts first.
func Encode(dst []byte, values []aidb.Value, def *schema.TableDef, texts TextStore) ([]byte, error) {
	if len(values) != len(def.Columns) {
		return nil, fmt.Errorf("%w: %d values, table %q has %d columns",
			aidb.ErrRowShape, len(values), def.Name, len(def.Columns))
	}

	dst = append(dst, byte(int8(len(values))))
	for i, v := range values {
		if v.IsNull() {
			dst = append(dst, byte(aidb.TypeNull))
			continue
		}
		if v.Kind() != def.Columns[i].Type {
			return nil, fmt.Errorf("%w: column %q is %v, value is %v",
				aidb.ErrRowShape, def.Columns[i].Name, def.Columns[i].Type, v.Kind())
		}

		dst = append(dst, byte(v.Kind()))
		switch v.Kind() {
		case aidb.TypeInteger:
			dst = binary.LittleEndian.AppendUint64(dst, uint64(v.Int()))
		case aidb.TypeReal:
			dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(v.Float()))
		case aidb.TypeText:
			s := v.Text()
			dst = binary.LittleEndian.AppendUint64(dst, uint64(len(s)))
			if len(s) <= InlineTextLimit {
				dst = append(dst, s...)
			} else {
				start, err := texts.Write([]byte(s))
				if err != nil {
					return nil, err
				}
				dst = binary.LittleEndian.AppendUint64(dst, uint64(start))
			}
		}
	}
	return dst, nil
}

// EncodedSize returns the byte length Encode will produce for values.
func EncodedSize(values []aidb.Value) int {
	size := 1
	for _, v := range values {
		size++
		switch v.Kind() {
		case aidb.TypeInteger, aidb.TypeReal:
			size += 8
		case aidb.TypeText:
			size += 8
			if n := len(v.Text()); n <= InlineTextLimit {
				size += n
			} else {
				size += 8
			}
		}
	}
	return size
}

// Decode unpacks one row from the start of src. deleted reports a
// tombstone; its span is consumed like a live row so block scans can
// skip it without failing. n is the number of bytes the row occupies.
func Decode(src []byte, def *schema.TableDef, texts TextStore) (values []aidb.Value, n int, deleted bool, err error) {
	count, n, deleted, err := header(src, def)
	if err != nil {
		return
	}
	if !deleted {
		values = make([]aidb.Value, 0, count)
	}

	for i := range count {
		var v aidb.Value
		var span int
		v, span, err = column(src[n:], def, i, !deleted, texts)
		if err != nil {
			err = fmt.Errorf("column %d: %w", i, err)
			return
		}
		n += span
		if !deleted {
			values = append(values, v)
		}
	}
	return
}

// Overflow returns the text chain starts referenced by the row at the
// start of src, so a deleted row's chains can be reclaimed.
func Overflow(src []byte, def *schema.TableDef) (starts []BlockIndex, err error) {
	count, n, _, err := header(src, def)
	if err != nil {
		return
	}

	for i := range count {
		if len(src) < n+1 {
			return nil, fmt.Errorf("%w: truncated at column %d", aidb.ErrRowShape, i)
		}
		tag := aidb.DataType(src[n])
		if tag == aidb.TypeText {
			if len(src) < n+9 {
				return nil, fmt.Errorf("%w: truncated text length", aidb.ErrRowShape)
			}
			length := binary.LittleEndian.Uint64(src[n+1:])
			if length > InlineTextLimit {
				if len(src) < n+17 {
					return nil, fmt.Errorf("%w: truncated text pointer", aidb.ErrRowShape)
				}
				starts = append(starts, BlockIndex(binary.LittleEndian.Uint64(src[n+9:])))
			}
		}
		_, span, err := column(src[n:], def, i, false, nil)
		if err != nil {
			return nil, err
		}
		n += span
	}
	return
}

// Skip returns the byte span of the row at the start of src without
// materializing values.
func Skip(src []byte, def *schema.TableDef) (n int, deleted bool, err error) {
	count, n, deleted, err := header(src, def)
	if err != nil {
		return
	}
	for i := range count {
		_, span, cerr := column(src[n:], def, i, false, nil)
		if cerr != nil {
			err = cerr
			return
		}
		n += span
	}
	return
}

// Delete flips the row at the start of src into a tombstone in place.
// It reports false if the row already is one.
func Delete(src []byte, def *schema.TableDef) (bool, error) {
	count, _, deleted, err := header(src, def)
	if err != nil {
		return false, err
	}
	if deleted {
		return false, nil
	}
	src[0] = byte(-int8(count))
	return true, nil
}

func header(src []byte, def *schema.TableDef) (count, n int, deleted bool, err error) {
	if len(src) == 0 {
		err = fmt.Errorf("%w: empty row", aidb.ErrRowShape)
		return
	}
	n = 1
	count = int(int8(src[0]))
	if count <= 0 {
		count, deleted = -count, true
	}
	if count != len(def.Columns) {
		err = fmt.Errorf("%w: row has %d columns, table %q has %d",
			aidb.ErrRowShape, count, def.Name, len(def.Columns))
	}
	return
}

// column decodes one column value at the start of src. With materialize
// false it only measures the span and v is the zero Value.
func column(src []byte, def *schema.TableDef, i int, materialize bool, texts TextStore) (v aidb.Value, n int, err error) {
	if len(src) < 1 {
		err = fmt.Errorf("%w: truncated tag", aidb.ErrRowShape)
		return
	}
	tag := aidb.DataType(src[0])
	n = 1

	switch tag {
	case aidb.TypeNull:
		return

	case aidb.TypeInteger, aidb.TypeReal:
		if tag != def.Columns[i].Type {
			err = fmt.Errorf("%w: tag %v, column %q is %v", aidb.ErrRowShape, tag, def.Columns[i].Name, def.Columns[i].Type)
			return
		}
		if len(src) < n+8 {
			err = fmt.Errorf("%w: truncated payload", aidb.ErrRowShape)
			return
		}
		if materialize {
			bits := binary.LittleEndian.Uint64(src[n:])
			if tag == aidb.TypeInteger {
				v = aidb.Integer(int64(bits))
			} else {
				v = aidb.Real(math.Float64frombits(bits))
			}
		}
		n += 8
		return

	case aidb.TypeText:
		if def.Columns[i].Type != aidb.TypeText {
			err = fmt.Errorf("%w: tag TEXT, column %q is %v", aidb.ErrRowShape, def.Columns[i].Name, def.Columns[i].Type)
			return
		}
		if len(src) < n+8 {
			err = fmt.Errorf("%w: truncated text length", aidb.ErrRowShape)
			return
		}
		length := binary.LittleEndian.Uint64(src[n:])
		n += 8

		if length <= InlineTextLimit {
			if len(src) < n+int(length) {
				err = fmt.Errorf("%w: truncated inline text", aidb.ErrRowShape)
				return
			}
			if materialize {
				v = aidb.Text(string(src[n : n+int(length)]))
			}
			n += int(length)
			return
		}

		if len(src) < n+8 {
			err = fmt.Errorf("%w: truncated text pointer", aidb.ErrRowShape)
			return
		}
		if materialize {
			start := BlockIndex(binary.LittleEndian.Uint64(src[n:]))
			var body []byte
			if body, err = texts.Read(start, int(length)); err != nil {
				return
			}
			v = aidb.Text(string(body))
		}
		n += 8
		return

	default:
		err = fmt.Errorf("%w: unknown type tag %d", aidb.ErrRowShape, tag)
		return
	}
}
