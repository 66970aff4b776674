// Package canonical produces deterministic byte encodings used as input to
// hashing and signing. The same logical payload always yields byte-identical
// output, independent of map iteration order, locale, or platform.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Field is one name/value pair in a fixed-order payload. Encoding an explicit
// field list instead of a struct or map keeps the byte layout under the
// caller's control.
type Field struct {
	Name  string
	Value any
}

// Object is an ordered set of fields encoded as a JSON object.
type Object []Field

// Encode serializes the object as compact JSON preserving field order.
// It fails closed on any value that would serialize non-deterministically
// (maps, floats, structs with runtime-dependent layout).
func Encode(obj Object) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeObject(&buf, obj); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeObject(buf *bytes.Buffer, obj Object) error {
	buf.WriteByte('{')
	for i, f := range obj {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return fmt.Errorf("canonical: field name %q: %w", f.Name, err)
		}
		buf.Write(name)
		buf.WriteByte(':')
		if err := encodeValue(buf, f.Value); err != nil {
			return fmt.Errorf("canonical: field %q: %w", f.Name, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// encodeValue accepts only types with a single canonical representation:
// nil, booleans, strings, integers, nested Objects and slices thereof.
func encodeValue(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if x {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		b, err := json.Marshal(x)
		if err != nil {
			return err
		}
		buf.Write(b)
	case int:
		fmt.Fprintf(buf, "%d", x)
	case int32:
		fmt.Fprintf(buf, "%d", x)
	case int64:
		fmt.Fprintf(buf, "%d", x)
	case uint64:
		fmt.Fprintf(buf, "%d", x)
	case Object:
		return encodeObject(buf, x)
	case []Object:
		buf.WriteByte('[')
		for i, o := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeObject(buf, o); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case []string:
		buf.WriteByte('[')
		for i, s := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := json.Marshal(s)
			if err != nil {
				return err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
	case []any:
		buf.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		// Floats, maps and arbitrary structs are rejected rather than
		// encoded with platform- or order-dependent formatting.
		return fmt.Errorf("non-deterministic value of type %T", v)
	}
	return nil
}
