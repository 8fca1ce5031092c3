package relational

import (
	"fmt"
	"math"

	"github.com/duskdb/duskdb/internal/wire"
)

// encodeRow serializes row to the same protowire-based wire format the
// sorted-run blocks use (internal/wire), field number = the column's
// position in the table's column list (1-based, since protowire field
// numbers start at 1) and wire type chosen by the column's declared
// type. A column with a nil value is simply omitted: decoding then
// knows the column by its absence rather than needing a null marker
// on the wire.
func encodeRow(cols []Column, row Row) ([]byte, error) {
	w := wire.NewWriter()
	for i, col := range cols {
		v, present := row[col.Name]
		if !present || v == nil {
			continue
		}
		field := int32(i + 1)
		switch col.Type {
		case TypeString:
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("relational: column %s: expected string, got %T", col.Name, v)
			}
			w.Bytes(field, []byte(s))
		case TypeInt64:
			n, ok := asInt64(v)
			if !ok {
				return nil, fmt.Errorf("relational: column %s: expected int64, got %T", col.Name, v)
			}
			w.Varint(field, uint64(n))
		case TypeFloat64:
			f, ok := asFloat64(v)
			if !ok {
				return nil, fmt.Errorf("relational: column %s: expected float64, got %T", col.Name, v)
			}
			w.Fixed64(field, math.Float64bits(f))
		case TypeBool:
			b, ok := v.(bool)
			if !ok {
				return nil, fmt.Errorf("relational: column %s: expected bool, got %T", col.Name, v)
			}
			var n uint64
			if b {
				n = 1
			}
			w.Varint(field, n)
		case TypeBytes:
			b, ok := v.([]byte)
			if !ok {
				return nil, fmt.Errorf("relational: column %s: expected []byte, got %T", col.Name, v)
			}
			w.Bytes(field, b)
		default:
			return nil, fmt.Errorf("relational: column %s: unknown column type %q", col.Name, col.Type)
		}
	}
	return w.Bytes_(), nil
}

// decodeRow reverses encodeRow using the same column schema: a field
// number not present in the schema is skipped rather than rejected, so
// a table whose schema grows a column over time can still read rows
// written before the change.
func decodeRow(cols []Column, data []byte) (Row, error) {
	row := make(Row, len(cols))
	r := wire.NewReader(data)
	for {
		f, ok, err := r.Next()
		if err != nil {
			return nil, fmt.Errorf("relational: decode row: %w", err)
		}
		if !ok {
			break
		}
		idx := int(f.Number) - 1
		if idx < 0 || idx >= len(cols) {
			if err := r.Skip(f); err != nil {
				return nil, fmt.Errorf("relational: decode row: %w", err)
			}
			continue
		}
		col := cols[idx]
		switch col.Type {
		case TypeString:
			b, err := r.ConsumeBytes(f)
			if err != nil {
				return nil, fmt.Errorf("relational: column %s: %w", col.Name, err)
			}
			row[col.Name] = string(b)
		case TypeInt64:
			v, err := r.ConsumeVarint(f)
			if err != nil {
				return nil, fmt.Errorf("relational: column %s: %w", col.Name, err)
			}
			row[col.Name] = int64(v)
		case TypeFloat64:
			v, err := r.ConsumeFixed64(f)
			if err != nil {
				return nil, fmt.Errorf("relational: column %s: %w", col.Name, err)
			}
			row[col.Name] = math.Float64frombits(v)
		case TypeBool:
			v, err := r.ConsumeVarint(f)
			if err != nil {
				return nil, fmt.Errorf("relational: column %s: %w", col.Name, err)
			}
			row[col.Name] = v != 0
		case TypeBytes:
			b, err := r.ConsumeBytes(f)
			if err != nil {
				return nil, fmt.Errorf("relational: column %s: %w", col.Name, err)
			}
			row[col.Name] = append([]byte(nil), b...)
		default:
			if err := r.Skip(f); err != nil {
				return nil, err
			}
		}
	}
	return row, nil
}

// encodePrimaryKey maps a primary key value onto a string that is both
// the B+ tree index key and (as its bytes) the store's LSM key. String
// keys are used as-is, since the LSM already orders []byte keys
// lexicographically. int64 keys are zero-padded decimal so that
// lexicographic byte order matches numeric order for non-negative
// values, the common case for auto-incrementing primary keys; a
// negative int64 key is rejected rather than silently sorting wrong.
func encodePrimaryKey(v any) (string, error) {
	switch pk := v.(type) {
	case string:
		return pk, nil
	case int64:
		if pk < 0 {
			return "", fmt.Errorf("relational: negative int64 primary key %d is not supported", pk)
		}
		return fmt.Sprintf("%020d", pk), nil
	case int:
		return encodePrimaryKey(int64(pk))
	default:
		return "", fmt.Errorf("relational: unsupported primary key type %T", v)
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch f := v.(type) {
	case float64:
		return f, true
	case float32:
		return float64(f), true
	}
	return 0, false
}
