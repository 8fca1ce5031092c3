// Package wire is a small hand-rolled codec layer built directly on
// google.golang.org/protobuf/encoding/protowire's varint/length-delimited
// primitives.
//
// The teacher module (internal/db/encoding/proto) drove proto.Marshal
// over protoc-generated message types (sst.proto, wal.proto were never
// checked in, only referenced by go:generate directives). Without a
// protoc toolchain available, this package reconstructs the same wire
// format by hand: a message is just a sequence of (field number, wire
// type, value) tuples, and protowire already exports the varint/bytes
// encode-decode primitives needed to build and parse that sequence.
// DESIGN.md records this decision in full.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Writer appends protobuf-wire-format fields to an internal buffer in
// the order they're written, mirroring how a generated Marshal method
// emits fields sequentially.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes appends a length-delimited field (wire type 2): used for raw
// byte slices, strings, and nested messages (whose encoding is itself
// produced by a nested Writer).
func (w *Writer) Bytes(field int32, v []byte) {
	w.buf = protowire.AppendTag(w.buf, protowire.Number(field), protowire.BytesType)
	w.buf = protowire.AppendBytes(w.buf, v)
}

// Varint appends a varint field (wire type 0): used for integers,
// enums, and booleans.
func (w *Writer) Varint(field int32, v uint64) {
	w.buf = protowire.AppendTag(w.buf, protowire.Number(field), protowire.VarintType)
	w.buf = protowire.AppendVarint(w.buf, v)
}

// Fixed32 appends a 4-byte field (wire type 5).
func (w *Writer) Fixed32(field int32, v uint32) {
	w.buf = protowire.AppendTag(w.buf, protowire.Number(field), protowire.Fixed32Type)
	w.buf = protowire.AppendFixed32(w.buf, v)
}

// Fixed64 appends an 8-byte field (wire type 1).
func (w *Writer) Fixed64(field int32, v uint64) {
	w.buf = protowire.AppendTag(w.buf, protowire.Number(field), protowire.Fixed64Type)
	w.buf = protowire.AppendFixed64(w.buf, v)
}

// Message appends a nested message as a length-delimited field: the
// child Writer's buffer becomes the field's payload.
func (w *Writer) Message(field int32, child *Writer) {
	w.Bytes(field, child.Bytes_())
}

// Bytes_ returns the encoded buffer. Named to avoid colliding with the
// Bytes field-writer method above.
func (w *Writer) Bytes_() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// Field is one decoded (number, wire type, raw bytes after the tag)
// tuple. Raw holds the remaining buffer positioned right after the
// tag; callers consume the value with the matching protowire.Consume*
// call.
type Field struct {
	Number int32
	Type   protowire.Type
	Raw    []byte
}

// Reader walks the fields of a Writer-produced buffer in order.
type Reader struct {
	buf []byte
}

// NewReader wraps data for sequential field reads.
func NewReader(data []byte) *Reader { return &Reader{buf: data} }

// Next consumes the next field's tag and returns it along with the
// buffer positioned so the matching ConsumeXxx call can read the
// value. ok is false once the buffer is exhausted.
func (r *Reader) Next() (Field, bool, error) {
	if len(r.buf) == 0 {
		return Field{}, false, nil
	}
	num, typ, n := protowire.ConsumeTag(r.buf)
	if n < 0 {
		return Field{}, false, fmt.Errorf("wire: malformed tag: %w", protowire.ParseError(n))
	}
	r.buf = r.buf[n:]
	return Field{Number: int32(num), Type: typ, Raw: r.buf}, true, nil
}

// ConsumeVarint reads a varint value from f.Raw and advances the
// reader past it.
func (r *Reader) ConsumeVarint(f Field) (uint64, error) {
	v, n := protowire.ConsumeVarint(f.Raw)
	if n < 0 {
		return 0, fmt.Errorf("wire: malformed varint: %w", protowire.ParseError(n))
	}
	r.buf = f.Raw[n:]
	return v, nil
}

// ConsumeBytes reads a length-delimited value from f.Raw and advances
// the reader past it.
func (r *Reader) ConsumeBytes(f Field) ([]byte, error) {
	v, n := protowire.ConsumeBytes(f.Raw)
	if n < 0 {
		return nil, fmt.Errorf("wire: malformed bytes field: %w", protowire.ParseError(n))
	}
	r.buf = f.Raw[n:]
	return v, nil
}

// ConsumeFixed32 reads a 4-byte value from f.Raw and advances the
// reader past it.
func (r *Reader) ConsumeFixed32(f Field) (uint32, error) {
	v, n := protowire.ConsumeFixed32(f.Raw)
	if n < 0 {
		return 0, fmt.Errorf("wire: malformed fixed32 field: %w", protowire.ParseError(n))
	}
	r.buf = f.Raw[n:]
	return v, nil
}

// ConsumeFixed64 reads an 8-byte value from f.Raw and advances the
// reader past it.
func (r *Reader) ConsumeFixed64(f Field) (uint64, error) {
	v, n := protowire.ConsumeFixed64(f.Raw)
	if n < 0 {
		return 0, fmt.Errorf("wire: malformed fixed64 field: %w", protowire.ParseError(n))
	}
	r.buf = f.Raw[n:]
	return v, nil
}

// Skip advances the reader past a field's value without interpreting
// it, used to tolerate unknown field numbers written by a newer
// format version.
func (r *Reader) Skip(f Field) error {
	n := protowire.ConsumeFieldValue(protowire.Number(f.Number), f.Type, f.Raw)
	if n < 0 {
		return fmt.Errorf("wire: malformed field value: %w", protowire.ParseError(n))
	}
	r.buf = f.Raw[n:]
	return nil
}
