// Package sstable implements the on-disk sorted run: one or more
// compressed data blocks holding front-coded key/value entries, a
// sparse index block over those data blocks, a bloom filter, and a
// trailing footer. Block and footer encoding uses
// google.golang.org/protobuf/encoding/protowire directly through
// internal/wire rather than protoc-generated message types (see
// DESIGN.md); the block/restart-point layout itself is grounded on the
// teacher's internal/db/sst/{sst,writer,reader}.go.
package sstable

import (
	"encoding/binary"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/duskdb/duskdb/internal/record"
	"github.com/duskdb/duskdb/internal/wire"
)

// Magic identifies a duskdb sorted-run file.
const Magic uint64 = 0x6475736b64620001 // "duskdb" + format byte + version

// FormatVersion is bumped whenever the on-disk layout changes in a way
// that is not backward compatible. Readers refuse any other value.
const FormatVersion uint32 = 1

// RestartInterval is the number of entries between front-coding
// restart points in both data and index blocks (spec default S=16).
const RestartInterval = 16

// BlockSize is the target size, in bytes, of an uncompressed data
// block before Writer starts a new one.
const BlockSize = 4 * 1024

// blockEntry field numbers.
const (
	fieldEntrySharedLen int32 = 1
	fieldEntryUnshared  int32 = 2
	fieldEntryValue     int32 = 3
	fieldEntryKind      int32 = 4
	fieldEntrySeq       int32 = 5
)

func encodeBlockEntry(sharedLen int, unshared []byte, e record.Entry) []byte {
	w := wire.NewWriter()
	w.Varint(fieldEntrySharedLen, uint64(sharedLen))
	w.Bytes(fieldEntryUnshared, unshared)
	w.Bytes(fieldEntryValue, e.Value)
	w.Varint(fieldEntryKind, uint64(e.Kind))
	w.Varint(fieldEntrySeq, e.Seq)
	return w.Bytes_()
}

// decodedBlockEntry is a data-block entry after its shared-prefix key
// has not yet been reconstituted against the previous full key.
type decodedBlockEntry struct {
	sharedLen int
	unshared  []byte
	value     []byte
	kind      record.Kind
	seq       uint64
}

func decodeBlockEntry(data []byte) (decodedBlockEntry, error) {
	r := wire.NewReader(data)
	var e decodedBlockEntry
	for {
		f, ok, err := r.Next()
		if err != nil {
			return e, err
		}
		if !ok {
			break
		}
		switch f.Number {
		case fieldEntrySharedLen:
			v, err := r.ConsumeVarint(f)
			if err != nil {
				return e, err
			}
			e.sharedLen = int(v)
		case fieldEntryUnshared:
			v, err := r.ConsumeBytes(f)
			if err != nil {
				return e, err
			}
			e.unshared = v
		case fieldEntryValue:
			v, err := r.ConsumeBytes(f)
			if err != nil {
				return e, err
			}
			e.value = v
		case fieldEntryKind:
			v, err := r.ConsumeVarint(f)
			if err != nil {
				return e, err
			}
			e.kind = record.Kind(v)
		case fieldEntrySeq:
			v, err := r.ConsumeVarint(f)
			if err != nil {
				return e, err
			}
			e.seq = v
		default:
			if err := r.Skip(f); err != nil {
				return e, err
			}
		}
	}
	return e, nil
}

// indexEntry field numbers.
const (
	fieldIndexSharedLen int32 = 1
	fieldIndexUnshared  int32 = 2
	fieldIndexOffset    int32 = 3
	fieldIndexSize      int32 = 4
)

func encodeIndexEntry(sharedLen int, unshared []byte, offset, size uint64) []byte {
	w := wire.NewWriter()
	w.Varint(fieldIndexSharedLen, uint64(sharedLen))
	w.Bytes(fieldIndexUnshared, unshared)
	w.Varint(fieldIndexOffset, offset)
	w.Varint(fieldIndexSize, size)
	return w.Bytes_()
}

type decodedIndexEntry struct {
	sharedLen int
	unshared  []byte
	offset    uint64
	size      uint64
}

func decodeIndexEntry(data []byte) (decodedIndexEntry, error) {
	r := wire.NewReader(data)
	var e decodedIndexEntry
	for {
		f, ok, err := r.Next()
		if err != nil {
			return e, err
		}
		if !ok {
			break
		}
		switch f.Number {
		case fieldIndexSharedLen:
			v, err := r.ConsumeVarint(f)
			if err != nil {
				return e, err
			}
			e.sharedLen = int(v)
		case fieldIndexUnshared:
			v, err := r.ConsumeBytes(f)
			if err != nil {
				return e, err
			}
			e.unshared = v
		case fieldIndexOffset:
			v, err := r.ConsumeVarint(f)
			if err != nil {
				return e, err
			}
			e.offset = v
		case fieldIndexSize:
			v, err := r.ConsumeVarint(f)
			if err != nil {
				return e, err
			}
			e.size = v
		default:
			if err := r.Skip(f); err != nil {
				return e, err
			}
		}
	}
	return e, nil
}

// packBlock assembles a block body from already-encoded, length-prefixed
// entries plus their restart-point offsets (byte offsets into the
// entries section, not the whole body): [entries][restarts as uint32
// LE][restart count as uint32 LE].
func packBlock(entryBlobs [][]byte, restarts []uint32) []byte {
	var entriesSection []byte
	for _, blob := range entryBlobs {
		entriesSection = protowire.AppendBytes(entriesSection, blob)
	}
	body := make([]byte, 0, len(entriesSection)+4*len(restarts)+4)
	body = append(body, entriesSection...)
	for _, r := range restarts {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], r)
		body = append(body, b[:]...)
	}
	var rc [4]byte
	binary.LittleEndian.PutUint32(rc[:], uint32(len(restarts)))
	body = append(body, rc[:]...)
	return body
}

// unpackBlock splits a block body back into its entries section and
// restart-point offsets.
func unpackBlock(body []byte) (entriesSection []byte, restarts []uint32, err error) {
	if len(body) < 4 {
		return nil, nil, fmt.Errorf("sstable: block body too short")
	}
	restartCount := binary.LittleEndian.Uint32(body[len(body)-4:])
	need := 4 + int(restartCount)*4
	if len(body) < need {
		return nil, nil, fmt.Errorf("sstable: block body truncated: need %d trailer bytes, have %d", need, len(body))
	}
	trailer := body[len(body)-need : len(body)-4]
	restarts = make([]uint32, restartCount)
	for i := range restarts {
		restarts[i] = binary.LittleEndian.Uint32(trailer[i*4 : i*4+4])
	}
	entriesSection = body[:len(body)-need]
	return entriesSection, restarts, nil
}

// walkLengthPrefixed calls fn for every length-prefixed blob in data,
// in order, stopping early if fn returns false.
func walkLengthPrefixed(data []byte, fn func(blob []byte) bool) error {
	off := 0
	for off < len(data) {
		v, n := protowire.ConsumeBytes(data[off:])
		if n < 0 {
			return fmt.Errorf("sstable: malformed length-prefixed entry: %w", protowire.ParseError(n))
		}
		off += n
		if !fn(v) {
			return nil
		}
	}
	return nil
}
