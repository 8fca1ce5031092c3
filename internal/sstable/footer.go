package sstable

import (
	"encoding/binary"
	"fmt"

	"github.com/duskdb/duskdb/internal/wire"
)

const (
	fieldFooterMagic       int32 = 1
	fieldFooterVersion     int32 = 2
	fieldFooterIndexOffset int32 = 3
	fieldFooterIndexSize   int32 = 4
	fieldFooterBloomOffset int32 = 5
	fieldFooterBloomSize   int32 = 6
	fieldFooterMinKey      int32 = 7
	fieldFooterMaxKey      int32 = 8
	fieldFooterEntryCount  int32 = 9
)

// footer describes the trailing metadata of a sorted-run file: where
// the index block and bloom filter live, the format version, and the
// key range covered, so a reader can reject an out-of-range lookup
// without touching the index at all.
type footer struct {
	Magic       uint64
	Version     uint32
	IndexOffset uint64
	IndexSize   uint64
	BloomOffset uint64
	BloomSize   uint64
	MinKey      []byte
	MaxKey      []byte
	EntryCount  uint64
}

func (f footer) encode() []byte {
	w := wire.NewWriter()
	w.Fixed64(fieldFooterMagic, f.Magic)
	w.Varint(fieldFooterVersion, uint64(f.Version))
	w.Varint(fieldFooterIndexOffset, f.IndexOffset)
	w.Varint(fieldFooterIndexSize, f.IndexSize)
	w.Varint(fieldFooterBloomOffset, f.BloomOffset)
	w.Varint(fieldFooterBloomSize, f.BloomSize)
	w.Bytes(fieldFooterMinKey, f.MinKey)
	w.Bytes(fieldFooterMaxKey, f.MaxKey)
	w.Varint(fieldFooterEntryCount, f.EntryCount)
	return w.Bytes_()
}

func decodeFooter(data []byte) (footer, error) {
	var f footer
	r := wire.NewReader(data)
	for {
		field, ok, err := r.Next()
		if err != nil {
			return f, err
		}
		if !ok {
			break
		}
		switch field.Number {
		case fieldFooterMagic:
			v, err := r.ConsumeFixed64(field)
			if err != nil {
				return f, err
			}
			f.Magic = v
		case fieldFooterVersion:
			v, err := r.ConsumeVarint(field)
			if err != nil {
				return f, err
			}
			f.Version = uint32(v)
		case fieldFooterIndexOffset:
			v, err := r.ConsumeVarint(field)
			if err != nil {
				return f, err
			}
			f.IndexOffset = v
		case fieldFooterIndexSize:
			v, err := r.ConsumeVarint(field)
			if err != nil {
				return f, err
			}
			f.IndexSize = v
		case fieldFooterBloomOffset:
			v, err := r.ConsumeVarint(field)
			if err != nil {
				return f, err
			}
			f.BloomOffset = v
		case fieldFooterBloomSize:
			v, err := r.ConsumeVarint(field)
			if err != nil {
				return f, err
			}
			f.BloomSize = v
		case fieldFooterMinKey:
			v, err := r.ConsumeBytes(field)
			if err != nil {
				return f, err
			}
			f.MinKey = v
		case fieldFooterMaxKey:
			v, err := r.ConsumeBytes(field)
			if err != nil {
				return f, err
			}
			f.MaxKey = v
		case fieldFooterEntryCount:
			v, err := r.ConsumeVarint(field)
			if err != nil {
				return f, err
			}
			f.EntryCount = v
		default:
			if err := r.Skip(field); err != nil {
				return f, err
			}
		}
	}
	if f.Magic != Magic {
		return f, fmt.Errorf("sstable: bad magic number %x", f.Magic)
	}
	return f, nil
}

// footerLenSize is the width of the trailing length prefix that lets a
// reader locate the (variable-length) footer from the end of the file.
const footerLenSize = 4

func appendFooterLen(footerBytes []byte) []byte {
	var b [footerLenSize]byte
	binary.LittleEndian.PutUint32(b[:], uint32(len(footerBytes)))
	return append(footerBytes, b[:]...)
}
