package sstable

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sort"

	"github.com/golang/snappy"

	"github.com/duskdb/duskdb/internal/bloom"
	"github.com/duskdb/duskdb/internal/cache"
	"github.com/duskdb/duskdb/internal/record"
	"github.com/duskdb/duskdb/internal/storeerrors"
)

// indexRecord is one decoded, fully-reconstituted index entry: the
// first key of a data block and the block's location in the file.
type indexRecord struct {
	key    []byte
	handle blockHandle
}

// Reader opens a sorted-run file for point lookups and ordered scans.
// The index block and bloom filter are decoded once at Open time and
// held in memory; data blocks are loaded (and optionally served from
// the shared block cache) on demand.
type Reader struct {
	f      *os.File
	path   string
	footer footer
	index  []indexRecord
	filter *bloom.Filter
	cache  *cache.LRUCache[[]record.Entry]
}

// Open opens the sorted run at path. blockCache may be nil to disable
// block caching for this run.
func Open(path string, blockCache *cache.LRUCache[[]record.Entry]) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sstable: open %s: %w", path, err)
	}
	r := &Reader{f: f, path: path, cache: blockCache}

	size, err := fileSize(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if size < footerLenSize {
		f.Close()
		return nil, fmt.Errorf("sstable: %s too small to contain a footer", path)
	}

	var lenBuf [footerLenSize]byte
	if _, err := f.ReadAt(lenBuf[:], size-footerLenSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("sstable: read footer length: %w", err)
	}
	footerLen := binary.LittleEndian.Uint32(lenBuf[:])
	footerBuf := make([]byte, footerLen)
	if _, err := f.ReadAt(footerBuf, size-footerLenSize-int64(footerLen)); err != nil {
		f.Close()
		return nil, fmt.Errorf("sstable: read footer: %w", err)
	}
	ft, err := decodeFooter(footerBuf)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("sstable: %s: %w: %v", path, storeerrors.ErrCorruption, err)
	}
	if ft.Version != FormatVersion {
		f.Close()
		return nil, fmt.Errorf("sstable: %s: unsupported format version %d: %w", path, ft.Version, storeerrors.ErrCorruption)
	}
	r.footer = ft

	bloomBuf := make([]byte, ft.BloomSize)
	if _, err := f.ReadAt(bloomBuf, int64(ft.BloomOffset)); err != nil {
		f.Close()
		return nil, fmt.Errorf("sstable: read bloom filter: %w", err)
	}
	filter, _, err := bloom.Decode(bloomBuf)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("sstable: decode bloom filter: %w", err)
	}
	r.filter = filter

	indexBody, err := r.readBlock(blockHandle{offset: ft.IndexOffset, size: ft.IndexSize})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("sstable: read index block: %w", err)
	}
	entriesSection, _, err := unpackBlock(indexBody)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("sstable: unpack index block: %w", err)
	}
	var prevKey []byte
	err = walkLengthPrefixed(entriesSection, func(blob []byte) bool {
		ie, decErr := decodeIndexEntry(blob)
		if decErr != nil {
			err = decErr
			return false
		}
		key := append(append([]byte(nil), prevKey[:ie.sharedLen]...), ie.unshared...)
		prevKey = key
		r.index = append(r.index, indexRecord{key: key, handle: blockHandle{offset: ie.offset, size: ie.size}})
		return true
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("sstable: decode index entries: %w", err)
	}

	return r, nil
}

func fileSize(f *os.File) (int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("sstable: stat: %w", err)
	}
	return fi.Size(), nil
}

// readBlock loads, decompresses and checksum-verifies the block at
// handle, without consulting the cache (used for the index block,
// which the Reader already keeps decoded in memory separately).
func (r *Reader) readBlock(h blockHandle) ([]byte, error) {
	stored := make([]byte, h.size)
	if _, err := r.f.ReadAt(stored, int64(h.offset)); err != nil {
		return nil, fmt.Errorf("read at offset %d size %d: %w", h.offset, h.size, err)
	}
	if len(stored) < 5 {
		return nil, fmt.Errorf("block too small")
	}
	payload := stored[:len(stored)-4]
	wantChecksum := binary.LittleEndian.Uint32(stored[len(stored)-4:])
	if crc32.ChecksumIEEE(payload) != wantChecksum {
		return nil, fmt.Errorf("checksum mismatch")
	}
	compByte := payload[0]
	body := payload[1:]
	switch compByte {
	case compressionNone:
		return body, nil
	case compressionSnappy:
		decoded, err := snappy.Decode(nil, body)
		if err != nil {
			return nil, fmt.Errorf("snappy decode: %w", err)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("unknown compression byte %d", compByte)
	}
}

func (r *Reader) cacheKey(h blockHandle) string {
	return fmt.Sprintf("%s@%d", r.path, h.offset)
}

// dataBlockEntries decodes a data block into fully reconstituted
// entries, consulting and populating the shared block cache.
func (r *Reader) dataBlockEntries(h blockHandle) ([]record.Entry, error) {
	if r.cache != nil {
		if v, ok := r.cache.Get(r.cacheKey(h)); ok {
			return v, nil
		}
	}
	body, err := r.readBlock(h)
	if err != nil {
		return nil, err
	}
	entriesSection, _, err := unpackBlock(body)
	if err != nil {
		return nil, err
	}
	var (
		entries []record.Entry
		prevKey []byte
	)
	err = walkLengthPrefixed(entriesSection, func(blob []byte) bool {
		be, decErr := decodeBlockEntry(blob)
		if decErr != nil {
			err = decErr
			return false
		}
		key := append(append([]byte(nil), prevKey[:be.sharedLen]...), be.unshared...)
		prevKey = key
		entries = append(entries, record.Entry{Key: key, Value: be.value, Seq: be.seq, Kind: be.kind})
		return true
	})
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.Put(r.cacheKey(h), entries)
	}
	return entries, nil
}

// Get returns the entry for key (live write or tombstone), if present
// in this run; the caller checks IsDelete to tell the two apart.
// found is false both when the bloom filter rejects the key outright
// and when the key genuinely is not present after checking the
// candidate block.
func (r *Reader) Get(key []byte) (record.Entry, bool, error) {
	if bytes.Compare(key, r.footer.MinKey) < 0 || bytes.Compare(key, r.footer.MaxKey) > 0 {
		return record.Entry{}, false, nil
	}
	if r.filter != nil && !r.filter.MightContain(key) {
		return record.Entry{}, false, nil
	}
	idx := sort.Search(len(r.index), func(i int) bool {
		return bytes.Compare(r.index[i].key, key) > 0
	}) - 1
	if idx < 0 {
		return record.Entry{}, false, nil
	}
	entries, err := r.dataBlockEntries(r.index[idx].handle)
	if err != nil {
		return record.Entry{}, false, err
	}
	i := sort.Search(len(entries), func(i int) bool {
		return bytes.Compare(entries[i].Key, key) >= 0
	})
	if i < len(entries) && bytes.Equal(entries[i].Key, key) {
		return entries[i], true, nil
	}
	return record.Entry{}, false, nil
}

// MinKey returns the smallest key stored in this run.
func (r *Reader) MinKey() []byte { return r.footer.MinKey }

// MaxKey returns the largest key stored in this run.
func (r *Reader) MaxKey() []byte { return r.footer.MaxKey }

// EntryCount returns the number of entries (including tombstones)
// recorded when the run was written.
func (r *Reader) EntryCount() uint64 { return r.footer.EntryCount }

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.f.Close()
}

// NewIterator returns an iterator over every entry in the run, in
// ascending key order, already positioned on the first entry (if any).
func (r *Reader) NewIterator() (*Iterator, error) {
	it := &Iterator{r: r, blockIdx: -1}
	it.advanceBlock()
	if it.err != nil {
		return nil, it.err
	}
	return it, nil
}

var _ io.Closer = (*Reader)(nil)
