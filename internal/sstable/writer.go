package sstable

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"

	"github.com/golang/snappy"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/duskdb/duskdb/internal/bloom"
	"github.com/duskdb/duskdb/internal/record"
)

const (
	compressionNone   byte = 0
	compressionSnappy byte = 1
)

// EntrySource is anything that yields record.Entry values in
// ascending key order; memtable.Iterator and compaction's sliceSource
// (a sorted slice of merged entries) both satisfy it.
type EntrySource interface {
	Valid() bool
	Entry() record.Entry
	Next() bool
}

// Options configures how a run is written.
type Options struct {
	Compress    bool
	BloomFPRate float64
}

// DefaultOptions returns the engine's default write options.
func DefaultOptions() Options {
	return Options{Compress: true, BloomFPRate: bloom.DefaultFPRate}
}

// Writer builds one sorted-run file from an ordered entry source.
type Writer struct {
	f       *os.File
	bw      *bufio.Writer
	opts    Options
	written uint64
}

// NewFileWriter creates (truncating any existing file) the sorted run
// at path.
func NewFileWriter(path string, opts Options) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("sstable: create %s: %w", path, err)
	}
	return &Writer{f: f, bw: bufio.NewWriter(f), opts: opts}, nil
}

// dataBlockBuilder accumulates front-coded entries for one data block.
type dataBlockBuilder struct {
	blobs      [][]byte
	restarts   []uint32
	entriesLen int
	prevKey    []byte
	firstKey   []byte
}

func (b *dataBlockBuilder) reset() {
	b.blobs = nil
	b.restarts = nil
	b.entriesLen = 0
	b.prevKey = nil
	b.firstKey = nil
}

func (b *dataBlockBuilder) add(e record.Entry) {
	if b.firstKey == nil {
		b.firstKey = append([]byte(nil), e.Key...)
	}
	s := 0
	if len(b.blobs)%RestartInterval == 0 {
		b.restarts = append(b.restarts, uint32(b.entriesLen))
	} else {
		s = sharedPrefixLen(b.prevKey, e.Key)
	}
	blob := encodeBlockEntry(s, e.Key[s:], e)
	b.blobs = append(b.blobs, blob)
	b.entriesLen += protowire.SizeBytes(len(blob))
	b.prevKey = append([]byte(nil), e.Key...)
}

func (b *dataBlockBuilder) approxSize() int {
	return b.entriesLen + 4*(len(b.restarts)+1) + 4
}

// indexBlockBuilder accumulates front-coded index entries, one per
// flushed data block.
type indexBlockBuilder struct {
	blobs      [][]byte
	restarts   []uint32
	entriesLen int
	prevKey    []byte
}

func (b *indexBlockBuilder) add(key []byte, handle blockHandle) {
	s := 0
	if len(b.blobs)%RestartInterval == 0 {
		b.restarts = append(b.restarts, uint32(b.entriesLen))
	} else {
		s = sharedPrefixLen(b.prevKey, key)
	}
	blob := encodeIndexEntry(s, key[s:], handle.offset, handle.size)
	b.blobs = append(b.blobs, blob)
	b.entriesLen += protowire.SizeBytes(len(blob))
	b.prevKey = append([]byte(nil), key...)
}

// WriteAll drains src into the run, then writes the index block, bloom
// filter and footer. expectedEntries sizes the bloom filter up front so
// its false-positive rate holds at the target rate once the run is
// fully populated; callers already know this count (a memtable's
// Count(), or len(merged) from a compaction) before the write starts. A
// mismatch between expectedEntries and the entries src actually yields
// only skews the achieved false-positive rate, never correctness: the
// filter still returns a false negative for no key it was given.
// WriteAll returns the number of entries written.
func (w *Writer) WriteAll(src EntrySource, expectedEntries int) (int, error) {
	var (
		entryCount uint64
		minKey     []byte
		maxKey     []byte
		data       dataBlockBuilder
		index      indexBlockBuilder
	)

	if expectedEntries < 1 {
		expectedEntries = 1
	}
	filter := bloom.New(expectedEntries, w.opts.BloomFPRate)

	flushDataBlock := func() error {
		if len(data.blobs) == 0 {
			return nil
		}
		body := packBlock(data.blobs, data.restarts)
		handle, err := w.writeBlock(body)
		if err != nil {
			return err
		}
		index.add(data.firstKey, handle)
		data.reset()
		return nil
	}

	for src.Valid() {
		e := src.Entry()
		if minKey == nil {
			minKey = append([]byte(nil), e.Key...)
		}
		maxKey = append([]byte(nil), e.Key...)
		filter.Add(e.Key)
		entryCount++

		data.add(e)
		if data.approxSize() >= BlockSize {
			if err := flushDataBlock(); err != nil {
				return int(entryCount), err
			}
		}
		src.Next()
	}
	if err := flushDataBlock(); err != nil {
		return int(entryCount), err
	}

	indexBody := packBlock(index.blobs, index.restarts)
	indexHandle, err := w.writeBlock(indexBody)
	if err != nil {
		return int(entryCount), fmt.Errorf("sstable: write index block: %w", err)
	}

	bloomBytes := filter.Encode()
	bloomOffset := w.written
	if _, err := w.bw.Write(bloomBytes); err != nil {
		return int(entryCount), fmt.Errorf("sstable: write bloom filter: %w", err)
	}
	w.written += uint64(len(bloomBytes))

	ft := footer{
		Magic:       Magic,
		Version:     FormatVersion,
		IndexOffset: indexHandle.offset,
		IndexSize:   indexHandle.size,
		BloomOffset: bloomOffset,
		BloomSize:   uint64(len(bloomBytes)),
		MinKey:      minKey,
		MaxKey:      maxKey,
		EntryCount:  entryCount,
	}
	footerBytes := appendFooterLen(ft.encode())
	if _, err := w.bw.Write(footerBytes); err != nil {
		return int(entryCount), fmt.Errorf("sstable: write footer: %w", err)
	}
	if err := w.bw.Flush(); err != nil {
		return int(entryCount), fmt.Errorf("sstable: flush: %w", err)
	}
	return int(entryCount), nil
}

type blockHandle struct {
	offset uint64
	size   uint64
}

// writeBlock compresses (if enabled), checksums and writes one block,
// tracking the running file offset across calls.
func (w *Writer) writeBlock(body []byte) (blockHandle, error) {
	compByte := compressionNone
	payload := body
	if w.opts.Compress {
		compressed := snappy.Encode(nil, body)
		if len(compressed) < len(body) {
			compByte = compressionSnappy
			payload = compressed
		}
	}
	stored := make([]byte, 0, len(payload)+1)
	stored = append(stored, compByte)
	stored = append(stored, payload...)

	checksum := crc32.ChecksumIEEE(stored)
	var cb [4]byte
	binary.LittleEndian.PutUint32(cb[:], checksum)

	n, err := w.bw.Write(stored)
	if err != nil {
		return blockHandle{}, fmt.Errorf("sstable: write block: %w", err)
	}
	if _, err := w.bw.Write(cb[:]); err != nil {
		return blockHandle{}, fmt.Errorf("sstable: write block checksum: %w", err)
	}

	h := blockHandle{offset: w.written, size: uint64(n + 4)}
	w.written += uint64(n + 4)
	return h, nil
}

func sharedPrefixLen(prev, key []byte) int {
	n := 0
	for n < len(prev) && n < len(key) && prev[n] == key[n] {
		n++
	}
	return n
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	return w.f.Close()
}
