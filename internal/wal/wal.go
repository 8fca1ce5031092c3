// Package wal implements the write-ahead log: every Put/Delete is
// appended here, fsynced, before it is applied to the memtable, so a
// crash between the two can always be recovered by replay.
//
// Record framing: seq (uvarint) | kind (1 byte) | keyLen (uvarint) |
// key | valueLen (uvarint) | value | crc32 (4 bytes, IEEE, over the
// preceding fields). Grounded on the teacher's WalFile
// (internal/db/wal/wal.go), adapted from proto-encoded db.Record
// values to this explicit binary framing so replay can detect a torn
// trailing record left by a crash mid-write.
package wal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"

	"github.com/duskdb/duskdb/internal/record"
)

// WAL is an append-only, fsync-durable log of record.Entry writes.
type WAL struct {
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
}

// Open opens (creating if absent) the log file at path for appending,
// and positions the file offset at the end.
func Open(path string) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}
	return &WAL{file: f, w: bufio.NewWriter(f)}, nil
}

// Append writes one entry and fsyncs before returning, so a
// successful Append is durable against a crash immediately after.
func (w *WAL) Append(e record.Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	buf := encodeRecord(e)
	if _, err := w.w.Write(buf); err != nil {
		return fmt.Errorf("wal: append: %w", err)
	}
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("wal: flush: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: fsync: %w", err)
	}
	return nil
}

func encodeRecord(e record.Entry) []byte {
	buf := encodeFields(e.Seq, e.Kind, e.Key, e.Value)
	checksum := crc32.ChecksumIEEE(buf)
	var cb [4]byte
	binary.LittleEndian.PutUint32(cb[:], checksum)
	return append(buf, cb[:]...)
}

// Replay reads every well-formed record from the start of the log. It
// stops at the first checksum mismatch or truncated record and returns
// everything recovered up to that point without error. It does not
// distinguish a torn write left by a crash (expected at the tail) from
// a mismatch earlier in the log (which would indicate a damaged file):
// either way playback just stops at the first bad record and hands
// back what came before it.
func Replay(path string) ([]record.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("wal: open for replay: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("wal: read: %w", err)
	}

	var entries []record.Entry
	off := 0
	for off < len(data) {
		e, n, ok := decodeRecord(data[off:])
		if !ok {
			// Truncated or checksum-mismatched: treat as the tail of an
			// interrupted append and stop here.
			break
		}
		entries = append(entries, e)
		off += n
	}
	return entries, nil
}

// decodeRecord parses one record starting at buf[0]. ok is false if
// buf does not hold a complete, checksum-valid record.
func decodeRecord(buf []byte) (record.Entry, int, bool) {
	start := len(buf)
	seq, n := binary.Uvarint(buf)
	if n <= 0 {
		return record.Entry{}, 0, false
	}
	buf = buf[n:]

	if len(buf) < 1 {
		return record.Entry{}, 0, false
	}
	kind := record.Kind(buf[0])
	buf = buf[1:]

	keyLen, n := binary.Uvarint(buf)
	if n <= 0 {
		return record.Entry{}, 0, false
	}
	buf = buf[n:]
	if uint64(len(buf)) < keyLen {
		return record.Entry{}, 0, false
	}
	key := append([]byte(nil), buf[:keyLen]...)
	buf = buf[keyLen:]

	valLen, n := binary.Uvarint(buf)
	if n <= 0 {
		return record.Entry{}, 0, false
	}
	buf = buf[n:]
	if uint64(len(buf)) < valLen {
		return record.Entry{}, 0, false
	}
	val := append([]byte(nil), buf[:valLen]...)
	buf = buf[valLen:]

	if len(buf) < 4 {
		return record.Entry{}, 0, false
	}
	wantChecksum := binary.LittleEndian.Uint32(buf[:4])
	consumed := start - len(buf) + 4

	rebuilt := encodeFields(seq, kind, key, val)
	if crc32.ChecksumIEEE(rebuilt) != wantChecksum {
		return record.Entry{}, 0, false
	}

	return record.Entry{Key: key, Value: val, Seq: seq, Kind: kind}, consumed, true
}

// encodeFields re-derives the checksummed portion of a record's
// framing, used both by Append and to verify a record during replay.
func encodeFields(seq uint64, kind record.Kind, key, val []byte) []byte {
	var tmp [binary.MaxVarintLen64]byte
	buf := make([]byte, 0, 32+len(key)+len(val))
	n := binary.PutUvarint(tmp[:], seq)
	buf = append(buf, tmp[:n]...)
	buf = append(buf, byte(kind))
	n = binary.PutUvarint(tmp[:], uint64(len(key)))
	buf = append(buf, tmp[:n]...)
	buf = append(buf, key...)
	n = binary.PutUvarint(tmp[:], uint64(len(val)))
	buf = append(buf, tmp[:n]...)
	buf = append(buf, val...)
	return buf
}

// Truncate discards all records, used once their entries have been
// durably flushed to a sorted run and no longer need replaying.
func (w *WAL) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("wal: truncate: %w", err)
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("wal: seek: %w", err)
	}
	w.w.Reset(w.file)
	return nil
}

// Close flushes and closes the underlying file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.file.Close()
}
