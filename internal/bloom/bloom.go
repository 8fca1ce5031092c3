// Package bloom implements a fixed-capacity Bloom filter used to guard
// sorted-run lookups: a negative answer means the key is definitely
// absent from the run, letting Get skip the disk read entirely.
//
// Hashing follows the Kirsch-Mitzenmacher scheme: two independent
// MurmurHash3 values are combined to derive k bit positions, avoiding
// k separate hash computations per key. The same technique is used by
// _examples/original_source/lsm/filter/bloom.py (there via mmh3's
// seeded hash); here github.com/twmb/murmur3 supplies the two base
// hashes in pure Go.
package bloom

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/twmb/murmur3"
)

// DefaultFPRate is used when a sorted run's bloom filter is built
// without an explicit target false-positive rate.
const DefaultFPRate = 0.01

// Filter is a fixed-size bit array bloom filter built for a known
// capacity. It is not safe for concurrent Add and MightContain calls;
// writers populate it single-threaded at run-build time, after which
// it is read-only.
type Filter struct {
	bits []uint64 // bit array, 64 bits per word
	m    uint64   // number of bits
	k    uint64   // number of hash functions
	n    uint64   // number of keys added so far
}

// New returns a filter sized for n expected keys at false-positive rate
// p, using the standard optimal-parameter formulas:
//
//	m = -n*ln(p) / (ln 2)^2
//	k = (m/n)*ln 2
func New(n int, p float64) *Filter {
	if n <= 0 {
		n = 1
	}
	if p <= 0 || p >= 1 {
		p = DefaultFPRate
	}
	m := optimalBits(n, p)
	k := optimalHashes(m, n)
	return &Filter{
		bits: make([]uint64, (m+63)/64),
		m:    uint64(m),
		k:    uint64(k),
	}
}

func optimalBits(n int, p float64) int {
	m := -float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)
	bits := int(math.Ceil(m))
	if bits < 64 {
		bits = 64
	}
	return bits
}

func optimalHashes(m, n int) int {
	k := int(math.Round(float64(m) / float64(n) * math.Ln2))
	if k < 1 {
		k = 1
	}
	if k > 30 {
		k = 30
	}
	return k
}

// Add sets the k bits for key. Must be called exactly once per unique
// key while building a run; calling it twice for the same key is
// harmless but wastes nothing (idempotent on the bit array).
func (f *Filter) Add(key []byte) {
	h1, h2 := f.hashes(key)
	for i := uint64(0); i < f.k; i++ {
		f.setBit((h1 + i*h2) % f.m)
	}
	f.n++
}

// MightContain reports whether key may be present. False means key is
// definitely absent from the set the filter was built over.
func (f *Filter) MightContain(key []byte) bool {
	h1, h2 := f.hashes(key)
	for i := uint64(0); i < f.k; i++ {
		if !f.getBit((h1 + i*h2) % f.m) {
			return false
		}
	}
	return true
}

func (f *Filter) hashes(key []byte) (uint64, uint64) {
	h1 := murmur3.Sum64(key)
	h2 := murmur3.SeedSum64(0x9e3779b97f4a7c15, key)
	if h2 == 0 {
		// Guard against a degenerate double-hash sequence where every
		// combined hash collapses to h1.
		h2 = 1
	}
	return h1, h2
}

func (f *Filter) setBit(i uint64) {
	f.bits[i/64] |= 1 << (i % 64)
}

func (f *Filter) getBit(i uint64) bool {
	return f.bits[i/64]&(1<<(i%64)) != 0
}

// Count returns the number of keys added so far.
func (f *Filter) Count() int { return int(f.n) }

// BitSize returns the number of bits in the underlying array.
func (f *Filter) BitSize() int { return int(f.m) }

// Encode serialises the filter as: m (uvarint) | k (uvarint) |
// n (uvarint) | word count (uvarint) | words (8 bytes each, little
// endian). It is written into a sorted run's footer region and
// decoded back at run-open time instead of being recomputed, per
// spec.md §4.1.
func (f *Filter) Encode() []byte {
	buf := make([]byte, 0, 24+len(f.bits)*8)
	var tmp [binary.MaxVarintLen64]byte
	putUvarint := func(v uint64) {
		n := binary.PutUvarint(tmp[:], v)
		buf = append(buf, tmp[:n]...)
	}
	putUvarint(f.m)
	putUvarint(f.k)
	putUvarint(f.n)
	putUvarint(uint64(len(f.bits)))
	for _, w := range f.bits {
		var wb [8]byte
		binary.LittleEndian.PutUint64(wb[:], w)
		buf = append(buf, wb[:]...)
	}
	return buf
}

// Decode reconstructs a filter previously produced by Encode.
func Decode(data []byte) (*Filter, int, error) {
	m, n1 := binary.Uvarint(data)
	if n1 <= 0 {
		return nil, 0, fmt.Errorf("bloom: malformed m field")
	}
	data = data[n1:]
	k, n2 := binary.Uvarint(data)
	if n2 <= 0 {
		return nil, 0, fmt.Errorf("bloom: malformed k field")
	}
	data = data[n2:]
	n, n3 := binary.Uvarint(data)
	if n3 <= 0 {
		return nil, 0, fmt.Errorf("bloom: malformed n field")
	}
	data = data[n3:]
	wordCount, n4 := binary.Uvarint(data)
	if n4 <= 0 {
		return nil, 0, fmt.Errorf("bloom: malformed word count field")
	}
	data = data[n4:]
	need := int(wordCount) * 8
	if len(data) < need {
		return nil, 0, fmt.Errorf("bloom: truncated bit array: need %d bytes, have %d", need, len(data))
	}
	bits := make([]uint64, wordCount)
	for i := range bits {
		bits[i] = binary.LittleEndian.Uint64(data[i*8 : i*8+8])
	}
	total := n1 + n2 + n3 + n4 + need
	return &Filter{bits: bits, m: m, k: k, n: n}, total, nil
}
