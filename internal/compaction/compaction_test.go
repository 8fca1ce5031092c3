package compaction_test

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/duskdb/duskdb/internal/compaction"
	"github.com/duskdb/duskdb/internal/record"
	"github.com/duskdb/duskdb/internal/sstable"
)

func writeRun(t *testing.T, m *compaction.Manager, entries []record.Entry) {
	t.Helper()
	path := m.NextRunPath()
	w, err := sstable.NewFileWriter(path, sstable.DefaultOptions())
	require.NoError(t, err)
	_, err = w.WriteAll(&testSource{entries: entries}, len(entries))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, m.AddFlushedRun(path))
}

type testSource struct {
	entries []record.Entry
	idx     int
}

func (s *testSource) Valid() bool         { return s.idx < len(s.entries) }
func (s *testSource) Entry() record.Entry { return s.entries[s.idx] }
func (s *testSource) Next() bool          { s.idx++; return s.Valid() }

func TestGetAcrossL0Runs(t *testing.T) {
	dir := t.TempDir()
	m, err := compaction.Open(dir, compaction.Options{}, slog.Default())
	require.NoError(t, err)
	defer m.Close()

	writeRun(t, m, []record.Entry{{Key: []byte("a"), Value: []byte("1"), Seq: 1, Kind: record.KindPut}})
	writeRun(t, m, []record.Entry{{Key: []byte("a"), Value: []byte("2"), Seq: 2, Kind: record.KindPut}})

	e, found, err := m.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "2", string(e.Value), "expected the newer L0 run to win")
}

func TestCompactionMergesL0IntoL1(t *testing.T) {
	dir := t.TempDir()
	opts := compaction.Options{K0: 3}
	m, err := compaction.Open(dir, opts, slog.Default())
	require.NoError(t, err)
	defer m.Close()
	m.Start()
	defer m.Stop()

	for i := 0; i < 3; i++ {
		writeRun(t, m, []record.Entry{
			{Key: []byte(fmt.Sprintf("k%02d", i)), Value: []byte("v"), Seq: uint64(i + 1), Kind: record.KindPut},
		})
	}

	require.Eventually(t, func() bool {
		s := m.Stats()
		return s.RunsPerLevel[0] == 0 && s.RunsPerLevel[1] >= 1
	}, 2*time.Second, 10*time.Millisecond, "expected L0 to drain into L1")

	for i := 0; i < 3; i++ {
		key := []byte(fmt.Sprintf("k%02d", i))
		e, found, err := m.Get(key)
		require.NoError(t, err)
		require.True(t, found, "expected %s still found after compaction", key)
		require.Equal(t, "v", string(e.Value))
	}
}

func TestManifestSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	m, err := compaction.Open(dir, compaction.Options{}, slog.Default())
	require.NoError(t, err)
	writeRun(t, m, []record.Entry{{Key: []byte("a"), Value: []byte("1"), Seq: 1, Kind: record.KindPut}})
	require.NoError(t, m.Close())

	reopened, err := compaction.Open(dir, compaction.Options{}, slog.Default())
	require.NoError(t, err)
	defer reopened.Close()

	e, found, err := reopened.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "1", string(e.Value))

	_ = filepath.Base // keep filepath imported for readability of paths in failures
}
