package disk

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestManager(t *testing.T) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	m, err := Open(path, DefaultPageSize)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, m.Close()) })
	return m
}

func TestAllocatePageIsMonotonic(t *testing.T) {
	m := openTestManager(t)
	require.Equal(t, PageID(0), m.AllocatePage())
	require.Equal(t, PageID(1), m.AllocatePage())
	require.Equal(t, PageID(2), m.AllocatePage())
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	m := openTestManager(t)
	id := m.AllocatePage()

	buf := make([]byte, m.PageSize())
	for i := range buf {
		buf[i] = byte(i % 256)
	}
	m.WritePage(id, buf)

	got := make([]byte, m.PageSize())
	m.ReadPage(id, got)
	require.Equal(t, buf, got)
}

func TestReadPageBeyondEndOfFilePanics(t *testing.T) {
	m := openTestManager(t)
	dst := make([]byte, m.PageSize())
	require.Panics(t, func() { m.ReadPage(42, dst) })
}

func TestWritePageWrongSizePanics(t *testing.T) {
	m := openTestManager(t)
	id := m.AllocatePage()
	require.Panics(t, func() { m.WritePage(id, make([]byte, m.PageSize()-1)) })
}

func TestReopenPreservesAllocationCounterAndData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	m1, err := Open(path, DefaultPageSize)
	require.NoError(t, err)

	id := m1.AllocatePage()
	buf := make([]byte, m1.PageSize())
	buf[0] = 0x42
	m1.WritePage(id, buf)
	require.NoError(t, m1.Close())

	m2, err := Open(path, DefaultPageSize)
	require.NoError(t, err)
	defer m2.Close()

	require.Equal(t, id+1, m2.AllocatePage())
	got := make([]byte, m2.PageSize())
	m2.ReadPage(id, got)
	require.Equal(t, buf, got)
}
