// Package disk implements the DiskManager external collaborator named in
// the storage core's interface surface: synchronous, fixed-size page I/O
// against a single backing file. It has no notion of pages, pins, or
// latches -- those are the buffer pool's job.
package disk

import (
	"fmt"
	"os"
	"sync"
)

// PageID identifies a page within a file. Allocation is monotonic starting
// at zero; INVALID is reserved and never returned by AllocatePage.
type PageID int64

// InvalidPageID is the sentinel used throughout the storage core for "no
// page" (an empty sibling pointer, an unset root, etc).
const InvalidPageID PageID = -1

// DefaultPageSize is the page size used when a caller does not override it.
const DefaultPageSize = 4096

// Manager is a synchronous, file-backed page store. All public methods are
// safe for concurrent use; the spec treats disk I/O errors as fatal, so
// ReadPage/WritePage panic rather than returning a recoverable error --
// callers above the disk manager (the buffer pool) never need to handle a
// partial or failed page write.
type Manager struct {
	mu       sync.Mutex
	file     *os.File
	pageSize int
	nextID   PageID
}

// Open opens (creating if necessary) the database file at path and returns
// a Manager configured for the given page size.
func Open(path string, pageSize int) (*Manager, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, fmt.Errorf("disk: opening %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("disk: stat %s: %w", path, err)
	}
	return &Manager{
		file:     f,
		pageSize: pageSize,
		nextID:   PageID(fi.Size() / int64(pageSize)),
	}, nil
}

// PageSize reports the fixed page size this manager was opened with.
func (m *Manager) PageSize() int { return m.pageSize }

// AllocatePage reserves the next page id. It does not touch disk; the first
// write to that id extends the file via WritePage.
func (m *Manager) AllocatePage() PageID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	return id
}

// DeallocatePage is reserved for future disk-space reclamation. It is
// intentionally a no-op: the spec does not require pages to be reused.
func (m *Manager) DeallocatePage(PageID) {}

// ReadPage fills dst (which must be exactly PageSize() long) with the bytes
// of pageID. Reading a page beyond the current end of file is a fatal
// condition -- the caller asked for a page it never allocated.
func (m *Manager) ReadPage(pageID PageID, dst []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(dst) != m.pageSize {
		panic(fmt.Sprintf("disk: read buffer size %d != page size %d", len(dst), m.pageSize))
	}
	offset := int64(pageID) * int64(m.pageSize)
	n, err := m.file.ReadAt(dst, offset)
	if err != nil || n != m.pageSize {
		panic(fmt.Sprintf("disk: i/o error reading page %d: %v", pageID, err))
	}
}

// WritePage persists src (which must be exactly PageSize() long) at pageID,
// extending the file if necessary.
func (m *Manager) WritePage(pageID PageID, src []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(src) != m.pageSize {
		panic(fmt.Sprintf("disk: write buffer size %d != page size %d", len(src), m.pageSize))
	}
	offset := int64(pageID) * int64(m.pageSize)
	if _, err := m.file.WriteAt(src, offset); err != nil {
		panic(fmt.Sprintf("disk: i/o error writing page %d: %v", pageID, err))
	}
}

// Sync flushes buffered writes to stable storage.
func (m *Manager) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.file.Sync()
}

// Close syncs and closes the backing file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return nil
	}
	_ = m.file.Sync()
	err := m.file.Close()
	m.file = nil
	return err
}
