// Package wal defines the opaque LogManager handle the storage core's
// external interface names (spec §6: "currently unused by the core; an
// opaque handle retained for future WAL integration"). Write-ahead logging
// itself is an explicit non-goal, so this package intentionally stops at
// the LSN bookkeeping a real log manager would need -- there is no log
// file, no segment rotation, no recovery. It exists so the buffer pool
// constructor has the same shape (poolSize, diskManager, logManager) as
// the teacher's, and so a future WAL implementation has a seam to plug
// into without touching the BPM's signature.
package wal

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// LSN is a log sequence number. The storage core never assigns a
// meaningful one today; InvalidLSN is the only value in use.
type LSN uint64

// InvalidLSN marks "no log record associated with this page".
const InvalidLSN LSN = 0

// LogManager is the handle threaded through the buffer pool constructor. Append and CurrentLSN are provided so callers have
// something to call without reaching into package internals, but neither
// persists anything.
type LogManager struct {
	lastLSN atomic.Uint64
	logger  *zap.Logger
}

// New returns a LogManager handle. logger may be nil, in which case log
// messages are discarded.
func New(logger *zap.Logger) *LogManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogManager{logger: logger}
}

// Append records that a log record would have been written here, and
// returns the LSN it would have been assigned. No data is persisted.
func (lm *LogManager) Append() LSN {
	return LSN(lm.lastLSN.Add(1))
}

// CurrentLSN returns the most recent LSN handed out by Append.
func (lm *LogManager) CurrentLSN() LSN {
	return LSN(lm.lastLSN.Load())
}
