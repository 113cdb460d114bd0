package syncer

import (
	"github.com/nivora/mailsync/internal/adapter"
	"github.com/nivora/mailsync/pkg/models"
)

// chunk is one backfill unit: the closed-open UID range [Start, End)
type chunk struct {
	Start uint32
	End   uint32
}

// seedFolder primes a folder cursor from the server's mailbox status.
// Backfill walks backward from UIDNEXT, so the first chunk covers the
// newest messages.
func seedFolder(fc *models.FolderCursor, status *adapter.FolderStatus) {
	fc.UIDNext = status.UIDNext
	fc.NextEnd = status.UIDNext
	fc.Total = int(status.Messages)
	if status.Messages == 0 || status.UIDNext <= 1 {
		fc.Done = true
	}
}

// planChunk returns the next backfill chunk for a folder. ok is false when
// the folder has no work left.
func planChunk(fc *models.FolderCursor, chunkSize uint32) (chunk, bool) {
	if fc.Done || fc.NextEnd <= 1 {
		return chunk{}, false
	}
	start := uint32(1)
	if fc.NextEnd > chunkSize {
		start = fc.NextEnd - chunkSize
	}
	return chunk{Start: start, End: fc.NextEnd}, true
}

// completeChunk records a finished chunk and advances the cursor. The folder
// is exhausted once the walk reaches UID 1, or when a chunk comes back empty:
// anything below an empty range has been expunged.
func completeChunk(fc *models.FolderCursor, c chunk, fetched int) {
	fc.NextEnd = c.Start
	fc.Fetched += fetched
	fc.Attempts = 0
	if c.Start <= 1 || fetched == 0 {
		fc.Done = true
	}
}

// skipChunk abandons the current chunk after repeated protocol errors and
// moves the cursor past it so the backfill can make progress.
func skipChunk(fc *models.FolderCursor, c chunk) {
	fc.NextEnd = c.Start
	fc.Attempts = 0
	if c.Start <= 1 {
		fc.Done = true
	}
}
