package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Sync phases recorded in the cursor
const (
	PhaseSeed = "seed"
	PhaseFull = "full"
)

// Backfill walks newest-to-oldest; the field exists so a stored cursor can
// declare its direction and keep being resumable if that ever changes.
const DirectionBackward = "backward"

// FolderCursor is the continuation state for one folder's backfill
type FolderCursor struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	UIDNext  uint32 `json:"uidnext"`  // server-reported next UID at seed time
	NextEnd  uint32 `json:"next_end"` // exclusive upper bound of the next chunk
	Total    int    `json:"total"`    // messages reported by the server
	Fetched  int    `json:"fetched"`  // messages ingested so far
	Attempts int    `json:"attempts"` // protocol-error retries on the current chunk
	Done     bool   `json:"done"`
}

// SyncCursor is the persisted continuation state for an account's sync.
// In memory it is strongly typed; at the storage boundary it marshals to a
// schema-less JSON map so provider-specific keys survive round trips.
type SyncCursor struct {
	Phase     string          `json:"phase"`
	Direction string          `json:"direction"`
	Folders   []*FolderCursor `json:"folders"`
	Extra     map[string]any  `json:"extra,omitempty"` // provider-specific continuation data
}

// NewSyncCursor initializes a cursor for the given folders in priority order
func NewSyncCursor(folders []string) SyncCursor {
	c := SyncCursor{
		Phase:     PhaseSeed,
		Direction: DirectionBackward,
	}
	for i, name := range folders {
		c.Folders = append(c.Folders, &FolderCursor{Name: name, Priority: i})
	}
	return c
}

// Initialized reports whether the cursor has been seeded
func (c *SyncCursor) Initialized() bool {
	return c.Phase != ""
}

// NextFolder returns the first folder that still has backfill work, or nil
func (c *SyncCursor) NextFolder() *FolderCursor {
	for _, f := range c.Folders {
		if !f.Done {
			return f
		}
	}
	return nil
}

// Folder returns the cursor for the named folder, or nil
func (c *SyncCursor) Folder(name string) *FolderCursor {
	for _, f := range c.Folders {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Exhausted reports whether every folder has completed its backfill
func (c *SyncCursor) Exhausted() bool {
	return c.NextFolder() == nil
}

// FolderProgress is a per-folder progress snapshot
type FolderProgress struct {
	Total   int `json:"total"`
	Fetched int `json:"fetched"`
	Percent int `json:"percent"`
}

// Progress reports per-folder and overall completion percentages
func (c *SyncCursor) Progress() (map[string]FolderProgress, int) {
	folders := make(map[string]FolderProgress, len(c.Folders))
	var total, fetched int
	for _, f := range c.Folders {
		p := FolderProgress{Total: f.Total, Fetched: f.Fetched}
		if f.Total > 0 {
			p.Percent = f.Fetched * 100 / f.Total
		} else if f.Done {
			p.Percent = 100
		}
		folders[f.Name] = p
		total += f.Total
		fetched += f.Fetched
	}
	overall := 0
	if total > 0 {
		overall = fetched * 100 / total
	}
	return folders, overall
}

// Value marshals the cursor to JSON for storage
func (c SyncCursor) Value() (driver.Value, error) {
	if !c.Initialized() {
		return nil, nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sync cursor: %w", err)
	}
	return string(data), nil
}

// Scan unmarshals a stored JSON cursor
func (c *SyncCursor) Scan(src any) error {
	if src == nil {
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported sync cursor type %T", src)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to unmarshal sync cursor: %w", err)
	}
	return nil
}
