package report

import (
	"time"
)

// EntryStatus is the final state of one archive entry
type EntryStatus string

const (
	StatusUploaded EntryStatus = "uploaded"
	StatusMarker   EntryStatus = "marker"
	StatusFailed   EntryStatus = "failed"
)

// EntryRecord is one row of the run report
type EntryRecord struct {
	TaskID    string      `json:"task_id"`
	Archive   string      `json:"archive"`
	Index     int         `json:"index"`
	Name      string      `json:"name"`
	Size      int64       `json:"size"`
	Key       string      `json:"key"`
	ETag      string      `json:"etag,omitempty"`
	Status    EntryStatus `json:"status"`
	LastError string      `json:"last_error,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Store persists the outcome of every processed entry. The report is
// informational: extraction never reads it back to resume.
type Store interface {
	SaveEntries(records []*EntryRecord) error
	ListFailedEntries() ([]*EntryRecord, error)
	ListTaskEntries(taskID string) ([]*EntryRecord, error)

	Close() error
}
