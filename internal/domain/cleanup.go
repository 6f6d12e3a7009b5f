package domain

import "time"

// CleanupRecord is one reported cleanup pass from the external cleanup
// actor. Append-only; this service never deletes files itself.
type CleanupRecord struct {
	ID              string    `db:"id"                json:"id"`
	Directory       string    `db:"directory"         json:"directory"`
	FilesRemoved    int64     `db:"files_removed"     json:"files_removed"`
	SpaceFreedBytes int64     `db:"space_freed_bytes" json:"space_freed_bytes"`
	RecordedAt      time.Time `db:"recorded_at"       json:"recorded_at"`
}

// CleanupSummary aggregates the running totals plus the most recent records.
type CleanupSummary struct {
	TotalFilesRemoved    int64           `json:"total_files_removed"`
	TotalSpaceFreedBytes int64           `json:"total_space_freed_bytes"`
	RecentRecords        []CleanupRecord `json:"recent_records"`
}
