package storage

import (
	"gorm.io/gorm"
)

// DownloadTask is a persisted queue entry: one file destination plus its
// resume state (completed chunk bitmap lives in MetaJSON as a ResumeState).
type DownloadTask struct {
	ID            string         `gorm:"primaryKey" json:"id"`
	Filename      string         `json:"filename"`
	URL           string         `json:"url"`
	SavePath      string         `json:"save_path"`
	Status        string         `gorm:"index" json:"status"` // downloading, completed, paused, error, pending
	QueueOrder    int            `gorm:"default:0" json:"queue_order"`
	TotalSize     int64          `json:"total_size"`
	Downloaded    int64          `json:"downloaded"`
	Progress      float64        `json:"progress"`
	Speed         float64        `json:"speed"` // bytes/sec
	MetaJSON      string         `json:"-"`     // serialized ResumeState (chunk bitmap, ETag)
	ExpectedHash  string         `json:"expected_hash"`
	HashAlgorithm string         `json:"hash_algorithm"` // sha1, sha256, or md5
	Domain        string         `json:"domain"`         // host, for per-host congestion bookkeeping
	CreatedAt     string         `json:"created_at"`
	UpdatedAt     string         `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for DownloadTask
func (DownloadTask) TableName() string {
	return "download_tasks"
}

// PartState represents the state of a single download chunk
type PartState struct {
	Start    int64 `json:"s"`           // Start offset
	End      int64 `json:"e"`           // End offset
	Complete bool  `json:"c,omitempty"` // Is chunk fully downloaded and verified?
	Offset   int64 `json:"o,omitempty"` // Current write offset relative to Start (for clean pause)
}

// ResumeState represents the serialized resume data
type ResumeState struct {
	Version      int               `json:"v"`
	ETag         string            `json:"etag"`
	LastModified string            `json:"lm"`
	TotalSize    int64             `json:"total_size"`
	Parts        map[int]PartState `json:"parts"`
}

// DownloadLocation stores saved download locations with nicknames
type DownloadLocation struct {
	Path     string `gorm:"primaryKey" json:"path"`
	Nickname string `json:"nickname"` // e.g., "Gaming Drive", "SSD"
}

// TableName specifies the table name for DownloadLocation
func (DownloadLocation) TableName() string {
	return "download_locations"
}

// DailyStat tracks daily download statistics for analytics
type DailyStat struct {
	Date  string `gorm:"primaryKey"` // Format: "YYYY-MM-DD"
	Bytes int64  `gorm:"default:0"`  // Total bytes for this day
	Files int64  `gorm:"default:0"`  // Files completed this day
}

// TableName specifies the table name for DailyStat
func (DailyStat) TableName() string {
	return "daily_stats"
}

// AppSetting stores key-value application settings
type AppSetting struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

// TableName specifies the table name for AppSetting
func (AppSetting) TableName() string {
	return "app_settings"
}

