// Package storage persists queue resume-state, daily transfer statistics,
// saved download locations, and application settings. AccountStore (spec.md
// §4.7) intentionally does not live here; it is a plain JSON file so account
// data survives independently of the SQLite schema.
package storage

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage wraps a GORM handle over a pure-Go SQLite database.
type Storage struct {
	DB *gorm.DB
}

// NewStorage opens (creating if absent) the engine's SQLite database under
// the user's config directory and runs AutoMigrate for all known models.
func NewStorage() (*Storage, error) {
	appData, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}
	dataDir := filepath.Join(appData, "mc-launcher-engine", "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(filepath.Join(dataDir, "engine.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	db.Exec("PRAGMA journal_mode=WAL;")

	if err := db.AutoMigrate(
		&DownloadTask{},
		&DownloadLocation{},
		&DailyStat{},
		&AppSetting{},
	); err != nil {
		return nil, err
	}

	return &Storage{DB: db}, nil
}

// Close releases the underlying database connection.
func (s *Storage) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveTask upserts a resume-state row keyed by ID.
func (s *Storage) SaveTask(task DownloadTask) error {
	task.UpdatedAt = time.Now().Format(time.RFC3339)
	if task.CreatedAt == "" {
		task.CreatedAt = task.UpdatedAt
	}
	return s.DB.Save(&task).Error
}

// GetTask fetches a resume-state row by ID.
func (s *Storage) GetTask(id string) (DownloadTask, error) {
	var task DownloadTask
	err := s.DB.First(&task, "id = ?", id).Error
	return task, err
}

// GetAllTasks returns every non-deleted resume-state row, newest first.
func (s *Storage) GetAllTasks() ([]DownloadTask, error) {
	var tasks []DownloadTask
	err := s.DB.Order("created_at DESC").Find(&tasks).Error
	return tasks, err
}

// DeleteTask soft-deletes a resume-state row.
func (s *Storage) DeleteTask(id string) error {
	return s.DB.Delete(&DownloadTask{}, "id = ?", id).Error
}

// IncrementDailyBytes adds delta bytes to today's transfer total.
func (s *Storage) IncrementDailyBytes(delta int64) error {
	return s.touchDailyStat(func(stat *DailyStat) { stat.Bytes += delta })
}

// IncrementDailyFiles adds one to today's completed-file count.
func (s *Storage) IncrementDailyFiles() error {
	return s.touchDailyStat(func(stat *DailyStat) { stat.Files++ })
}

func (s *Storage) touchDailyStat(mutate func(*DailyStat)) error {
	today := time.Now().Format("2006-01-02")
	var stat DailyStat
	return s.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.First(&stat, "date = ?", today).Error
		if err == gorm.ErrRecordNotFound {
			stat = DailyStat{Date: today}
		} else if err != nil {
			return err
		}
		mutate(&stat)
		return tx.Save(&stat).Error
	})
}

// GetTotalLifetime sums Bytes across all recorded days.
func (s *Storage) GetTotalLifetime() (int64, error) {
	var total int64
	err := s.DB.Model(&DailyStat{}).Select("COALESCE(SUM(bytes), 0)").Row().Scan(&total)
	return total, err
}

// GetTotalFiles sums Files across all recorded days.
func (s *Storage) GetTotalFiles() (int64, error) {
	var total int64
	err := s.DB.Model(&DailyStat{}).Select("COALESCE(SUM(files), 0)").Row().Scan(&total)
	return total, err
}

// GetDailyHistory returns the last n days of stats, most recent first.
func (s *Storage) GetDailyHistory(days int) ([]DailyStat, error) {
	var stats []DailyStat
	err := s.DB.Order("date DESC").Limit(days).Find(&stats).Error
	return stats, err
}

// AddLocation upserts a saved download location by path.
func (s *Storage) AddLocation(path, nickname string) error {
	return s.DB.Save(&DownloadLocation{Path: path, Nickname: nickname}).Error
}

// GetLocations returns every saved download location.
func (s *Storage) GetLocations() ([]DownloadLocation, error) {
	var locations []DownloadLocation
	err := s.DB.Find(&locations).Error
	return locations, err
}

// GetString retrieves a single setting value, "" if unset.
func (s *Storage) GetString(key string) (string, error) {
	var setting AppSetting
	err := s.DB.First(&setting, "key = ?", key).Error
	if err == gorm.ErrRecordNotFound {
		return "", nil
	}
	return setting.Value, err
}

// SetString upserts a single setting value.
func (s *Storage) SetString(key, val string) error {
	return s.DB.Save(&AppSetting{Key: key, Value: val}).Error
}

// GetStringList retrieves a comma-joined setting as a slice; empty if unset.
func (s *Storage) GetStringList(key string) ([]string, error) {
	val, err := s.GetString(key)
	if err != nil || val == "" {
		return []string{}, err
	}
	return strings.Split(val, ","), nil
}

// SetStringList stores a slice as a comma-joined setting value.
func (s *Storage) SetStringList(key string, list []string) error {
	return s.SetString(key, strings.Join(list, ","))
}
