// Package store persists jobs in sqlite through gorm.
package store

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	appLog "jobcal/internal/log"
	"jobcal/internal/model"
)

// ErrNotFound is returned when no job has the requested id.
var ErrNotFound = errors.New("job not found")

// jobRow is the table layout. IsCompleted is nullable: rows written before
// manual completion existed carry NULL.
type jobRow struct {
	ID                   string    `gorm:"primaryKey"`
	Type                 string    `gorm:"not null"`
	Title                string    `gorm:"not null"`
	Address              string    `gorm:"not null;default:''"`
	ScheduledDate        time.Time `gorm:"not null;index"`
	DriveTimeMinutes     int       `gorm:"not null"`
	NumberOfPeople       int       `gorm:"not null;default:1"`
	IncludesInstallation bool      `gorm:"not null;default:false"`
	PostTinkering        bool      `gorm:"not null;default:false"`
	CheckedItems         []string  `gorm:"serializer:json"`
	IsCompleted          *bool
	CompletedDate        *time.Time
	CalendarEventID      string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (jobRow) TableName() string { return "jobs" }

// Store is the sqlite-backed job store.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the sqlite database at path and migrates
// the schema. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, errors.Wrapf(err, "create %s", filepath.Dir(path))
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open database %s", path)
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise see its own empty database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Wrap(err, "get sql handle")
		}
		sqlDB.SetMaxOpenConns(1)
	}
	s := &Store{db: db}
	if err := s.db.AutoMigrate(&jobRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate schema")
	}
	if _, err := s.MigrateLegacy(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "get sql handle")
	}
	return sqlDB.Close()
}

// MigrateLegacy rewrites NULL completion flags to false and returns the
// number of rows touched.
func (s *Store) MigrateLegacy(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&jobRow{}).
		Where("is_completed IS NULL").
		Updates(map[string]any{"is_completed": false, "completed_date": nil})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "migrate legacy completion")
	}
	if res.RowsAffected > 0 {
		appLog.Info("store: migrated legacy completion flags", "rows", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

// Create builds a new job from f and persists it.
func (s *Store) Create(ctx context.Context, f model.Fields) (*model.Job, error) {
	j, err := model.New(f)
	if err != nil {
		return nil, err
	}
	row := toRow(j)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, errors.Wrap(err, "insert job")
	}
	appLog.Debug("store: job created", "job_id", j.ID, "type", j.Type)
	return j, nil
}

// Update overwrites the stored record for j.
func (s *Store) Update(ctx context.Context, j *model.Job) error {
	row := toRow(j)
	res := s.db.WithContext(ctx).
		Model(&jobRow{ID: j.ID}).
		Select("*").
		Omit("created_at").
		Updates(&row)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "update job %s", j.ID)
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(ErrNotFound, "update job %s", j.ID)
	}
	return nil
}

// Delete removes j. Releasing its calendar event and reminders is the
// caller's job.
func (s *Store) Delete(ctx context.Context, j *model.Job) error {
	res := s.db.WithContext(ctx).Delete(&jobRow{}, "id = ?", j.ID)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "delete job %s", j.ID)
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(ErrNotFound, "delete job %s", j.ID)
	}
	return nil
}

// Get loads one job by id.
func (s *Store) Get(ctx context.Context, id string) (*model.Job, error) {
	var row jobRow
	err := s.db.WithContext(ctx).Take(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "job %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load job %s", id)
	}
	return fromRow(row), nil
}

// QueryAll returns every job ordered by scheduled date, earliest first.
func (s *Store) QueryAll(ctx context.Context) ([]*model.Job, error) {
	var rows []jobRow
	if err := s.db.WithContext(ctx).Order("scheduled_date ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "query jobs")
	}
	out := make([]*model.Job, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out, nil
}

func toRow(j *model.Job) jobRow {
	s := j.Snapshot()
	return jobRow{
		ID:                   s.ID,
		Type:                 string(s.Type),
		Title:                s.Title,
		Address:              s.Address,
		ScheduledDate:        s.ScheduledDate.UTC(),
		DriveTimeMinutes:     s.DriveTimeMinutes,
		NumberOfPeople:       s.NumberOfPeople,
		IncludesInstallation: s.IncludesInstallation,
		PostTinkering:        s.PostTinkering,
		CheckedItems:         s.CheckedItems,
		IsCompleted:          s.Completed,
		CompletedDate:        s.CompletedAt,
		CalendarEventID:      s.CalendarEventID,
	}
}

func fromRow(r jobRow) *model.Job {
	return model.Restore(model.Snapshot{
		ID:                   r.ID,
		Type:                 model.JobType(r.Type),
		Title:                r.Title,
		Address:              r.Address,
		ScheduledDate:        r.ScheduledDate,
		DriveTimeMinutes:     r.DriveTimeMinutes,
		NumberOfPeople:       r.NumberOfPeople,
		IncludesInstallation: r.IncludesInstallation,
		PostTinkering:        r.PostTinkering,
		CheckedItems:         r.CheckedItems,
		Completed:            r.IsCompleted,
		CompletedAt:          r.CompletedDate,
		CalendarEventID:      r.CalendarEventID,
	})
}
