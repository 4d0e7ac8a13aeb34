package setting

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Setting is a generic name/value configuration row maintained outside
// this process (admin tooling writes it, we only read).
type Setting struct {
	ID        int64     `gorm:"primaryKey"`
	Name      string    `gorm:"type:text;not null;uniqueIndex"`
	Value     string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Setting) TableName() string { return "settings" }

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Float returns the named setting parsed as a float, or def when the row
// is missing or unparseable.
func (s *Store) Float(ctx context.Context, name string, def float64) (float64, error) {
	var row Setting
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(row.Value), 64)
	if err != nil {
		return def, nil
	}
	return value, nil
}
