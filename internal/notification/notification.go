package notification

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Notification struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	UserID    int64        `gorm:"not null;index"`
	Title     string       `gorm:"type:text;not null"`
	Body      string       `gorm:"type:text"`
	Link      string       `gorm:"type:text"`
	Read      bool         `gorm:"not null;default:false"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Notification) TableName() string { return "notifications" }

// Sink receives notifications after they are committed, typically to fan
// them out to connected clients. The core never assumes a transport is
// present: with no sink registered, delivery degrades to a no-op.
type Sink interface {
	Publish(ctx context.Context, n Notification) error
}

type NoopSink struct{}

func (NoopSink) Publish(ctx context.Context, n Notification) error {
	_, _ = ctx, n
	return nil
}

// Insert writes the notification row with the caller's transaction handle.
func Insert(ctx context.Context, tx *gorm.DB, n *Notification) error {
	return tx.WithContext(ctx).Create(n).Error
}
