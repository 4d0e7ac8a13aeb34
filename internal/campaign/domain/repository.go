package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	// FindExpiring returns ACTIVE and PROCESSING campaigns whose end date
	// passed before the cutoff instant.
	FindExpiring(ctx context.Context, before time.Time) ([]Campaign, error)

	// FindStartingBy returns NOT_STARTED campaigns whose start date is at or
	// before the given instant.
	FindStartingBy(ctx context.Context, at time.Time) ([]Campaign, error)

	// FindFinishedSince returns IDs of campaigns already in COMPLETED or
	// CANCEL whose end date falls inside the window. Used by the
	// reconciliation sweep to catch campaigns transitioned but never queued.
	FindFinishedSince(ctx context.Context, since time.Time) ([]int64, error)

	// Transition moves a campaign to the target status and forces all of its
	// keywords and links to INACTIVE in the same transaction.
	Transition(ctx context.Context, campaignID int64, to CampaignStatus) error

	// Activate moves a NOT_STARTED campaign to ACTIVE.
	Activate(ctx context.Context, campaignID int64) error

	// GetWithChildren loads a campaign and its keywords and links using the
	// caller's transaction handle.
	GetWithChildren(ctx context.Context, tx *gorm.DB, campaignID int64) (*Campaign, error)
}
