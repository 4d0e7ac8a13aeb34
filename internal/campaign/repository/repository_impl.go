package repository

import (
	"context"
	"errors"
	"time"

	"github.com/adlift/trafficd/internal/campaign/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) FindExpiring(ctx context.Context, before time.Time) ([]domain.Campaign, error) {
	var campaigns []domain.Campaign
	err := r.db.WithContext(ctx).
		Where("status IN ?", []domain.CampaignStatus{domain.StatusActive, domain.StatusProcessing}).
		Where("end_date < ?", before).
		Order("end_date asc, id asc").
		Find(&campaigns).Error
	if err != nil {
		return nil, err
	}
	return campaigns, nil
}

func (r *repo) FindStartingBy(ctx context.Context, at time.Time) ([]domain.Campaign, error) {
	var campaigns []domain.Campaign
	err := r.db.WithContext(ctx).
		Where("status = ?", domain.StatusNotStarted).
		Where("start_date <= ?", at).
		Order("start_date asc, id asc").
		Find(&campaigns).Error
	if err != nil {
		return nil, err
	}
	return campaigns, nil
}

func (r *repo) FindFinishedSince(ctx context.Context, since time.Time) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&domain.Campaign{}).
		Where("status IN ?", []domain.CampaignStatus{domain.StatusCompleted, domain.StatusCancel}).
		Where("end_date >= ?", since).
		Order("id asc").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) Transition(ctx context.Context, campaignID int64, to domain.CampaignStatus) error {
	if to != domain.StatusCompleted && to != domain.StatusCancel {
		return errors.New("transition target must be COMPLETED or CANCEL")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Campaign{}).
			Where("id = ?", campaignID).
			Where("status IN ?", []domain.CampaignStatus{domain.StatusActive, domain.StatusProcessing}).
			Update("status", to)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Model(&domain.Keyword{}).
			Where("campaign_id = ?", campaignID).
			Where("status <> ?", domain.ChildInactive).
			Update("status", domain.ChildInactive).Error; err != nil {
			return err
		}
		return tx.Model(&domain.Link{}).
			Where("campaign_id = ?", campaignID).
			Where("status <> ?", domain.ChildInactive).
			Update("status", domain.ChildInactive).Error
	})
}

func (r *repo) Activate(ctx context.Context, campaignID int64) error {
	res := r.db.WithContext(ctx).
		Model(&domain.Campaign{}).
		Where("id = ?", campaignID).
		Where("status = ?", domain.StatusNotStarted).
		Update("status", domain.StatusActive)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repo) GetWithChildren(ctx context.Context, tx *gorm.DB, campaignID int64) (*domain.Campaign, error) {
	if tx == nil {
		tx = r.db
	}
	var campaign domain.Campaign
	err := tx.WithContext(ctx).
		Preload("Keywords").
		Preload("Links").
		First(&campaign, campaignID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}
