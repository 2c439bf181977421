package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marketpay/internal/domain"
)

type WebhookEventRepository struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// Record stores ev unless its event id is already known, then bumps the
// attempt counter and returns the stored row.
func (r *WebhookEventRepository) Record(ctx context.Context, ev *domain.WebhookEvent) (*domain.WebhookEvent, error) {
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(ev).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&domain.WebhookEvent{}).
		Where("event_id = ?", ev.EventID).
		UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error; err != nil {
		return nil, err
	}
	return r.GetByEventID(ctx, ev.EventID)
}

func (r *WebhookEventRepository) GetByEventID(ctx context.Context, eventID string) (*domain.WebhookEvent, error) {
	var ev domain.WebhookEvent
	if err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&ev).Error; err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, eventID string) error {
	return r.db.WithContext(ctx).
		Model(&domain.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"processed_at":     time.Now().UTC(),
			"processing_error": "",
		}).Error
}

func (r *WebhookEventRepository) MarkFailed(ctx context.Context, eventID string, reason string) error {
	return r.db.WithContext(ctx).
		Model(&domain.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"processed_at":     time.Now().UTC(),
			"processing_error": reason,
		}).Error
}

// ListFailed returns events whose last processing attempt failed, oldest
// first, skipping those that already used maxAttempts.
func (r *WebhookEventRepository) ListFailed(ctx context.Context, maxAttempts, limit int) ([]domain.WebhookEvent, error) {
	var out []domain.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("processing_error IS NOT NULL AND processing_error <> '' AND attempts < ?", maxAttempts).
		Order("created_at asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}
