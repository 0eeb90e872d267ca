package gormrepository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"probable/internal/models"
	"probable/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- Leads ------------------------------------------------------------------

// UpsertWaitlistLead inserts a lead keyed on email. A conflicting email leaves
// the existing row untouched and reports AlreadyJoined instead of failing,
// matching the idempotent-signup contract.
func (s *Store) UpsertWaitlistLead(ctx context.Context, item *models.WaitlistLead) (repository.UpsertResult, error) {
	if s == nil || s.db == nil || item == nil {
		return repository.UpsertResult{}, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoNothing: true,
	}).Create(item)
	if res.Error != nil {
		return repository.UpsertResult{}, res.Error
	}
	return repository.UpsertResult{AlreadyJoined: res.RowsAffected == 0}, nil
}

func (s *Store) GetWaitlistLeadByEmail(ctx context.Context, email string) (*models.WaitlistLead, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.WaitlistLead
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListWaitlistLeads(ctx context.Context, params repository.ListLeadsParams) ([]models.WaitlistLead, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	q := s.db.WithContext(ctx).Model(&models.WaitlistLead{}).Order("created_at DESC")
	if params.Source != "" {
		q = q.Where("source = ?", params.Source)
	}
	if params.Limit > 0 {
		q = q.Limit(params.Limit)
	}
	if params.Offset > 0 {
		q = q.Offset(params.Offset)
	}
	var items []models.WaitlistLead
	if err := q.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountWaitlistLeads(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.WaitlistLead{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) InsertDemoRequest(ctx context.Context, item *models.DemoRequest) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListDemoRequests(ctx context.Context, params repository.ListLeadsParams) ([]models.DemoRequest, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	q := s.db.WithContext(ctx).Model(&models.DemoRequest{}).Order("created_at DESC")
	if params.Source != "" {
		q = q.Where("source = ?", params.Source)
	}
	if params.Limit > 0 {
		q = q.Limit(params.Limit)
	}
	if params.Offset > 0 {
		q = q.Offset(params.Offset)
	}
	var items []models.DemoRequest
	if err := q.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Analytics --------------------------------------------------------------

func (s *Store) InsertAnalyticsEvents(ctx context.Context, items []models.AnalyticsEvent) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(items, 100).Error
}

func (s *Store) ListAnalyticsEvents(ctx context.Context, params repository.ListEventsParams) ([]models.AnalyticsEvent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	q := s.db.WithContext(ctx).Model(&models.AnalyticsEvent{}).Order("created_at DESC")
	if params.SessionID != "" {
		q = q.Where("session_id = ?", params.SessionID)
	}
	if params.EventName != "" {
		q = q.Where("event_name = ?", params.EventName)
	}
	if params.Since != nil {
		q = q.Where("created_at >= ?", *params.Since)
	}
	if params.Limit > 0 {
		q = q.Limit(params.Limit)
	}
	if params.Offset > 0 {
		q = q.Offset(params.Offset)
	}
	var items []models.AnalyticsEvent
	if err := q.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) DeleteAnalyticsEventsBefore(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Where("created_at < ?", before).Delete(&models.AnalyticsEvent{})
	return res.RowsAffected, res.Error
}
