package repository

import (
	"context"
	"time"

	"probable/internal/models"
)

// UpsertResult reports what the waitlist upsert actually did. An existing row
// for the same email is a success, not a conflict error.
type UpsertResult struct {
	AlreadyJoined bool
}

type ListLeadsParams struct {
	Limit  int
	Offset int
	Source string
}

type ListEventsParams struct {
	Limit     int
	Offset    int
	SessionID string
	EventName string
	Since     *time.Time
}

// Repository is the persistence surface for leads and analytics. Chat sessions
// live in Redis, not here.
type Repository interface {
	// Leads.
	UpsertWaitlistLead(ctx context.Context, item *models.WaitlistLead) (UpsertResult, error)
	GetWaitlistLeadByEmail(ctx context.Context, email string) (*models.WaitlistLead, error)
	ListWaitlistLeads(ctx context.Context, params ListLeadsParams) ([]models.WaitlistLead, error)
	CountWaitlistLeads(ctx context.Context) (int64, error)
	InsertDemoRequest(ctx context.Context, item *models.DemoRequest) error
	ListDemoRequests(ctx context.Context, params ListLeadsParams) ([]models.DemoRequest, error)

	// Analytics.
	InsertAnalyticsEvents(ctx context.Context, items []models.AnalyticsEvent) error
	ListAnalyticsEvents(ctx context.Context, params ListEventsParams) ([]models.AnalyticsEvent, error)
	DeleteAnalyticsEventsBefore(ctx context.Context, before time.Time) (int64, error)
}
