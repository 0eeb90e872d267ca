// Package leads implements waitlist and demo-request capture. Persistence is
// the only operation that can fail a submission; notification side effects
// are best-effort.
package leads

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"probable/internal/analytics"
	"probable/internal/models"
	"probable/internal/notify"
	"probable/internal/repository"
)

// ValidationError marks input problems caught before any persistence call.
// Handlers render it as a 400 with the message inline; it is not a system
// error and is not logged as one.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

var validProfessions = map[string]bool{
	"professional": true,
	"student":      true,
	"analyst":      true,
	"other":        true,
}

var validAudiences = map[string]bool{
	"individual":     true,
	"small_business": true,
}

type WaitlistInput struct {
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	Profession string   `json:"profession"`
	Audience   string   `json:"audience"`
	UseCases   []string `json:"use_cases"`
	Source     string   `json:"source"`
}

type WaitlistResult struct {
	OK            bool `json:"ok"`
	AlreadyJoined bool `json:"alreadyJoined"`
}

type DemoRequestInput struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Company        string `json:"company"`
	PreferredTimes string `json:"preferred_times"`
	Message        string `json:"message"`
	Source         string `json:"source"`
}

type DemoRequestResult struct {
	OK        bool      `json:"ok"`
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

type Service struct {
	Repo     repository.Repository
	Notifier *notify.Notifier
	Recorder *analytics.Recorder
	Logger   *zap.Logger

	// Default source tags when the client sends none.
	WaitlistSource string
	DemoSource     string
	NotifyTimeout  time.Duration
}

// SubmitWaitlist validates, normalizes, and upserts a waitlist lead keyed on
// email. A duplicate email reports AlreadyJoined success instead of an error:
// re-submission by the same user must never block the UX.
func (s *Service) SubmitWaitlist(ctx context.Context, in WaitlistInput) (WaitlistResult, error) {
	if strings.TrimSpace(in.Name) == "" {
		return WaitlistResult{}, &ValidationError{Field: "name", Message: "name is required"}
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return WaitlistResult{}, &ValidationError{Field: "email", Message: "a valid email is required"}
	}
	if !validProfessions[in.Profession] {
		return WaitlistResult{}, &ValidationError{Field: "profession", Message: "please select a profession"}
	}
	if !validAudiences[in.Audience] {
		return WaitlistResult{}, &ValidationError{Field: "audience", Message: "please select who this is for"}
	}

	source := in.Source
	if source == "" {
		source = s.WaitlistSource
	}
	item := &models.WaitlistLead{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(in.Name),
		Email:      email,
		Profession: in.Profession,
		Audience:   in.Audience,
		Source:     source,
	}
	if len(in.UseCases) > 0 {
		if raw, err := json.Marshal(in.UseCases); err == nil {
			item.UseCases = datatypes.JSON(raw)
		}
	}

	res, err := s.Repo.UpsertWaitlistLead(ctx, item)
	if err != nil {
		s.Recorder.Track("waitlist_error", analytics.Context{Params: map[string]any{"source": source}})
		if s.Logger != nil {
			s.Logger.Error("waitlist upsert failed", zap.Error(err))
		}
		return WaitlistResult{}, fmt.Errorf("could not save your signup, please try again: %w", err)
	}

	s.Recorder.Track("waitlist_submit", analytics.Context{Params: map[string]any{
		"source":          source,
		"profession":      in.Profession,
		"audience":        in.Audience,
		"use_cases_count": len(in.UseCases),
		"already_joined":  res.AlreadyJoined,
	}})
	return WaitlistResult{OK: true, AlreadyJoined: res.AlreadyJoined}, nil
}

// SubmitDemoRequest persists the lead, then fires the notification channels.
// Notification failure is swallowed: only persistence failure is an error.
func (s *Service) SubmitDemoRequest(ctx context.Context, in DemoRequestInput) (DemoRequestResult, error) {
	if strings.TrimSpace(in.Name) == "" {
		return DemoRequestResult{}, &ValidationError{Field: "name", Message: "name is required"}
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return DemoRequestResult{}, &ValidationError{Field: "email", Message: "a valid email is required"}
	}
	if strings.TrimSpace(in.Message) == "" {
		return DemoRequestResult{}, &ValidationError{Field: "message", Message: "message is required"}
	}

	source := in.Source
	if source == "" {
		source = s.DemoSource
	}
	item := &models.DemoRequest{
		ID:      uuid.NewString(),
		Name:    strings.TrimSpace(in.Name),
		Email:   email,
		Message: strings.TrimSpace(in.Message),
		Source:  source,
	}
	if v := strings.TrimSpace(in.Company); v != "" {
		item.Company = &v
	}
	if v := strings.TrimSpace(in.PreferredTimes); v != "" {
		item.PreferredTimes = &v
	}

	if err := s.Repo.InsertDemoRequest(ctx, item); err != nil {
		s.Recorder.Track("demo_request_error", analytics.Context{Params: map[string]any{"source": source}})
		if s.Logger != nil {
			s.Logger.Error("demo request insert failed", zap.Error(err))
		}
		return DemoRequestResult{}, fmt.Errorf("could not send your request, please try again: %w", err)
	}

	s.notifyDemoRequest(item)
	s.Recorder.Track("demo_request_submit", analytics.Context{Params: map[string]any{"source": source}})
	return DemoRequestResult{OK: true, ID: item.ID, CreatedAt: item.CreatedAt}, nil
}

func (s *Service) notifyDemoRequest(item *models.DemoRequest) {
	if s.Notifier == nil {
		return
	}
	timeout := s.NotifyTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	// Detached from the request context: the caller's response must not wait
	// on, or fail with, the notification.
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	payload := map[string]any{
		"request_id": item.ID,
		"name":       item.Name,
		"email":      item.Email,
		"message":    item.Message,
		"source":     item.Source,
	}
	if item.Company != nil {
		payload["company"] = *item.Company
	}
	if item.PreferredTimes != nil {
		payload["preferred_times"] = *item.PreferredTimes
	}
	_ = s.Notifier.Notify(ctx, "New demo request", payload)
}
