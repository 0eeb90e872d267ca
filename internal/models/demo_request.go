package models

import "time"

// DemoRequest is a sales-demo lead from the support page. Persisting it is the
// operation that matters; the follow-up notification is best-effort.
type DemoRequest struct {
	ID             string    `gorm:"primaryKey;type:uuid"`
	Name           string    `gorm:"type:text;not null"`
	Email          string    `gorm:"type:text;index;not null"`
	Company        *string   `gorm:"type:text"`
	PreferredTimes *string   `gorm:"type:text"`
	Message        string    `gorm:"type:text;not null"`
	Source         string    `gorm:"type:varchar(100);not null"`
	CreatedAt      time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (DemoRequest) TableName() string {
	return "demo_requests"
}
