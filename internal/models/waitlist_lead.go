package models

import (
	"time"

	"gorm.io/datatypes"
)

// WaitlistLead is one waitlist signup. Email carries a unique index so a
// re-submission by the same user upserts instead of erroring.
type WaitlistLead struct {
	ID         string         `gorm:"primaryKey;type:uuid"`
	Name       string         `gorm:"type:text;not null"`
	Email      string         `gorm:"type:text;uniqueIndex;not null"`
	Profession string         `gorm:"type:varchar(50);not null"`
	Audience   string         `gorm:"type:varchar(50);not null"`
	UseCases   datatypes.JSON `gorm:"type:jsonb"`
	Source     string         `gorm:"type:varchar(100);not null"`
	CreatedAt  time.Time      `gorm:"type:timestamptz;autoCreateTime"`
}

func (WaitlistLead) TableName() string {
	return "waitlist_leads"
}
