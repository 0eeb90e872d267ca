package models

import (
	"time"

	"gorm.io/datatypes"
)

// AnalyticsEvent is one best-effort product analytics record. Events are queued
// in memory and written in batches; a dropped batch is acceptable.
type AnalyticsEvent struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement"`
	SessionID string         `gorm:"type:varchar(100);index;not null"`
	EventName string         `gorm:"type:varchar(100);index;not null"`
	Pathname  *string        `gorm:"type:text"`
	Referrer  *string        `gorm:"type:text"`
	UserAgent *string        `gorm:"type:text"`
	UTM       datatypes.JSON `gorm:"type:jsonb"`
	Params    datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (AnalyticsEvent) TableName() string {
	return "analytics_events"
}
