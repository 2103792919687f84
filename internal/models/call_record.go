package models

import (
	"time"

	"gorm.io/gorm"
)

// CallRecord is a lightweight log of one finished practice call. No audio or
// transcript is stored, only coaching metadata for the identity's history.
type CallRecord struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`

	AnonymousID     string `json:"anonymousId" gorm:"size:64;index"`
	ScenarioID      string `json:"scenarioId" gorm:"size:50"`
	DurationSeconds int    `json:"durationSeconds"`
	Outcome         string `json:"outcome" gorm:"size:30"`
	OverallScore    int    `json:"overallScore"`
}

func (CallRecord) TableName() string {
	return "call_records"
}

// RecordCall persists one finished call's coaching metadata.
func RecordCall(db *gorm.DB, rec *CallRecord) error {
	return db.Create(rec).Error
}
