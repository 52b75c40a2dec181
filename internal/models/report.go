package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// Report is the structured end-of-call summary.
type Report struct {
	SessionID            string   `bson:"session_id" json:"sessionId"`
	Agent                string   `bson:"agent" json:"agent"`
	User                 string   `bson:"user" json:"user"`
	Timestamp            string   `bson:"timestamp" json:"timestamp"` // RFC 3339
	ChiefComplaint       string   `bson:"chief_complaint" json:"chiefComplaint"`
	Summary              string   `bson:"summary" json:"summary"`
	Symptoms             []string `bson:"symptoms" json:"symptoms"`
	Duration             string   `bson:"duration" json:"duration"`
	Severity             string   `bson:"severity" json:"severity"`
	MedicationsMentioned []string `bson:"medications_mentioned" json:"medicationsMentioned"`
	Recommendations      []string `bson:"recommendations" json:"recommendations"`
	ConversationLength   int      `bson:"conversation_length" json:"conversationLength"`
}

// ReportRecord is the Postgres row backing consultation history.
type ReportRecord struct {
	SessionID      string `gorm:"column:session_id;type:text;primaryKey" json:"session_id"`
	UserID         string `gorm:"column:user_id;type:text;index" json:"user_id"`
	Specialist     string `gorm:"column:specialist;type:text" json:"specialist"`
	ChiefComplaint string `gorm:"column:chief_complaint;type:text" json:"chief_complaint"`
	Summary        string `gorm:"column:summary;type:text" json:"summary"`
	Severity       string `gorm:"column:severity;type:text" json:"severity"`
	Duration       string `gorm:"column:duration;type:text" json:"duration"`

	Symptoms        pq.StringArray `gorm:"column:symptoms;type:text[]" json:"symptoms"`
	Medications     pq.StringArray `gorm:"column:medications;type:text[]" json:"medications"`
	Recommendations pq.StringArray `gorm:"column:recommendations;type:text[]" json:"recommendations"`

	ConversationLength int            `gorm:"column:conversation_length;type:integer" json:"conversation_length"`
	Degraded           bool           `gorm:"column:degraded;type:boolean" json:"degraded"`
	Payload            datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	CreatedAt          time.Time      `gorm:"column:created_at;type:timestamptz;index" json:"created_at"`
}

func (ReportRecord) TableName() string { return "consultation_reports" }
