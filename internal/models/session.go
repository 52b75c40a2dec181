package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	SessionCreated = "created"
	SessionActive  = "active"
	SessionEnded   = "ended"
)

const (
	ReportPending  = "pending"
	ReportReady    = "ready"
	ReportDegraded = "degraded" // call ended but the report may be incomplete
)

// Session is the persisted call record: profile, running conversation and final report.
type Session struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	SessionID string             `bson:"session_id" json:"session_id"` // uuid v4
	UserID    string             `bson:"user_id" json:"user_id"`

	Doctor DoctorProfile `bson:"doctor" json:"doctor"`
	Notes  string        `bson:"notes,omitempty" json:"notes,omitempty"`
	Status string        `bson:"status" json:"status"` // created|active|ended

	Conversation []Turn  `bson:"conversation" json:"conversation"`
	Report       *Report `bson:"report,omitempty" json:"report,omitempty"`
	ReportStatus string  `bson:"report_status,omitempty" json:"report_status,omitempty"`
	ArchivePath  string  `bson:"archive_path,omitempty" json:"archive_path,omitempty"`

	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	StartedAt *time.Time `bson:"started_at,omitempty" json:"started_at,omitempty"`
	EndedAt   *time.Time `bson:"ended_at,omitempty" json:"ended_at,omitempty"`

	DurationSeconds int64 `bson:"duration_seconds" json:"duration_seconds"`
}
