package call

import (
	"time"

	"github.com/yoockh/medivoice/internal/models"
)

type NoticeKind string

const (
	NoticeInput     NoticeKind = "input"
	NoticeReasoning NoticeKind = "reasoning"
	NoticeOutput    NoticeKind = "output"
	NoticeExport    NoticeKind = "export"
)

// Notice is a transient, non-blocking message for the caller.
type Notice struct {
	ID       string     `json:"id"`
	Kind     NoticeKind `json:"kind"`
	Code     string     `json:"code,omitempty"`
	Message  string     `json:"message"`
	Degraded bool       `json:"degraded,omitempty"`
}

type UpdateType string

const (
	UpdateState   UpdateType = "state"
	UpdateInterim UpdateType = "interim"
	UpdateTurn    UpdateType = "turn"
	UpdateNotice  UpdateType = "notice"
	UpdateReport  UpdateType = "report"
	UpdateReset   UpdateType = "playback_reset"
)

// Update is what a call publishes to its listeners.
type Update struct {
	Type      UpdateType     `json:"type"`
	SessionID string         `json:"session_id"`
	State     string         `json:"state,omitempty"`
	From      string         `json:"from,omitempty"`
	Text      string         `json:"text,omitempty"`
	Turn      *models.Turn   `json:"turn,omitempty"`
	Notice    *Notice        `json:"notice,omitempty"`
	Report    *models.Report `json:"report,omitempty"`
	At        time.Time      `json:"at"`
}
