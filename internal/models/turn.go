package models

import (
	"strings"
	"time"
)

type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// Turn is one committed utterance. Turns are immutable once appended.
type Turn struct {
	Speaker   Speaker   `bson:"speaker" json:"speaker"`
	Text      string    `bson:"text" json:"text"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// Role maps the speaker onto the chat role used by inference backends.
func (t Turn) Role() string {
	if t.Speaker == SpeakerAgent {
		return "assistant"
	}
	return "user"
}

// Line renders the turn as "ROLE: text" for report extraction, using the
// chat role ("USER:", "ASSISTANT:").
func (t Turn) Line() string {
	return strings.ToUpper(t.Role()) + ": " + t.Text
}
