// Package report turns a finished call transcript into a structured
// consultation report.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/medivoice/internal/models"
	"github.com/yoockh/medivoice/internal/providers/llm"
)

const extractionPrompt = `You are an AI Medical Voice Agent that just finished a voice conversation with a user. Based on doctor AI agent info and the conversation between AI Medical Agent and user, generate a structured report with the following fields:

1. sessionId: a unique session identifier
2. agent: the medical specialist name (e.g., "General Physician AI")
3. user: name of the patient or "Anonymous" if not provided
4. timestamp: current date and time in ISO format
5. chiefComplaint: one-sentence summary of the main health concern
6. summary: a 2-3 sentence summary of the conversation, symptoms, and recommendations
7. symptoms: list of symptoms mentioned by the user
8. duration: how long the user has experienced the symptoms
9. severity: mild, moderate, or severe
10. medicationsMentioned: list of any medicines mentioned
11. recommendations: list of AI suggestions (e.g., rest, see a doctor)

Return the result in this JSON format:
{
 "sessionId": "string",
 "agent": "string",
 "user": "string",
 "timestamp": "ISO Date string",
 "chiefComplaint": "string",
 "summary": "string",
 "symptoms": ["symptom1", "symptom2"],
 "duration": "string",
 "severity": "string",
 "medicationsMentioned": ["med1", "med2"],
 "recommendations": ["rec1", "rec2"]
}
Only include valid fields. Respond with nothing else.`

const (
	DefaultUser           = "Patient"
	DefaultChiefComplaint = "Not recorded"
	DefaultSummary        = "Consultation completed"
	DefaultDuration       = "Not specified"
	DefaultSeverity       = "Not assessed"
)

var ErrMalformed = errors.New("report: malformed extraction response")

// Store receives the finished report. degraded marks a report built from
// defaults after extraction failed.
type Store interface {
	SaveReport(ctx context.Context, sessionID string, r models.Report, turns []models.Turn, degraded bool) error
}

type Exporter struct {
	llm   llm.Provider
	store Store
	log   *logrus.Logger
	now   func() time.Time
}

func NewExporter(p llm.Provider, store Store, log *logrus.Logger) *Exporter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Exporter{llm: p, store: store, log: log, now: time.Now}
}

// Export asks inference for the report, fills defaults and stores it. A
// failed extraction still stores and returns a default report together
// with the error.
func (e *Exporter) Export(ctx context.Context, sessionID string, doctor models.DoctorProfile, turns []models.Turn) (*models.Report, error) {
	l := e.log.WithFields(logrus.Fields{"session_id": sessionID, "turns": len(turns)})

	raw, extractErr := e.llm.Complete(ctx, llm.Request{
		SystemPrompt: extractionPrompt,
		History:      []llm.Message{{Role: llm.RoleUser, Content: UserContent(doctor, turns)}},
		Temperature:  0.3,
		MaxTokens:    1000,
		JSON:         true,
	})

	var parsed partial
	if extractErr == nil {
		parsed, extractErr = parse(raw)
	}
	if extractErr != nil {
		l.WithError(extractErr).Warn("report extraction failed, storing defaults")
	}

	r := e.complete(parsed, sessionID, doctor, turns)
	degraded := extractErr != nil

	if e.store != nil {
		if err := e.store.SaveReport(ctx, sessionID, r, turns, degraded); err != nil {
			l.WithError(err).Error("store report failed")
			return &r, errors.Join(extractErr, fmt.Errorf("store report: %w", err))
		}
	}
	if degraded {
		return &r, extractErr
	}
	l.Info("report stored")
	return &r, nil
}

// UserContent renders the doctor specialty and the transcript as the
// extraction input.
func UserContent(doctor models.DoctorProfile, turns []models.Turn) string {
	specialist := doctor.Specialist
	if specialist == "" {
		specialist = "General Physician"
	}

	var b strings.Builder
	b.WriteString("AI DOCTOR AGENT INFO:\nSpecialist: ")
	b.WriteString(specialist)
	b.WriteString("\n\nCONVERSATION:\n")
	for _, t := range turns {
		b.WriteString(t.Line())
		b.WriteByte('\n')
	}
	return b.String()
}

// partial mirrors the extraction contract; pointers tell absent from empty.
type partial struct {
	Agent                *string   `json:"agent"`
	User                 *string   `json:"user"`
	Timestamp            *string   `json:"timestamp"`
	ChiefComplaint       *string   `json:"chiefComplaint"`
	Summary              *string   `json:"summary"`
	Symptoms             *[]string `json:"symptoms"`
	Duration             *string   `json:"duration"`
	Severity             *string   `json:"severity"`
	MedicationsMentioned *[]string `json:"medicationsMentioned"`
	Recommendations      *[]string `json:"recommendations"`
}

// parse strips code fences and decodes the extraction object. Fields are
// decoded one by one so a field of the wrong type only loses that field.
func parse(raw string) (partial, error) {
	var p partial
	s := stripFences(raw)
	if s == "" {
		return p, fmt.Errorf("%w: empty response", ErrMalformed)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &fields); err != nil {
		return partial{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	strs := map[string]**string{
		"agent":          &p.Agent,
		"user":           &p.User,
		"timestamp":      &p.Timestamp,
		"chiefComplaint": &p.ChiefComplaint,
		"summary":        &p.Summary,
		"duration":       &p.Duration,
		"severity":       &p.Severity,
	}
	for k, dst := range strs {
		if v, ok := fields[k]; ok {
			var out string
			if json.Unmarshal(v, &out) == nil {
				*dst = &out
			}
		}
	}

	lists := map[string]**[]string{
		"symptoms":             &p.Symptoms,
		"medicationsMentioned": &p.MedicationsMentioned,
		"recommendations":      &p.Recommendations,
	}
	for k, dst := range lists {
		if v, ok := fields[k]; ok {
			var out []string
			if json.Unmarshal(v, &out) == nil {
				*dst = &out
			}
		}
	}
	return p, nil
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	s = strings.TrimSpace(s)
	// keep only the outermost object
	if i, j := strings.Index(s, "{"), strings.LastIndex(s, "}"); i >= 0 && j > i {
		s = s[i : j+1]
	}
	return s
}

func (e *Exporter) complete(p partial, sessionID string, doctor models.DoctorProfile, turns []models.Turn) models.Report {
	agent := doctor.Specialist
	if agent == "" {
		agent = "Medical AI Agent"
	}
	return models.Report{
		SessionID:            sessionID,
		Agent:                str(p.Agent, agent),
		User:                 str(p.User, DefaultUser),
		Timestamp:            str(p.Timestamp, e.now().UTC().Format(time.RFC3339)),
		ChiefComplaint:       str(p.ChiefComplaint, DefaultChiefComplaint),
		Summary:              str(p.Summary, DefaultSummary),
		Symptoms:             list(p.Symptoms),
		Duration:             str(p.Duration, DefaultDuration),
		Severity:             str(p.Severity, DefaultSeverity),
		MedicationsMentioned: list(p.MedicationsMentioned),
		Recommendations:      list(p.Recommendations),
		ConversationLength:   len(turns),
	}
}

func str(v *string, def string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return def
	}
	return *v
}

func list(v *[]string) []string {
	if v == nil || *v == nil {
		return []string{}
	}
	return *v
}
