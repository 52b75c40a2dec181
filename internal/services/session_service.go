package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yoockh/medivoice/internal/models"
	mongorepo "github.com/yoockh/medivoice/internal/repositories/mongo"
	"github.com/yoockh/medivoice/internal/utils"
)

const maxNotesLen = 2000

type SessionService interface {
	Start(ctx context.Context, userID string, doctorID int, notes string) (*models.Session, error)
	Get(ctx context.Context, userID, sessionID string) (*models.Session, error)
	List(ctx context.Context, userID string, limit int64) ([]models.Session, error)
	MarkActive(ctx context.Context, sessionID string) error
	End(ctx context.Context, sessionID string) (*models.Session, error)
}

type sessionService struct {
	sessions mongorepo.SessionRepository
}

func NewSessionService(sessions mongorepo.SessionRepository) SessionService {
	return &sessionService{sessions: sessions}
}

func (s *sessionService) Start(ctx context.Context, userID string, doctorID int, notes string) (*models.Session, error) {
	const op = "SessionService.Start"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	doctor, ok := models.DoctorByID(doctorID)
	if !ok {
		return nil, utils.E(utils.CodeInvalidArgument, op, "unknown doctor_id", nil)
	}
	notes = strings.TrimSpace(notes)
	if len(notes) > maxNotesLen {
		return nil, utils.E(utils.CodeInvalidArgument, op, "notes too long", nil)
	}

	session := &models.Session{
		SessionID:    uuid.NewString(),
		UserID:       userID,
		Doctor:       doctor,
		Notes:        notes,
		Status:       models.SessionCreated,
		Conversation: []models.Turn{},
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create session", err)
	}
	return session, nil
}

// Get returns the session if it belongs to userID. An empty userID skips
// the ownership check (internal callers).
func (s *sessionService) Get(ctx context.Context, userID, sessionID string) (*models.Session, error) {
	const op = "SessionService.Get"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}

	out, err := s.sessions.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get session", err)
	}
	if userID != "" && out.UserID != userID {
		return nil, utils.E(utils.CodeForbidden, op, "session belongs to another user", nil)
	}
	return out, nil
}

func (s *sessionService) List(ctx context.Context, userID string, limit int64) ([]models.Session, error) {
	const op = "SessionService.List"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	out, err := s.sessions.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list sessions", err)
	}
	return out, nil
}

func (s *sessionService) MarkActive(ctx context.Context, sessionID string) error {
	const op = "SessionService.MarkActive"

	if err := s.sessions.MarkActive(ctx, sessionID, time.Now().UTC()); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return utils.E(utils.CodeInternal, op, "failed to activate session", err)
	}
	return nil
}

// End marks the session ended. Ending an ended session is a no-op.
func (s *sessionService) End(ctx context.Context, sessionID string) (*models.Session, error) {
	const op = "SessionService.End"

	ss, err := s.Get(ctx, "", sessionID)
	if err != nil {
		return nil, err
	}
	if ss.Status == models.SessionEnded {
		return ss, nil
	}

	now := time.Now().UTC()
	from := ss.CreatedAt
	if ss.StartedAt != nil {
		from = *ss.StartedAt
	}
	dur := int64(now.Sub(from).Seconds())
	if dur < 0 {
		dur = 0
	}

	if err := s.sessions.End(ctx, sessionID, now, dur); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to end session", err)
	}

	ss.Status = models.SessionEnded
	ss.EndedAt = &now
	ss.DurationSeconds = dur
	return ss, nil
}
