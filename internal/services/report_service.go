package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/yoockh/medivoice/internal/cache"
	"github.com/yoockh/medivoice/internal/models"
	mongorepo "github.com/yoockh/medivoice/internal/repositories/mongo"
	pgrepo "github.com/yoockh/medivoice/internal/repositories/postgres"
	"github.com/yoockh/medivoice/internal/utils"
)

// ArchiveQueue schedules a finished session for long-term storage.
type ArchiveQueue interface {
	Enqueue(ctx context.Context, sessionID string) error
}

type ReportService interface {
	// SaveReport stores a finished report in the session store and fans it
	// out to history, cache and archive.
	SaveReport(ctx context.Context, sessionID string, r models.Report, turns []models.Turn, degraded bool) error
	Get(ctx context.Context, userID, sessionID string) (*models.Report, error)
	History(ctx context.Context, userID string, limit, offset int) ([]models.ReportRecord, error)
	ListAll(ctx context.Context, limit, offset int) ([]models.ReportRecord, error)
}

type reportService struct {
	sessions mongorepo.SessionRepository
	reports  pgrepo.ReportRepo
	cache    cache.Cache
	archive  ArchiveQueue
	ttl      time.Duration
	log      *logrus.Logger
}

// NewReportService wires the report sinks; reports, cache and archive may
// be nil.
func NewReportService(sessions mongorepo.SessionRepository, reports pgrepo.ReportRepo, c cache.Cache, archive ArchiveQueue, ttl time.Duration, log *logrus.Logger) ReportService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &reportService{sessions: sessions, reports: reports, cache: c, archive: archive, ttl: ttl, log: log}
}

func (s *reportService) SaveReport(ctx context.Context, sessionID string, r models.Report, turns []models.Turn, degraded bool) error {
	const op = "ReportService.SaveReport"

	status := models.ReportReady
	if degraded {
		status = models.ReportDegraded
	}
	if err := s.sessions.SaveReport(ctx, sessionID, r, turns, status); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return utils.E(utils.CodeInternal, op, "failed to store report", err)
	}

	l := s.log.WithField("session_id", sessionID)

	if s.reports != nil {
		if err := s.recordHistory(ctx, sessionID, r, degraded); err != nil {
			l.WithError(err).Warn("report history upsert failed")
		}
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, cache.ReportKey(sessionID), r, s.ttl); err != nil {
			l.WithError(err).Warn("report cache set failed")
		}
	}
	if s.archive != nil {
		if err := s.archive.Enqueue(ctx, sessionID); err != nil {
			l.WithError(err).Warn("archive enqueue failed")
		}
	}
	return nil
}

func (s *reportService) recordHistory(ctx context.Context, sessionID string, r models.Report, degraded bool) error {
	sess, err := s.sessions.GetBySessionID(ctx, sessionID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.reports.Upsert(ctx, &models.ReportRecord{
		SessionID:          sessionID,
		UserID:             sess.UserID,
		Specialist:         sess.Doctor.Specialist,
		ChiefComplaint:     r.ChiefComplaint,
		Summary:            r.Summary,
		Severity:           r.Severity,
		Duration:           r.Duration,
		Symptoms:           r.Symptoms,
		Medications:        r.MedicationsMentioned,
		Recommendations:    r.Recommendations,
		ConversationLength: r.ConversationLength,
		Degraded:           degraded,
		Payload:            datatypes.JSON(payload),
		CreatedAt:          time.Now().UTC(),
	})
}

func (s *reportService) Get(ctx context.Context, userID, sessionID string) (*models.Report, error) {
	const op = "ReportService.Get"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}

	sess, err := s.sessions.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get session", err)
	}
	if userID != "" && sess.UserID != userID {
		return nil, utils.E(utils.CodeForbidden, op, "session belongs to another user", nil)
	}

	if s.cache != nil {
		var cached models.Report
		if hit, err := s.cache.GetJSON(ctx, cache.ReportKey(sessionID), &cached); err == nil && hit {
			return &cached, nil
		}
	}
	if sess.Report == nil {
		return nil, utils.E(utils.CodeNotFound, op, "report not ready", nil)
	}
	if s.cache != nil {
		_ = s.cache.SetJSON(ctx, cache.ReportKey(sessionID), sess.Report, s.ttl)
	}
	return sess.Report, nil
}

func (s *reportService) History(ctx context.Context, userID string, limit, offset int) ([]models.ReportRecord, error) {
	const op = "ReportService.History"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	if s.reports == nil {
		return nil, utils.E(utils.CodeUnavailable, op, "report history is not configured", nil)
	}
	rows, err := s.reports.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list reports", err)
	}
	return rows, nil
}

func (s *reportService) ListAll(ctx context.Context, limit, offset int) ([]models.ReportRecord, error) {
	const op = "ReportService.ListAll"

	if s.reports == nil {
		return nil, utils.E(utils.CodeUnavailable, op, "report history is not configured", nil)
	}
	rows, err := s.reports.ListAll(ctx, limit, offset)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list reports", err)
	}
	return rows, nil
}
