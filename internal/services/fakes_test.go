package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/yoockh/medivoice/internal/models"
	"github.com/yoockh/medivoice/internal/providers/llm"
	"github.com/yoockh/medivoice/internal/providers/stt"
	"github.com/yoockh/medivoice/internal/utils"
)

type memSessions struct {
	mu   sync.Mutex
	byID map[string]*models.Session
}

func newMemSessions() *memSessions {
	return &memSessions{byID: map[string]*models.Session{}}
}

func (m *memSessions) put(s *models.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[s.SessionID] = s
}

func (m *memSessions) get(id string) *models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

func (m *memSessions) with(id string, fn func(s *models.Session)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return utils.ErrNotFound
	}
	fn(s)
	return nil
}

func (m *memSessions) Create(ctx context.Context, s *models.Session) error {
	m.put(s)
	return nil
}

func (m *memSessions) GetBySessionID(ctx context.Context, id string) (*models.Session, error) {
	if s := m.get(id); s != nil {
		return s, nil
	}
	return nil, utils.ErrNotFound
}

func (m *memSessions) ListByUser(ctx context.Context, userID string, limit int64) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Session
	for _, s := range m.byID {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memSessions) MarkActive(ctx context.Context, id string, at time.Time) error {
	return m.with(id, func(s *models.Session) {
		s.Status = models.SessionActive
		s.StartedAt = &at
	})
}

func (m *memSessions) AppendTurn(ctx context.Context, id string, t models.Turn) error {
	return m.with(id, func(s *models.Session) { s.Conversation = append(s.Conversation, t) })
}

func (m *memSessions) SaveReport(ctx context.Context, id string, r models.Report, turns []models.Turn, status string) error {
	return m.with(id, func(s *models.Session) {
		s.Report = &r
		s.Conversation = turns
		s.ReportStatus = status
	})
}

func (m *memSessions) SetArchivePath(ctx context.Context, id, path string) error {
	return m.with(id, func(s *models.Session) { s.ArchivePath = path })
}

func (m *memSessions) End(ctx context.Context, id string, at time.Time, dur int64) error {
	return m.with(id, func(s *models.Session) {
		s.Status = models.SessionEnded
		s.EndedAt = &at
		s.DurationSeconds = dur
	})
}

func (m *memSessions) SetStatus(ctx context.Context, id, status string) error {
	return m.with(id, func(s *models.Session) { s.Status = status })
}

type memReports struct {
	mu   sync.Mutex
	rows []models.ReportRecord
	err  error
}

func (m *memReports) Upsert(ctx context.Context, r *models.ReportRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, *r)
	return nil
}

func (m *memReports) GetBySession(ctx context.Context, id string) (*models.ReportRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.SessionID == id {
			return &r, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (m *memReports) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.ReportRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ReportRecord
	for _, r := range m.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memReports) ListAll(ctx context.Context, limit, offset int) ([]models.ReportRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ReportRecord(nil), m.rows...), nil
}

type memCache struct {
	mu   sync.Mutex
	vals map[string]any
}

func (c *memCache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vals[key]
	if !ok {
		return false, nil
	}
	r, ok := v.(models.Report)
	if !ok {
		return false, errors.New("unexpected cache value")
	}
	*(dst.(*models.Report)) = r
	return true, nil
}

func (c *memCache) SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vals == nil {
		c.vals = map[string]any{}
	}
	switch v := val.(type) {
	case *models.Report:
		c.vals[key] = *v
	default:
		c.vals[key] = val
	}
	return nil
}

func (c *memCache) Del(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.vals, k)
	}
	return nil
}

type recordingQueue struct {
	mu  sync.Mutex
	ids []string
}

func (q *recordingQueue) Enqueue(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, id)
	return nil
}

// --- call providers ---

type idleRecognizer struct{}

func (idleRecognizer) Open(ctx context.Context, cfg stt.Config) (stt.Stream, error) {
	return nil, errors.New("not used")
}

func (idleRecognizer) Close() error { return nil }

type quietSynth struct{}

func (quietSynth) Synthesize(ctx context.Context, text, voice string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (quietSynth) SampleRate() int { return 24000 }

type echoLLM struct{}

func (echoLLM) Complete(ctx context.Context, req llm.Request) (string, error) { return "ok", nil }
func (echoLLM) Close() error                                                  { return nil }

type nullSink struct{}

func (nullSink) WriteAudio(ctx context.Context, pcm []byte) error { return nil }
func (nullSink) Reset()                                           {}

type stubExporter struct {
	mu    sync.Mutex
	calls int
	turns []models.Turn
	err   error
}

func (e *stubExporter) Export(ctx context.Context, sessionID string, d models.DoctorProfile, turns []models.Turn) (*models.Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.turns = turns
	r := &models.Report{SessionID: sessionID, Agent: d.Specialist, ConversationLength: len(turns)}
	return r, e.err
}

func (e *stubExporter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}
