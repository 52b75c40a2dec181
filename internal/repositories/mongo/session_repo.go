package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/yoockh/medivoice/internal/models"
	"github.com/yoockh/medivoice/internal/utils"
)

// SessionRepository is the session store: one document per call holding
// the running conversation and the final report.
type SessionRepository interface {
	Create(ctx context.Context, s *models.Session) error
	GetBySessionID(ctx context.Context, sessionID string) (*models.Session, error)
	ListByUser(ctx context.Context, userID string, limit int64) ([]models.Session, error)
	MarkActive(ctx context.Context, sessionID string, startedAt time.Time) error
	AppendTurn(ctx context.Context, sessionID string, turn models.Turn) error
	SaveReport(ctx context.Context, sessionID string, r models.Report, conversation []models.Turn, reportStatus string) error
	SetArchivePath(ctx context.Context, sessionID, path string) error
	End(ctx context.Context, sessionID string, endedAt time.Time, durationSeconds int64) error
	SetStatus(ctx context.Context, sessionID, status string) error
}

type sessionRepo struct {
	col *mongo.Collection
}

func NewSessionRepo(db *mongo.Database) SessionRepository {
	return &sessionRepo{col: db.Collection("sessions")}
}

func (r *sessionRepo) Create(ctx context.Context, s *models.Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.Conversation == nil {
		s.Conversation = []models.Turn{}
	}
	_, err := r.col.InsertOne(ctx, s)
	if mongo.IsDuplicateKeyError(err) {
		return utils.ErrConflict
	}
	return err
}

func (r *sessionRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.Session, error) {
	var s models.Session
	err := r.col.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	return &s, err
}

func (r *sessionRepo) ListByUser(ctx context.Context, userID string, limit int64) ([]models.Session, error) {
	if limit <= 0 {
		limit = 20
	}
	cur, err := r.col.Find(ctx,
		bson.M{"user_id": userID},
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: -1}}).
			SetLimit(limit).
			SetProjection(bson.M{"conversation": 0}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Session{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sessionRepo) MarkActive(ctx context.Context, sessionID string, startedAt time.Time) error {
	return r.update(ctx, sessionID, bson.M{"$set": bson.M{
		"status":     models.SessionActive,
		"started_at": startedAt.UTC(),
	}})
}

// AppendTurn pushes one turn; callers append in conversational order.
func (r *sessionRepo) AppendTurn(ctx context.Context, sessionID string, turn models.Turn) error {
	return r.update(ctx, sessionID, bson.M{"$push": bson.M{"conversation": turn}})
}

func (r *sessionRepo) SaveReport(ctx context.Context, sessionID string, rep models.Report, conversation []models.Turn, reportStatus string) error {
	set := bson.M{
		"report":        rep,
		"report_status": reportStatus,
	}
	if conversation != nil {
		set["conversation"] = conversation
	}
	return r.update(ctx, sessionID, bson.M{"$set": set})
}

func (r *sessionRepo) SetArchivePath(ctx context.Context, sessionID, path string) error {
	return r.update(ctx, sessionID, bson.M{"$set": bson.M{"archive_path": path}})
}

func (r *sessionRepo) End(ctx context.Context, sessionID string, endedAt time.Time, durationSeconds int64) error {
	return r.update(ctx, sessionID, bson.M{"$set": bson.M{
		"status":           models.SessionEnded,
		"ended_at":         endedAt.UTC(),
		"duration_seconds": durationSeconds,
	}})
}

func (r *sessionRepo) SetStatus(ctx context.Context, sessionID, status string) error {
	return r.update(ctx, sessionID, bson.M{"$set": bson.M{"status": status}})
}

func (r *sessionRepo) update(ctx context.Context, sessionID string, upd bson.M) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"session_id": sessionID}, upd)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return utils.ErrNotFound
	}
	return nil
}
