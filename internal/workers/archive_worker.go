package workers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/medivoice/internal/models"
	"github.com/yoockh/medivoice/internal/storage"
)

const (
	ArchiveStream = "report:archive"
	archiveGroup  = "report-archivers"
)

// SessionSource is the slice of the session store the archiver needs.
type SessionSource interface {
	GetBySessionID(ctx context.Context, sessionID string) (*models.Session, error)
	SetArchivePath(ctx context.Context, sessionID, path string) error
}

type Publisher interface {
	Publish(ctx context.Context, sessionID string, v any) error
}

// ArchiveWorkerPool copies finished session records to object storage.
// Jobs arrive on a Redis stream so any instance can pick them up.
type ArchiveWorkerPool struct {
	Redis      *redis.Client
	Sessions   SessionSource
	Uploader   storage.Uploader
	Publisher  Publisher
	NumWorkers int

	Logger *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string
}

// EnqueueArchive schedules a session for archiving.
func EnqueueArchive(ctx context.Context, rdb *redis.Client, sessionID string) error {
	return rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: ArchiveStream,
		MaxLen: 10000,
		Approx: true,
		Values: map[string]any{"session_id": sessionID, "enqueued_at": strconv.FormatInt(time.Now().Unix(), 10)},
	}).Err()
}

func (p *ArchiveWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Sessions == nil || p.Uploader == nil {
		return errors.New("ArchiveWorkerPool missing dependency: Redis/Sessions/Uploader must be set")
	}
	p.defaults()

	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go p.runConsumer(ctx, consumer)
	}
	return nil
}

func (p *ArchiveWorkerPool) defaults() {
	if p.Stream == "" {
		p.Stream = ArchiveStream
	}
	if p.Group == "" {
		p.Group = archiveGroup
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "archiver"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 2
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}
}

func (p *ArchiveWorkerPool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			p.Logger.WithError(err).WithField("consumer", consumer).Warn("archive stream read failed")
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				sessionID, _ := msg.Values["session_id"].(string)
				if err := p.Archive(ctx, sessionID); err != nil {
					p.Logger.WithError(err).WithFields(logrus.Fields{
						"redis_id":   msg.ID,
						"session_id": sessionID,
					}).Error("archive failed")
				}
				_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
			}
		}
	}
}

// Archive uploads one session record as reports/<session_id>.json.
func (p *ArchiveWorkerPool) Archive(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.New("archive job without session_id")
	}
	s, err := p.Sessions.GetBySessionID(ctx, sessionID)
	if err != nil {
		return err
	}
	if s.Report == nil {
		return errors.New("session has no report yet")
	}

	path, err := storage.UploadJSON(ctx, p.Uploader, "reports/"+sessionID+".json", s)
	if err != nil {
		return err
	}
	if err := p.Sessions.SetArchivePath(ctx, sessionID, path); err != nil {
		return err
	}

	if p.Logger != nil {
		p.Logger.WithFields(logrus.Fields{"session_id": sessionID, "path": path}).Info("session archived")
	}
	if p.Publisher != nil {
		_ = p.Publisher.Publish(ctx, sessionID, map[string]any{
			"type":       "archived",
			"session_id": sessionID,
			"at":         time.Now().UTC(),
		})
	}
	return nil
}

// RedisArchiveQueue feeds the archive stream.
type RedisArchiveQueue struct {
	Redis *redis.Client
}

func (q RedisArchiveQueue) Enqueue(ctx context.Context, sessionID string) error {
	return EnqueueArchive(ctx, q.Redis, sessionID)
}
