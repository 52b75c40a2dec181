package call

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/medivoice/internal/models"
)

const journalOpTimeout = 5 * time.Second

type journalEntry struct {
	turn   *models.Turn
	update *Update
}

// journal persists committed turns and publishes updates in the order the
// orchestrator produced them, off the orchestrator's goroutine.
type journal struct {
	sessionID string
	store     TurnStore
	pub       Publisher
	log       *logrus.Entry

	ch   chan journalEntry
	done chan struct{}
}

func newJournal(sessionID string, store TurnStore, pub Publisher, log *logrus.Entry) *journal {
	return &journal{
		sessionID: sessionID,
		store:     store,
		pub:       pub,
		log:       log,
		ch:        make(chan journalEntry, 256),
		done:      make(chan struct{}),
	}
}

func (j *journal) run(ctx context.Context) {
	defer close(j.done)
	for e := range j.ch {
		if e.turn != nil && j.store != nil {
			opCtx, cancel := context.WithTimeout(ctx, journalOpTimeout)
			if err := j.store.AppendTurn(opCtx, j.sessionID, *e.turn); err != nil {
				j.log.WithError(err).Error("persist turn failed")
			}
			cancel()
		}
		if e.update != nil && j.pub != nil {
			opCtx, cancel := context.WithTimeout(ctx, journalOpTimeout)
			if err := j.pub.Publish(opCtx, j.sessionID, *e.update); err != nil {
				j.log.WithError(err).WithField("type", e.update.Type).Warn("publish update failed")
			}
			cancel()
		}
	}
}

func (j *journal) turn(t models.Turn, u Update) {
	j.ch <- journalEntry{turn: &t, update: &u}
}

func (j *journal) publish(u Update) {
	j.ch <- journalEntry{update: &u}
}

// publishLossy drops the update when the journal is backed up.
func (j *journal) publishLossy(u Update) {
	select {
	case j.ch <- journalEntry{update: &u}:
	default:
	}
}

// close drains pending entries and waits for them to land.
func (j *journal) close() {
	close(j.ch)
	<-j.done
}
