// Package worker runs the background jobs: mirroring approved proof photos
// and moving legacy inline photos into blob storage.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"clubhours/internal/metrics"
	"clubhours/internal/model"
	"clubhours/internal/photo"
	"clubhours/internal/queue"
	"clubhours/internal/store"
)

// Mirror sends a request's proof photo to the shared drive.
type Mirror interface {
	Upload(ctx context.Context, req model.HourRequest) (bool, error)
}

const (
	// MigrationBatch caps upload attempts per migration run.
	MigrationBatch = 50
	// migrationPage is how many candidate rows one query loads.
	migrationPage = 100
	// maxUploadAttempts is how often a row may fail to upload before this
	// process stops trying it.
	maxUploadAttempts = 3
)

// Worker processes queue messages and scheduled jobs.
type Worker struct {
	store  store.Store
	mirror Mirror
	photos *photo.Keeper
	log    *logrus.Entry

	mu sync.Mutex
	// failures counts failed migrations per request; rows at
	// maxUploadAttempts are skipped.
	failures map[string]int
}

// New builds a worker. A nil mirror drops mirror jobs; a keeper without an
// uploader turns migration into a no-op.
func New(st store.Store, m Mirror, photos *photo.Keeper, log *logrus.Entry) *Worker {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Worker{store: st, mirror: m, photos: photos, log: log, failures: map[string]int{}}
}

// Run handles messages until the channel closes.
func (w *Worker) Run(ctx context.Context, msgs <-chan queue.Message) {
	w.log.Info("worker started, waiting for messages")
	for msg := range msgs {
		err := w.Handle(ctx, msg)
		metrics.QueueMessages.WithLabelValues(msg.Type, metrics.Result(err)).Inc()
		if err != nil {
			w.log.WithError(err).WithFields(logrus.Fields{"type": msg.Type, "body": msg.Body}).Warn("job failed")
		}
	}
	w.log.Info("worker stopped")
}

// Handle processes one message. Unknown types are ignored.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) error {
	switch msg.Type {
	case queue.TypeProofMirror:
		return w.mirrorProof(ctx, msg.Body)
	}
	w.log.WithField("type", msg.Type).Debug("ignoring unknown job")
	return nil
}

func (w *Worker) mirrorProof(ctx context.Context, id string) error {
	if w.mirror == nil {
		return nil
	}
	req, err := w.store.HourRequests().Get(ctx, id)
	if err != nil {
		return err
	}
	sent, err := w.mirror.Upload(ctx, req)
	if err != nil {
		return err
	}
	log := w.log.WithField("request", id)
	if sent {
		log.Info("proof photo mirrored")
	} else {
		log.Debug("no inline proof photo to mirror")
	}
	return nil
}

// MigrationResult counts one migration run.
type MigrationResult struct {
	Scanned  int `json:"scanned"`
	Migrated int `json:"migrated"`
	Failed   int `json:"failed"`
	// Skipped rows have a payload that does not decode, or failed too often.
	Skipped int `json:"skipped"`
}

// MigratePhotos uploads inline-only proof photos to blob storage and appends
// a storage token to their descriptions. The inline copy stays. Rows are
// paged oldest first, so rows that cannot be migrated never hold back newer
// ones.
func (w *Worker) MigratePhotos(ctx context.Context) (MigrationResult, error) {
	var res MigrationResult
	f := store.HourFilter{
		DescriptionContains: photo.InlineSentinel,
		DescriptionLacks:    photo.StorageSentinel,
		Limit:               migrationPage,
	}
	for {
		reqs, err := w.store.HourRequests().List(ctx, f)
		if err != nil {
			return res, err
		}
		for _, r := range reqs {
			if res.Migrated+res.Failed >= MigrationBatch {
				return res, nil
			}
			res.Scanned++
			if w.givenUp(r.ID) {
				res.Skipped++
				continue
			}
			done, err := w.migrate(ctx, r)
			switch {
			case errors.Is(err, photo.ErrStorageDisabled):
				return res, nil
			case err != nil:
				res.Failed++
				w.recordFailure(r.ID)
				w.log.WithError(err).WithField("request", r.ID).Warn("photo migration failed")
			case done:
				res.Migrated++
			default:
				res.Skipped++
				w.giveUp(r.ID)
				w.log.WithField("request", r.ID).Warn("inline photo does not decode, skipping")
			}
		}
		if len(reqs) < migrationPage {
			return res, nil
		}
		last := reqs[len(reqs)-1]
		f.SubmittedAfter, f.AfterID = last.SubmittedAt, last.ID
	}
}

// migrate moves one request's photo. It returns false without an error when
// the inline payload cannot be decoded.
func (w *Worker) migrate(ctx context.Context, r model.HourRequest) (bool, error) {
	p, ok := photo.Extract(r.Description, photo.DefaultMinRun)
	if !ok {
		return false, nil
	}
	if _, err := p.Bytes(); err != nil {
		return false, nil
	}
	ref, err := w.photos.Store(ctx, p, r.StudentSNumber, r.EventName)
	if err != nil {
		return false, err
	}
	name := r.ImageName
	if name == "" {
		name = ref.FileName
	}
	if err := w.store.HourRequests().SetPhoto(ctx, r.ID, photo.Compose(r.Description, ref.Token()), name); err != nil {
		return false, err
	}
	return true, nil
}

func (w *Worker) givenUp(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failures[id] >= maxUploadAttempts
}

func (w *Worker) recordFailure(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failures[id]++
}

func (w *Worker) giveUp(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failures[id] = maxUploadAttempts
}

// Schedule registers the photo migration on a cron spec. Runs never overlap.
func (w *Worker) Schedule(spec string) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		res, err := w.MigratePhotos(ctx)
		metrics.QueueMessages.WithLabelValues("photo_migration", metrics.Result(err)).Inc()
		entry := w.log.WithFields(logrus.Fields{
			"scanned": res.Scanned, "migrated": res.Migrated, "failed": res.Failed, "skipped": res.Skipped,
		})
		if err != nil {
			entry.WithError(err).Error("photo migration run failed")
			return
		}
		entry.Info("photo migration run finished")
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
