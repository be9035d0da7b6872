package worker

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/stacks/pkg/config"
	"github.com/shishobooks/stacks/pkg/content"
	"github.com/shishobooks/stacks/pkg/database"
	"github.com/shishobooks/stacks/pkg/events"
	"github.com/shishobooks/stacks/pkg/models"
	"github.com/shishobooks/stacks/pkg/queue"
)

var processID = randStringBytes(8)

// Worker reconciles the queue once at startup and then finalizes the active
// book whenever the downloader has processed all of its images.
type Worker struct {
	config *config.Config
	log    logger.Logger

	contentService *content.Service
	queueService   *queue.Service

	started  bool
	shutdown chan struct{}
	done     chan struct{}
}

func New(cfg *config.Config, store *database.Store, publisher events.Publisher) *Worker {
	return &Worker{
		config: cfg,
		log:    logger.New().Root(logger.Data{"process_id": processID}),

		contentService: content.NewService(store, publisher),
		queueService:   queue.NewService(store, publisher),

		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the startup reconcile and then starts the finalize loop. A
// failed reconcile is returned and the loop isn't started.
func (w *Worker) Start() error {
	ctx := w.log.WithContext(context.Background())
	if _, err := w.queueService.Reconcile(ctx); err != nil {
		return err
	}
	w.started = true
	go w.run()
	return nil
}

func (w *Worker) run() {
	duration := w.config.WorkerInterval
	timer := time.NewTimer(duration)

	for {
		select {
		case <-w.shutdown:
			timer.Stop()
			close(w.done)
			return
		case <-timer.C:
			id, err := uuid.NewRandom()
			if err != nil {
				w.log.Err(err).Error("new uuid error")
				timer.Reset(duration)
				continue
			}
			log := w.log.ID(id.String())
			ctx := log.WithContext(context.Background())

			if _, err := w.Tick(ctx); err != nil {
				log.Err(err).Error("finalize error")
			}
			timer.Reset(duration)
		}
	}
}

// Tick completes the active book when none of its images is still pending.
// It returns the completed book's id, or 0 when nothing was completed.
func (w *Worker) Tick(ctx context.Context) (int, error) {
	active, err := w.queueService.Active(ctx)
	if err != nil {
		return 0, err
	}
	if active == nil || active.Content == nil {
		return 0, nil
	}

	counts, err := w.contentService.CountProcessedImages(ctx, active.Content.ID)
	if err != nil {
		return 0, err
	}
	total, processed := 0, 0
	for status, n := range counts {
		total += n
		if status == models.ImageStatusDownloaded || status == models.ImageStatusError {
			processed += n
		}
	}
	if total == 0 || processed < total {
		return 0, nil
	}

	if _, err := w.queueService.Complete(ctx, active.Content.ID); err != nil {
		return 0, err
	}
	return active.Content.ID, nil
}

func (w *Worker) Shutdown() {
	close(w.shutdown)
	if w.started {
		<-w.done
	}
}

const letterBytes = "abcdef0123456789"

func randStringBytes(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letterBytes[rand.Intn(len(letterBytes))]
	}
	return string(b)
}
