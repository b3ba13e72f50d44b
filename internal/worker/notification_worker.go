package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"berserk/internal/metrics"
	"berserk/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Outbox is the durable job table.
type Outbox interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id int64) (*models.Job, error)
	ClaimJob(ctx context.Context, id int64) (bool, error)
	GetDueJobs(ctx context.Context, now time.Time, limit int) ([]models.Job, error)
	UpdateJobStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
	ResetStaleJobs(ctx context.Context, olderThan time.Time) (int64, error)
}

// BookingReader loads the booking a job refers to.
type BookingReader interface {
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
}

// Handler performs one kind of side effect.
type Handler interface {
	Handle(ctx context.Context, booking *models.Booking, job *models.Job) error
}

type HandlerFunc func(ctx context.Context, booking *models.Booking, job *models.Job) error

func (f HandlerFunc) Handle(ctx context.Context, booking *models.Booking, job *models.Job) error {
	return f(ctx, booking, job)
}

// ErrPermanent marks a handler failure that retrying cannot fix.
var ErrPermanent = errors.New("permanent failure")

type Options struct {
	QueueKey      string
	DeadLetterKey string
	PollInterval  time.Duration
	BatchSize     int
	BufferSize    int
}

// NotificationWorker delivers outbox jobs. Each job is persisted first, then
// signalled through redis or an in-memory channel, and re-read from the
// outbox on every poll so nothing is lost when the signal is.
type NotificationWorker struct {
	outbox        Outbox
	bookings      BookingReader
	redis         *redis.Client
	handlers      map[models.JobKind]Handler
	retryPolicy   RetryPolicy
	queue         chan int64
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
	now           func() time.Time
}

func NewNotificationWorker(outbox Outbox, bookings BookingReader, redisClient *redis.Client, retry RetryPolicy, opts Options, logger *zerolog.Logger) *NotificationWorker {
	if opts.QueueKey == "" {
		opts.QueueKey = "berserk:notify:queue"
	}
	if opts.DeadLetterKey == "" {
		opts.DeadLetterKey = "berserk:notify:dlq"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 128
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &NotificationWorker{
		outbox:        outbox,
		bookings:      bookings,
		redis:         redisClient,
		handlers:      make(map[models.JobKind]Handler),
		retryPolicy:   retry.withDefaults(),
		queue:         make(chan int64, opts.BufferSize),
		redisQueueKey: opts.QueueKey,
		deadLetterKey: opts.DeadLetterKey,
		pollInterval:  opts.PollInterval,
		batchSize:     opts.BatchSize,
		logger:        logger,
		now:           time.Now,
	}
}

// Route registers the handler for a job kind. Call before Start.
func (w *NotificationWorker) Route(kind models.JobKind, h Handler) {
	w.handlers[kind] = h
}

// Enqueue persists a job and schedules it.
func (w *NotificationWorker) Enqueue(ctx context.Context, kind models.JobKind, bookingID string, payload interface{}) error {
	if kind == "" {
		return errors.New("job kind is required")
	}
	if bookingID == "" {
		return errors.New("booking id is required")
	}

	var raw string
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		raw = string(data)
	}

	job := models.Job{
		Kind:      kind,
		BookingID: bookingID,
		Payload:   raw,
		Status:    models.JobStatusPending,
	}
	if err := w.outbox.CreateJob(ctx, &job); err != nil {
		return fmt.Errorf("persist job: %w", err)
	}

	if w.redis != nil {
		err := w.redis.LPush(ctx, w.redisQueueKey, job.ID).Err()
		if err == nil {
			return nil
		}
		w.logger.Warn().Err(err).Int64("job_id", job.ID).Msg("Redis push failed, using memory queue")
	}

	select {
	case w.queue <- job.ID:
	default:
		w.logger.Warn().Int64("job_id", job.ID).Msg("Memory queue full, job left to polling")
	}
	return nil
}

// Start runs the delivery loop until ctx is done.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("Notification worker started")
	defer w.logger.Info().Msg("Notification worker stopped")

	if n, err := w.outbox.ResetStaleJobs(ctx, w.now().Add(-5*time.Minute)); err != nil {
		w.logger.Error().Err(err).Msg("Reset stale jobs failed")
	} else if n > 0 {
		w.logger.Warn().Int64("count", n).Msg("Requeued jobs left in processing")
	}

	for ctx.Err() == nil {
		if w.ProcessNext(ctx) {
			continue
		}
		if w.ProcessDue(ctx) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case id := <-w.queue:
			w.processID(ctx, id)
		case <-time.After(w.pollInterval):
		}
	}
}

// ProcessNext handles one signalled job. It reports false when nothing was signalled.
func (w *NotificationWorker) ProcessNext(ctx context.Context) bool {
	select {
	case id := <-w.queue:
		w.processID(ctx, id)
		return true
	default:
	}

	if w.redis == nil {
		return false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.logger.Warn().Err(err).Msg("Redis BRPOP failed")
		}
		return false
	}
	if len(res) != 2 {
		return false
	}
	var id int64
	if _, err := fmt.Sscan(res[1], &id); err != nil {
		w.logger.Error().Str("value", res[1]).Msg("Bad job id in redis queue")
		return true
	}
	w.processID(ctx, id)
	return true
}

// ProcessDue polls the outbox for due jobs and returns how many it ran.
func (w *NotificationWorker) ProcessDue(ctx context.Context) int {
	jobs, err := w.outbox.GetDueJobs(ctx, w.now(), w.batchSize)
	if err != nil {
		w.logger.Error().Err(err).Msg("Fetch due jobs failed")
		return 0
	}
	ran := 0
	for i := range jobs {
		if w.process(ctx, &jobs[i]) {
			ran++
		}
	}
	return ran
}

func (w *NotificationWorker) processID(ctx context.Context, id int64) {
	job, err := w.outbox.GetJob(ctx, id)
	if err != nil {
		w.logger.Error().Err(err).Int64("job_id", id).Msg("Load signalled job failed")
		return
	}
	if job.NextRetryAt != nil && job.NextRetryAt.After(w.now()) {
		return
	}
	w.process(ctx, job)
}

// process claims and runs a job; it returns false when another worker owns it.
func (w *NotificationWorker) process(ctx context.Context, job *models.Job) bool {
	claimed, err := w.outbox.ClaimJob(ctx, job.ID)
	if err != nil {
		w.logger.Error().Err(err).Int64("job_id", job.ID).Msg("Claim job failed")
		return false
	}
	if !claimed {
		return false
	}

	log := w.logger.With().Int64("job_id", job.ID).Str("kind", string(job.Kind)).Str("booking_id", job.BookingID).Logger()

	handler, ok := w.handlers[job.Kind]
	if !ok {
		w.fail(ctx, job, fmt.Errorf("no handler for %s: %w", job.Kind, ErrPermanent))
		return true
	}

	booking, err := w.bookings.GetBooking(ctx, job.BookingID)
	if err != nil {
		w.retryOrFail(ctx, job, fmt.Errorf("load booking: %w", err))
		return true
	}

	if err := handler.Handle(ctx, booking, job); err != nil {
		log.Warn().Err(err).Int("attempt", job.RetryCount+1).Msg("Notification failed")
		if errors.Is(err, ErrPermanent) {
			w.fail(ctx, job, err)
		} else {
			w.retryOrFail(ctx, job, err)
		}
		return true
	}

	if err := w.outbox.UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted, "", nil); err != nil {
		log.Error().Err(err).Msg("Mark job completed failed")
	}
	metrics.IncNotification(string(job.Kind), "sent")
	log.Info().Msg("Notification delivered")
	return true
}

func (w *NotificationWorker) retryOrFail(ctx context.Context, job *models.Job, cause error) {
	attempt := job.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.fail(ctx, job, cause)
		return
	}

	next := w.now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.outbox.UpdateJobStatus(ctx, job.ID, models.JobStatusRetry, cause.Error(), &next); err != nil {
		w.logger.Error().Err(err).Int64("job_id", job.ID).Msg("Mark job retry failed")
	}
	metrics.IncNotification(string(job.Kind), "retry")
}

func (w *NotificationWorker) fail(ctx context.Context, job *models.Job, cause error) {
	if err := w.outbox.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("job_id", job.ID).Msg("Mark job as failed errored")
	}
	metrics.IncNotification(string(job.Kind), "failed")
	w.logger.Error().Err(cause).Int64("job_id", job.ID).Str("kind", string(job.Kind)).Msg("Notification moved to dead letter")
	w.pushDeadLetter(ctx, job, cause)
}

func (w *NotificationWorker) pushDeadLetter(ctx context.Context, job *models.Job, cause error) {
	if w.redis == nil {
		return
	}
	job.Status = models.JobStatusFailed
	job.LastError = cause.Error()
	data, err := json.Marshal(job)
	if err != nil {
		w.logger.Error().Err(err).Int64("job_id", job.ID).Msg("Encode dead letter failed")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("job_id", job.ID).Msg("Dead letter push failed")
	}
}
