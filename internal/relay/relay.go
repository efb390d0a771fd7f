package relay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/dormhousing-backend/pkg/config"
	"github.com/angelmondragon/dormhousing-backend/pkg/db/models"
	"github.com/angelmondragon/dormhousing-backend/pkg/enums"
	"github.com/angelmondragon/dormhousing-backend/pkg/logger"
	"github.com/angelmondragon/dormhousing-backend/pkg/metrics"
	"github.com/angelmondragon/dormhousing-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Store is the slice of the outbox table the relay drives.
type Store interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type DeadLetters interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type Resolver interface {
	Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// Sender delivers one message to a topic and waits for the broker ack.
type Sender interface {
	Send(ctx context.Context, topic string, msg *gcppubsub.Message) error
}

// Settings tunes batch size, polling and retry limits.
type Settings struct {
	BatchSize      int
	MaxAttempts    int
	PollInterval   time.Duration
	PublishTimeout time.Duration
}

// SettingsFromConfig maps the outbox env block onto relay settings.
func SettingsFromConfig(cfg config.OutboxConfig) Settings {
	return Settings{
		BatchSize:    cfg.BatchSize,
		MaxAttempts:  cfg.MaxAttempts,
		PollInterval: time.Duration(cfg.PollIntervalMS) * time.Millisecond,
	}
}

func (s Settings) withDefaults() Settings {
	if s.BatchSize <= 0 {
		s.BatchSize = defaultBatchSize
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = defaultMaxAttempts
	}
	if s.PollInterval <= 0 {
		s.PollInterval = defaultPollInterval
	}
	if s.PublishTimeout <= 0 {
		s.PublishTimeout = defaultPublishTimeout
	}
	return s
}

type Params struct {
	Tx          txRunner
	Store       Store
	DeadLetters DeadLetters
	Resolver    Resolver
	Sender      Sender
	Metrics     *metrics.OutboxMetrics
	Logger      *logger.Logger
	Settings    Settings
}

// Relay moves committed booking notifications from the outbox table to
// Pub/Sub. Rows are claimed with SKIP LOCKED so several relays can run.
type Relay struct {
	tx       txRunner
	store    Store
	dlq      DeadLetters
	resolver Resolver
	sender   Sender
	metrics  *metrics.OutboxMetrics
	logg     *logger.Logger
	settings Settings
	now      func() time.Time
}

func New(p Params) (*Relay, error) {
	switch {
	case p.Tx == nil:
		return nil, errors.New("tx runner required")
	case p.Store == nil:
		return nil, errors.New("outbox store required")
	case p.DeadLetters == nil:
		return nil, errors.New("dead letter store required")
	case p.Resolver == nil:
		return nil, errors.New("event resolver required")
	case p.Sender == nil:
		return nil, errors.New("sender required")
	case p.Logger == nil:
		return nil, errors.New("logger required")
	}
	return &Relay{
		tx:       p.Tx,
		store:    p.Store,
		dlq:      p.DeadLetters,
		resolver: p.Resolver,
		sender:   p.Sender,
		metrics:  p.Metrics,
		logg:     p.Logger,
		settings: p.Settings.withDefaults(),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run drains the outbox until ctx is canceled. A full batch loops straight
// back; an empty one waits one poll interval; a failed one backs off.
func (r *Relay) Run(ctx context.Context) error {
	backoff := errorBackoff(r.settings.PollInterval)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		handled, err := r.Drain(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay batch failed", err)
			wait, _ = backoff.Next()
		case handled == 0:
			backoff = errorBackoff(r.settings.PollInterval)
			wait = idleWait(r.settings.PollInterval)
		default:
			backoff = errorBackoff(r.settings.PollInterval)
			continue
		}

		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

type outcome int

const (
	delivered outcome = iota
	retryLater
	deadLettered
)

// Drain claims one batch and settles every row in it. It returns how many
// rows were claimed.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	handled := 0
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.store.FetchUnpublishedForPublish(tx, r.settings.BatchSize, r.settings.MaxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox batch: %w", err)
		}
		handled = len(events)
		for _, event := range events {
			result, err := r.settle(ctx, tx, event)
			if err != nil {
				return err
			}
			r.metrics.Inc(string(event.EventType), result.label())
		}
		return nil
	})
	return handled, err
}

func (r *Relay) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (outcome, error) {
	ctx = r.logg.WithFields(ctx, map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	})

	resolved, err := r.resolver.Resolve(event)
	if err != nil {
		return deadLettered, r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
	}

	topic := resolved.Descriptor.Topic
	ctx = r.logg.WithField(ctx, "topic", topic)
	if err := r.send(ctx, topic, event, resolved); err != nil {
		var permanent registry.NonRetryableError
		if errors.As(err, &permanent) {
			return deadLettered, r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
		}
		if event.AttemptCount+1 >= r.settings.MaxAttempts {
			return deadLettered, r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", err))
		}
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "outbox publish failed, will retry")
		if markErr := r.store.MarkFailedTx(tx, event.ID, err); markErr != nil {
			return retryLater, fmt.Errorf("mark failure %s: %w", event.ID, markErr)
		}
		return retryLater, nil
	}

	if err := r.store.MarkPublishedTx(tx, event.ID); err != nil {
		return delivered, fmt.Errorf("mark published %s: %w", event.ID, err)
	}
	r.logg.Info(ctx, "outbox event published")
	return delivered, nil
}

func (r *Relay) send(ctx context.Context, topic string, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	msg := &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"schema_version": strconv.Itoa(resolved.Envelope.Version),
			"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
	sendCtx, cancel := context.WithTimeout(ctx, r.settings.PublishTimeout)
	defer cancel()
	return r.sender.Send(sendCtx, topic, msg)
}

func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	msg := cause.Error()
	ctx = r.logg.WithFields(ctx, map[string]any{"error_reason": reason, "error": msg})
	r.logg.Warn(ctx, "outbox event dead-lettered")

	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      r.now(),
	}
	if err := r.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := r.store.MarkTerminalTx(tx, event.ID, cause, r.settings.MaxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func (o outcome) label() string {
	switch o {
	case delivered:
		return metrics.PublishResultPublished
	case deadLettered:
		return metrics.PublishResultDeadLettered
	default:
		return metrics.PublishResultFailed
	}
}

// errorBackoff doubles the wait after each failed batch, capped at maxBackoff.
func errorBackoff(interval time.Duration) retry.Backoff {
	return retry.WithJitter(jitterWindow, retry.WithCappedDuration(maxBackoff, retry.NewExponential(interval)))
}

func idleWait(interval time.Duration) time.Duration {
	wait, _ := retry.WithJitter(jitterWindow, retry.NewConstant(interval)).Next()
	return wait
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
