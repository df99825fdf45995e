package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vibast-solutions/ms-go-mailqueue/app/entity"
	"github.com/vibast-solutions/ms-go-mailqueue/app/lock"
	"github.com/vibast-solutions/ms-go-mailqueue/app/logger"
	"github.com/vibast-solutions/ms-go-mailqueue/app/metrics"
	"github.com/vibast-solutions/ms-go-mailqueue/app/preparer"
	"github.com/vibast-solutions/ms-go-mailqueue/app/provider"
	"github.com/vibast-solutions/ms-go-mailqueue/app/repository"
)

// Outcome is how one work item ended. It is used for logs and metrics only.
type Outcome string

const (
	OutcomeDelivered        Outcome = "delivered"
	OutcomeRetryScheduled   Outcome = "retry_scheduled"
	OutcomeFailed           Outcome = "failed"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeCorrelationFault Outcome = "correlation_fault"
	OutcomeDeferred         Outcome = "deferred"
)

type DeliveryConfig struct {
	MaxRetries  int
	SendTimeout time.Duration
	LockTTL     time.Duration
}

type DeliveryService struct {
	repo      *repository.MessageRepository
	preparer  preparer.EmailPreparer
	provider  provider.EmailProvider
	scheduler RetryScheduler
	locker    lock.Locker
	cfg       DeliveryConfig
	log       zerolog.Logger
	now       func() time.Time
}

// NewDeliveryService builds the work queue handler.
func NewDeliveryService(
	repo *repository.MessageRepository,
	preparer preparer.EmailPreparer,
	provider provider.EmailProvider,
	scheduler RetryScheduler,
	locker lock.Locker,
	cfg DeliveryConfig,
	log zerolog.Logger,
) *DeliveryService {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	return &DeliveryService{
		repo:      repo,
		preparer:  preparer,
		provider:  provider,
		scheduler: scheduler,
		locker:    locker,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// settlement guarantees a single Ack or Reject per work item.
type settlement struct {
	ack  Acknowledger
	log  zerolog.Logger
	done bool
}

func (s *settlement) settle(outcome Outcome) Outcome {
	if s.done {
		return outcome
	}
	s.done = true

	var err error
	if outcome == OutcomeDeferred {
		err = s.ack.Reject()
	} else {
		err = s.ack.Ack()
	}
	if err != nil {
		// The broker redelivers unsettled items once the channel closes.
		s.log.Error().Err(err).Str("outcome", string(outcome)).Msg("settle work item")
	}
	return outcome
}

// ProcessMessage handles one work item whose payload is a message id. The item
// is settled exactly once: acknowledged once the record reached a consistent
// state, or rejected so the broker defers it through the retry delay queue.
func (s *DeliveryService) ProcessMessage(ctx context.Context, ack Acknowledger, payload []byte) (outcome Outcome) {
	start := time.Now()
	st := &settlement{ack: ack, log: s.log}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("work item handler panicked")
			outcome = st.settle(OutcomeDeferred)
		}
		metrics.DeliveriesTotal.WithLabelValues(string(outcome)).Inc()
		metrics.DeliveryDuration.Observe(time.Since(start).Seconds())
	}()

	id, err := entity.ParseID(payload)
	if err != nil {
		s.log.WithLevel(zerolog.FatalLevel).Err(err).Bytes("payload", payload).Msg("work item is not a message id")
		return st.settle(OutcomeCorrelationFault)
	}

	log := s.log.With().Str("message_id", id.String()).Logger()
	st.log = log

	msg, outcome, ok := s.lookup(ctx, log, id)
	if !ok {
		return st.settle(outcome)
	}

	key := lock.MessageKey(id)
	if err := s.locker.Acquire(ctx, key, s.cfg.LockTTL); err != nil {
		if errors.Is(err, lock.ErrNotAcquired) || errors.Is(err, lock.ErrAlreadyHeld) {
			log.Info().Msg("message is being processed elsewhere, deferring")
		} else {
			log.Error().Err(err).Msg("acquire message lock")
		}
		return st.settle(OutcomeDeferred)
	}
	defer func() {
		if err := s.locker.Release(context.Background(), key); err != nil {
			log.Warn().Err(err).Msg("release message lock")
		}
	}()

	// Re-read under the lock; the previous holder may have settled the record.
	msg, outcome, ok = s.lookup(ctx, log, id)
	if !ok {
		return st.settle(outcome)
	}

	sendErr := s.send(logger.WithLogger(ctx, log), msg)
	if sendErr == nil {
		return st.settle(s.markTerminal(ctx, log, msg, entity.StatusDelivered, OutcomeDelivered))
	}

	next, retries, retry := msg.NextOnFailure(s.cfg.MaxRetries)
	if !retry {
		log.Error().Err(sendErr).Int("retries", msg.Retries).Msg("delivery failed, retries exhausted")
		return st.settle(s.markTerminal(ctx, log, msg, next, OutcomeFailed))
	}

	log.Warn().Err(sendErr).Int("retries", retries).Msg("delivery failed, scheduling retry")
	if err := s.repo.UpdateRetries(ctx, id, retries); err != nil {
		if errors.Is(err, repository.ErrNoTransition) {
			log.Info().Msg("message settled concurrently")
			return st.settle(OutcomeDuplicate)
		}
		log.Error().Err(err).Msg("store retry counter")
		return st.settle(OutcomeDeferred)
	}
	if err := s.scheduler.Schedule(ctx, id); err != nil {
		log.Error().Err(err).Msg("schedule retry")
		return st.settle(OutcomeDeferred)
	}
	return st.settle(OutcomeRetryScheduled)
}

// lookup loads the record and reports whether processing should continue. When
// it should not, the returned outcome says how to settle.
func (s *DeliveryService) lookup(ctx context.Context, log zerolog.Logger, id uuid.UUID) (*entity.Message, Outcome, bool) {
	msg, err := s.repo.GetByID(ctx, id)
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrAmbiguous):
		log.WithLevel(zerolog.FatalLevel).Err(err).Msg("work item does not match exactly one message")
		return nil, OutcomeCorrelationFault, false
	case err != nil:
		log.Error().Err(err).Msg("load message")
		return nil, OutcomeDeferred, false
	}

	if msg.Status.IsTerminal() {
		log.Info().Str("status", string(msg.Status)).Msg("message already processed, acknowledging duplicate")
		return nil, OutcomeDuplicate, false
	}
	return msg, "", true
}

func (s *DeliveryService) send(ctx context.Context, msg *entity.Message) error {
	raw, err := s.preparer.Prepare(ctx, preparer.Envelope{
		ID:      msg.ID,
		To:      msg.To,
		Subject: msg.Subject,
		Text:    msg.Text,
	})
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()
	return s.provider.SendRaw(sendCtx, msg.To, raw)
}

func (s *DeliveryService) markTerminal(ctx context.Context, log zerolog.Logger, msg *entity.Message, status entity.Status, outcome Outcome) Outcome {
	err := s.repo.MarkTerminal(ctx, msg.ID, status, s.now())
	switch {
	case errors.Is(err, repository.ErrNoTransition):
		log.Info().Msg("message settled concurrently")
		return OutcomeDuplicate
	case err != nil:
		log.Error().Err(err).Str("status", string(status)).Msg("store terminal status")
		return OutcomeDeferred
	}

	log.Info().Str("status", string(status)).Int("retries", msg.Retries).Msg("message processed")
	return outcome
}
