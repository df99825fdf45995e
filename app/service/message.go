package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vibast-solutions/ms-go-mailqueue/app/entity"
	"github.com/vibast-solutions/ms-go-mailqueue/app/metrics"
	"github.com/vibast-solutions/ms-go-mailqueue/app/repository"
)

type MessageService struct {
	repo      *repository.MessageRepository
	publisher Publisher
	log       zerolog.Logger
	now       func() time.Time
}

// NewMessageService builds the submission side of the queue.
func NewMessageService(repo *repository.MessageRepository, publisher Publisher, log zerolog.Logger) *MessageService {
	return &MessageService{repo: repo, publisher: publisher, log: log, now: time.Now}
}

// Submit stores a new pending message and then publishes its id to the initial
// delay queue. A publish failure leaves the stored record pending and returns
// ErrEnqueue.
func (s *MessageService) Submit(ctx context.Context, to string, subject string, text string) (*entity.Message, error) {
	msg := entity.NewMessage(to, subject, text, s.now())

	if err := s.repo.Create(ctx, msg); err != nil {
		metrics.MessagesSubmittedTotal.WithLabelValues("store_failed").Inc()
		return nil, fmt.Errorf("store message: %w", err)
	}

	if err := s.publisher.Publish(ctx, msg.ID); err != nil {
		metrics.MessagesSubmittedTotal.WithLabelValues("publish_failed").Inc()
		s.log.Error().Err(err).Str("message_id", msg.ID.String()).Msg("message stored but not enqueued")
		return msg, fmt.Errorf("%w: %v", ErrEnqueue, err)
	}

	metrics.MessagesSubmittedTotal.WithLabelValues("queued").Inc()
	s.log.Info().Str("message_id", msg.ID.String()).Msg("message queued")
	return msg, nil
}

// Get returns one message; repository.ErrNotFound when it does not exist.
func (s *MessageService) Get(ctx context.Context, id uuid.UUID) (*entity.Message, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns a page of messages, newest first, with the total count.
func (s *MessageService) List(ctx context.Context, limit int, offset int) ([]entity.Message, int, error) {
	messages, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	count, err := s.repo.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}
	return messages, count, nil
}
