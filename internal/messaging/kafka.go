package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/kindredapp/kindred/internal/config"
	"github.com/kindredapp/kindred/pkg/models"
)

const ConsumerGroup = "matching-engine"

// FeatureUpdateEvent is published by the analysis pipeline whenever it
// rewrites a user's personality, emotion or lifestyle features. The engine
// consumes it to invalidate cached snapshots and scoring results.
type FeatureUpdateEvent struct {
	EventID   uuid.UUID `json:"event_id"`
	UserID    string    `json:"user_id"`
	Feature   string    `json:"feature"` // personality | emotion | lifestyle | interests | profile
	Timestamp time.Time `json:"timestamp"`
}

// FeedbackEvent wraps user match feedback for the analysis pipeline.
type FeedbackEvent struct {
	EventID   uuid.UUID             `json:"event_id"`
	Feedback  *models.MatchFeedback `json:"feedback"`
	Timestamp time.Time             `json:"timestamp"`
}

// MessageBus owns the engine's Kafka endpoints: a producer for match
// feedback and a consumer for feature-update events.
type MessageBus struct {
	feedbackWriter *kafka.Writer
	featureReader  *kafka.Reader
	logger         *logrus.Logger
}

func NewMessageBus(cfg *config.Config, logger *logrus.Logger) (*MessageBus, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}

	feedbackWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topics.MatchFeedback,
		Balancer:     &kafka.Hash{}, // Key by user id so a user's feedback stays ordered
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}

	featureReader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          cfg.Kafka.Topics.FeatureUpdates,
		GroupID:        ConsumerGroup,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})

	return &MessageBus{
		feedbackWriter: feedbackWriter,
		featureReader:  featureReader,
		logger:         logger,
	}, nil
}

// PublishMatchFeedback sends a feedback event to the analysis pipeline.
func (mb *MessageBus) PublishMatchFeedback(ctx context.Context, feedback *models.MatchFeedback) error {
	event := FeedbackEvent{
		EventID:   uuid.New(),
		Feedback:  feedback,
		Timestamp: time.Now().UTC(),
	}

	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal feedback event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(feedback.UserID),
		Value: eventBytes,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.EventID.String())},
			{Key: "interaction_type", Value: []byte(feedback.InteractionType)},
			{Key: "timestamp", Value: []byte(event.Timestamp.Format(time.RFC3339))},
		},
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := mb.feedbackWriter.WriteMessages(writeCtx, message); err != nil {
		mb.logger.WithError(err).WithField("user_id", feedback.UserID).Error("Failed to publish feedback to Kafka")
		return fmt.Errorf("failed to write feedback to Kafka: %w", err)
	}

	mb.logger.WithFields(logrus.Fields{
		"event_id":         event.EventID,
		"user_id":          feedback.UserID,
		"interaction_type": feedback.InteractionType,
	}).Info("Match feedback published")

	return nil
}

// ConsumeFeatureUpdates blocks reading feature-update events until the
// context is cancelled. Handler failures are logged, never retried: the
// events are idempotent cache invalidations and the next update or TTL
// expiry repairs any miss.
func (mb *MessageBus) ConsumeFeatureUpdates(ctx context.Context, handler func(FeatureUpdateEvent) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			message, err := mb.featureReader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				mb.logger.WithError(err).Error("Failed to read feature update from Kafka")
				continue
			}

			var event FeatureUpdateEvent
			if err := json.Unmarshal(message.Value, &event); err != nil {
				mb.logger.WithError(err).Error("Failed to unmarshal feature update event")
				continue
			}

			if err := handler(event); err != nil {
				mb.logger.WithError(err).WithFields(logrus.Fields{
					"event_id": event.EventID,
					"user_id":  event.UserID,
				}).Warn("Feature update handler failed")
			}
		}
	}
}

func (mb *MessageBus) Close() error {
	var errors []error

	if err := mb.feedbackWriter.Close(); err != nil {
		errors = append(errors, fmt.Errorf("failed to close feedback writer: %w", err))
	}

	if err := mb.featureReader.Close(); err != nil {
		errors = append(errors, fmt.Errorf("failed to close feature reader: %w", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("errors closing message bus: %v", errors)
	}

	return nil
}

// GetMetrics returns consumer metrics for monitoring.
func (mb *MessageBus) GetMetrics() map[string]interface{} {
	stats := mb.featureReader.Stats()
	return map[string]interface{}{
		"consumer_lag":    stats.Lag,
		"consumer_offset": stats.Offset,
		"messages_read":   stats.Messages,
		"bytes_read":      stats.Bytes,
		"rebalances":      stats.Rebalances,
		"timeouts":        stats.Timeouts,
		"errors":          stats.Errors,
	}
}
