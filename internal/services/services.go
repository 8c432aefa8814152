package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/kindredapp/kindred/internal/config"
	"github.com/kindredapp/kindred/internal/database"
	"github.com/kindredapp/kindred/internal/messaging"
	"github.com/kindredapp/kindred/internal/validation"
)

type Services struct {
	Auth          *AuthService
	Health        *HealthService
	MessageBus    *messaging.MessageBus
	FeatureStore  *FeatureStore
	Compatibility *CompatibilityService
	Insights      *InsightService
	Matching      *MatchingOrchestrator
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database) (*Services, error) {
	authService := NewAuthService(cfg, logger, db.Redis.Hot)
	healthService := NewHealthService(cfg, logger, db)

	messageBus, err := messaging.NewMessageBus(cfg, logger)
	if err != nil {
		return nil, err
	}

	schemaValidator, err := validation.NewSchemaValidator()
	if err != nil {
		return nil, err
	}

	featureStore := NewFeatureStore(db.PG, db.Redis.Warm, schemaValidator, &cfg.Matching, logger)
	compatibilityService := NewCompatibilityService(&cfg.Matching, logger)
	insightService := NewInsightService(logger)

	matchingOrchestrator := NewMatchingOrchestrator(
		featureStore, compatibilityService, insightService,
		messageBus, NewRedisResultCache(db.Redis.Warm), &cfg.Matching, logger,
	)

	return &Services{
		Auth:          authService,
		Health:        healthService,
		MessageBus:    messageBus,
		FeatureStore:  featureStore,
		Compatibility: compatibilityService,
		Insights:      insightService,
		Matching:      matchingOrchestrator,
	}, nil
}

// StartFeatureUpdateConsumer runs the cache-invalidation loop until the
// context is cancelled. A feature update drops the user's snapshot and any
// candidate lists built from it.
func (s *Services) StartFeatureUpdateConsumer(ctx context.Context, logger *logrus.Logger) {
	go func() {
		err := s.MessageBus.ConsumeFeatureUpdates(ctx, func(event messaging.FeatureUpdateEvent) error {
			s.FeatureStore.InvalidateFeatureRecord(ctx, event.UserID)
			s.Matching.InvalidateUser(ctx, event.UserID)
			return nil
		})
		if err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("Feature update consumer stopped")
		}
	}()
}
