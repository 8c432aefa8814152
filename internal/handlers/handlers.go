package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/kindredapp/kindred/internal/services"
)

type Handlers struct {
	Health   *HealthHandler
	Auth     *AuthHandler
	Matching *MatchingHandler
}

func New(logger *logrus.Logger, services *services.Services) *Handlers {
	return &Handlers{
		Health:   NewHealthHandler(logger, services.Health),
		Auth:     NewAuthHandler(logger, services.Auth),
		Matching: NewMatchingHandler(services.Matching, logger),
	}
}
