package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/kindredapp/kindred/internal/middleware"
	"github.com/kindredapp/kindred/internal/services"
	"github.com/kindredapp/kindred/pkg/models"
)

// MatchingOrchestratorInterface is what the handler needs from the matching
// service; tests substitute a stub.
type MatchingOrchestratorInterface interface {
	CalculateCompatibility(ctx context.Context, userID, targetID string) (*models.CompatibilityResult, error)
	FindMatchingCandidates(ctx context.Context, userID string, req *models.MatchingRequest) (*models.RankedCandidateList, error)
	ScoreBreakdown(ctx context.Context, userID, targetID string) (*models.CompatibilityBreakdown, error)
	GetPreference(ctx context.Context, userID string) (*models.MatchingPreference, error)
	UpdatePreference(ctx context.Context, userID string, req *models.PreferenceUpdateRequest) (*models.MatchingPreference, error)
	RecordFeedback(ctx context.Context, feedback *models.MatchFeedback) error
}

type MatchingHandler struct {
	orchestrator MatchingOrchestratorInterface
	logger       *logrus.Logger
	validate     *validator.Validate
}

func NewMatchingHandler(orchestrator MatchingOrchestratorInterface, logger *logrus.Logger) *MatchingHandler {
	return &MatchingHandler{
		orchestrator: orchestrator,
		logger:       logger,
		validate:     validator.New(),
	}
}

// FindCandidates handles POST /api/v1/matching/candidates.
func (h *MatchingHandler) FindCandidates(c *gin.Context) {
	userID, _ := middleware.GetUserFromContext(c)

	var req models.MatchingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_REQUEST_BODY",
				"message": "Invalid request body format",
			},
		})
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	result, err := h.orchestrator.FindMatchingCandidates(c.Request.Context(), userID, &req)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": gin.H{
					"code":    "USER_NOT_FOUND",
					"message": "User profile not found or matching disabled",
				},
			})
			return
		}
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to find matching candidates")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "MATCHING_FAILED",
				"message": "Failed to find matching candidates",
			},
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// CalculateCompatibility handles POST /api/v1/matching/compatibility.
func (h *MatchingHandler) CalculateCompatibility(c *gin.Context) {
	userID, _ := middleware.GetUserFromContext(c)

	var req models.CompatibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_REQUEST_BODY",
				"message": "Invalid request body format",
			},
		})
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	result, err := h.orchestrator.CalculateCompatibility(c.Request.Context(), userID, req.TargetUserID)
	if err != nil {
		h.respondCompatibilityError(c, userID, req.TargetUserID, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetBreakdown handles GET /api/v1/matching/compatibility/:targetId/breakdown.
func (h *MatchingHandler) GetBreakdown(c *gin.Context) {
	userID, _ := middleware.GetUserFromContext(c)
	targetID := c.Param("targetId")

	breakdown, err := h.orchestrator.ScoreBreakdown(c.Request.Context(), userID, targetID)
	if err != nil {
		h.respondCompatibilityError(c, userID, targetID, err)
		return
	}

	c.JSON(http.StatusOK, breakdown)
}

func (h *MatchingHandler) respondCompatibilityError(c *gin.Context, userID, targetID string, err error) {
	switch {
	case errors.Is(err, services.ErrSelfCompatibility):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "SELF_COMPATIBILITY",
				"message": "Cannot calculate compatibility with yourself",
			},
		})
	case errors.Is(err, services.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{
				"code":    "USER_NOT_FOUND",
				"message": "User profile not found or matching disabled",
			},
		})
	default:
		h.logger.WithError(err).WithFields(logrus.Fields{
			"user_id":   userID,
			"target_id": targetID,
		}).Error("Failed to calculate compatibility")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "COMPATIBILITY_FAILED",
				"message": "Failed to calculate compatibility",
			},
		})
	}
}

// GetPreferences handles GET /api/v1/matching/preferences.
func (h *MatchingHandler) GetPreferences(c *gin.Context) {
	userID, _ := middleware.GetUserFromContext(c)

	pref, err := h.orchestrator.GetPreference(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": gin.H{
					"code":    "USER_NOT_FOUND",
					"message": "User profile not found or matching disabled",
				},
			})
			return
		}
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to load preferences")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "PREFERENCES_LOAD_FAILED",
				"message": "Failed to load matching preferences",
			},
		})
		return
	}

	c.JSON(http.StatusOK, pref)
}

// UpdatePreferences handles PUT /api/v1/matching/preferences.
func (h *MatchingHandler) UpdatePreferences(c *gin.Context) {
	userID, _ := middleware.GetUserFromContext(c)

	var req models.PreferenceUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_REQUEST_BODY",
				"message": "Invalid request body format",
			},
		})
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	pref, err := h.orchestrator.UpdatePreference(c.Request.Context(), userID, &req)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to update preferences")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "PREFERENCES_UPDATE_FAILED",
				"message": "Failed to update matching preferences",
			},
		})
		return
	}

	c.JSON(http.StatusOK, pref)
}

// SubmitFeedback handles POST /api/v1/matching/feedback.
func (h *MatchingHandler) SubmitFeedback(c *gin.Context) {
	userID, _ := middleware.GetUserFromContext(c)

	var feedback models.MatchFeedback
	if err := c.ShouldBindJSON(&feedback); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_REQUEST_BODY",
				"message": "Invalid request body format",
			},
		})
		return
	}

	// Feedback is always attributed to the authenticated user.
	feedback.UserID = userID

	if err := h.validate.Struct(&feedback); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	if err := h.orchestrator.RecordFeedback(c.Request.Context(), &feedback); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"user_id":   userID,
			"target_id": feedback.TargetUserID,
		}).Error("Failed to record match feedback")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "FEEDBACK_FAILED",
				"message": "Failed to record match feedback",
			},
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
