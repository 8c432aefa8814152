package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kindredapp/kindred/internal/services"
	"github.com/kindredapp/kindred/pkg/models"
)

// MockMatchingOrchestrator is a mock implementation
type MockMatchingOrchestrator struct {
	mock.Mock
}

func (m *MockMatchingOrchestrator) CalculateCompatibility(ctx context.Context, userID, targetID string) (*models.CompatibilityResult, error) {
	args := m.Called(ctx, userID, targetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CompatibilityResult), args.Error(1)
}

func (m *MockMatchingOrchestrator) FindMatchingCandidates(ctx context.Context, userID string, req *models.MatchingRequest) (*models.RankedCandidateList, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RankedCandidateList), args.Error(1)
}

func (m *MockMatchingOrchestrator) ScoreBreakdown(ctx context.Context, userID, targetID string) (*models.CompatibilityBreakdown, error) {
	args := m.Called(ctx, userID, targetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CompatibilityBreakdown), args.Error(1)
}

func (m *MockMatchingOrchestrator) GetPreference(ctx context.Context, userID string) (*models.MatchingPreference, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MatchingPreference), args.Error(1)
}

func (m *MockMatchingOrchestrator) UpdatePreference(ctx context.Context, userID string, req *models.PreferenceUpdateRequest) (*models.MatchingPreference, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MatchingPreference), args.Error(1)
}

func (m *MockMatchingOrchestrator) RecordFeedback(ctx context.Context, feedback *models.MatchFeedback) error {
	args := m.Called(ctx, feedback)
	return args.Error(0)
}

func setupMatchingRouter(orchestrator MatchingOrchestratorInterface) *gin.Engine {
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	handler := NewMatchingHandler(orchestrator, logger)

	router := gin.New()
	// Stand-in for the auth middleware: every request acts as user u1.
	router.Use(func(c *gin.Context) {
		c.Set("user_id", "u1")
		c.Set("user_tier", "free")
	})

	router.POST("/api/v1/matching/candidates", handler.FindCandidates)
	router.POST("/api/v1/matching/compatibility", handler.CalculateCompatibility)
	router.GET("/api/v1/matching/compatibility/:targetId/breakdown", handler.GetBreakdown)
	router.GET("/api/v1/matching/preferences", handler.GetPreferences)
	router.PUT("/api/v1/matching/preferences", handler.UpdatePreferences)
	router.POST("/api/v1/matching/feedback", handler.SubmitFeedback)

	return router
}

func TestMatchingHandler_FindCandidates(t *testing.T) {
	mockOrchestrator := new(MockMatchingOrchestrator)
	router := setupMatchingRouter(mockOrchestrator)

	mockResult := &models.RankedCandidateList{
		UserID: "u1",
		Candidates: []models.MatchingCandidate{
			{UserID: "c1", CompatibilityScore: 0.87, CompatibilityLevel: models.LevelExcellent, MatchRank: 1},
		},
		TotalFound:       1,
		AlgorithmVersion: "v1",
		GeneratedAt:      time.Now(),
	}

	mockOrchestrator.On("FindMatchingCandidates", mock.Anything, "u1", mock.Anything).Return(mockResult, nil)

	body, _ := json.Marshal(models.MatchingRequest{Limit: 10})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/matching/candidates", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response models.RankedCandidateList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "u1", response.UserID)
	assert.Len(t, response.Candidates, 1)
	assert.Equal(t, "c1", response.Candidates[0].UserID)

	mockOrchestrator.AssertExpectations(t)
}

func TestMatchingHandler_FindCandidatesInvalidBody(t *testing.T) {
	router := setupMatchingRouter(new(MockMatchingOrchestrator))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/matching/candidates", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMatchingHandler_CalculateCompatibility(t *testing.T) {
	mockOrchestrator := new(MockMatchingOrchestrator)
	router := setupMatchingRouter(mockOrchestrator)

	mockResult := &models.CompatibilityResult{
		UserID1:      "u1",
		UserID2:      "u2",
		OverallScore: 0.72,
		Level:        models.LevelGood,
		Confidence:   1.0,
		CalculatedAt: time.Now(),
	}

	mockOrchestrator.On("CalculateCompatibility", mock.Anything, "u1", "u2").Return(mockResult, nil)

	body, _ := json.Marshal(models.CompatibilityRequest{TargetUserID: "u2"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/matching/compatibility", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response models.CompatibilityResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.InDelta(t, 0.72, response.OverallScore, 0.001)
	assert.Equal(t, models.LevelGood, response.Level)

	mockOrchestrator.AssertExpectations(t)
}

func TestMatchingHandler_CalculateCompatibilityErrors(t *testing.T) {
	tests := []struct {
		name           string
		targetID       string
		orchestratorErr error
		expectedStatus int
		expectedCode   string
	}{
		{
			name:            "self comparison",
			targetID:        "u1",
			orchestratorErr: services.ErrSelfCompatibility,
			expectedStatus:  http.StatusBadRequest,
			expectedCode:    "SELF_COMPATIBILITY",
		},
		{
			name:            "unknown target",
			targetID:        "missing",
			orchestratorErr: services.ErrUserNotFound,
			expectedStatus:  http.StatusNotFound,
			expectedCode:    "USER_NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockOrchestrator := new(MockMatchingOrchestrator)
			router := setupMatchingRouter(mockOrchestrator)

			mockOrchestrator.On("CalculateCompatibility", mock.Anything, "u1", tt.targetID).Return(nil, tt.orchestratorErr)

			body, _ := json.Marshal(models.CompatibilityRequest{TargetUserID: tt.targetID})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/matching/compatibility", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var response map[string]map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, tt.expectedCode, response["error"]["code"])
		})
	}
}

func TestMatchingHandler_CalculateCompatibilityMissingTarget(t *testing.T) {
	router := setupMatchingRouter(new(MockMatchingOrchestrator))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/matching/compatibility", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMatchingHandler_GetBreakdown(t *testing.T) {
	mockOrchestrator := new(MockMatchingOrchestrator)
	router := setupMatchingRouter(mockOrchestrator)

	mockBreakdown := &models.CompatibilityBreakdown{
		DimensionScores: models.DimensionScores{Personality: 0.82, Emotion: 0.6, Lifestyle: 0.5, Interest: 0.25},
		Communication:   0.754,
	}

	mockOrchestrator.On("ScoreBreakdown", mock.Anything, "u1", "u2").Return(mockBreakdown, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/matching/compatibility/u2/breakdown", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response models.CompatibilityBreakdown
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.InDelta(t, 0.82, response.Personality, 0.001)
	assert.InDelta(t, 0.754, response.Communication, 0.001)
}

func TestMatchingHandler_Preferences(t *testing.T) {
	mockOrchestrator := new(MockMatchingOrchestrator)
	router := setupMatchingRouter(mockOrchestrator)

	pref := &models.MatchingPreference{
		PersonalityWeight: 0.5,
		EmotionWeight:     0.2,
		LifestyleWeight:   0.2,
		InterestWeight:    0.1,
		MinCompatibility:  0.6,
	}

	mockOrchestrator.On("GetPreference", mock.Anything, "u1").Return(pref, nil)
	mockOrchestrator.On("UpdatePreference", mock.Anything, "u1", mock.Anything).Return(pref, nil)

	t.Run("get", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/matching/preferences", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response models.MatchingPreference
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.InDelta(t, 0.5, response.PersonalityWeight, 0.001)
	})

	t.Run("update", func(t *testing.T) {
		body, _ := json.Marshal(models.PreferenceUpdateRequest{
			PersonalityWeight: 0.5,
			EmotionWeight:     0.2,
			LifestyleWeight:   0.2,
			InterestWeight:    0.1,
			MinCompatibility:  0.6,
		})
		req := httptest.NewRequest(http.MethodPut, "/api/v1/matching/preferences", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("update rejects negative weight", func(t *testing.T) {
		body, _ := json.Marshal(map[string]interface{}{"personality_weight": -0.5})
		req := httptest.NewRequest(http.MethodPut, "/api/v1/matching/preferences", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestMatchingHandler_SubmitFeedback(t *testing.T) {
	mockOrchestrator := new(MockMatchingOrchestrator)
	router := setupMatchingRouter(mockOrchestrator)

	mockOrchestrator.On("RecordFeedback", mock.Anything, mock.MatchedBy(func(f *models.MatchFeedback) bool {
		// Attribution comes from the session, not the body.
		return f.UserID == "u1" && f.TargetUserID == "u2" && f.InteractionType == "like"
	})).Return(nil)

	body, _ := json.Marshal(map[string]string{
		"user_id":          "someone-else",
		"target_user_id":   "u2",
		"interaction_type": "like",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/matching/feedback", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	mockOrchestrator.AssertExpectations(t)
}

func TestMatchingHandler_SubmitFeedbackInvalidType(t *testing.T) {
	router := setupMatchingRouter(new(MockMatchingOrchestrator))

	body, _ := json.Marshal(map[string]string{
		"target_user_id":   "u2",
		"interaction_type": "wave",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/matching/feedback", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
