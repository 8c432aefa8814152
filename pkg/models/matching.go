package models

import "time"

// CompatibilityLevel is the discrete bucket derived from the overall score.
type CompatibilityLevel string

const (
	LevelExcellent CompatibilityLevel = "excellent"
	LevelGood      CompatibilityLevel = "good"
	LevelFair      CompatibilityLevel = "fair"
	LevelPoor      CompatibilityLevel = "poor"
)

// DimensionScores holds the four raw per-dimension scores, each in [0,1].
type DimensionScores struct {
	Personality float64 `json:"personality_compatibility"`
	Emotion     float64 `json:"emotion_compatibility"`
	Lifestyle   float64 `json:"lifestyle_compatibility"`
	Interest    float64 `json:"interest_compatibility"`
}

// CompatibilityBreakdown adds the derived communication score to the raw
// dimension scores for presentation.
type CompatibilityBreakdown struct {
	DimensionScores
	Communication float64 `json:"communication_compatibility"`
}

// RelationshipInsight is the deterministic narrative derived from a breakdown.
type RelationshipInsight struct {
	Strengths       []string `json:"strengths"`
	Challenges      []string `json:"potential_challenges"`
	Recommendations []string `json:"recommendations"`
}

// CompatibilityResult is the full answer to a pairwise compatibility request.
type CompatibilityResult struct {
	UserID1         string                 `json:"user_id_1"`
	UserID2         string                 `json:"user_id_2"`
	OverallScore    float64                `json:"overall_score"`
	Level           CompatibilityLevel     `json:"compatibility_level"`
	Breakdown       CompatibilityBreakdown `json:"breakdown"`
	Strengths       []string               `json:"strengths"`
	Challenges      []string               `json:"potential_challenges"`
	Recommendations []string               `json:"recommendations"`
	CalculatedAt    time.Time              `json:"calculated_at"`
	Confidence      float64                `json:"confidence"`
}

// MatchingFilters narrows the candidate pool before scoring. The engine
// treats them as opaque predicates applied by the feature store.
type MatchingFilters struct {
	AgeMin       *int     `json:"age_min,omitempty" validate:"omitempty,min=0"`
	AgeMax       *int     `json:"age_max,omitempty" validate:"omitempty,min=0"`
	Location     *string  `json:"location,omitempty"`
	ExcludeUsers []string `json:"exclude_users,omitempty"`
}

// MatchingCandidate is one anonymized entry of a ranked candidate list.
type MatchingCandidate struct {
	UserID              string             `json:"user_id"`
	CompatibilityScore  float64            `json:"compatibility_score"`
	CompatibilityLevel  CompatibilityLevel `json:"compatibility_level"`
	AgeRange            *string            `json:"age_range,omitempty"`
	Location            *string            `json:"location,omitempty"`
	PersonalityType     *string            `json:"personality_type,omitempty"`
	PersonalityTraits   []string           `json:"personality_traits,omitempty"`
	MatchReasons        []string           `json:"match_reasons,omitempty"`
	CommonTraits        []string           `json:"common_traits,omitempty"`
	ComplementaryTraits []string           `json:"complementary_traits,omitempty"`
	LastActive          *time.Time         `json:"last_active,omitempty"`
	MatchRank           int                `json:"match_rank"`
}

// RankedCandidateList is the response to a candidate search.
type RankedCandidateList struct {
	UserID           string              `json:"user_id"`
	Candidates       []MatchingCandidate `json:"candidates"`
	TotalFound       int                 `json:"total_found"`
	AlgorithmVersion string              `json:"algorithm_version"`
	GeneratedAt      time.Time           `json:"generated_at"`
}

// MatchingRequest is the HTTP payload for a candidate search.
type MatchingRequest struct {
	Limit            int              `json:"limit" validate:"omitempty,min=1"`
	MinCompatibility float64          `json:"min_compatibility" validate:"omitempty,min=0,max=1"`
	Filters          *MatchingFilters `json:"filters,omitempty"`
}

// CompatibilityRequest is the HTTP payload for a pairwise score.
type CompatibilityRequest struct {
	TargetUserID string `json:"target_user_id" validate:"required"`
}

// PreferenceUpdateRequest carries a matching-preference update. Weights may
// sum to anything non-negative; the engine normalizes them.
type PreferenceUpdateRequest struct {
	PersonalityWeight float64  `json:"personality_weight" validate:"min=0"`
	EmotionWeight     float64  `json:"emotion_weight" validate:"min=0"`
	LifestyleWeight   float64  `json:"lifestyle_weight" validate:"min=0"`
	InterestWeight    float64  `json:"interest_weight" validate:"min=0"`
	MinCompatibility  float64  `json:"min_compatibility_threshold" validate:"min=0,max=1"`
	ExcludeUsers      []string `json:"exclude_users,omitempty"`
}

// MatchFeedback is published to the analysis pipeline when a user reacts to
// a suggested match.
type MatchFeedback struct {
	UserID          string    `json:"user_id" validate:"required"`
	TargetUserID    string    `json:"target_user_id" validate:"required"`
	InteractionType string    `json:"interaction_type" validate:"required,oneof=like pass block report"`
	Reason          *string   `json:"reason,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}
