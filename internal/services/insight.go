package services

import (
	"github.com/sirupsen/logrus"

	"github.com/kindredapp/kindred/pkg/models"
)

// InsightService turns a score breakdown into human-readable relationship
// narratives. Everything here is a deterministic rule table; no model calls.
type InsightService struct {
	logger *logrus.Logger
}

func NewInsightService(logger *logrus.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// Threshold pairs per dimension. Interest runs lower on average (Jaccard
// over sparse tag sets), hence the lower bar.
const (
	strengthThreshold  = 0.7
	challengeThreshold = 0.4

	interestStrengthThreshold  = 0.6
	interestChallengeThreshold = 0.3
)

type narrativeRule struct {
	score          func(models.DimensionScores) float64
	highBar        float64
	lowBar         float64
	strength       string
	challenge      string
	recommendation string
}

var narrativeRules = []narrativeRule{
	{
		score:          func(s models.DimensionScores) float64 { return s.Personality },
		highBar:        strengthThreshold,
		lowBar:         challengeThreshold,
		strength:       "Well-matched personalities that make it easy to understand each other",
		challenge:      "Personality differences may cause friction and will take mutual understanding",
		recommendation: "Learn each other's communication style and make room for your differences",
	},
	{
		score:          func(s models.DimensionScores) float64 { return s.Emotion },
		highBar:        strengthThreshold,
		lowBar:         challengeThreshold,
		strength:       "Likely to sustain an emotionally stable relationship",
		challenge:      "Different emotional rhythms could lead to misunderstandings",
		recommendation: "Practice naming feelings out loud and checking in before assuming",
	},
	{
		score:          func(s models.DimensionScores) float64 { return s.Lifestyle },
		highBar:        strengthThreshold,
		lowBar:         challengeThreshold,
		strength:       "Similar daily rhythms make spending time together easy",
		challenge:      "Different lifestyles will require some coordination",
		recommendation: "Agree on shared routines early instead of expecting them to align on their own",
	},
	{
		score:          func(s models.DimensionScores) float64 { return s.Interest },
		highBar:        interestStrengthThreshold,
		lowBar:         interestChallengeThreshold,
		strength:       "Plenty of shared interests to keep conversations going",
		challenge:      "Few shared interests, so each other's hobbies will take effort to appreciate",
		recommendation: "Take turns introducing each other to a hobby and look for new common ground",
	},
}

const (
	fallbackStrength       = "A balanced profile with room to grow together"
	fallbackRecommendation = "Acknowledge each other's strengths and keep communicating to grow the relationship"
)

// Build derives strengths, challenges and recommendations from the raw
// dimension scores. Recommendations map 1:1 to whichever challenges fired.
func (s *InsightService) Build(scores models.DimensionScores) models.RelationshipInsight {
	insight := models.RelationshipInsight{
		Strengths:       []string{},
		Challenges:      []string{},
		Recommendations: []string{},
	}

	for _, rule := range narrativeRules {
		value := rule.score(scores)
		if value > rule.highBar {
			insight.Strengths = append(insight.Strengths, rule.strength)
		} else if value < rule.lowBar {
			insight.Challenges = append(insight.Challenges, rule.challenge)
			insight.Recommendations = append(insight.Recommendations, rule.recommendation)
		}
	}

	if len(insight.Strengths) == 0 {
		insight.Strengths = append(insight.Strengths, fallbackStrength)
	}
	if len(insight.Recommendations) == 0 {
		insight.Recommendations = append(insight.Recommendations, fallbackRecommendation)
	}

	return insight
}

// MatchReasons summarizes why a candidate was suggested, capped at three.
func (s *InsightService) MatchReasons(scores models.DimensionScores, overall float64) []string {
	var reasons []string

	if scores.Personality > strengthThreshold {
		reasons = append(reasons, "Strong personality fit")
	}
	if scores.Emotion > strengthThreshold {
		reasons = append(reasons, "Potential for an emotionally steady connection")
	}

	if overall > 0.8 {
		reasons = append(reasons, "Very high overall compatibility")
	} else if overall > 0.65 {
		reasons = append(reasons, "Good overall compatibility")
	}

	if len(reasons) == 0 {
		return []string{"Compatible based on profile analysis"}
	}
	if len(reasons) > 3 {
		reasons = reasons[:3]
	}
	return reasons
}

// TraitOverlap reports up to two traits both users share, plus complementary
// pairings worth calling out (currently introvert/extrovert balance from the
// MBTI first axis).
func (s *InsightService) TraitOverlap(a, b *models.FeatureRecord) (common []string, complementary []string) {
	common = []string{}
	complementary = []string{}

	if a.Personality == nil || b.Personality == nil {
		return common, complementary
	}

	seen := make(map[string]struct{}, len(a.Personality.Traits))
	for _, t := range a.Personality.Traits {
		seen[t] = struct{}{}
	}
	for _, t := range b.Personality.Traits {
		if _, ok := seen[t]; ok && len(common) < 2 {
			common = append(common, t)
		}
	}

	if a.Personality.MBTI != nil && b.Personality.MBTI != nil {
		if a.Personality.MBTI.Code()[0] != b.Personality.MBTI.Code()[0] {
			complementary = append(complementary, "Balance between introversion and extraversion")
		}
	}

	return common, complementary
}
