package services

import (
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/kindredapp/kindred/internal/config"
	"github.com/kindredapp/kindred/pkg/models"
)

// neutralScore is what every dimension scorer returns when one side of the
// pair has no data for that dimension.
const neutralScore = 0.5

// mbtiNeighbors maps each type to its most-compatible types, best first.
// Encodes domain knowledge from the personality analysis pipeline; order
// matters (index drives the score).
var mbtiNeighbors = map[string][]string{
	"ENFJ": {"INFP", "ENFP", "INFJ", "INTJ"},
	"ENFP": {"INFJ", "INTJ", "ENFJ", "ENTP"},
	"ENTJ": {"INTP", "INTJ", "ENFP", "ENTP"},
	"ENTP": {"INFJ", "INTJ", "ENFP", "ENTJ"},
	"ESFJ": {"ISFP", "ESFP", "ISTJ", "ESTJ"},
	"ESFP": {"ISFJ", "ISTJ", "ESFJ", "ESTP"},
	"ESTJ": {"ISFJ", "ISTJ", "ESFJ", "ISTP"},
	"ESTP": {"ISFJ", "ISTJ", "ESFP", "ESTJ"},
	"INFJ": {"ENFP", "ENTP", "INFP", "ENFJ"},
	"INFP": {"ENFJ", "ENTJ", "INFJ", "ENFP"},
	"INTJ": {"ENFP", "ENTP", "ENTJ", "INFP"},
	"INTP": {"ENTJ", "ESTJ", "INTJ", "ENTP"},
	"ISFJ": {"ESFP", "ESTP", "ISFP", "ESFJ"},
	"ISFP": {"ENFJ", "ESFJ", "ISFJ", "ESFP"},
	"ISTJ": {"ESFP", "ESTP", "ESTJ", "ISFJ"},
	"ISTP": {"ESFJ", "ESTJ", "ESTP", "ISFP"},
}

// CompatibilityService is the pure scoring core: dimension scorers, weighted
// aggregation, level classification and confidence. It holds no connections
// and never mutates the records it is given.
type CompatibilityService struct {
	config       *config.MatchingConfig
	logger       *logrus.Logger
	emotionPairs [][2]string
}

func NewCompatibilityService(cfg *config.MatchingConfig, logger *logrus.Logger) *CompatibilityService {
	return &CompatibilityService{
		config:       cfg,
		logger:       logger,
		emotionPairs: cfg.EmotionPairs(),
	}
}

// ScoreDimensions computes the four raw dimension scores for a pair. All
// scorers are symmetric in their arguments.
func (s *CompatibilityService) ScoreDimensions(a, b *models.FeatureRecord) models.DimensionScores {
	return models.DimensionScores{
		Personality: s.PersonalityScore(a, b),
		Emotion:     s.EmotionScore(a, b),
		Lifestyle:   s.LifestyleScore(a, b),
		Interest:    s.InterestScore(a, b),
	}
}

// PersonalityScore blends MBTI compatibility (0.6) with Big5 similarity (0.4).
func (s *CompatibilityService) PersonalityScore(a, b *models.FeatureRecord) float64 {
	if !a.HasPersonality() || !b.HasPersonality() {
		return neutralScore
	}

	mbtiScore := neutralScore
	if a.Personality.MBTI != nil && b.Personality.MBTI != nil {
		mbtiScore = s.mbtiCompatibility(a.Personality.MBTI.Code(), b.Personality.MBTI.Code())
	}

	big5Score := neutralScore
	if a.Personality.Big5 != nil && b.Personality.Big5 != nil {
		big5Score = big5Similarity(a.Personality.Big5, b.Personality.Big5)
	}

	return clamp01(mbtiScore*0.6 + big5Score*0.4)
}

// mbtiCompatibility scores a type pair from the neighbor table, falling back
// to per-axis letter overlap when the pair is not listed. Symmetric by
// taking the better direction of the table lookup.
func (s *CompatibilityService) mbtiCompatibility(type1, type2 string) float64 {
	best := -1.0
	if idx := neighborIndex(type1, type2); idx >= 0 {
		best = 0.9 - 0.1*float64(idx)
	}
	if idx := neighborIndex(type2, type1); idx >= 0 {
		if score := 0.9 - 0.1*float64(idx); score > best {
			best = score
		}
	}
	if best >= 0 {
		return best
	}

	// Axis overlap fallback: [0.3, 0.7]
	shared := 0
	for i := 0; i < 4 && i < len(type1) && i < len(type2); i++ {
		if type1[i] == type2[i] {
			shared++
		}
	}
	return 0.3 + 0.4*(float64(shared)/4.0)
}

func neighborIndex(from, to string) int {
	for i, t := range mbtiNeighbors[from] {
		if t == to {
			return i
		}
	}
	return -1
}

func big5Similarity(a, b *models.Big5Traits) float64 {
	diffs := []float64{
		math.Abs(a.Openness - b.Openness),
		math.Abs(a.Conscientiousness - b.Conscientiousness),
		math.Abs(a.Extraversion - b.Extraversion),
		math.Abs(a.Agreeableness - b.Agreeableness),
		math.Abs(a.Neuroticism - b.Neuroticism),
	}

	sum := 0.0
	for _, d := range diffs {
		sum += 1.0 - d
	}
	return sum / float64(len(diffs))
}

// EmotionScore averages whichever of the volatility, sentiment and
// distribution sub-scores are computable for the pair.
func (s *CompatibilityService) EmotionScore(a, b *models.FeatureRecord) float64 {
	if !a.HasEmotion() || !b.HasEmotion() {
		return neutralScore
	}

	e1, e2 := a.Emotion, b.Emotion
	var subs []float64

	if e1.Volatility != nil && e2.Volatility != nil {
		subs = append(subs, math.Max(0, 1-math.Abs(*e1.Volatility-*e2.Volatility)))
	}

	if e1.AvgSentiment != nil && e2.AvgSentiment != nil {
		// Sentiment spans [-1,1], so the worst-case gap is 2.
		subs = append(subs, math.Max(0, 1-math.Abs(*e1.AvgSentiment-*e2.AvgSentiment)/2))
	}

	if len(e1.Distribution) > 0 && len(e2.Distribution) > 0 {
		subs = append(subs, s.distributionComplementarity(e1.Distribution, e2.Distribution))
	}

	if len(subs) == 0 {
		return neutralScore
	}

	sum := 0.0
	for _, v := range subs {
		sum += v
	}
	return clamp01(sum / float64(len(subs)))
}

// distributionComplementarity rewards pairs where one side's dominant
// emotion is balanced by the other's complement (anxious with calm, sad with
// joyful). Missing emotion keys count as weight 0.
func (s *CompatibilityService) distributionComplementarity(d1, d2 map[string]float64) float64 {
	if len(s.emotionPairs) == 0 {
		return neutralScore
	}

	sum := 0.0
	for _, pair := range s.emotionPairs {
		x, y := pair[0], pair[1]
		sum += math.Abs((d1[x]-d1[y])+(d2[y]-d2[x])) / 2
	}
	return clamp01(sum / float64(len(s.emotionPairs)))
}

// LifestyleScore is the clamped cosine similarity of the two lifestyle
// vectors. Mismatched dimensionality or a zero-norm vector is treated as
// unknown direction and scored neutrally.
func (s *CompatibilityService) LifestyleScore(a, b *models.FeatureRecord) float64 {
	if !a.HasLifestyle() || !b.HasLifestyle() {
		return neutralScore
	}
	if len(a.Lifestyle) != len(b.Lifestyle) {
		return neutralScore
	}

	norm1 := floats.Norm(a.Lifestyle, 2)
	norm2 := floats.Norm(b.Lifestyle, 2)
	if norm1 == 0 || norm2 == 0 {
		return neutralScore
	}

	return clamp01(floats.Dot(a.Lifestyle, b.Lifestyle) / (norm1 * norm2))
}

// InterestScore is the Jaccard similarity of the two interest tag sets.
func (s *CompatibilityService) InterestScore(a, b *models.FeatureRecord) float64 {
	if !a.HasInterests() || !b.HasInterests() {
		return neutralScore
	}

	set1 := make(map[string]struct{}, len(a.Interests))
	for _, tag := range a.Interests {
		set1[tag] = struct{}{}
	}

	intersection := 0
	set2 := make(map[string]struct{}, len(b.Interests))
	for _, tag := range b.Interests {
		if _, dup := set2[tag]; dup {
			continue
		}
		set2[tag] = struct{}{}
		if _, ok := set1[tag]; ok {
			intersection++
		}
	}

	union := len(set1) + len(set2) - intersection
	if union == 0 {
		return neutralScore
	}
	return float64(intersection) / float64(union)
}

// Aggregate combines the dimension scores into the overall score and level.
// The requester's preference weights are used when valid; otherwise the
// configured defaults apply.
func (s *CompatibilityService) Aggregate(scores models.DimensionScores, pref *models.MatchingPreference) (float64, models.CompatibilityLevel) {
	weights := s.ResolveWeights(pref)

	overall := scores.Personality*weights.Personality +
		scores.Emotion*weights.Emotion +
		scores.Lifestyle*weights.Lifestyle +
		scores.Interest*weights.Interest

	overall = clamp01(overall)
	return overall, DetermineLevel(overall)
}

// ResolveWeights normalizes the effective weight vector to sum 1.0. A
// preference with any negative weight, or with all weights zero, is invalid
// and falls back to the defaults. Centralized here so no caller can bypass
// normalization.
func (s *CompatibilityService) ResolveWeights(pref *models.MatchingPreference) config.WeightConfig {
	w := s.config.Weights
	if pref != nil && validWeights(pref) {
		w = config.WeightConfig{
			Personality: pref.PersonalityWeight,
			Emotion:     pref.EmotionWeight,
			Lifestyle:   pref.LifestyleWeight,
			Interest:    pref.InterestWeight,
		}
	}

	sum := w.Personality + w.Emotion + w.Lifestyle + w.Interest
	if sum <= 0 {
		// Misconfigured defaults; fall back to an even split.
		return config.WeightConfig{Personality: 0.25, Emotion: 0.25, Lifestyle: 0.25, Interest: 0.25}
	}

	return config.WeightConfig{
		Personality: w.Personality / sum,
		Emotion:     w.Emotion / sum,
		Lifestyle:   w.Lifestyle / sum,
		Interest:    w.Interest / sum,
	}
}

func validWeights(pref *models.MatchingPreference) bool {
	ws := []float64{pref.PersonalityWeight, pref.EmotionWeight, pref.LifestyleWeight, pref.InterestWeight}
	sum := 0.0
	for _, w := range ws {
		if w < 0 {
			return false
		}
		sum += w
	}
	return sum > 0
}

// Confidence degrades multiplicatively for every dimension completely absent
// on either side of the pair, floored at 0.2.
func (s *CompatibilityService) Confidence(a, b *models.FeatureRecord) float64 {
	const (
		missingPenalty = 0.7
		floor          = 0.2
	)

	confidence := 1.0
	present := []bool{
		a.HasPersonality() && b.HasPersonality(),
		a.HasEmotion() && b.HasEmotion(),
		a.HasLifestyle() && b.HasLifestyle(),
		a.HasInterests() && b.HasInterests(),
	}
	for _, ok := range present {
		if !ok {
			confidence *= missingPenalty
		}
	}

	return math.Max(floor, confidence)
}

// Breakdown rounds the dimension scores for presentation and derives the
// communication score from personality and emotion.
func (s *CompatibilityService) Breakdown(scores models.DimensionScores) models.CompatibilityBreakdown {
	return models.CompatibilityBreakdown{
		DimensionScores: models.DimensionScores{
			Personality: Round3(scores.Personality),
			Emotion:     Round3(scores.Emotion),
			Lifestyle:   Round3(scores.Lifestyle),
			Interest:    Round3(scores.Interest),
		},
		Communication: Round3(scores.Personality*0.7 + scores.Emotion*0.3),
	}
}

// DetermineLevel buckets an overall score, evaluated top-down.
func DetermineLevel(score float64) models.CompatibilityLevel {
	switch {
	case score >= 0.8:
		return models.LevelExcellent
	case score >= 0.65:
		return models.LevelGood
	case score >= 0.5:
		return models.LevelFair
	default:
		return models.LevelPoor
	}
}

func clamp01(v float64) float64 {
	return math.Max(0.0, math.Min(1.0, v))
}

// Round3 rounds to three decimal places for API responses.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
