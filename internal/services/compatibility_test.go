package services

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/kindredapp/kindred/internal/config"
	"github.com/kindredapp/kindred/pkg/models"
)

func testMatchingConfig() *config.MatchingConfig {
	return &config.MatchingConfig{
		Weights: config.WeightConfig{
			Personality: 0.35,
			Emotion:     0.25,
			Lifestyle:   0.25,
			Interest:    0.15,
		},
		MinCompatibility: 0.5,
		MaxLimit:         50,
		CandidatePoolCap: 100,
		AlgorithmVersion: "v1",
	}
}

func testCompatibilityService() *CompatibilityService {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewCompatibilityService(testMatchingConfig(), logger)
}

// axesForCode builds a fully-polarized axis set for a four-letter type code.
func axesForCode(code string) *models.MBTIAxes {
	axes := &models.MBTIAxes{}
	set := map[byte]*float64{
		'E': &axes.E, 'I': &axes.I,
		'S': &axes.S, 'N': &axes.N,
		'T': &axes.T, 'F': &axes.F,
		'J': &axes.J, 'P': &axes.P,
	}
	for i := 0; i < len(code); i++ {
		*set[code[i]] = 1.0
	}
	return axes
}

func recordWithMBTI(userID, code string) *models.FeatureRecord {
	return &models.FeatureRecord{
		UserID:      userID,
		Personality: &models.Personality{MBTI: axesForCode(code)},
	}
}

func TestCompatibilityService_MBTICompatibility(t *testing.T) {
	s := testCompatibilityService()

	tests := []struct {
		name     string
		type1    string
		type2    string
		expected float64
	}{
		{
			name:     "best neighbor",
			type1:    "INFP",
			type2:    "ENFJ",
			expected: 0.9,
		},
		{
			name:     "second neighbor",
			type1:    "INFP",
			type2:    "ENTJ",
			expected: 0.8,
		},
		{
			name:     "fourth neighbor",
			type1:    "INFP",
			type2:    "ENFP",
			expected: 0.6,
		},
		{
			name:     "symmetric via better direction",
			type1:    "ENFJ",
			type2:    "INFP",
			expected: 0.9,
		},
		{
			name:     "identical type falls back to axis overlap",
			type1:    "INFP",
			type2:    "INFP",
			expected: 0.7, // 0.3 + 0.4 * 4/4
		},
		{
			name:     "unlisted pair with two shared axes",
			type1:    "INFP",
			type2:    "ISTP",
			expected: 0.5, // 0.3 + 0.4 * 2/4
		},
		{
			name:     "unlisted pair with no shared axes",
			type1:    "ESTJ",
			type2:    "INFP",
			expected: 0.3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, s.mbtiCompatibility(tt.type1, tt.type2), 0.001)
		})
	}
}

func TestCompatibilityService_MBTICompatibilitySymmetric(t *testing.T) {
	s := testCompatibilityService()

	types := make([]string, 0, len(mbtiNeighbors))
	for code := range mbtiNeighbors {
		types = append(types, code)
	}

	for _, t1 := range types {
		for _, t2 := range types {
			assert.InDelta(t, s.mbtiCompatibility(t1, t2), s.mbtiCompatibility(t2, t1), 0.001,
				"pair %s/%s should score the same in both directions", t1, t2)
		}
	}
}

func TestCompatibilityService_Big5Similarity(t *testing.T) {
	tests := []struct {
		name     string
		a        models.Big5Traits
		b        models.Big5Traits
		expected float64
	}{
		{
			name:     "identical traits",
			a:        models.Big5Traits{Openness: 0.7, Conscientiousness: 0.6, Extraversion: 0.5, Agreeableness: 0.8, Neuroticism: 0.3},
			b:        models.Big5Traits{Openness: 0.7, Conscientiousness: 0.6, Extraversion: 0.5, Agreeableness: 0.8, Neuroticism: 0.3},
			expected: 1.0,
		},
		{
			name:     "maximally different",
			a:        models.Big5Traits{Openness: 1, Conscientiousness: 1, Extraversion: 1, Agreeableness: 1, Neuroticism: 1},
			b:        models.Big5Traits{},
			expected: 0.0,
		},
		{
			name:     "uniform half gap",
			a:        models.Big5Traits{Openness: 0.5, Conscientiousness: 0.5, Extraversion: 0.5, Agreeableness: 0.5, Neuroticism: 0.5},
			b:        models.Big5Traits{Openness: 1, Conscientiousness: 1, Extraversion: 1, Agreeableness: 1, Neuroticism: 1},
			expected: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, big5Similarity(&tt.a, &tt.b), 0.001)
		})
	}
}

func TestCompatibilityService_PersonalityScore(t *testing.T) {
	s := testCompatibilityService()

	big5 := &models.Big5Traits{Openness: 0.7, Conscientiousness: 0.6, Extraversion: 0.4, Agreeableness: 0.8, Neuroticism: 0.3}

	t.Run("identical full profiles blend fallback mbti with perfect big5", func(t *testing.T) {
		a := recordWithMBTI("u1", "INFP")
		a.Personality.Big5 = big5
		b := recordWithMBTI("u2", "INFP")
		b.Personality.Big5 = big5

		// MBTI falls back to full axis overlap (0.7); Big5 is identical (1.0).
		assert.InDelta(t, 0.6*0.7+0.4*1.0, s.PersonalityScore(a, b), 0.001)
	})

	t.Run("missing personality on one side is neutral", func(t *testing.T) {
		a := recordWithMBTI("u1", "INFP")
		b := &models.FeatureRecord{UserID: "u2"}
		assert.InDelta(t, 0.5, s.PersonalityScore(a, b), 0.001)
	})

	t.Run("mbti only uses neutral big5", func(t *testing.T) {
		a := recordWithMBTI("u1", "INFP")
		b := recordWithMBTI("u2", "ENFJ")
		assert.InDelta(t, 0.6*0.9+0.4*0.5, s.PersonalityScore(a, b), 0.001)
	})
}

func floatPtr(v float64) *float64 { return &v }

func TestCompatibilityService_EmotionScore(t *testing.T) {
	s := testCompatibilityService()

	tests := []struct {
		name     string
		a        *models.EmotionPattern
		b        *models.EmotionPattern
		expected float64
	}{
		{
			name:     "volatility only",
			a:        &models.EmotionPattern{Volatility: floatPtr(0.2)},
			b:        &models.EmotionPattern{Volatility: floatPtr(0.5)},
			expected: 0.7,
		},
		{
			name:     "sentiment only spans the full range",
			a:        &models.EmotionPattern{AvgSentiment: floatPtr(-1)},
			b:        &models.EmotionPattern{AvgSentiment: floatPtr(1)},
			expected: 0.0,
		},
		{
			name:     "sentiment and volatility average",
			a:        &models.EmotionPattern{AvgSentiment: floatPtr(0.5), Volatility: floatPtr(0.3)},
			b:        &models.EmotionPattern{AvgSentiment: floatPtr(0.5), Volatility: floatPtr(0.3)},
			expected: 1.0,
		},
		{
			name:     "fully complementary distributions",
			a:        &models.EmotionPattern{Distribution: map[string]float64{"anxiety": 1, "sadness": 1, "anger": 1, "stress": 1}},
			b:        &models.EmotionPattern{Distribution: map[string]float64{"calm": 1, "joy": 1, "peace": 1, "relaxation": 1}},
			expected: 1.0,
		},
		{
			name:     "identical distributions have no complementarity",
			a:        &models.EmotionPattern{Distribution: map[string]float64{"anxiety": 0.5, "calm": 0.5}},
			b:        &models.EmotionPattern{Distribution: map[string]float64{"anxiety": 0.5, "calm": 0.5}},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &models.FeatureRecord{UserID: "u1", Emotion: tt.a}
			b := &models.FeatureRecord{UserID: "u2", Emotion: tt.b}
			assert.InDelta(t, tt.expected, s.EmotionScore(a, b), 0.001)
		})
	}

	t.Run("missing emotion on one side is neutral", func(t *testing.T) {
		a := &models.FeatureRecord{UserID: "u1", Emotion: &models.EmotionPattern{Volatility: floatPtr(0.2)}}
		b := &models.FeatureRecord{UserID: "u2"}
		assert.InDelta(t, 0.5, s.EmotionScore(a, b), 0.001)
	})

	t.Run("disjoint sub-signals score neutral", func(t *testing.T) {
		// Both sides have emotion data, but no sub-score is computable.
		a := &models.FeatureRecord{UserID: "u1", Emotion: &models.EmotionPattern{Volatility: floatPtr(0.2)}}
		b := &models.FeatureRecord{UserID: "u2", Emotion: &models.EmotionPattern{AvgSentiment: floatPtr(0.4)}}
		assert.InDelta(t, 0.5, s.EmotionScore(a, b), 0.001)
	})
}

func TestCompatibilityService_LifestyleScore(t *testing.T) {
	s := testCompatibilityService()

	tests := []struct {
		name     string
		vec1     []float64
		vec2     []float64
		expected float64
	}{
		{
			name:     "identical vectors",
			vec1:     []float64{1, 0, 0},
			vec2:     []float64{1, 0, 0},
			expected: 1.0,
		},
		{
			name:     "orthogonal vectors",
			vec1:     []float64{1, 0, 0},
			vec2:     []float64{0, 1, 0},
			expected: 0.0,
		},
		{
			name:     "opposite vectors clamp to zero",
			vec1:     []float64{1, 0, 0},
			vec2:     []float64{-1, 0, 0},
			expected: 0.0,
		},
		{
			name:     "mismatched lengths are neutral",
			vec1:     []float64{1, 0},
			vec2:     []float64{1, 0, 0},
			expected: 0.5,
		},
		{
			name:     "zero norm is neutral",
			vec1:     []float64{0, 0, 0},
			vec2:     []float64{1, 0, 0},
			expected: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &models.FeatureRecord{UserID: "u1", Lifestyle: tt.vec1}
			b := &models.FeatureRecord{UserID: "u2", Lifestyle: tt.vec2}
			assert.InDelta(t, tt.expected, s.LifestyleScore(a, b), 0.001)
		})
	}

	t.Run("missing vector is neutral", func(t *testing.T) {
		a := &models.FeatureRecord{UserID: "u1", Lifestyle: []float64{1, 0}}
		b := &models.FeatureRecord{UserID: "u2"}
		assert.InDelta(t, 0.5, s.LifestyleScore(a, b), 0.001)
	})
}

func TestCompatibilityService_InterestScore(t *testing.T) {
	s := testCompatibilityService()

	tests := []struct {
		name     string
		set1     []string
		set2     []string
		expected float64
	}{
		{
			name:     "identical sets",
			set1:     []string{"hiking", "photography"},
			set2:     []string{"hiking", "photography"},
			expected: 1.0,
		},
		{
			name:     "no overlap",
			set1:     []string{"hiking", "photography"},
			set2:     []string{"cooking", "reading"},
			expected: 0.0,
		},
		{
			name:     "partial overlap",
			set1:     []string{"hiking", "photography", "travel"},
			set2:     []string{"hiking", "cooking"},
			expected: 0.25, // 1 intersection / 4 union
		},
		{
			name:     "duplicates do not inflate the union",
			set1:     []string{"hiking", "hiking"},
			set2:     []string{"hiking"},
			expected: 1.0,
		},
		{
			name:     "missing interests are neutral",
			set1:     []string{"hiking"},
			set2:     nil,
			expected: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &models.FeatureRecord{UserID: "u1", Interests: tt.set1}
			b := &models.FeatureRecord{UserID: "u2", Interests: tt.set2}
			assert.InDelta(t, tt.expected, s.InterestScore(a, b), 0.001)
		})
	}
}

func TestCompatibilityService_ScoreDimensionsSymmetric(t *testing.T) {
	s := testCompatibilityService()

	a := recordWithMBTI("u1", "INFP")
	a.Personality.Big5 = &models.Big5Traits{Openness: 0.9, Conscientiousness: 0.4, Extraversion: 0.2, Agreeableness: 0.7, Neuroticism: 0.6}
	a.Emotion = &models.EmotionPattern{
		AvgSentiment: floatPtr(0.3),
		Volatility:   floatPtr(0.4),
		Distribution: map[string]float64{"anxiety": 0.6, "joy": 0.4},
	}
	a.Lifestyle = []float64{0.2, 0.8, 0.5}
	a.Interests = []string{"hiking", "music"}

	b := recordWithMBTI("u2", "ENTJ")
	b.Personality.Big5 = &models.Big5Traits{Openness: 0.3, Conscientiousness: 0.8, Extraversion: 0.9, Agreeableness: 0.4, Neuroticism: 0.2}
	b.Emotion = &models.EmotionPattern{
		AvgSentiment: floatPtr(-0.2),
		Volatility:   floatPtr(0.7),
		Distribution: map[string]float64{"calm": 0.7, "sadness": 0.3},
	}
	b.Lifestyle = []float64{0.9, 0.1, 0.3}
	b.Interests = []string{"music", "chess", "cooking"}

	forward := s.ScoreDimensions(a, b)
	reverse := s.ScoreDimensions(b, a)

	assert.InDelta(t, forward.Personality, reverse.Personality, 1e-9)
	assert.InDelta(t, forward.Emotion, reverse.Emotion, 1e-9)
	assert.InDelta(t, forward.Lifestyle, reverse.Lifestyle, 1e-9)
	assert.InDelta(t, forward.Interest, reverse.Interest, 1e-9)
}

func TestCompatibilityService_ResolveWeights(t *testing.T) {
	s := testCompatibilityService()

	t.Run("nil preference uses configured defaults", func(t *testing.T) {
		w := s.ResolveWeights(nil)
		assert.InDelta(t, 0.35, w.Personality, 0.001)
		assert.InDelta(t, 0.25, w.Emotion, 0.001)
		assert.InDelta(t, 0.25, w.Lifestyle, 0.001)
		assert.InDelta(t, 0.15, w.Interest, 0.001)
	})

	t.Run("custom weights are normalized to sum one", func(t *testing.T) {
		w := s.ResolveWeights(&models.MatchingPreference{
			PersonalityWeight: 2,
			EmotionWeight:     1,
			LifestyleWeight:   1,
			InterestWeight:    0,
		})
		assert.InDelta(t, 0.5, w.Personality, 0.001)
		assert.InDelta(t, 0.25, w.Emotion, 0.001)
		assert.InDelta(t, 0.25, w.Lifestyle, 0.001)
		assert.InDelta(t, 0.0, w.Interest, 0.001)
	})

	t.Run("negative weight falls back to defaults", func(t *testing.T) {
		w := s.ResolveWeights(&models.MatchingPreference{
			PersonalityWeight: -1,
			EmotionWeight:     1,
			LifestyleWeight:   1,
			InterestWeight:    1,
		})
		assert.InDelta(t, 0.35, w.Personality, 0.001)
	})

	t.Run("all-zero weights fall back to defaults", func(t *testing.T) {
		w := s.ResolveWeights(&models.MatchingPreference{})
		assert.InDelta(t, 0.35, w.Personality, 0.001)
		assert.InDelta(t, 0.15, w.Interest, 0.001)
	})
}

func TestCompatibilityService_Aggregate(t *testing.T) {
	s := testCompatibilityService()

	t.Run("weighted sum with default weights", func(t *testing.T) {
		scores := models.DimensionScores{Personality: 0.82, Emotion: 0.5, Lifestyle: 0.5, Interest: 0.2}
		overall, level := s.Aggregate(scores, nil)

		expected := 0.82*0.35 + 0.5*0.25 + 0.5*0.25 + 0.2*0.15
		assert.InDelta(t, expected, overall, 0.001)
		assert.Equal(t, models.LevelFair, level)
	})

	t.Run("requester weights shift the outcome", func(t *testing.T) {
		scores := models.DimensionScores{Personality: 1, Emotion: 0, Lifestyle: 0, Interest: 0}
		overall, level := s.Aggregate(scores, &models.MatchingPreference{PersonalityWeight: 1})
		assert.InDelta(t, 1.0, overall, 0.001)
		assert.Equal(t, models.LevelExcellent, level)
	})

	t.Run("mixed scores land in fair", func(t *testing.T) {
		scores := models.DimensionScores{Personality: 0.8, Emotion: 0.6, Lifestyle: 0.4, Interest: 0.2}
		overall, level := s.Aggregate(scores, nil)
		assert.InDelta(t, 0.56, overall, 0.001)
		assert.Equal(t, models.LevelFair, level)
	})

	t.Run("perfect scores aggregate to one", func(t *testing.T) {
		scores := models.DimensionScores{Personality: 1, Emotion: 1, Lifestyle: 1, Interest: 1}
		overall, _ := s.Aggregate(scores, nil)
		assert.InDelta(t, 1.0, overall, 0.001)
	})
}

func TestDetermineLevel(t *testing.T) {
	tests := []struct {
		score    float64
		expected models.CompatibilityLevel
	}{
		{0.9, models.LevelExcellent},
		{0.8, models.LevelExcellent},
		{0.79, models.LevelGood},
		{0.65, models.LevelGood},
		{0.64, models.LevelFair},
		{0.5, models.LevelFair},
		{0.49, models.LevelPoor},
		{0.0, models.LevelPoor},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, DetermineLevel(tt.score), "score %v", tt.score)
	}
}

func TestCompatibilityService_Confidence(t *testing.T) {
	s := testCompatibilityService()

	full := recordWithMBTI("u1", "INFP")
	full.Emotion = &models.EmotionPattern{Volatility: floatPtr(0.3)}
	full.Lifestyle = []float64{1, 0}
	full.Interests = []string{"hiking"}

	empty := &models.FeatureRecord{UserID: "u2"}

	t.Run("complete pair has full confidence", func(t *testing.T) {
		other := recordWithMBTI("u3", "ENFJ")
		other.Emotion = &models.EmotionPattern{AvgSentiment: floatPtr(0.1)}
		other.Lifestyle = []float64{0, 1}
		other.Interests = []string{"music"}
		assert.InDelta(t, 1.0, s.Confidence(full, other), 0.001)
	})

	t.Run("one missing dimension costs one penalty", func(t *testing.T) {
		partial := recordWithMBTI("u3", "ENFJ")
		partial.Emotion = &models.EmotionPattern{AvgSentiment: floatPtr(0.1)}
		partial.Lifestyle = []float64{0, 1}
		assert.InDelta(t, 0.7, s.Confidence(full, partial), 0.001)
	})

	t.Run("all dimensions missing compounds penalties", func(t *testing.T) {
		assert.InDelta(t, 0.7*0.7*0.7*0.7, s.Confidence(full, empty), 0.001)
	})
}

func TestCompatibilityService_Breakdown(t *testing.T) {
	s := testCompatibilityService()

	scores := models.DimensionScores{Personality: 0.8211, Emotion: 0.6666, Lifestyle: 0.5, Interest: 0.25}
	breakdown := s.Breakdown(scores)

	assert.InDelta(t, 0.821, breakdown.Personality, 0.0001)
	assert.InDelta(t, 0.667, breakdown.Emotion, 0.0001)
	assert.InDelta(t, Round3(0.8211*0.7+0.6666*0.3), breakdown.Communication, 0.0001)
}
