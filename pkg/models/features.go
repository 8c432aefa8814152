package models

import "time"

// MBTIAxes holds the per-axis letter weights produced by the analysis
// pipeline. Each pair (E/I, S/N, T/F, J/P) is expected to sum to 1.0 but is
// re-normalized defensively before use.
type MBTIAxes struct {
	E float64 `json:"e"`
	I float64 `json:"i"`
	S float64 `json:"s"`
	N float64 `json:"n"`
	T float64 `json:"t"`
	F float64 `json:"f"`
	J float64 `json:"j"`
	P float64 `json:"p"`
}

// Normalized rescales each axis pair to sum to 1.0. A pair that sums to zero
// (or contains negatives that cancel) becomes an even 0.5/0.5 split.
func (a MBTIAxes) Normalized() MBTIAxes {
	norm := func(x, y float64) (float64, float64) {
		if x < 0 {
			x = 0
		}
		if y < 0 {
			y = 0
		}
		sum := x + y
		if sum == 0 {
			return 0.5, 0.5
		}
		return x / sum, y / sum
	}

	out := MBTIAxes{}
	out.E, out.I = norm(a.E, a.I)
	out.S, out.N = norm(a.S, a.N)
	out.T, out.F = norm(a.T, a.F)
	out.J, out.P = norm(a.J, a.P)
	return out
}

// Code derives the four-letter type code from the normalized axes. Ties
// resolve to the first letter of each pair so the code is deterministic.
func (a MBTIAxes) Code() string {
	n := a.Normalized()
	code := make([]byte, 4)
	if n.E >= n.I {
		code[0] = 'E'
	} else {
		code[0] = 'I'
	}
	if n.S >= n.N {
		code[1] = 'S'
	} else {
		code[1] = 'N'
	}
	if n.T >= n.F {
		code[2] = 'T'
	} else {
		code[2] = 'F'
	}
	if n.J >= n.P {
		code[3] = 'J'
	} else {
		code[3] = 'P'
	}
	return string(code)
}

// Big5Traits holds the five-factor model scores, each in [0,1].
type Big5Traits struct {
	Openness          float64 `json:"openness"`
	Conscientiousness float64 `json:"conscientiousness"`
	Extraversion      float64 `json:"extraversion"`
	Agreeableness     float64 `json:"agreeableness"`
	Neuroticism       float64 `json:"neuroticism"`
}

// Personality is the per-user personality summary extracted from diary
// analysis. MBTI and Big5 are independently optional.
type Personality struct {
	MBTI   *MBTIAxes   `json:"mbti,omitempty"`
	Big5   *Big5Traits `json:"big5,omitempty"`
	Traits []string    `json:"traits,omitempty"`
}

// EmotionPattern summarizes a user's emotional profile. AvgSentiment is in
// [-1,1], Volatility in [0,1]. Distribution maps emotion name to weight in
// [0,1]; weights need not sum to 1.
type EmotionPattern struct {
	AvgSentiment *float64           `json:"avg_sentiment,omitempty"`
	Volatility   *float64           `json:"volatility,omitempty"`
	Distribution map[string]float64 `json:"distribution,omitempty"`
}

// MatchingPreference is a per-user override for the aggregation weights plus
// search constraints. Weights are normalized by the engine before use.
type MatchingPreference struct {
	PersonalityWeight float64  `json:"personality_weight"`
	EmotionWeight     float64  `json:"emotion_weight"`
	LifestyleWeight   float64  `json:"lifestyle_weight"`
	InterestWeight    float64  `json:"interest_weight"`
	MinCompatibility  float64  `json:"min_compatibility_threshold"`
	ExcludeUsers      []string `json:"exclude_users,omitempty"`
	BlockedUsers      []string `json:"blocked_users,omitempty"`
}

// FeatureRecord is the read-only per-user snapshot the engine scores against.
// It is assembled fresh per request and never mutated by the engine.
type FeatureRecord struct {
	UserID      string              `json:"user_id"`
	Personality *Personality        `json:"personality,omitempty"`
	Emotion     *EmotionPattern     `json:"emotion,omitempty"`
	Lifestyle   []float64           `json:"lifestyle,omitempty"`
	Interests   []string            `json:"interests,omitempty"`
	Preference  *MatchingPreference `json:"preference,omitempty"`

	// Anonymized profile facts used when presenting candidates.
	Age        *int       `json:"age,omitempty"`
	Location   *string    `json:"location,omitempty"`
	LastActive *time.Time `json:"last_active,omitempty"`
}

// HasPersonality reports whether any personality signal is present.
func (r *FeatureRecord) HasPersonality() bool {
	return r.Personality != nil && (r.Personality.MBTI != nil || r.Personality.Big5 != nil)
}

// HasEmotion reports whether any emotion signal is present.
func (r *FeatureRecord) HasEmotion() bool {
	if r.Emotion == nil {
		return false
	}
	return r.Emotion.AvgSentiment != nil || r.Emotion.Volatility != nil || len(r.Emotion.Distribution) > 0
}

func (r *FeatureRecord) HasLifestyle() bool {
	return len(r.Lifestyle) > 0
}

func (r *FeatureRecord) HasInterests() bool {
	return len(r.Interests) > 0
}
