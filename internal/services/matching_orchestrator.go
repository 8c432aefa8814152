package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kindredapp/kindred/internal/config"
	"github.com/kindredapp/kindred/pkg/models"
)

// ErrSelfCompatibility is returned when a user requests a score against
// themselves. Caught before any feature loading happens.
var ErrSelfCompatibility = errors.New("cannot calculate compatibility with yourself")

// FeatureLoader abstracts the feature store for the orchestrator. Satisfied
// by *FeatureStore; tests substitute an in-memory map.
type FeatureLoader interface {
	LoadFeatureRecord(ctx context.Context, userID string) (*models.FeatureRecord, error)
	LoadCandidatePool(ctx context.Context, requesterID string, filters *models.MatchingFilters) ([]string, error)
	UpsertPreference(ctx context.Context, userID string, pref *models.MatchingPreference) error
}

// FeedbackPublisher hands match feedback to the analysis pipeline.
type FeedbackPublisher interface {
	PublishMatchFeedback(ctx context.Context, feedback *models.MatchFeedback) error
}

// MatchingOrchestrator coordinates feature loading, scoring, ranking and
// presentation. Everything stateful (connections, caches) lives here; the
// scorer and insight builder underneath stay pure.
type MatchingOrchestrator struct {
	features      FeatureLoader
	compatibility *CompatibilityService
	insights      *InsightService
	publisher     FeedbackPublisher
	cache         ResultCache // warm tier, optional
	config        *config.MatchingConfig
	logger        *logrus.Logger
}

func NewMatchingOrchestrator(
	features FeatureLoader,
	compatibility *CompatibilityService,
	insights *InsightService,
	publisher FeedbackPublisher,
	cache ResultCache,
	cfg *config.MatchingConfig,
	logger *logrus.Logger,
) *MatchingOrchestrator {
	return &MatchingOrchestrator{
		features:      features,
		compatibility: compatibility,
		insights:      insights,
		publisher:     publisher,
		cache:         cache,
		config:        cfg,
		logger:        logger,
	}
}

// CalculateCompatibility produces the full pairwise result for two users.
// The requester's preference weights drive aggregation; the target's do not.
func (o *MatchingOrchestrator) CalculateCompatibility(ctx context.Context, userID, targetID string) (*models.CompatibilityResult, error) {
	if userID == targetID {
		return nil, ErrSelfCompatibility
	}

	if cached := o.getCachedResult(ctx, userID, targetID); cached != nil {
		return cached, nil
	}

	requester, err := o.features.LoadFeatureRecord(ctx, userID)
	if err != nil {
		return nil, err
	}
	target, err := o.features.LoadFeatureRecord(ctx, targetID)
	if err != nil {
		return nil, err
	}

	result := o.scorePair(requester, target)
	o.cacheResult(ctx, result)

	return result, nil
}

func (o *MatchingOrchestrator) scorePair(requester, target *models.FeatureRecord) *models.CompatibilityResult {
	scores := o.compatibility.ScoreDimensions(requester, target)
	overall, level := o.compatibility.Aggregate(scores, requester.Preference)
	insight := o.insights.Build(scores)

	return &models.CompatibilityResult{
		UserID1:         requester.UserID,
		UserID2:         target.UserID,
		OverallScore:    Round3(overall),
		Level:           level,
		Breakdown:       o.compatibility.Breakdown(scores),
		Strengths:       insight.Strengths,
		Challenges:      insight.Challenges,
		Recommendations: insight.Recommendations,
		CalculatedAt:    time.Now().UTC(),
		Confidence:      Round3(o.compatibility.Confidence(requester, target)),
	}
}

// FindMatchingCandidates loads the candidate pool, scores each candidate
// against the requester in parallel, and returns the ranked, anonymized
// result. Exclusions are applied before any scoring work.
func (o *MatchingOrchestrator) FindMatchingCandidates(ctx context.Context, userID string, req *models.MatchingRequest) (*models.RankedCandidateList, error) {
	limit := o.clampLimit(req.Limit)

	if cached := o.getCachedCandidates(ctx, userID, req, limit); cached != nil {
		return cached, nil
	}

	requester, err := o.features.LoadFeatureRecord(ctx, userID)
	if err != nil {
		return nil, err
	}

	filters := mergeExclusions(req.Filters, requester.Preference)
	candidateIDs, err := o.features.LoadCandidatePool(ctx, userID, filters)
	if err != nil {
		return nil, err
	}

	threshold := o.resolveThreshold(req, requester.Preference)
	scored := o.scoreCandidates(ctx, requester, candidateIDs)

	// Deterministic order: score descending, candidate id ascending on ties.
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].record.UserID < scored[j].record.UserID
	})

	list := &models.RankedCandidateList{
		UserID:           userID,
		Candidates:       []models.MatchingCandidate{},
		AlgorithmVersion: o.config.AlgorithmVersion,
		GeneratedAt:      time.Now().UTC(),
	}

	for _, sc := range scored {
		if sc.score < threshold {
			continue
		}
		list.TotalFound++
		if len(list.Candidates) >= limit {
			continue
		}
		candidate := o.buildCandidate(requester, sc)
		candidate.MatchRank = len(list.Candidates) + 1
		list.Candidates = append(list.Candidates, candidate)
	}

	o.cacheCandidates(ctx, userID, req, limit, list)

	return list, nil
}

type scoredCandidate struct {
	record *models.FeatureRecord
	scores models.DimensionScores
	score  float64
	level  models.CompatibilityLevel
}

// scoreCandidates fans out one goroutine per candidate, each writing to its
// own slot. Load failures for individual candidates are logged and skipped
// rather than failing the whole search.
func (o *MatchingOrchestrator) scoreCandidates(ctx context.Context, requester *models.FeatureRecord, candidateIDs []string) []scoredCandidate {
	slots := make([]*scoredCandidate, len(candidateIDs))

	var wg sync.WaitGroup
	for i, id := range candidateIDs {
		wg.Add(1)
		go func(slot int, candidateID string) {
			defer wg.Done()

			record, err := o.features.LoadFeatureRecord(ctx, candidateID)
			if err != nil {
				if !errors.Is(err, ErrUserNotFound) {
					o.logger.WithError(err).WithField("candidate_id", candidateID).Warn("Failed to load candidate, skipping")
				}
				return
			}

			scores := o.compatibility.ScoreDimensions(requester, record)
			overall, level := o.compatibility.Aggregate(scores, requester.Preference)
			slots[slot] = &scoredCandidate{
				record: record,
				scores: scores,
				score:  Round3(overall),
				level:  level,
			}
		}(i, id)
	}
	wg.Wait()

	scored := make([]scoredCandidate, 0, len(slots))
	for _, sc := range slots {
		if sc != nil {
			scored = append(scored, *sc)
		}
	}
	return scored
}

// buildCandidate anonymizes a scored candidate for presentation: age decade
// instead of age, first location token, at most three traits.
func (o *MatchingOrchestrator) buildCandidate(requester *models.FeatureRecord, sc scoredCandidate) models.MatchingCandidate {
	candidate := models.MatchingCandidate{
		UserID:             sc.record.UserID,
		CompatibilityScore: sc.score,
		CompatibilityLevel: sc.level,
		MatchReasons:       o.insights.MatchReasons(sc.scores, sc.score),
		LastActive:         sc.record.LastActive,
	}

	if sc.record.Age != nil {
		decade := fmt.Sprintf("%ds", (*sc.record.Age/10)*10)
		candidate.AgeRange = &decade
	}
	if sc.record.Location != nil {
		region := firstLocationToken(*sc.record.Location)
		if region != "" {
			candidate.Location = &region
		}
	}
	if sc.record.Personality != nil {
		if sc.record.Personality.MBTI != nil {
			code := sc.record.Personality.MBTI.Code()
			candidate.PersonalityType = &code
		}
		traits := sc.record.Personality.Traits
		if len(traits) > 3 {
			traits = traits[:3]
		}
		candidate.PersonalityTraits = traits
	}

	candidate.CommonTraits, candidate.ComplementaryTraits = o.insights.TraitOverlap(requester, sc.record)

	return candidate
}

// ScoreBreakdown returns only the per-dimension breakdown for a pair, used
// by clients that already have the overall result.
func (o *MatchingOrchestrator) ScoreBreakdown(ctx context.Context, userID, targetID string) (*models.CompatibilityBreakdown, error) {
	result, err := o.CalculateCompatibility(ctx, userID, targetID)
	if err != nil {
		return nil, err
	}
	return &result.Breakdown, nil
}

// GetPreference returns the requester's stored preference, or the configured
// defaults when none is stored.
func (o *MatchingOrchestrator) GetPreference(ctx context.Context, userID string) (*models.MatchingPreference, error) {
	record, err := o.features.LoadFeatureRecord(ctx, userID)
	if err != nil {
		return nil, err
	}

	if record.Preference != nil {
		return record.Preference, nil
	}

	w := o.config.Weights
	return &models.MatchingPreference{
		PersonalityWeight: w.Personality,
		EmotionWeight:     w.Emotion,
		LifestyleWeight:   w.Lifestyle,
		InterestWeight:    w.Interest,
		MinCompatibility:  o.config.MinCompatibility,
	}, nil
}

// UpdatePreference validates and stores a preference update, then drops the
// requester's cached candidate lists so the new weights take effect.
func (o *MatchingOrchestrator) UpdatePreference(ctx context.Context, userID string, req *models.PreferenceUpdateRequest) (*models.MatchingPreference, error) {
	pref := &models.MatchingPreference{
		PersonalityWeight: req.PersonalityWeight,
		EmotionWeight:     req.EmotionWeight,
		LifestyleWeight:   req.LifestyleWeight,
		InterestWeight:    req.InterestWeight,
		MinCompatibility:  req.MinCompatibility,
		ExcludeUsers:      req.ExcludeUsers,
	}

	if err := o.features.UpsertPreference(ctx, userID, pref); err != nil {
		return nil, err
	}

	o.InvalidateUser(ctx, userID)
	return pref, nil
}

// RecordFeedback publishes a user's reaction to a suggested match. Blocks
// also invalidate the pair's cached result so the block is visible
// immediately.
func (o *MatchingOrchestrator) RecordFeedback(ctx context.Context, feedback *models.MatchFeedback) error {
	feedback.Timestamp = time.Now().UTC()

	if o.publisher != nil {
		if err := o.publisher.PublishMatchFeedback(ctx, feedback); err != nil {
			return fmt.Errorf("failed to publish match feedback: %w", err)
		}
	}

	if feedback.InteractionType == "block" {
		o.invalidatePair(ctx, feedback.UserID, feedback.TargetUserID)
		o.InvalidateUser(ctx, feedback.UserID)
	}

	return nil
}

// InvalidateUser drops every cached artifact keyed by a user as requester:
// their candidate lists and the pairwise results they initiated. Results
// where the user is the target are left to TTL expiry.
func (o *MatchingOrchestrator) InvalidateUser(ctx context.Context, userID string) {
	if o.cache == nil {
		return
	}

	for _, pattern := range []string{
		fmt.Sprintf("matching:candidates:%s:*", userID),
		fmt.Sprintf("matching:compat:%s:*", userID),
	} {
		if err := o.cache.DelMatching(ctx, pattern); err != nil {
			o.logger.WithError(err).WithField("pattern", pattern).Warn("Failed to invalidate cache entries")
		}
	}
}

// invalidatePair drops both directions of a cached pairwise result.
func (o *MatchingOrchestrator) invalidatePair(ctx context.Context, a, b string) {
	if o.cache == nil {
		return
	}
	if err := o.cache.Del(ctx, compatibilityCacheKey(a, b), compatibilityCacheKey(b, a)); err != nil {
		o.logger.WithError(err).Warn("Failed to invalidate compatibility cache")
	}
}

func (o *MatchingOrchestrator) clampLimit(limit int) int {
	max := o.config.MaxLimit
	if max <= 0 {
		max = 50
	}
	if limit <= 0 {
		return 10
	}
	if limit > max {
		return max
	}
	return limit
}

// resolveThreshold picks the effective min-compatibility cutoff: the request
// wins, then the stored preference, then the configured default.
func (o *MatchingOrchestrator) resolveThreshold(req *models.MatchingRequest, pref *models.MatchingPreference) float64 {
	if req.MinCompatibility > 0 {
		return req.MinCompatibility
	}
	if pref != nil && pref.MinCompatibility > 0 {
		return pref.MinCompatibility
	}
	return o.config.MinCompatibility
}

// mergeExclusions folds the requester's stored exclude and block lists into
// the request filters so exclusion happens in the pool query, before scoring.
func mergeExclusions(filters *models.MatchingFilters, pref *models.MatchingPreference) *models.MatchingFilters {
	if pref == nil || (len(pref.ExcludeUsers) == 0 && len(pref.BlockedUsers) == 0) {
		return filters
	}

	merged := models.MatchingFilters{}
	if filters != nil {
		merged = *filters
	}

	seen := make(map[string]struct{}, len(merged.ExcludeUsers))
	excluded := make([]string, 0, len(merged.ExcludeUsers)+len(pref.ExcludeUsers)+len(pref.BlockedUsers))
	for _, lists := range [][]string{merged.ExcludeUsers, pref.ExcludeUsers, pref.BlockedUsers} {
		for _, id := range lists {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			excluded = append(excluded, id)
		}
	}
	merged.ExcludeUsers = excluded

	return &merged
}

func firstLocationToken(location string) string {
	for _, sep := range []string{",", " "} {
		if idx := strings.Index(location, sep); idx >= 0 {
			return strings.TrimSpace(location[:idx])
		}
	}
	return strings.TrimSpace(location)
}

// Cache helpers. Pairwise results are keyed per direction: the requester's
// preference weights drive aggregation, so A→B and B→A are distinct results
// whenever their stored preferences differ. Candidate lists are keyed per
// requester and request shape.

func compatibilityCacheKey(requesterID, targetID string) string {
	return fmt.Sprintf("matching:compat:%s:%s", requesterID, targetID)
}

func candidateCacheKey(userID string, req *models.MatchingRequest, limit int) string {
	filters, _ := json.Marshal(req.Filters)
	return fmt.Sprintf("matching:candidates:%s:%d:%.3f:%s", userID, limit, req.MinCompatibility, filters)
}

func (o *MatchingOrchestrator) getCachedResult(ctx context.Context, requesterID, targetID string) *models.CompatibilityResult {
	if o.cache == nil {
		return nil
	}

	cached := o.cache.Get(ctx, compatibilityCacheKey(requesterID, targetID))
	if cached == "" {
		return nil
	}

	var result models.CompatibilityResult
	if err := json.Unmarshal([]byte(cached), &result); err != nil {
		return nil
	}
	return &result
}

func (o *MatchingOrchestrator) cacheResult(ctx context.Context, result *models.CompatibilityResult) {
	if o.cache == nil {
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		return
	}

	ttl := o.config.Caching.CompatibilityTTL
	if ttl == 0 {
		ttl = 30 * time.Minute
	}
	key := compatibilityCacheKey(result.UserID1, result.UserID2)
	if err := o.cache.Set(ctx, key, data, ttl); err != nil {
		o.logger.WithError(err).Warn("Failed to cache compatibility result")
	}
}

func (o *MatchingOrchestrator) getCachedCandidates(ctx context.Context, userID string, req *models.MatchingRequest, limit int) *models.RankedCandidateList {
	if o.cache == nil {
		return nil
	}

	cached := o.cache.Get(ctx, candidateCacheKey(userID, req, limit))
	if cached == "" {
		return nil
	}

	var list models.RankedCandidateList
	if err := json.Unmarshal([]byte(cached), &list); err != nil {
		return nil
	}
	return &list
}

func (o *MatchingOrchestrator) cacheCandidates(ctx context.Context, userID string, req *models.MatchingRequest, limit int, list *models.RankedCandidateList) {
	if o.cache == nil {
		return
	}

	data, err := json.Marshal(list)
	if err != nil {
		return
	}

	ttl := o.config.Caching.CandidateListTTL
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	if err := o.cache.Set(ctx, candidateCacheKey(userID, req, limit), data, ttl); err != nil {
		o.logger.WithError(err).Warn("Failed to cache candidate list")
	}
}
