package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/kindredapp/kindred/internal/config"
	"github.com/kindredapp/kindred/internal/validation"
	"github.com/kindredapp/kindred/pkg/models"
)

// ErrUserNotFound is returned when a user has no active, matching-enabled
// profile row.
var ErrUserNotFound = errors.New("user not found")

// DatabaseQuerier is the subset of pgxpool.Pool the feature store needs.
type DatabaseQuerier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// FeatureStore assembles per-user feature records from the tables the
// analysis pipeline maintains, with a warm-redis snapshot cache. The engine
// treats everything it loads as a read-only snapshot.
type FeatureStore struct {
	db        DatabaseQuerier
	redis     *redis.Client // warm cache
	validator *validation.SchemaValidator
	config    *config.MatchingConfig
	logger    *logrus.Logger

	tagFolder cases.Caser
}

func NewFeatureStore(
	db DatabaseQuerier,
	redis *redis.Client,
	validator *validation.SchemaValidator,
	cfg *config.MatchingConfig,
	logger *logrus.Logger,
) *FeatureStore {
	return &FeatureStore{
		db:        db,
		redis:     redis,
		validator: validator,
		config:    cfg,
		logger:    logger,
		tagFolder: cases.Fold(),
	}
}

// LoadFeatureRecord fetches the full matching snapshot for a user. Missing
// personality/emotion/lifestyle/preference rows leave the corresponding
// field nil; only a missing profile row is an error.
func (fs *FeatureStore) LoadFeatureRecord(ctx context.Context, userID string) (*models.FeatureRecord, error) {
	if cached := fs.getCachedRecord(ctx, userID); cached != nil {
		return cached, nil
	}

	record := &models.FeatureRecord{UserID: userID}

	var interests []string
	err := fs.db.QueryRow(ctx, `
		SELECT age, location, interests, last_active
		FROM user_profiles
		WHERE user_id = $1 AND is_active = true AND matching_enabled = true`,
		userID,
	).Scan(&record.Age, &record.Location, &interests, &record.LastActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user profile: %w", err)
	}
	record.Interests = fs.normalizeTags(interests)

	if err := fs.loadPersonality(ctx, record); err != nil {
		return nil, err
	}
	if err := fs.loadEmotionPattern(ctx, record); err != nil {
		return nil, err
	}
	if err := fs.loadLifestyleVector(ctx, record); err != nil {
		return nil, err
	}
	if err := fs.loadPreference(ctx, record); err != nil {
		return nil, err
	}

	fs.cacheRecord(ctx, record)

	return record, nil
}

func (fs *FeatureStore) loadPersonality(ctx context.Context, record *models.FeatureRecord) error {
	var mbtiRaw, big5Raw []byte
	var traits []string

	err := fs.db.QueryRow(ctx, `
		SELECT mbti, big5, traits
		FROM personality_summaries
		WHERE user_id = $1`,
		record.UserID,
	).Scan(&mbtiRaw, &big5Raw, &traits)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("failed to load personality summary: %w", err)
	}

	personality := &models.Personality{Traits: traits}

	if mbti := decodeFeaturePayload[models.MBTIAxes](fs, "mbti-axes", mbtiRaw, record.UserID); mbti != nil {
		normalized := mbti.Normalized()
		personality.MBTI = &normalized
	}
	if big5 := decodeFeaturePayload[models.Big5Traits](fs, "big5-traits", big5Raw, record.UserID); big5 != nil {
		personality.Big5 = big5
	}

	if personality.MBTI != nil || personality.Big5 != nil || len(personality.Traits) > 0 {
		record.Personality = personality
	}
	return nil
}

func (fs *FeatureStore) loadEmotionPattern(ctx context.Context, record *models.FeatureRecord) error {
	var avgSentiment, volatility *float64
	var distributionRaw []byte

	err := fs.db.QueryRow(ctx, `
		SELECT avg_sentiment, volatility, distribution
		FROM emotion_patterns
		WHERE user_id = $1`,
		record.UserID,
	).Scan(&avgSentiment, &volatility, &distributionRaw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("failed to load emotion pattern: %w", err)
	}

	pattern := &models.EmotionPattern{
		AvgSentiment: avgSentiment,
		Volatility:   volatility,
	}
	if dist := decodeFeaturePayload[map[string]float64](fs, "emotion-distribution", distributionRaw, record.UserID); dist != nil {
		pattern.Distribution = *dist
	}

	if pattern.AvgSentiment != nil || pattern.Volatility != nil || len(pattern.Distribution) > 0 {
		record.Emotion = pattern
	}
	return nil
}

func (fs *FeatureStore) loadLifestyleVector(ctx context.Context, record *models.FeatureRecord) error {
	var vectorRaw []byte

	err := fs.db.QueryRow(ctx, `
		SELECT vector
		FROM lifestyle_vectors
		WHERE user_id = $1`,
		record.UserID,
	).Scan(&vectorRaw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("failed to load lifestyle vector: %w", err)
	}

	if vector := decodeFeaturePayload[[]float64](fs, "lifestyle-vector", vectorRaw, record.UserID); vector != nil {
		record.Lifestyle = *vector
	}
	return nil
}

func (fs *FeatureStore) loadPreference(ctx context.Context, record *models.FeatureRecord) error {
	pref := &models.MatchingPreference{}

	err := fs.db.QueryRow(ctx, `
		SELECT personality_weight, emotion_weight, lifestyle_weight, interest_weight,
			min_compatibility, exclude_users, blocked_users
		FROM matching_preferences
		WHERE user_id = $1`,
		record.UserID,
	).Scan(
		&pref.PersonalityWeight, &pref.EmotionWeight, &pref.LifestyleWeight, &pref.InterestWeight,
		&pref.MinCompatibility, &pref.ExcludeUsers, &pref.BlockedUsers,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("failed to load matching preference: %w", err)
	}

	record.Preference = pref
	return nil
}

// LoadCandidatePool returns ids of active, matching-enabled users passing
// the request filters, requester excluded, most recently active first. The
// pool is capped before scoring; the ranker trims further by score.
func (fs *FeatureStore) LoadCandidatePool(ctx context.Context, requesterID string, filters *models.MatchingFilters) ([]string, error) {
	query := `
		SELECT user_id
		FROM user_profiles
		WHERE user_id <> $1
			AND is_active = true
			AND matching_enabled = true`

	args := []interface{}{requesterID}
	argIndex := 2

	if filters != nil {
		if filters.AgeMin != nil {
			query += fmt.Sprintf(" AND age >= $%d", argIndex)
			args = append(args, *filters.AgeMin)
			argIndex++
		}
		if filters.AgeMax != nil {
			query += fmt.Sprintf(" AND age <= $%d", argIndex)
			args = append(args, *filters.AgeMax)
			argIndex++
		}
		if filters.Location != nil && *filters.Location != "" {
			query += fmt.Sprintf(" AND location ILIKE $%d", argIndex)
			args = append(args, "%"+*filters.Location+"%")
			argIndex++
		}
		if len(filters.ExcludeUsers) > 0 {
			query += fmt.Sprintf(" AND NOT (user_id = ANY($%d))", argIndex)
			args = append(args, filters.ExcludeUsers)
			argIndex++
		}
	}

	query += fmt.Sprintf(" ORDER BY last_active DESC NULLS LAST LIMIT $%d", argIndex)
	args = append(args, fs.config.CandidatePoolCap)

	rows, err := fs.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("candidate pool query failed: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			fs.logger.WithError(err).Error("Failed to scan candidate id")
			continue
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// UpsertPreference stores a user's matching preference and invalidates the
// cached snapshot so the next scoring call sees it.
func (fs *FeatureStore) UpsertPreference(ctx context.Context, userID string, pref *models.MatchingPreference) error {
	_, err := fs.db.Exec(ctx, `
		INSERT INTO matching_preferences (
			user_id, personality_weight, emotion_weight, lifestyle_weight, interest_weight,
			min_compatibility, exclude_users, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			personality_weight = EXCLUDED.personality_weight,
			emotion_weight = EXCLUDED.emotion_weight,
			lifestyle_weight = EXCLUDED.lifestyle_weight,
			interest_weight = EXCLUDED.interest_weight,
			min_compatibility = EXCLUDED.min_compatibility,
			exclude_users = EXCLUDED.exclude_users,
			updated_at = NOW()`,
		userID, pref.PersonalityWeight, pref.EmotionWeight, pref.LifestyleWeight,
		pref.InterestWeight, pref.MinCompatibility, pref.ExcludeUsers,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert matching preference: %w", err)
	}

	fs.InvalidateFeatureRecord(ctx, userID)
	return nil
}

// InvalidateFeatureRecord drops the cached snapshot for a user, e.g. after
// the analysis pipeline republishes their vectors.
func (fs *FeatureStore) InvalidateFeatureRecord(ctx context.Context, userID string) {
	if fs.redis == nil {
		return
	}
	if err := fs.redis.Del(ctx, featureCacheKey(userID)).Err(); err != nil {
		fs.logger.WithError(err).WithField("user_id", userID).Warn("Failed to invalidate feature record cache")
	}
}

// normalizeTags NFC-normalizes and case-folds interest tags so that Jaccard
// comparison is insensitive to casing and Unicode representation.
func (fs *FeatureStore) normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		folded := fs.tagFolder.String(norm.NFC.String(strings.TrimSpace(tag)))
		if folded == "" {
			continue
		}
		if _, dup := seen[folded]; dup {
			continue
		}
		seen[folded] = struct{}{}
		out = append(out, folded)
	}
	return out
}

// decodeFeaturePayload validates a JSONB blob against its schema and decodes
// it. Invalid payloads are logged and treated as absent so a bad pipeline
// write degrades confidence instead of failing the request.
func decodeFeaturePayload[T any](fs *FeatureStore, schemaName string, raw []byte, userID string) *T {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	if err := fs.validator.ValidateBytes(schemaName, raw); err != nil {
		fs.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"schema":  schemaName,
		}).Warn("Feature payload failed validation, treating as absent")
		return nil
	}

	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		fs.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"schema":  schemaName,
		}).Warn("Feature payload failed to decode, treating as absent")
		return nil
	}
	return &value
}

// Cache helpers

func featureCacheKey(userID string) string {
	return fmt.Sprintf("features:%s", userID)
}

func (fs *FeatureStore) getCachedRecord(ctx context.Context, userID string) *models.FeatureRecord {
	if fs.redis == nil {
		return nil
	}

	cached := fs.redis.Get(ctx, featureCacheKey(userID)).Val()
	if cached == "" {
		return nil
	}

	var record models.FeatureRecord
	if err := json.Unmarshal([]byte(cached), &record); err != nil {
		return nil
	}
	return &record
}

func (fs *FeatureStore) cacheRecord(ctx context.Context, record *models.FeatureRecord) {
	if fs.redis == nil {
		return
	}

	data, err := json.Marshal(record)
	if err != nil {
		return
	}

	ttl := fs.config.Caching.FeatureRecordTTL
	if ttl == 0 {
		ttl = 10 * time.Minute
	}
	if err := fs.redis.Set(ctx, featureCacheKey(record.UserID), data, ttl).Err(); err != nil {
		fs.logger.WithError(err).Warn("Failed to cache feature record")
	}
}
