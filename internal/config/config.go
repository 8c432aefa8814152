package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Matching   MatchingConfig   `mapstructure:"matching"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Security   SecurityConfig   `mapstructure:"security"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	Hot  RedisInstanceConfig `mapstructure:"hot"`
	Warm RedisInstanceConfig `mapstructure:"warm"`
}

type RedisInstanceConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		FeatureUpdates string `mapstructure:"feature_updates"`
		MatchFeedback  string `mapstructure:"match_feedback"`
	} `mapstructure:"topics"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MatchingConfig tunes the compatibility engine. Weights are the defaults
// used when a requester has no stored preference; the engine normalizes them
// before use so they do not need to sum to exactly 1.0.
type MatchingConfig struct {
	Weights          WeightConfig  `mapstructure:"weights"`
	MinCompatibility float64       `mapstructure:"min_compatibility"`
	MaxLimit         int           `mapstructure:"max_limit"`
	CandidatePoolCap int           `mapstructure:"candidate_pool_cap"`
	EmotionPairsRaw  [][]string    `mapstructure:"emotion_pairs"`
	AlgorithmVersion string        `mapstructure:"algorithm_version"`
	Caching          CachingConfig `mapstructure:"caching"`
}

type WeightConfig struct {
	Personality float64 `mapstructure:"personality"`
	Emotion     float64 `mapstructure:"emotion"`
	Lifestyle   float64 `mapstructure:"lifestyle"`
	Interest    float64 `mapstructure:"interest"`
}

type CachingConfig struct {
	FeatureRecordTTL time.Duration `mapstructure:"feature_record_ttl"`
	CompatibilityTTL time.Duration `mapstructure:"compatibility_ttl"`
	CandidateListTTL time.Duration `mapstructure:"candidate_list_ttl"`
}

type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// EmotionPairs returns the complementary-emotion table, falling back to the
// built-in pairs when the config omits them or lists malformed entries.
func (m *MatchingConfig) EmotionPairs() [][2]string {
	pairs := make([][2]string, 0, len(m.EmotionPairsRaw))
	for _, p := range m.EmotionPairsRaw {
		if len(p) == 2 && p[0] != "" && p[1] != "" {
			pairs = append(pairs, [2]string{p[0], p[1]})
		}
	}
	if len(pairs) == 0 {
		return DefaultEmotionPairs()
	}
	return pairs
}

// DefaultEmotionPairs is the complementary-emotion heuristic inherited from
// the analysis pipeline. It is configuration, not logic.
func DefaultEmotionPairs() [][2]string {
	return [][2]string{
		{"anxiety", "calm"},
		{"sadness", "joy"},
		{"anger", "peace"},
		{"stress", "relaxation"},
	}
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "development")

	// Database defaults
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")

	// Redis defaults
	viper.SetDefault("redis.hot.max_retries", 3)
	viper.SetDefault("redis.hot.pool_size", 10)
	viper.SetDefault("redis.hot.timeout", "5s")
	viper.SetDefault("redis.warm.max_retries", 3)
	viper.SetDefault("redis.warm.pool_size", 5)
	viper.SetDefault("redis.warm.timeout", "10s")

	// Kafka defaults
	viper.SetDefault("kafka.topics.feature_updates", "feature-updates")
	viper.SetDefault("kafka.topics.match_feedback", "match-feedback")

	// Auth defaults
	viper.SetDefault("auth.token_ttl", "24h")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Matching defaults
	viper.SetDefault("matching.weights.personality", 0.35)
	viper.SetDefault("matching.weights.emotion", 0.25)
	viper.SetDefault("matching.weights.lifestyle", 0.25)
	viper.SetDefault("matching.weights.interest", 0.15)
	viper.SetDefault("matching.min_compatibility", 0.5)
	viper.SetDefault("matching.max_limit", 50)
	viper.SetDefault("matching.candidate_pool_cap", 100)
	viper.SetDefault("matching.algorithm_version", "v1")

	// Caching defaults
	viper.SetDefault("matching.caching.feature_record_ttl", "10m")
	viper.SetDefault("matching.caching.compatibility_ttl", "30m")
	viper.SetDefault("matching.caching.candidate_list_ttl", "15m")

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_path", "/metrics")

	// Security defaults
	viper.SetDefault("security.cors.allowed_origins", []string{"*"})
	viper.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("security.cors.allowed_headers", []string{"*"})
}
