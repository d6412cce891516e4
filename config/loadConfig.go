package config

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimeoutSeconds    = 120
	defaultMongoURI          = "mongodb://localhost:27017/finance"
	defaultMongoHost         = "localhost"
	defaultMongoPort         = "27017"
	defaultMongoDatabase     = "finance"
	defaultSQLDriver         = "sqlite3"
	defaultSQLDSN            = "finsync.db"
	defaultHTTPAddr          = ":8080"
	defaultReportCacheTTL    = 5 * time.Minute
	defaultSyntheticDataRows = 200
	envConfigFile            = "FINSYNC_CONFIG"
	envMongoURI              = "MONGO_URI"
	envMongoHost             = "MONGO_HOST"
	envMongoUser             = "MONGO_USER"
	envMongoPassword         = "MONGO_PASSWORD"
	envMongoDatabase         = "MONGO_DATABASE"
	envSQLDriver             = "SQL_DRIVER"
	envSQLDSN                = "SQL_DSN"
	envHTTPAddr              = "HTTP_ADDR"
	envReportCacheTTL        = "REPORT_CACHE_TTL"
	envTimeoutSeconds        = "TIMEOUT_SECONDS"
	envLogLevel              = "LOG_LEVEL"
	envSyntheticDataRows     = "SYNTHETIC_DATA_ROWS"
)

// LoadConfig loads the application configuration. Defaults are overlaid first by the YAML file
// named in FINSYNC_CONFIG, if any, and then by environment variables.
func LoadConfig(ctx context.Context, logger *slog.Logger) *Config {
	cfg := &Config{
		MongoDatabase:     defaultMongoDatabase,
		SQLDriver:         defaultSQLDriver,
		SQLDSN:            defaultSQLDSN,
		HTTPAddr:          defaultHTTPAddr,
		ReportCacheTTL:    defaultReportCacheTTL,
		SyntheticDataRows: defaultSyntheticDataRows,
		LogLevel:          slog.LevelInfo,
		Timeout:           defaultTimeoutSeconds * time.Second,
	}

	if path := os.Getenv(envConfigFile); path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			logger.WarnContext(ctx, "Could not load config file, using defaults", "path", path, "error", err)
		} else {
			applyFile(ctx, cfg, fileCfg, logger)
		}
	}

	cfg.MongoDatabase = stringFromEnv(ctx, envMongoDatabase, cfg.MongoDatabase, logger)
	cfg.MongoURI = formatMongoURI(ctx, firstNonEmpty(os.Getenv(envMongoURI), cfg.MongoURI), cfg.MongoDatabase, logger)
	cfg.SQLDriver = stringFromEnv(ctx, envSQLDriver, cfg.SQLDriver, logger)
	cfg.SQLDSN = stringFromEnv(ctx, envSQLDSN, cfg.SQLDSN, logger)
	cfg.HTTPAddr = stringFromEnv(ctx, envHTTPAddr, cfg.HTTPAddr, logger)
	cfg.ReportCacheTTL = durationFromEnv(ctx, envReportCacheTTL, cfg.ReportCacheTTL, logger)
	cfg.SyntheticDataRows = intFromEnv(ctx, envSyntheticDataRows, cfg.SyntheticDataRows, logger)
	if seconds := intFromEnv(ctx, envTimeoutSeconds, int(cfg.Timeout/time.Second), logger); seconds > 0 {
		cfg.Timeout = time.Duration(seconds) * time.Second
	}
	if raw := os.Getenv(envLogLevel); raw != "" {
		cfg.LogLevel = parseLevel(ctx, raw, cfg.LogLevel, logger)
	}

	return cfg
}

// LoadFile reads and parses a YAML configuration file.
func LoadFile(path string) (FileConfig, error) {
	var fileCfg FileConfig

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fileCfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fileCfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	return fileCfg, nil
}

func applyFile(ctx context.Context, cfg *Config, fileCfg FileConfig, logger *slog.Logger) {
	cfg.MongoURI = firstNonEmpty(fileCfg.Mongo.URI, cfg.MongoURI)
	cfg.MongoDatabase = firstNonEmpty(fileCfg.Mongo.Database, cfg.MongoDatabase)
	cfg.SQLDriver = firstNonEmpty(fileCfg.SQL.Driver, cfg.SQLDriver)
	cfg.SQLDSN = firstNonEmpty(fileCfg.SQL.DSN, cfg.SQLDSN)
	cfg.HTTPAddr = firstNonEmpty(fileCfg.HTTP.Addr, cfg.HTTPAddr)
	if fileCfg.Reports.CacheTTL != "" {
		ttl, err := time.ParseDuration(fileCfg.Reports.CacheTTL)
		if err != nil {
			logger.WarnContext(ctx, "Invalid reports.cache_ttl in config file, using default",
				"value", fileCfg.Reports.CacheTTL, "error", err)
		} else {
			cfg.ReportCacheTTL = ttl
		}
	}
	if fileCfg.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(fileCfg.TimeoutSeconds) * time.Second
	}
	if fileCfg.LogLevel != "" {
		cfg.LogLevel = parseLevel(ctx, fileCfg.LogLevel, cfg.LogLevel, logger)
	}
	logger.DebugContext(ctx, "Applied config file", "sqlDriver", cfg.SQLDriver, "httpAddr", cfg.HTTPAddr)
}

func stringFromEnv(ctx context.Context, key, current string, logger *slog.Logger) string {
	value := os.Getenv(key)
	if value == "" {
		logger.DebugContext(ctx, "Using default value", "key", key, "value", current)
		return current
	}
	logger.DebugContext(ctx, "Using value from environment variable", "key", key)
	return value
}

func intFromEnv(ctx context.Context, key string, current int, logger *slog.Logger) int {
	raw := os.Getenv(key)
	if raw == "" {
		return current
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		logger.WarnContext(ctx, "Invalid integer in environment, using default",
			"key", key, "value", raw, "default", current, "error", err)
		return current
	}
	return parsed
}

func durationFromEnv(ctx context.Context, key string, current time.Duration, logger *slog.Logger) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return current
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		logger.WarnContext(ctx, "Invalid duration in environment, using default",
			"key", key, "value", raw, "default", current, "error", err)
		return current
	}
	return parsed
}

func parseLevel(ctx context.Context, raw string, current slog.Level, logger *slog.Logger) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		logger.WarnContext(ctx, "Invalid log level, using default", "value", raw, "default", current)
		return current
	}
	return level
}

// formatMongoURI formats mongo settings to a url and return the result.
func formatMongoURI(
	ctx context.Context,
	mongoURI string,
	database string,
	logger *slog.Logger,
) string {
	if mongoURI != "" {
		logger.DebugContext(ctx, "Using configured MongoDB URI")
		return mongoURI
	}

	mongoHost := os.Getenv(envMongoHost)
	if mongoHost == "" {
		mongoHost = defaultMongoHost
		logger.DebugContext(ctx, "Using default MongoDB host", "host", mongoHost)
	} else {
		logger.DebugContext(ctx, "Using MongoDB host from environment variable", "host", mongoHost)
	}

	mongoUser := os.Getenv(envMongoUser)
	mongoPassword := os.Getenv(envMongoPassword)

	if mongoUser != "" && mongoPassword != "" {
		hostPort := net.JoinHostPort(mongoHost, defaultMongoPort)
		mongoURI = fmt.Sprintf(
			"mongodb://%s:%s@%s/%s?authSource=admin",
			mongoUser,
			mongoPassword,
			hostPort,
			database,
		)
		logger.DebugContext(ctx, "Created MongoDB URI from user, password, and host", "host", hostPort)
	} else if mongoHost != defaultMongoHost {
		mongoURI = fmt.Sprintf("mongodb://%s/%s", net.JoinHostPort(mongoHost, defaultMongoPort), database)
		logger.DebugContext(ctx, "Created MongoDB URI from host", "uri", mongoURI)
	} else {
		mongoURI = defaultMongoURI
		logger.DebugContext(ctx, "Using default MongoDB URI", "uri", mongoURI)
	}
	return mongoURI
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
