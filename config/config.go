package config

import (
	"log/slog"
	"time"
)

// Config holds the application configuration.
type Config struct {
	MongoURI          string
	MongoDatabase     string
	SQLDriver         string
	SQLDSN            string
	HTTPAddr          string
	ReportCacheTTL    time.Duration
	SyntheticDataRows int
	LogLevel          slog.Level
	Timeout           time.Duration
}

// FileConfig is the optional YAML file layout. Empty values leave the defaults in place.
type FileConfig struct {
	Mongo struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	} `yaml:"mongo"`
	SQL struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"sql"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Reports struct {
		CacheTTL string `yaml:"cache_ttl"`
	} `yaml:"reports"`
	LogLevel       string `yaml:"log_level"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}
