package core

import (
	"caseledger/internal/infra/persistence/file"
	"caseledger/internal/infra/persistence/memory"
	"caseledger/internal/infra/persistence/postgres"
	"caseledger/internal/infra/persistence/redis"
	"caseledger/internal/infra/persistence/sqlite"
	"caseledger/pkg/domain"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageFile     StorageDriver = "file"     // JSON file plus JSON-lines sidecars
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageRedis    StorageDriver = "redis"    // Redis hash
)

// Environment variables read by StorageConfigFromEnv.
const (
	EnvStorageDriver = "CASELEDGER_STORAGE_DRIVER"
	EnvFilePath      = "CASELEDGER_FILE_PATH"
	EnvSQLitePath    = "CASELEDGER_SQLITE_PATH"
	EnvPostgresDSN   = "CASELEDGER_POSTGRES_DSN"
	EnvRedisAddr     = "CASELEDGER_REDIS_ADDR"
	EnvRedisPassword = "CASELEDGER_REDIS_PASSWORD"
	EnvRedisDB       = "CASELEDGER_REDIS_DB"
	EnvRedisKey      = "CASELEDGER_REDIS_KEY"
)

// StorageConfig selects and configures a backend. Empty fields fall back to
// each backend's defaults.
type StorageConfig struct {
	Driver        StorageDriver `yaml:"driver"`
	FilePath      string        `yaml:"file_path"`
	SQLitePath    string        `yaml:"sqlite_path"`
	PostgresDSN   string        `yaml:"postgres_dsn"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	RedisKey      string        `yaml:"redis_key"`
}

// ApplyEnv overlays any CASELEDGER_* storage variables that are set.
func (c StorageConfig) ApplyEnv() (StorageConfig, error) {
	set := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	driver := string(c.Driver)
	set(EnvStorageDriver, &driver)
	c.Driver = StorageDriver(strings.ToLower(strings.TrimSpace(driver)))
	set(EnvFilePath, &c.FilePath)
	set(EnvSQLitePath, &c.SQLitePath)
	set(EnvPostgresDSN, &c.PostgresDSN)
	set(EnvRedisAddr, &c.RedisAddr)
	set(EnvRedisPassword, &c.RedisPassword)
	set(EnvRedisKey, &c.RedisKey)
	if v := os.Getenv(EnvRedisDB); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return c, fmt.Errorf("%s: %w", EnvRedisDB, err)
		}
		c.RedisDB = db
	}
	return c, nil
}

// StorageConfigFromEnv builds a config from environment variables alone.
func StorageConfigFromEnv() (StorageConfig, error) {
	return StorageConfig{}.ApplyEnv()
}

// OpenStore opens the backend described by cfg. The driver defaults to file.
func OpenStore(ctx context.Context, cfg StorageConfig, engine *RulesEngine, opts ...memory.Option) (domain.PersistentStore, error) {
	if engine == nil {
		engine = domain.NewDefaultRulesEngine()
	}
	driver := cfg.Driver
	if driver == "" {
		driver = StorageFile
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine, opts...), nil
	case StorageFile:
		return file.NewStore(cfg.FilePath, engine, opts...)
	case StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath, engine, opts...)
	case StoragePostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN, engine, opts...)
	case StorageRedis:
		return redis.NewStore(ctx, redis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.RedisKey,
		}, engine, opts...)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// OpenPersistentStore selects a backend using environment variables.
//
//	CASELEDGER_STORAGE_DRIVER: memory|file|sqlite|postgres|redis (default file)
//	CASELEDGER_FILE_PATH: records file (default ./caseledger.json)
//	CASELEDGER_SQLITE_PATH: sqlite file (default ./caseledger.db)
//	CASELEDGER_POSTGRES_DSN: postgres DSN when driver=postgres
//	CASELEDGER_REDIS_ADDR, _PASSWORD, _DB, _KEY: redis connection when driver=redis
func OpenPersistentStore(ctx context.Context, engine *RulesEngine) (domain.PersistentStore, error) {
	cfg, err := StorageConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return OpenStore(ctx, cfg, engine)
}
