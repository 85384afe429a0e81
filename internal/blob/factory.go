package blob

import (
	"caseledger/internal/infra/blob/fs"
	memorystore "caseledger/internal/infra/blob/memory"
	infraS3 "caseledger/internal/infra/blob/s3"
	"context"
	"fmt"
	"os"
	"strings"
)

// Environment variables read by Config.ApplyEnv.
const (
	EnvDriver        = "CASELEDGER_BLOB_DRIVER"
	EnvFSRoot        = "CASELEDGER_BLOB_FS_ROOT"
	EnvS3Bucket      = "CASELEDGER_BLOB_S3_BUCKET"
	EnvS3Region      = "CASELEDGER_BLOB_S3_REGION"
	EnvS3Endpoint    = "CASELEDGER_BLOB_S3_ENDPOINT"
	EnvS3Prefix      = "CASELEDGER_BLOB_S3_PREFIX"
	EnvS3PathStyle   = "CASELEDGER_BLOB_S3_PATH_STYLE"
	EnvAWSAccessKey  = "AWS_ACCESS_KEY_ID"
	EnvAWSSecretKey  = "AWS_SECRET_ACCESS_KEY"
	EnvAWSSessionTok = "AWS_SESSION_TOKEN"
)

// S3Config configures the S3 driver.
type S3Config = infraS3.Config

// Config selects and configures an artifact store driver.
type Config struct {
	Driver Driver   `yaml:"driver"`
	FSRoot string   `yaml:"fs_root"`
	S3     S3Config `yaml:"s3"`
}

// ApplyEnv overlays non-empty environment variables onto c.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvDriver); v != "" {
		c.Driver = Driver(strings.ToLower(strings.TrimSpace(v)))
	}
	setIfPresent(&c.FSRoot, EnvFSRoot)
	setIfPresent(&c.S3.Bucket, EnvS3Bucket)
	setIfPresent(&c.S3.Region, EnvS3Region)
	setIfPresent(&c.S3.Endpoint, EnvS3Endpoint)
	setIfPresent(&c.S3.Prefix, EnvS3Prefix)
	setIfPresent(&c.S3.AccessKeyID, EnvAWSAccessKey)
	setIfPresent(&c.S3.SecretAccessKey, EnvAWSSecretKey)
	setIfPresent(&c.S3.SessionToken, EnvAWSSessionTok)
	if v := os.Getenv(EnvS3PathStyle); v != "" {
		c.S3.PathStyle = strings.EqualFold(v, "true")
	}
}

func setIfPresent(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

// ConfigFromEnv builds a Config purely from the environment.
func ConfigFromEnv() Config {
	var cfg Config
	cfg.ApplyEnv()
	return cfg
}

// Open constructs the store named by cfg.Driver (default fs).
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		if cfg.S3.Bucket == "" {
			return nil, fmt.Errorf("%s required for s3 driver", EnvS3Bucket)
		}
		store, err := infraS3.New(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", driver)
	}
}

// OpenFromEnv is Open(ctx, ConfigFromEnv()).
func OpenFromEnv(ctx context.Context) (Store, error) {
	return Open(ctx, ConfigFromEnv())
}

// NewFilesystem returns a filesystem store rooted at root.
func NewFilesystem(root string) (Store, error) {
	store, err := fs.New(root)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewMemory returns an in-process store.
func NewMemory() Store { return memorystore.New() }
