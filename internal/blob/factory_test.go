package blob

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestOpenDrivers(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "artifacts")

	cases := []struct {
		name    string
		cfg     Config
		driver  Driver
		wantErr bool
	}{
		{name: "default is filesystem", cfg: Config{FSRoot: root}, driver: DriverFilesystem},
		{name: "memory", cfg: Config{Driver: DriverMemory}, driver: DriverMemory},
		{name: "s3", cfg: Config{Driver: DriverS3, S3: S3Config{Bucket: "bkt", AccessKeyID: "AKIA", SecretAccessKey: "SECRET"}}, driver: DriverS3},
		{name: "s3 without bucket", cfg: Config{Driver: DriverS3}, wantErr: true},
		{name: "unknown", cfg: Config{Driver: "ftp"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, err := Open(ctx, tc.cfg)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				if store != nil {
					t.Fatalf("expected nil store on error, got %T", store)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if store.Driver() != tc.driver {
				t.Fatalf("driver = %s, want %s", store.Driver(), tc.driver)
			}
		})
	}
}

func TestConfigApplyEnv(t *testing.T) {
	t.Setenv(EnvDriver, " S3 ")
	t.Setenv(EnvFSRoot, "/tmp/ignored")
	t.Setenv(EnvS3Bucket, "reports")
	t.Setenv(EnvS3Region, "eu-west-1")
	t.Setenv(EnvS3Endpoint, "http://minio:9000")
	t.Setenv(EnvS3Prefix, "caseledger")
	t.Setenv(EnvS3PathStyle, "TRUE")
	t.Setenv(EnvAWSAccessKey, "AKIA")
	t.Setenv(EnvAWSSecretKey, "SECRET")
	t.Setenv(EnvAWSSessionTok, "")

	cfg := Config{S3: S3Config{Region: "us-east-1", SessionToken: "kept"}}
	cfg.ApplyEnv()

	if cfg.Driver != DriverS3 || cfg.FSRoot != "/tmp/ignored" {
		t.Fatalf("unexpected driver/root %+v", cfg)
	}
	want := S3Config{
		Bucket:          "reports",
		Region:          "eu-west-1",
		Endpoint:        "http://minio:9000",
		Prefix:          "caseledger",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		SessionToken:    "kept",
		PathStyle:       true,
	}
	if cfg.S3 != want {
		t.Fatalf("S3 config = %+v, want %+v", cfg.S3, want)
	}
}

func TestOpenFromEnvMemory(t *testing.T) {
	t.Setenv(EnvDriver, "memory")
	store, err := OpenFromEnv(context.Background())
	if err != nil {
		t.Fatalf("OpenFromEnv: %v", err)
	}
	ctx := context.Background()
	if _, err := store.Put(ctx, "a", bytes.NewReader([]byte("1")), PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "a", bytes.NewReader([]byte("2")), PutOptions{}); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists through re-export, got %v", err)
	}
}
