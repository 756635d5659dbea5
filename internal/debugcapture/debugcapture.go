// Package debugcapture archives the Provider Gateway's raw response (the
// json-encoded result the Runner received) and per-stage pipeline timings to S3-compatible object storage when a
// Search Job was submitted with captureDebug set (SPEC_FULL.md §1.3). It is
// purely additive: a failure here is logged and never affects the job's
// own success or failure.
package debugcapture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/placefinder/search-api/internal/crypto"
)

// Config mirrors the subset of the app config needed to reach the bucket.
type Config struct {
	Enabled  bool
	Endpoint string
	Region   string
	Bucket   string
	// AccessKey/SecretKey are the S3-compatible credentials.
	AccessKey string
	SecretKey string
	// EncryptionKey is the pre-derived 32-byte AES-256 key (config.Config's
	// DebugCaptureKey(), itself HKDF-derived from the operator's master
	// secret) — archives are encrypted before they ever leave the process.
	EncryptionKey []byte
}

// Archive is a single capture payload for one job.
type Archive struct {
	RequestID     string            `json:"requestId"`
	ProviderRaw   json.RawMessage   `json:"providerRaw,omitempty"`
	StageTimingsMs map[string]int64 `json:"stageTimingsMs,omitempty"`
	CapturedAt    time.Time         `json:"capturedAt"`
}

// Store writes encrypted debug-capture archives to object storage.
type Store struct {
	client    *s3.Client
	bucket    string
	enabled   bool
	encryptor *crypto.Encryptor
	logger    *slog.Logger
}

// New builds a Store. If cfg.Enabled is false the returned Store silently
// no-ops every call — the same disabled-by-default shape as the teacher's
// StorageService.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled {
		logger.Info("debugcapture: disabled — no bucket configured")
		return &Store{enabled: false, logger: logger}, nil
	}

	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("debugcapture: build encryptor: %w", err)
	}

	client, err := NewS3Client(cfg)
	if err != nil {
		return nil, err
	}

	return &Store{client: client, bucket: cfg.Bucket, enabled: true, encryptor: encryptor, logger: logger}, nil
}

// NewS3Client builds an S3-compatible client from Config's endpoint/region/
// credentials. Exported so other packages that read from the same bucket
// (mw.LogFiltersLoader's dynamic log-filter config) don't each re-derive
// their own AWS config.
func NewS3Client(cfg Config) (*s3.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("debugcapture: load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	}), nil
}

// IsEnabled reports whether archival is configured.
func (s *Store) IsEnabled() bool {
	return s.enabled
}

// Put encrypts and writes one archive under debug-capture/{requestId}.json.enc.
// A write failure is returned to the caller (the Runner logs and discards
// it — archival is fire-and-forget from the pipeline's perspective).
func (s *Store) Put(ctx context.Context, archive Archive) error {
	if !s.enabled {
		return nil
	}

	plaintext, err := json.Marshal(archive)
	if err != nil {
		return fmt.Errorf("debugcapture: marshal archive: %w", err)
	}

	ciphertext, err := s.encryptor.Encrypt(string(plaintext))
	if err != nil {
		return fmt.Errorf("debugcapture: encrypt archive: %w", err)
	}

	key := fmt.Sprintf("debug-capture/%s.json.enc", archive.RequestID)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader([]byte(ciphertext)),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("debugcapture: put object: %w", err)
	}

	s.logger.Info("debugcapture: archived", "requestId", archive.RequestID, "key", key, "sizeBytes", len(ciphertext))
	return nil
}
