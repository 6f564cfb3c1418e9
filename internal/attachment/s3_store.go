package attachment

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"cityalert/internal/config"
	"cityalert/internal/llm"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	uploadAttempts = 3
	presignExpiry  = 7 * 24 * time.Hour
)

// S3Store uploads inline images to an S3-compatible bucket and hands back a
// presigned GET URL for the incident's image_url.
type S3Store struct {
	client     *minio.Client
	bucketName string
	region     string

	mu          sync.Mutex
	bucketReady bool
}

func NewS3Store(cfg config.AttachmentConfig) (*S3Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Store{client: client, bucketName: bucket, region: region}, nil
}

// ensureBucket creates the bucket on first use. Only success is remembered,
// so a cancelled or failed check is retried by the next upload.
func (s *S3Store) ensureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bucketReady {
		return nil
	}
	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return err
		}
		slog.InfoContext(ctx, "created image bucket", "bucket", s.bucketName)
	}
	s.bucketReady = true
	return nil
}

// Save uploads inline bytes under <sessionID>/<uuid><ext>. A reference-only
// image is returned unchanged.
func (s *S3Store) Save(ctx context.Context, sessionID string, img *llm.Image) (string, error) {
	if img == nil {
		return "", ErrEmpty
	}
	if !img.Inline() {
		if img.Ref == "" {
			return "", ErrEmpty
		}
		return img.Ref, nil
	}
	if err := s.ensureBucket(ctx); err != nil {
		return "", fmt.Errorf("ensure bucket: %w", err)
	}

	key := ObjectKey(sessionID, uuid.NewString()+extension(img.MIMEType))
	err := retry.Do(
		func() error {
			_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(img.Data), int64(len(img.Data)), minio.PutObjectOptions{
				ContentType: img.MIMEType,
			})
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uploadAttempts),
		retry.Delay(200*time.Millisecond),
		retry.MaxDelay(2*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			slog.WarnContext(ctx, "image upload retry", "attempt", n+1, "key", key, "error", err)
		}),
	)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucketName, key, presignExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign image: %w", err)
	}
	slog.DebugContext(ctx, "image uploaded", "key", key, "bytes", len(img.Data))
	return u.String(), nil
}

func ObjectKey(sessionID, name string) string {
	sessionID = strings.Trim(strings.TrimSpace(sessionID), "/")
	if sessionID == "" {
		sessionID = "anonymous"
	}
	return sessionID + "/" + strings.TrimLeft(strings.TrimSpace(name), "/")
}
