package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

var ErrNotConfigured = errors.New("r2 storage is not configured")

const presignTTL = 24 * time.Hour

// R2Client uploads export artifacts to an S3-compatible bucket.
type R2Client struct {
	client        *s3.Client
	presign       *s3.PresignClient
	bucket        string
	endpoint      string
	publicBaseURL string
}

type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	PublicBaseURL string
}

func ConfigFromEnv() Config {
	return Config{
		Endpoint:      strings.TrimSpace(os.Getenv("R2_ENDPOINT")),
		AccessKey:     strings.TrimSpace(os.Getenv("R2_ACCESS_KEY_ID")),
		SecretKey:     strings.TrimSpace(os.Getenv("R2_SECRET_ACCESS_KEY")),
		Bucket:        strings.TrimSpace(os.Getenv("R2_BUCKET")),
		Region:        strings.TrimSpace(os.Getenv("R2_REGION")),
		PublicBaseURL: strings.TrimRight(strings.TrimSpace(os.Getenv("R2_PUBLIC_BASE_URL")), "/"),
	}
}

func (c Config) configured() bool {
	return c.Endpoint != "" && c.AccessKey != "" && c.SecretKey != "" && c.Bucket != ""
}

func NewR2ClientFromEnv() (*R2Client, error) {
	return NewR2Client(ConfigFromEnv())
}

func NewR2Client(cfg Config) (*R2Client, error) {
	if !cfg.configured() {
		return nil, ErrNotConfigured
	}
	if cfg.Region == "" {
		cfg.Region = "auto"
	}

	awsCfg := aws.Config{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	return &R2Client{
		client:        client,
		presign:       s3.NewPresignClient(client),
		bucket:        cfg.Bucket,
		endpoint:      strings.TrimRight(cfg.Endpoint, "/"),
		publicBaseURL: cfg.PublicBaseURL,
	}, nil
}

// ExportKey names an export object; the random suffix keeps repeated exports
// of the same junction from overwriting each other.
func ExportKey(junctionID int64, at time.Time) string {
	return fmt.Sprintf("exports/junction-%d/cycles-%s-%s.xlsx",
		junctionID, at.UTC().Format("20060102T150405Z"), uuid.NewString()[:8])
}

func (r *R2Client) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	if r == nil || r.client == nil {
		return "", ErrNotConfigured
	}
	if size <= 0 {
		return "", fmt.Errorf("empty file")
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(r.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	}
	if _, err := r.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("r2 upload failed: %w", err)
	}
	return r.DownloadURL(ctx, key)
}

// DownloadURL returns the public URL of key, or a presigned one when the
// bucket has no public base.
func (r *R2Client) DownloadURL(ctx context.Context, key string) (string, error) {
	if r.publicBaseURL != "" {
		return r.objectURL(key), nil
	}
	return r.PresignDownload(ctx, key, presignTTL)
}

// PresignDownload returns a time-limited GET URL for a private bucket.
func (r *R2Client) PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if r == nil || r.presign == nil {
		return "", ErrNotConfigured
	}
	req, err := r.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("r2 presign failed: %w", err)
	}
	return req.URL, nil
}

func (r *R2Client) objectURL(key string) string {
	trimmedKey := strings.TrimLeft(key, "/")
	if r.publicBaseURL != "" {
		return fmt.Sprintf("%s/%s", r.publicBaseURL, trimmedKey)
	}
	return fmt.Sprintf("%s/%s/%s", r.endpoint, r.bucket, trimmedKey)
}
