package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/BTreeMap/RobotChat/internal/models"
)

// S3 request timeouts
const (
	s3UploadTimeout = 2 * time.Minute
	s3ReadTimeout   = 30 * time.Second
)

// s3API is the subset of the S3 client used by S3Store.
type s3API interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store writes one JSON object per submission under a key prefix.
type S3Store struct {
	client   s3API
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// ParseS3DSN splits s3://bucket/prefix into bucket and prefix. The prefix, when present,
// always ends with a slash.
func ParseS3DSN(dsn string) (bucket, prefix string, err error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", "", fmt.Errorf("invalid s3 DSN: %w", err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("invalid s3 DSN %q: expected s3://bucket/prefix", dsn)
	}
	prefix = strings.Trim(u.Path, "/")
	if prefix != "" {
		prefix += "/"
	}
	return u.Host, prefix, nil
}

// NewS3Store loads the AWS configuration and creates the store.
func NewS3Store(ctx context.Context, opts ...Option) (*S3Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	bucket, prefix, err := ParseS3DSN(cfg.DSN)
	if err != nil {
		return nil, err
	}

	var loadOpts []func(*config.LoadOptions) error
	if cfg.AWSRegion != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
	}
	if cfg.AWSKey != "" && cfg.AWSSecret != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSKey, cfg.AWSSecret, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	slog.Debug("S3Store: AWS config loaded", "bucket", bucket, "prefix", prefix, "region", awsCfg.Region)
	return newS3Store(s3.NewFromConfig(awsCfg), bucket, prefix), nil
}

func newS3Store(client s3API, bucket, prefix string) *S3Store {
	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
	}
}

// Save uploads rec and returns its object key.
func (s *S3Store) Save(ctx context.Context, rec models.SubmissionRecord) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal submission: %w", err)
	}
	key := s.prefix + submissionFileName(rec.Timestamp)

	ctxUpload, cancel := context.WithTimeout(ctx, s3UploadTimeout)
	defer cancel()

	_, err = s.uploader.Upload(ctxUpload, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		slog.Error("S3Store.Save: upload failed", "bucket", s.bucket, "key", key, "error", err)
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}
	slog.Debug("S3Store.Save succeeded", "bucket", s.bucket, "key", key)
	return key, nil
}

// List downloads every submission object under the prefix, oldest first.
func (s *S3Store) List(ctx context.Context) ([]models.SubmissionRecord, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix + submissionPrefix),
	})

	var records []models.SubmissionRecord
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list failed: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, submissionSuffix) {
				continue
			}
			rec, err := s.get(ctx, key)
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
		}
	}
	sortByTimestamp(records)
	return records, nil
}

func (s *S3Store) get(ctx context.Context, key string) (models.SubmissionRecord, error) {
	ctxGet, cancel := context.WithTimeout(ctx, s3ReadTimeout)
	defer cancel()

	var rec models.SubmissionRecord
	resp, err := s.client.GetObject(ctxGet, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return rec, fmt.Errorf("s3 get %s failed: %w", key, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return rec, fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, &rec); err != nil {
		return rec, fmt.Errorf("decode %s: %w", key, err)
	}
	return rec, nil
}

// Close is a no-op.
func (s *S3Store) Close() error { return nil }
