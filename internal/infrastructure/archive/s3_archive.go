// Package archive writes finished execution results to S3-compatible
// object storage. Archiving is best effort: the engine logs a failed
// write and moves on, so nothing here may block or panic.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	appengine "github.com/shopops/automator/internal/application/engine"
	"github.com/shopops/automator/internal/domain/work"
	infraconfig "github.com/shopops/automator/internal/infrastructure/config"
)

// Ensure S3Archive satisfies the engine's archive contract
var _ appengine.ResultArchive = (*S3Archive)(nil)

// S3Archive stores execution results as JSON objects. It works against
// any S3-compatible backend (AWS S3, MinIO, RustFS, etc.)
type S3Archive struct {
	client *s3.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// S3ArchiveOption is a functional option for configuring S3Archive
type S3ArchiveOption func(*S3Archive)

// WithLogger sets a custom logger for S3Archive
func WithLogger(logger *zap.Logger) S3ArchiveOption {
	return func(a *S3Archive) {
		a.logger = logger
	}
}

// NewS3Archive creates an archive from configuration.
func NewS3Archive(cfg *infraconfig.ArchiveConfig, opts ...S3ArchiveOption) (*S3Archive, error) {
	if cfg == nil {
		return nil, errors.New("archive configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("archive bucket is required")
	}
	if cfg.AccessKeyID == "" {
		return nil, errors.New("archive access key is required")
	}
	if cfg.SecretAccessKey == "" {
		return nil, errors.New("archive secret key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:9000"
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "http://" + endpoint
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid archive endpoint: %w", err)
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		o.BaseEndpoint = aws.String(endpoint)
	})

	archive := &S3Archive{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(archive)
	}
	if archive.prefix == "" {
		archive.prefix = "plans"
	}
	return archive, nil
}

// EnsureBucket creates the bucket if it doesn't exist. Call during
// startup so the first archived run does not pay for bucket creation.
func (a *S3Archive) EnsureBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err == nil {
		return nil
	}
	if !bucketMissing(err) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	a.logger.Info("creating archive bucket", zap.String("bucket", a.bucket))
	_, err = a.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err != nil {
		// Lost a creation race with another instance, the bucket is there
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Store uploads one result and returns its object key.
func (a *S3Archive) Store(ctx context.Context, res *work.ExecutionResult) (string, error) {
	key := a.objectKey(res)
	body, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("failed to marshal execution result: %w", err)
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive result: %w", err)
	}
	return key, nil
}

// objectKey builds a deterministic key from the result itself, so retries
// of the archive write land on the same object. A plan can run more than
// once (dry run, then apply), hence mode and finish time in the name.
func (a *S3Archive) objectKey(res *work.ExecutionResult) string {
	finished := res.FinishedAt.UTC()
	return fmt.Sprintf("%s/%s/%s/%s-%s-%d.json",
		a.prefix,
		res.Agent,
		finished.Format("2006/01/02"),
		res.PlanID,
		res.Mode,
		finished.UnixMilli(),
	)
}

// Bucket returns the bucket name
func (a *S3Archive) Bucket() string {
	return a.bucket
}

// bucketMissing reports whether err means the bucket does not exist.
// HEAD responses carry no error body, so some S3-compatible backends
// surface only the bare 404.
func bucketMissing(err error) bool {
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &notFound) || errors.As(err, &noSuchBucket) {
		return true
	}
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}
