package sinks

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// S3Config holds S3 client configuration.
type S3Config struct {
	// Region is the AWS region (e.g., "us-east-1")
	Region string

	// Bucket receives the uploads
	Bucket string

	// Prefix is prepended to object keys
	Prefix string

	// Endpoint overrides the default S3 endpoint (for S3-compatible services)
	Endpoint string

	// Credentials (optional - uses default chain if not provided)
	AccessKeyID     string
	SecretAccessKey string

	// UploadTimeout bounds a single upload
	UploadTimeout time.Duration

	// RemoveAfterUpload deletes the local file once uploaded
	RemoveAfterUpload bool
}

// ObjectPutter is the subset of *s3.Client used by S3Uploader.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader uploads closed report files to S3.
type S3Uploader struct {
	cfg    S3Config
	client ObjectPutter
	logger *zap.Logger
}

// NewS3Uploader creates an uploader using the AWS default credential chain
// unless static credentials are configured.
func NewS3Uploader(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3Uploader, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	// Use explicit credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		// S3-compatible services (MinIO, LocalStack) need path-style addressing.
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return NewS3UploaderWithClient(s3.NewFromConfig(awsCfg, s3Opts...), cfg, logger), nil
}

// NewS3UploaderWithClient creates an uploader on an existing client.
func NewS3UploaderWithClient(client ObjectPutter, cfg S3Config, logger *zap.Logger) *S3Uploader {
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Uploader{cfg: cfg, client: client, logger: logger.Named("s3")}
}

// Key returns the object key of a local file.
func (u *S3Uploader) Key(localPath string) string {
	return path.Join(u.cfg.Prefix, filepath.Base(localPath))
}

// Upload puts the file at localPath into the bucket.
func (u *S3Uploader) Upload(ctx context.Context, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, u.cfg.UploadTimeout)
	defer cancel()

	key := u.Key(localPath)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/vnd.apache.parquet"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	u.logger.Info("uploaded report file", zap.String("bucket", u.cfg.Bucket), zap.String("key", key))

	if u.cfg.RemoveAfterUpload {
		f.Close()
		if err := os.Remove(localPath); err != nil {
			u.logger.Warn("failed to remove uploaded file", zap.String("path", localPath), zap.Error(err))
		}
	}
	return nil
}
