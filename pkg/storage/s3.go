// Package storage publishes finished mosaics to S3-compatible object storage
// (AWS S3 or MinIO).
package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/tessera/pkg/errors"
)

// Config describes the target bucket.
type Config struct {
	Endpoint  string // Custom endpoint (MinIO); empty means AWS
	Region    string // Defaults to "us-east-1"
	AccessKey string // Static credentials; empty uses the default AWS chain
	SecretKey string
	Bucket    string
	Prefix    string // Key prefix, e.g. "mosaics/2024"
}

// Enabled reports whether a bucket is configured.
func (c Config) Enabled() bool {
	return c.Bucket != ""
}

// objectAPI is the subset of the S3 client the publisher uses.
type objectAPI interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Publisher uploads files to one bucket.
type Publisher struct {
	client objectAPI
	bucket string
	prefix string
	logger *log.Logger
}

// New creates a publisher for cfg. Custom endpoints use path-style
// addressing, which MinIO requires.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Publisher, error) {
	if cfg.Bucket == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "S3 bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newPublisher(client, cfg, logger), nil
}

func newPublisher(client objectAPI, cfg Config, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Publisher{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger,
	}
}

// EnsureBucket creates the bucket when HeadBucket fails.
func (p *Publisher) EnsureBucket(ctx context.Context) error {
	if _, err := p.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(p.bucket)}); err == nil {
		return nil
	}
	if _, err := p.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(p.bucket)}); err != nil {
		return fmt.Errorf("create bucket %s: %w", p.bucket, err)
	}
	p.logger.Info("created bucket", "bucket", p.bucket)
	return nil
}

// Key returns the object key a local file is uploaded under.
func (p *Publisher) Key(file string) string {
	return path.Join(p.prefix, filepath.Base(file))
}

// Upload puts the file at local under its Key and returns the s3:// URI.
func (p *Publisher) Upload(ctx context.Context, local string) (string, error) {
	f, err := os.Open(local)
	if err != nil {
		return "", err
	}
	defer f.Close()

	key := p.Key(local)
	in := &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
		Body:   f,
	}
	if ct := mime.TypeByExtension(filepath.Ext(local)); ct != "" {
		in.ContentType = aws.String(ct)
	}
	if _, err := p.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("upload %s: %w", local, err)
	}

	uri := fmt.Sprintf("s3://%s/%s", p.bucket, key)
	p.logger.Debug("uploaded", "file", local, "uri", uri)
	return uri, nil
}

// Publish ensures the bucket exists and uploads every file, stopping at the
// first failure.
func (p *Publisher) Publish(ctx context.Context, files ...string) ([]string, error) {
	if err := p.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	uris := make([]string, 0, len(files))
	for _, f := range files {
		uri, err := p.Upload(ctx, f)
		if err != nil {
			return uris, err
		}
		uris = append(uris, uri)
	}
	return uris, nil
}
