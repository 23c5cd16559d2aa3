// Package objectstore stores generated artifacts in an S3-compatible bucket.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("object not found")

// Config holds bucket and credential settings
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	SignedURLTTL    time.Duration
	DeleteWait      time.Duration
}

// S3Store implements Put, Delete and SignedURL against one bucket.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	config  Config
	logger  *slog.Logger
}

// NewS3Store loads AWS configuration and returns a store bound to config.Bucket.
// Static credentials are used when provided, otherwise the default chain applies.
func NewS3Store(ctx context.Context, config Config, logger *slog.Logger) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if config.Region != "" {
		opts = append(opts, awsconfig.WithRegion(config.Region))
	}
	if config.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if config.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Endpoint)
		}
		o.UsePathStyle = config.UsePathStyle
	})

	if config.SignedURLTTL <= 0 {
		config.SignedURLTTL = time.Hour
	}
	if config.DeleteWait <= 0 {
		config.DeleteWait = 30 * time.Second
	}

	logger.Info("Object store initialized",
		slog.String("bucket", config.Bucket),
		slog.String("region", config.Region),
		slog.String("endpoint", config.Endpoint),
	)

	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		config:  config,
		logger:  logger,
	}, nil
}

// Put uploads data under key.
func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.config.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}

	s.logger.Info("Object stored",
		slog.String("key", key),
		slog.String("content_type", contentType),
		slog.Int("size", len(data)),
	)
	return nil
}

// Delete removes key and waits until the bucket no longer reports it.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}

	waiter := s3.NewObjectNotExistsWaiter(s.client)
	err = waiter.Wait(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
	}, s.config.DeleteWait)
	if err != nil {
		return fmt.Errorf("failed waiting for object %s deletion: %w", key, err)
	}

	s.logger.Info("Object deleted",
		slog.String("key", key),
	)
	return nil
}

// SignedURL returns a temporary GET URL for key.
func (s *S3Store) SignedURL(ctx context.Context, key string) (string, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return "", fmt.Errorf("failed to stat object %s: %w", key, err)
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.config.SignedURLTTL))
	if err != nil {
		return "", fmt.Errorf("failed to sign url for %s: %w", key, err)
	}
	return req.URL, nil
}
