// Package storage provides the S3 object gateway for original images and
// their produced variants.
//
// This package wraps the AWS SDK v2 to provide blob put/get/delete plus
// time-limited presigned download URLs, with key validation on every
// operation.
//
// # Authentication
//
// The client uses the AWS SDK default credential chain:
//  1. Environment variables (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY)
//  2. Shared credentials file (~/.aws/credentials)
//  3. IAM role (if running on EC2)
//
// # Security
//
// The package validates object keys to prevent path traversal attacks:
//   - Rejects keys containing ".."
//   - Rejects keys with absolute paths
//   - Enforces maximum key length (1024 chars)
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
)

// Client wraps the S3 client with helper methods for image blobs.
type Client struct {
	s3Client  *s3.Client
	presigner *s3.PresignClient
	bucket    string
	logger    logrus.FieldLogger
}

// Config holds S3 client configuration.
type Config struct {
	// Region is the AWS region (optional, defaults to us-east-1)
	Region string

	// Bucket is the S3 bucket holding originals and variants
	Bucket string

	// Endpoint overrides the S3 endpoint, for MinIO or localstack. Empty
	// uses the AWS default.
	Endpoint string

	// PresignTTL is how long presigned download URLs stay valid
	PresignTTL time.Duration
}

// DefaultConfig returns a default storage configuration.
func DefaultConfig() Config {
	return Config{
		Region:     "us-east-1",
		Bucket:     "variant-images",
		PresignTTL: 15 * time.Minute,
	}
}

// New creates a new storage client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Client{
		s3Client:  s3Client,
		presigner: s3.NewPresignClient(s3Client, s3.WithPresignExpires(cfg.PresignTTL)),
		bucket:    cfg.Bucket,
		logger:    logrus.New(),
	}, nil
}

// SetLogger sets a custom logger for the client.
func (c *Client) SetLogger(logger logrus.FieldLogger) {
	c.logger = logger
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

// Put uploads a blob under the given key, overwriting any existing object.
func (c *Client) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("invalid object key: %w", err)
	}

	logger := c.logger.WithFields(logrus.Fields{
		"bucket": c.bucket,
		"key":    key,
		"size":   len(data),
	})

	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}

	logger.Info("uploaded object")
	return nil
}

// Get downloads the full object body for the given key.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, fmt.Errorf("invalid object key: %w", err)
	}

	resp, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"bucket": c.bucket,
		"key":    key,
		"size":   len(data),
	}).Debug("downloaded object")

	return data, nil
}

// Delete removes the object with the given key. Deleting an absent key is
// not an error; S3 delete is idempotent.
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("invalid object key: %w", err)
	}

	_, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"bucket": c.bucket,
		"key":    key,
	}).Info("deleted object")

	return nil
}

// PresignedURL returns a time-limited GET URL for the given key. The URL is
// signed locally; no request is made to S3 and absent keys still sign.
func (c *Client) PresignedURL(ctx context.Context, key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", fmt.Errorf("invalid object key: %w", err)
	}

	req, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign object: %w", err)
	}

	return req.URL, nil
}

// ObjectExists checks if an object exists.
func (c *Client) ObjectExists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, fmt.Errorf("invalid object key: %w", err)
	}

	_, err := c.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "404") {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}

	return true, nil
}

// validateKey validates an object key for security.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("object key cannot be empty")
	}

	if len(key) > 1024 {
		return fmt.Errorf("object key too long: %d characters (max 1024)", len(key))
	}

	if strings.Contains(key, "..") {
		return fmt.Errorf("object key contains path traversal: %s", key)
	}

	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("object key should not start with /: %s", key)
	}

	if strings.Contains(key, "\x00") {
		return fmt.Errorf("object key contains null byte")
	}

	return nil
}
