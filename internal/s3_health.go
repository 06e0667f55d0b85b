package internal

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/lychee-technology/widgets"
)

// ValidateS3Config performs basic sanity checks on S3 schema source settings.
func ValidateS3Config(cfg widgets.SchemaConfig) error {
	if cfg.Source != widgets.SchemaSourceS3 {
		return nil
	}
	if cfg.Bucket == "" {
		return fmt.Errorf("s3: schema source s3 requires a bucket")
	}
	if cfg.AccessKey != "" && cfg.SecretKey == "" {
		return fmt.Errorf("s3AccessKey provided without s3SecretKey")
	}
	if cfg.SecretKey != "" && cfg.AccessKey == "" {
		return fmt.Errorf("s3SecretKey provided without s3AccessKey")
	}
	return nil
}

// S3HealthCheck checks that the schema bucket is reachable with the configured credentials.
// timeout may be 0 to use a sensible default (5s).
func S3HealthCheck(ctx context.Context, source SchemaSource, timeout time.Duration) error {
	s, ok := source.(*s3SchemaSource)
	if !ok {
		return nil
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("s3 head bucket %s: %w", s.bucket, err)
	}
	return nil
}
