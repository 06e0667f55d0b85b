package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/lychee-technology/widgets"
)

// SchemaSource fetches raw form schema documents by form id_string.
type SchemaSource interface {
	Fetch(ctx context.Context, idString string) ([]byte, error)
}

type fileSchemaSource struct {
	dir string
}

// NewFileSchemaSource reads <dir>/<id_string>.json documents.
func NewFileSchemaSource(dir string) SchemaSource {
	return &fileSchemaSource{dir: dir}
}

func (s *fileSchemaSource) Fetch(ctx context.Context, idString string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validDocumentName(idString) {
		return nil, widgets.NewSchemaNotFoundError(idString)
	}

	path := filepath.Join(s.dir, idString+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, widgets.NewSchemaNotFoundError(idString)
		}
		return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}
	return data, nil
}

// s3ObjectAPI is the subset of the S3 client the schema source needs.
type s3ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

type s3SchemaSource struct {
	client s3ObjectAPI
	bucket string
	prefix string
}

// NewS3SchemaSource reads s3://<bucket>/<prefix><id_string>.json documents.
func NewS3SchemaSource(ctx context.Context, cfg widgets.SchemaConfig) (SchemaSource, error) {
	client, err := NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newS3SchemaSource(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3SchemaSource(client s3ObjectAPI, bucket, prefix string) *s3SchemaSource {
	return &s3SchemaSource{client: client, bucket: bucket, prefix: prefix}
}

// NewS3Client builds an S3 client from the schema settings. Static credentials and a
// custom endpoint are optional; path-style addressing keeps MinIO-like endpoints working.
func NewS3Client(ctx context.Context, cfg widgets.SchemaConfig) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	if cfg.Endpoint != "" {
		loadOpts = append(loadOpts, config.WithBaseEndpoint(cfg.Endpoint))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	}), nil
}

func (s *s3SchemaSource) objectKey(idString string) string {
	return s.prefix + idString + ".json"
}

func (s *s3SchemaSource) Fetch(ctx context.Context, idString string) ([]byte, error) {
	if !validDocumentName(idString) {
		return nil, widgets.NewSchemaNotFoundError(idString)
	}

	key := s.objectKey(idString)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "NoSuchKey", "NotFound":
				return nil, widgets.NewSchemaNotFoundError(idString)
			}
		}
		return nil, fmt.Errorf("s3 get %s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read %s/%s: %w", s.bucket, key, err)
	}
	return data, nil
}

// validDocumentName rejects id strings that would escape the schema location.
func validDocumentName(idString string) bool {
	if idString == "" || idString == "." || idString == ".." {
		return false
	}
	return !strings.ContainsAny(idString, `/\`)
}
