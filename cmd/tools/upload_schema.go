package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/lychee-technology/widgets"
	"github.com/lychee-technology/widgets/internal"
	"go.uber.org/zap"
)

type uploaderAPI interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type bucketAPI interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

func runUploadSchema(args []string) error {
	flags := flag.NewFlagSet("upload-schema", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: widgets-tools upload-schema [options] <schema.json>...")
		fmt.Println("")
		fmt.Println("Each file is stored as <prefix><id_string>.json, id_string being the file name.")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	cfg := widgets.SchemaConfig{Source: widgets.SchemaSourceS3}
	createBucket := false
	flags.StringVar(&cfg.Bucket, "bucket", getenvDefault("SCHEMA_BUCKET", ""), "schema bucket")
	flags.StringVar(&cfg.Prefix, "prefix", getenvDefault("SCHEMA_PREFIX", ""), "object key prefix")
	flags.StringVar(&cfg.Region, "region", getenvDefault("AWS_REGION", "us-east-1"), "bucket region")
	flags.StringVar(&cfg.Endpoint, "endpoint", getenvDefault("S3_ENDPOINT", ""), "custom S3 endpoint, e.g. MinIO")
	flags.StringVar(&cfg.AccessKey, "access-key", getenvDefault("S3_ACCESS_KEY", ""), "static access key")
	flags.StringVar(&cfg.SecretKey, "secret-key", getenvDefault("S3_SECRET_KEY", ""), "static secret key")
	flags.BoolVar(&createBucket, "create-bucket", false, "create the bucket when it does not exist")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return fmt.Errorf("no schema files given")
	}
	if err := internal.ValidateS3Config(cfg); err != nil {
		return err
	}

	ctx := context.Background()
	client, err := internal.NewS3Client(ctx, cfg)
	if err != nil {
		return err
	}
	if createBucket {
		if err := ensureBucket(ctx, client, cfg.Bucket); err != nil {
			return err
		}
	}
	return uploadSchemas(ctx, manager.NewUploader(client), cfg.Bucket, cfg.Prefix, flags.Args())
}

// ensureBucket creates bucket unless it is already reachable.
func ensureBucket(ctx context.Context, client bucketAPI, bucket string) error {
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err == nil {
		return nil
	}
	if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			code := apiErr.ErrorCode()
			if code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
				return nil
			}
		}
		return fmt.Errorf("create bucket: %w", err)
	}
	zap.S().Infow("created schema bucket", "bucket", bucket)
	return nil
}

// uploadSchemas checks every document before uploading any of them.
func uploadSchemas(ctx context.Context, uploader uploaderAPI, bucket, prefix string, files []string) error {
	type document struct {
		key  string
		data []byte
	}
	docs := make([]document, 0, len(files))
	for _, file := range files {
		idString := strings.TrimSuffix(filepath.Base(file), ".json")
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read schema %s: %w", file, err)
		}
		dd, err := internal.LoadDataDictionary(idString, data)
		if err != nil {
			return err
		}
		zap.S().Debugw("schema document checked", "id_string", idString, "headers", len(dd.Headers()))
		docs = append(docs, document{key: prefix + idString + ".json", data: data})
	}

	for _, doc := range docs {
		_, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(bucket),
			Key:         aws.String(doc.key),
			Body:        bytes.NewReader(doc.data),
			ContentType: aws.String("application/schema+json"),
		})
		if err != nil {
			return fmt.Errorf("s3 upload %s: %w", doc.key, err)
		}
		fmt.Printf("Uploaded schema, key: s3://%s/%s\n", bucket, doc.key)
	}
	return nil
}
