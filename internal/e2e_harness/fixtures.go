package e2e_harness

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/lib/pq"
	"github.com/lychee-technology/widgets"
	"github.com/lychee-technology/widgets/internal"
)

const (
	S3AccessKey = "minio"
	S3SecretKey = "minio"
)

// Seeded describes the rows SeedPostgres inserted.
type Seeded struct {
	FormID     int64
	DataViewID int64
	ProjectID  int64
}

// SeedPostgres inserts one households form owned by project 10, a dataview over it,
// a permission for "alice" and a handful of submissions. Tables must already exist.
func SeedPostgres(ctx context.Context, db *sql.DB, tables widgets.TableNames) (Seeded, error) {
	seeded := Seeded{ProjectID: 10}

	err := db.QueryRowContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id_string, title, project_id) VALUES ($1, $2, $3) RETURNING id`, pq.QuoteIdentifier(tables.Forms)),
		"households", "Households", seeded.ProjectID,
	).Scan(&seeded.FormID)
	if err != nil {
		return seeded, fmt.Errorf("insert form: %w", err)
	}

	err = db.QueryRowContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (name, xform_id, project_id, columns) VALUES ($1, $2, $3, $4) RETURNING id`, pq.QuoteIdentifier(tables.DataViews)),
		"Adults", seeded.FormID, seeded.ProjectID, pq.Array([]string{"gender", "age"}),
	).Scan(&seeded.DataViewID)
	if err != nil {
		return seeded, fmt.Errorf("insert dataview: %w", err)
	}

	if _, err := db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (project_id, username) VALUES ($1, $2)`, pq.QuoteIdentifier(tables.Permissions)),
		seeded.ProjectID, "alice",
	); err != nil {
		return seeded, fmt.Errorf("insert permission: %w", err)
	}

	submissions := []string{
		`{"gender": "female", "age": 31, "income": 1200.5}`,
		`{"gender": "female", "age": 27, "income": 800}`,
		`{"gender": "male", "age": 45, "income": 1500}`,
		`{"gender": "female", "age": 52}`,
		`{"age": 19}`,
	}
	for _, doc := range submissions {
		if _, err := db.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (xform_id, json) VALUES ($1, $2::jsonb)`, pq.QuoteIdentifier(tables.Instances)),
			seeded.FormID, doc,
		); err != nil {
			return seeded, fmt.Errorf("insert instance: %w", err)
		}
	}
	return seeded, nil
}

// UploadSchema puts a form schema document into the configured bucket, creating the
// bucket when it does not exist yet.
func UploadSchema(ctx context.Context, cfg widgets.SchemaConfig, idString string, body []byte) error {
	client, err := internal.NewS3Client(ctx, cfg)
	if err != nil {
		return err
	}

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		if _, cerr := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(cfg.Bucket)}); cerr != nil {
			var apiErr smithy.APIError
			if !errors.As(cerr, &apiErr) {
				return fmt.Errorf("create bucket: %w", cerr)
			}
			if code := apiErr.ErrorCode(); code != "BucketAlreadyOwnedByYou" && code != "BucketAlreadyExists" {
				return fmt.Errorf("create bucket: %w", cerr)
			}
		}
	}

	uploader := manager.NewUploader(client)
	if _, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(cfg.Bucket),
		Key:         aws.String(cfg.Prefix + idString + ".json"),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/schema+json"),
	}); err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}
	return nil
}
