package export

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vahanmetrics/vahan/pkg/registration"
)

var tracer = otel.Tracer("vahan/export")

// ArchiveConfig holds object-store settings for report snapshots.
type ArchiveConfig struct {
	Bucket       string
	Region       string
	Endpoint     string // non-empty for MinIO or other S3-compatible stores
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
	Prefix       string // key prefix, default "reports"
}

// Archiver uploads dataset snapshots to S3-compatible object storage.
type Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewArchiver builds an S3 client from cfg and ensures the bucket exists.
// Static credentials take precedence; otherwise the default AWS chain
// (IAM role, env vars) applies.
func NewArchiver(ctx context.Context, cfg ArchiveConfig) (*Archiver, error) {
	var awsCfg aws.Config
	var err error

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKey,
				cfg.SecretKey,
				"",
			)),
		)
	} else {
		awsCfg, err = config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	if err := ensureBucket(ctx, client, cfg.Bucket); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", cfg.Bucket, err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "reports"
	}
	return &Archiver{client: client, bucket: cfg.Bucket, prefix: prefix}, nil
}

// ArchiveSnapshot renders ds as CSV and uploads it under a revision- and
// timestamp-qualified key. Returns the object key.
func (a *Archiver) ArchiveSnapshot(ctx context.Context, ds *registration.Dataset, now time.Time) (string, error) {
	key := snapshotKey(a.prefix, ds.Revision(), now)

	ctx, span := tracer.Start(ctx, "Archiver.ArchiveSnapshot",
		trace.WithAttributes(
			attribute.String("s3.bucket", a.bucket),
			attribute.String("s3.key", key),
			attribute.String("dataset.revision", ds.Revision()),
		),
	)
	defer span.End()

	var buf bytes.Buffer
	if err := WriteCSV(&buf, ds); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render csv")
		return "", fmt.Errorf("render snapshot csv: %w", err)
	}
	span.SetAttributes(attribute.Int("content.size", buf.Len()))

	hash := sha256.Sum256(buf.Bytes())
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("text/csv"),
		Metadata: map[string]string{
			"checksum-sha256":  hex.EncodeToString(hash[:]),
			"dataset-revision": ds.Revision(),
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload snapshot")
		return "", fmt.Errorf("upload snapshot to s3: %w", err)
	}

	span.SetStatus(codes.Ok, "snapshot archived")
	return key, nil
}

// HealthCheck verifies bucket reachability.
func (a *Archiver) HealthCheck(ctx context.Context) error {
	if _, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)}); err != nil {
		return fmt.Errorf("s3 health check: %w", err)
	}
	return nil
}

// snapshotKey builds the object key for one archived snapshot.
func snapshotKey(prefix, revision string, now time.Time) string {
	return fmt.Sprintf("%s/%s/registrations-%s.csv",
		strings.TrimSuffix(prefix, "/"),
		revision,
		now.UTC().Format("20060102T150405Z"))
}

func ensureBucket(ctx context.Context, client *s3.Client, bucket string) error {
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err == nil {
		return nil
	}
	_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	if err != nil && !bucketExistsError(err) {
		return err
	}
	return nil
}

// bucketExistsError covers the create/create race on startup.
func bucketExistsError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "BucketAlreadyExists") || strings.Contains(msg, "BucketAlreadyOwnedByYou")
}
