package auditsink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/okian/boardcheck/internal/domain/audit"
)

// PutObjectAPI is the slice of the S3 client the archive needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config describes the archive bucket. Endpoint is set for S3-compatible
// stores such as MinIO or R2.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	Prefix    string
	AccessKey string
	SecretKey string
}

// NewS3Client builds an S3 client from cfg. Credentials come from the default
// AWS chain (env, shared profile, web identity, instance or task role) unless
// cfg carries a static key pair, which then takes precedence.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// S3 archives records for the analytics warehouse. Each record becomes two
// objects, partitioned by decision date:
//
//	{prefix}/records/dt=YYYY-MM-DD/{record_id}.json    canonical record
//	{prefix}/rows/dt=YYYY-MM-DD/{record_id}.ndjson     audit.Rows, one per line
type S3 struct {
	client PutObjectAPI
	bucket string
	prefix string
}

var _ Sink = (*S3)(nil)

// NewS3 builds an archive sink writing to bucket.
func NewS3(client PutObjectAPI, bucket, prefix string) (*S3, error) {
	if client == nil {
		return nil, ErrNilDependency
	}
	if bucket == "" {
		return nil, errors.New("s3 audit bucket is empty")
	}
	return &S3{client: client, bucket: bucket, prefix: prefix}, nil
}

// Write uploads both objects with If-None-Match so an existing object is
// never replaced.
func (s *S3) Write(ctx context.Context, rec audit.Record) error {
	if rec.RecordID == "" {
		return ErrMissingID
	}
	body, err := audit.Marshal(rec)
	if err != nil {
		return err
	}
	var rows bytes.Buffer
	enc := json.NewEncoder(&rows)
	for _, row := range audit.Rows(rec) {
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("encode audit rows: %w", err)
		}
	}

	day := rec.DecidedAt.UTC().Format("2006-01-02")
	objects := []struct {
		key         string
		body        []byte
		contentType string
	}{
		{path.Join(s.prefix, "records", "dt="+day, rec.RecordID+".json"), body, "application/json"},
		{path.Join(s.prefix, "rows", "dt="+day, rec.RecordID+".ndjson"), rows.Bytes(), "application/x-ndjson"},
	}
	for _, obj := range objects {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(obj.key),
			Body:        bytes.NewReader(obj.body),
			ContentType: aws.String(obj.contentType),
			IfNoneMatch: aws.String("*"),
		})
		if err != nil && !alreadyExists(err) {
			return fmt.Errorf("put s3://%s/%s: %w", s.bucket, obj.key, err)
		}
	}
	return nil
}

func alreadyExists(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	return false
}
