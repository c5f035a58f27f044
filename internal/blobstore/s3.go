package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Store implements Store on top of an S3 bucket. Conditional writes use
// S3 conditional requests: If-None-Match for create-if-absent and If-Match
// for compare-and-swap.
type S3Store struct {
	client *s3.Client
	bucket string
}

// S3Option configures an S3Store.
type S3Option func(*s3Config)

type s3Config struct {
	region    string
	endpoint  string
	pathStyle bool
}

// WithRegion sets the AWS region.
func WithRegion(region string) S3Option {
	return func(c *s3Config) { c.region = region }
}

// WithEndpoint points the client at a custom S3 endpoint (MinIO, localstack).
func WithEndpoint(endpoint string) S3Option {
	return func(c *s3Config) { c.endpoint = endpoint }
}

// WithPathStyle forces path-style addressing, required by most S3-compatible
// stores outside AWS.
func WithPathStyle() S3Option {
	return func(c *s3Config) { c.pathStyle = true }
}

// NewS3Store creates a store over the given bucket using the default AWS
// credential chain.
func NewS3Store(ctx context.Context, bucket string, opts ...S3Option) (*S3Store, error) {
	var sc s3Config
	for _, opt := range opts {
		opt(&sc)
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	if sc.region != "" {
		cfg.Region = sc.region
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if sc.endpoint != "" {
			o.BaseEndpoint = aws.String(sc.endpoint)
		}
		if sc.pathStyle {
			o.UsePathStyle = true
		}
	})
	return &S3Store{client: client, bucket: bucket}, nil
}

func (s *S3Store) Get(ctx context.Context, key string) (Object, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return Object{}, ErrNotFound
		}
		return Object{}, fmt.Errorf("get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return Object{}, fmt.Errorf("reading %s: %w", key, err)
	}
	return Object{Data: data, ETag: aws.ToString(out.ETag)}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) PutIf(ctx context.Context, key string, data []byte, cond Condition) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	switch {
	case cond.IfAbsent:
		input.IfNoneMatch = aws.String("*")
	case cond.IfETag != "":
		input.IfMatch = aws.String(cond.IfETag)
	}

	_, err := s.client.PutObject(ctx, input)
	if err != nil {
		if isPreconditionError(err) {
			return ErrPreconditionFailed
		}
		return fmt.Errorf("conditional put %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) DeletePrefix(ctx context.Context, prefix string) error {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return err
	}
	// Batch deletes in chunks of 1000, the S3 per-request maximum.
	for len(keys) > 0 {
		n := len(keys)
		if n > 1000 {
			n = 1000
		}
		batch := make([]types.ObjectIdentifier, 0, n)
		for _, k := range keys[:n] {
			batch = append(batch, types.ObjectIdentifier{Key: aws.String(k)})
		}
		_, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: batch, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("delete prefix %s: %w", prefix, err)
		}
		keys = keys[n:]
	}
	return nil
}

// isPreconditionError detects the 412/conflict responses S3 returns for
// failed If-Match and If-None-Match writes.
func isPreconditionError(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	code := apiErr.ErrorCode()
	return code == "PreconditionFailed" || strings.EqualFold(code, "ConditionalRequestConflict")
}
