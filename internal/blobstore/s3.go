package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"photobook/internal/models"
)

// S3 talks to any S3-compatible endpoint (AWS, MinIO, SeaweedFS).
type S3 struct {
	client    *s3.Client
	presigner *s3.PresignClient
	names     map[Bucket]string
	region    string
}

func NewS3(ctx context.Context, cfg models.BlobConfig) (*S3, error) {
	const op = "blobstore.NewS3"

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3.Region),
	}
	if cfg.S3.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3.AccessKey, cfg.S3.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
		}
		o.UsePathStyle = cfg.S3.UsePathStyle
	})

	return &S3{
		client:    client,
		presigner: s3.NewPresignClient(client),
		names:     bucketNames(cfg.Buckets),
		region:    cfg.S3.Region,
	}, nil
}

func (s *S3) bucket(b Bucket) (string, error) {
	name, ok := s.names[b]
	if !ok {
		return "", fmt.Errorf("unknown bucket %q", b)
	}
	return name, nil
}

func (s *S3) Upload(ctx context.Context, bucket Bucket, key string, data []byte, contentType string) error {
	const op = "blobstore.S3.Upload"

	name, err := s.bucket(bucket)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	upload := func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(name),
			Key:           aws.String(key),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
			ContentType:   aws.String(contentType),
		})
		return err
	}

	err = upload()
	if err != nil && apiErrorCode(err) == "NoSuchBucket" {
		if err := s.createBucket(ctx, name); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		err = upload()
	}
	if err != nil {
		return fmt.Errorf("%s: %s/%s: %w", op, name, key, err)
	}
	return nil
}

func (s *S3) Download(ctx context.Context, bucket Bucket, key string) ([]byte, error) {
	const op = "blobstore.S3.Download"

	name, err := s.bucket(bucket)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(name),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) || apiErrorCode(err) == "NotFound" {
			return nil, fmt.Errorf("%s: %s/%s: %w", op, name, key, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %s/%s: %w", op, name, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return data, nil
}

func (s *S3) Delete(ctx context.Context, bucket Bucket, key string) error {
	const op = "blobstore.S3.Delete"

	name, err := s.bucket(bucket)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(name),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("%s: %s/%s: %w", op, name, key, err)
	}
	return nil
}

func (s *S3) Presign(ctx context.Context, bucket Bucket, key string, ttl time.Duration) (string, error) {
	const op = "blobstore.S3.Presign"

	name, err := s.bucket(bucket)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(name),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return req.URL, nil
}

// EnsureBuckets creates the originals and thumbnails buckets when missing.
func (s *S3) EnsureBuckets(ctx context.Context) error {
	const op = "blobstore.S3.EnsureBuckets"

	for _, name := range s.names {
		_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(name)})
		if err == nil {
			continue
		}
		var notFound *types.NotFound
		if !errors.As(err, &notFound) && apiErrorCode(err) != "NoSuchBucket" {
			return fmt.Errorf("%s: %s: %w", op, name, err)
		}
		if err := s.createBucket(ctx, name); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

func (s *S3) createBucket(ctx context.Context, name string) error {
	in := &s3.CreateBucketInput{Bucket: aws.String(name)}
	if s.region != "" && s.region != "us-east-1" {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}
	_, err := s.client.CreateBucket(ctx, in)
	if err != nil {
		code := apiErrorCode(err)
		if code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
			return nil
		}
		return fmt.Errorf("failed to create bucket %s: %w", name, err)
	}
	return nil
}

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
