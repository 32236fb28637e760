package contentpack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// ErrPackNotFound is returned when the pack file does not exist remotely.
var ErrPackNotFound = errors.New("content pack not found")

// Source opens the database file of a content pack.
type Source interface {
	Open(ctx context.Context, pack, file string) (body io.ReadCloser, size int64, err error)
}

type S3Options struct {
	Bucket       string
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
}

type getObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source serves packs from an S3-compatible bucket. A pack's database
// lives under the key "<pack>/<file>".
type S3Source struct {
	bucket string
	client getObjectAPI
}

// NewS3Source builds the S3 client. Static credentials are used when both
// keys are set, otherwise the default AWS credential chain applies. A base
// endpoint (MinIO and friends) switches to path-style addressing.
func NewS3Source(ctx context.Context, o S3Options) (*S3Source, error) {
	if o.Bucket == "" {
		return nil, errors.New("s3 bucket is not set")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(o.Region)}
	if o.AccessKey != "" && o.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.AccessKey, o.SecretKey, "")))
	}

	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(so *s3.Options) {
		if o.BaseEndpoint != "" {
			so.BaseEndpoint = aws.String(o.BaseEndpoint)
			so.UsePathStyle = true
		}
	})

	return &S3Source{bucket: o.Bucket, client: client}, nil
}

func (s *S3Source) Open(ctx context.Context, pack, file string) (io.ReadCloser, int64, error) {
	key := path.Join(pack, file)

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var re *awshttp.ResponseError
		if errors.As(err, &re) && re.HTTPStatusCode() == 404 {
			return nil, 0, fmt.Errorf("%w: s3://%s/%s", ErrPackNotFound, s.bucket, key)
		}
		return nil, 0, fmt.Errorf("get s3://%s/%s: %w", s.bucket, key, err)
	}

	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return out.Body, size, nil
}
