package imagegen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Sink stores a generated image under name and returns its location.
type Sink interface {
	Write(ctx context.Context, name string, data []byte) (string, error)
}

// FileSink writes images to the local filesystem. Relative names are
// resolved against Dir.
type FileSink struct {
	Dir string
}

func (s FileSink) Write(_ context.Context, name string, data []byte) (string, error) {
	p := name
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.Dir, p)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", err
	}
	return p, nil
}

const (
	DefaultS3Endpoint = "https://storage.yandexcloud.net"
	DefaultS3Region   = "ru-central1"
)

// S3Config configures an S3Sink for Yandex Object Storage or any
// S3-compatible store.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads images to a bucket.
type S3Sink struct {
	client putObjectAPI
	cfg    S3Config
}

// NewS3Sink builds a sink using the default AWS config chain. Static keys,
// when given, take precedence over the chain.
func NewS3Sink(ctx context.Context, cfg S3Config) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("imagegen: bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = DefaultS3Region
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultS3Endpoint
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awscfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awscfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})
	return newS3SinkFromClient(client, cfg), nil
}

func newS3SinkFromClient(client putObjectAPI, cfg S3Config) *S3Sink {
	return &S3Sink{client: client, cfg: cfg}
}

func (s *S3Sink) Write(ctx context.Context, name string, data []byte) (string, error) {
	key := path.Join(s.cfg.Prefix, filepath.ToSlash(name))
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(http.DetectContentType(data)),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.cfg.Bucket, key), nil
}
