package media

import (
	"context"
	"fmt"
	"strings"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PresignClient is the slice of the S3 presign API the resolver needs.
// Narrowed to an interface so tests can substitute a mock.
type PresignClient interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Config contains the settings for an S3-backed resolver.
type S3Config struct {
	Bucket      string        `env:"MEDIA_S3_BUCKET,required"`
	Region      string        `env:"MEDIA_S3_REGION" envDefault:"us-east-1"`
	AccessKeyID string        `env:"MEDIA_S3_ACCESS_KEY_ID"`
	SecretKey   string        `env:"MEDIA_S3_SECRET_KEY"`
	Endpoint    string        `env:"MEDIA_S3_ENDPOINT"`
	URLTTL      time.Duration `env:"MEDIA_S3_URL_TTL" envDefault:"1h"`
}

// S3Resolver presigns GET URLs for media objects stored in one bucket.
// References already shaped as absolute URLs pass through untouched, so
// mixed stored/external media works with a single resolver.
type S3Resolver struct {
	presigner PresignClient
	bucket    string
	ttl       time.Duration
}

// S3Option configures an S3Resolver.
type S3Option func(*S3Resolver)

// WithPresignClient substitutes the presign client. Test seam.
func WithPresignClient(pc PresignClient) S3Option {
	return func(r *S3Resolver) {
		if pc != nil {
			r.presigner = pc
		}
	}
}

// NewS3Resolver builds a resolver over the configured bucket.
func NewS3Resolver(ctx context.Context, cfg S3Config, opts ...S3Option) (*S3Resolver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("media: bucket is required")
	}

	r := &S3Resolver{
		bucket: cfg.Bucket,
		ttl:    cfg.URLTTL,
	}
	if r.ttl <= 0 {
		r.ttl = time.Hour
	}

	for _, opt := range opts {
		opt(r)
	}
	if r.presigner != nil {
		return r, nil
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("media: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = awsv2.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	r.presigner = s3.NewPresignClient(client)
	return r, nil
}

// ResolveURL implements Resolver.
func (r *S3Resolver) ResolveURL(ctx context.Context, ref string) (string, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}

	key := strings.TrimPrefix(ref, "s3://"+r.bucket+"/")
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", fmt.Errorf("%w: empty object key in %q", ErrUnresolvable, ref)
	}

	req, err := r.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: awsv2.String(r.bucket),
		Key:    awsv2.String(key),
	}, func(po *s3.PresignOptions) {
		po.Expires = r.ttl
	})
	if err != nil {
		return "", fmt.Errorf("presign media object %q: %w", key, err)
	}
	return req.URL, nil
}
