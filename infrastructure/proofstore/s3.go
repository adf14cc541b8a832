package proofstore

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ahrav/questlog/internal/ports"
)

// S3Config configures an S3-compatible bucket.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Prefix    string

	// PublicBaseURL is joined with the object key to form the returned URL.
	// When empty the store returns s3://bucket/key.
	PublicBaseURL string
}

// objectPutter is the slice of the S3 client the store uses.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store writes proofs to an S3-compatible bucket.
type S3Store struct {
	client        objectPutter
	bucket        string
	prefix        string
	publicBaseURL string
}

// NewS3Store loads AWS configuration and builds a client for cfg. Static
// credentials are used when both keys are set; otherwise the default
// credential chain applies.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, ports.NewConfigError("proofs.s3.bucket", ports.ErrConfigNotFound)
	}

	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Store(client, cfg), nil
}

func newS3Store(client objectPutter, cfg S3Config) *S3Store {
	return &S3Store{
		client:        client,
		bucket:        cfg.Bucket,
		prefix:        strings.Trim(cfg.Prefix, "/"),
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}
}

// Put implements ports.ProofStore.
func (s *S3Store) Put(ctx context.Context, key string, img ports.Image) (string, error) {
	if len(img.Data) == 0 {
		return "", ErrEmptyImage
	}

	objectKey := s.objectKey(key, img.MIMEType)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(img.Data),
		ContentType:   aws.String(img.MIMEType),
		ContentLength: aws.Int64(int64(len(img.Data))),
		CacheControl:  aws.String("private, max-age=31536000"),
	})
	if err != nil {
		return "", fmt.Errorf("upload proof %s: %w", objectKey, err)
	}

	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + objectKey, nil
	}
	return "s3://" + s.bucket + "/" + objectKey, nil
}

// objectKey prefixes key and appends an extension derived from the MIME
// type when key has none.
func (s *S3Store) objectKey(key, mimeType string) string {
	key = strings.TrimLeft(key, "/")
	if !strings.Contains(key[strings.LastIndex(key, "/")+1:], ".") {
		if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
			key += preferredExt(exts)
		}
	}
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

// preferredExt picks the common short extension where the platform lists
// several (".jpg" over ".jfif" or ".jpe").
func preferredExt(exts []string) string {
	for _, e := range exts {
		if e == ".jpg" || e == ".png" || e == ".gif" || e == ".webp" {
			return e
		}
	}
	return exts[0]
}

var _ ports.ProofStore = (*S3Store)(nil)
