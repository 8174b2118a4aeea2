package blob

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/opensource-identity/harrier/internal/domain"
)

// S3Store implements domain.ObjectStore using an S3-compatible backend
// (AWS S3 or MinIO). Minimal surface area: single bucket, keys map to
// object keys directly, upload metadata rides on object tags.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store creates an S3 object store from configuration.
func NewS3Store(ctx context.Context, cfg domain.ObjectStoreConfig) (*S3Store, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}

	region := cfg.S3Region
	if region == "" {
		region = "eu-west-2"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if cfg.S3AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, cfg.S3SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3PathStyle {
			o.UsePathStyle = true
		}
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
	})

	return &S3Store{client: client, bucket: cfg.S3Bucket}, nil
}

// Put stores an object with its tags.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, tags map[string]string) error {
	input := &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
		Body:   r,
	}
	if len(tags) > 0 {
		input.Tagging = aws.String(encodeTags(tags))
	}

	_, err := s.client.PutObject(ctx, input)
	return err
}

// Get returns the object's byte stream.
func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

// Tags returns the object's tag set.
func (s *S3Store) Tags(ctx context.Context, key string) (map[string]string, error) {
	out, err := s.client.GetObjectTagging(ctx, &s3.GetObjectTaggingInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return nil, err
	}

	tags := make(map[string]string, len(out.TagSet))
	for _, tag := range out.TagSet {
		tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return tags, nil
}

// Move copies the object under the folder prefix (tags ride along) and
// deletes the original.
func (s *S3Store) Move(ctx context.Context, key string, folder string) (string, error) {
	newKey := folder + "/" + path.Base(key)

	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:           &s.bucket,
		Key:              &newKey,
		CopySource:       aws.String(s.bucket + "/" + url.PathEscape(key)),
		TaggingDirective: types.TaggingDirectiveCopy,
	})
	if err != nil {
		return "", err
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key}); err != nil {
		return "", err
	}

	return newKey, nil
}

// Close releases the store.
func (s *S3Store) Close() error {
	return nil
}

func encodeTags(tags map[string]string) string {
	values := url.Values{}
	for k, v := range tags {
		values.Set(k, v)
	}
	return values.Encode()
}
