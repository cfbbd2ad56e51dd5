/*
s3store.go - S3-compatible blob store for sheet images

PURPOSE:
  Production implementation of sheets.BlobStore on any S3 API (AWS, R2,
  MinIO). Objects are keyed by their sheet path. Download URLs are either
  public (bucket behind a CDN or public domain) or presigned.

SEE ALSO:
  - generic/store/memory.go: In-memory blob store for tests and dev
*/
package s3store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultPresignTTL is how long a presigned download URL stays valid.
const DefaultPresignTTL = 7 * 24 * time.Hour

type Options struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string

	// PublicBaseURL, when set, is joined with the object key instead of
	// presigning.
	PublicBaseURL string
	PresignTTL    time.Duration
}

type Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	opts    Options
}

// New builds a client from static credentials. No request is made.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3store: bucket is required")
	}
	if opts.Region == "" {
		opts.Region = "auto"
	}
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = DefaultPresignTTL
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3store: load config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &Store{client: client, presign: s3.NewPresignClient(client), opts: opts}, nil
}

// Put uploads body under path.
func (s *Store) Put(ctx context.Context, path string, body io.Reader, contentType string) error {
	// The SDK needs a seekable body to compute the payload hash.
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.opts.Bucket),
		Key:           aws.String(path),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("s3store: put %s: %w", path, err)
	}
	return nil
}

// URL returns a download URL for path.
func (s *Store) URL(ctx context.Context, path string) (string, error) {
	if s.opts.PublicBaseURL != "" {
		return publicURL(s.opts.PublicBaseURL, path), nil
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(path),
	}, s3.WithPresignExpires(s.opts.PresignTTL))
	if err != nil {
		return "", fmt.Errorf("s3store: presign %s: %w", path, err)
	}
	return req.URL, nil
}

func publicURL(base, path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segments, "/")
}

// Delete removes path. Deleting a missing object is not an error.
func (s *Store) Delete(ctx context.Context, path string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return fmt.Errorf("s3store: delete %s: %w", path, err)
	}
	return nil
}
