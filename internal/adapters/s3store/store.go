// Package s3store keeps artifacts as objects in an S3 bucket so several
// service instances can hand out each other's downloads.
package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"mediagate/internal/core/domain"
)

// API is the part of the S3 client the store uses.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Config selects the bucket and client settings.
type Config struct {
	Bucket       string
	Prefix       string
	Region       string
	Profile      string
	Endpoint     string
	UsePathStyle bool
}

// Store implements ports.ArtifactStore on S3.
type Store struct {
	client API
	bucket string
	prefix string
	ttl    time.Duration
	now    func() time.Time
	logger *log.Logger
}

// NewFromConfig loads the default AWS configuration and builds a Store.
func NewFromConfig(ctx context.Context, cfg Config, ttl time.Duration, logger *log.Logger) (*Store, error) {
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.Profile))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return New(client, cfg.Bucket, cfg.Prefix, ttl, logger), nil
}

// New wraps an existing client.
func New(client API, bucket, prefix string, ttl time.Duration, logger *log.Logger) *Store {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Store{client: client, bucket: bucket, prefix: prefix, ttl: ttl, now: time.Now, logger: logger}
}

// Put uploads body under a generated name.
func (s *Store) Put(ctx context.Context, artifact domain.Artifact, body io.Reader) (*domain.Artifact, error) {
	ext := path.Ext(artifact.Name)
	stem := strings.TrimSuffix(path.Base(artifact.Name), ext)
	if stem == "" || stem == "." || stem == "/" {
		stem = "artifact"
	}
	id := fmt.Sprintf("%s_%s%s", stem, uuid.NewString()[:8], ext)
	created := s.now()

	mime := artifact.MIME
	if mime == "" {
		mime = "application/octet-stream"
	}
	size := artifact.Size
	if seeker, ok := body.(io.Seeker); ok && size <= 0 {
		if end, err := seeker.Seek(0, io.SeekEnd); err == nil {
			size = end
		}
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return nil, domain.StorageFailure("failed to rewind artifact", err)
		}
	}

	input := &s3.PutObjectInput{
		Bucket:             aws.String(s.bucket),
		Key:                aws.String(s.prefix + id),
		Body:               body,
		ContentType:        aws.String(mime),
		ContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", id)),
		Metadata: map[string]string{
			"created-at": created.UTC().Format(time.RFC3339Nano),
		},
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return nil, domain.StorageFailure("failed to upload artifact", err)
	}

	artifact.Size = size
	artifact.ID = id
	artifact.Name = id
	artifact.MIME = mime
	artifact.CreatedAt = created
	artifact.Path = ""
	return &artifact, nil
}

// Get downloads the object stored under exactly id.
func (s *Store) Get(ctx context.Context, id string) (*domain.Artifact, io.ReadCloser, error) {
	if id == "" || strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return nil, nil, domain.NotFound("artifact not found", nil)
	}

	out, err := s.getObject(ctx, id)
	if isNotFound(err) {
		return nil, nil, domain.NotFound("artifact not found or expired", nil)
	}
	if err != nil {
		return nil, nil, domain.StorageFailure("failed to download artifact", err)
	}

	created := aws.ToTime(out.LastModified)
	if v, ok := out.Metadata["created-at"]; ok {
		if t, perr := time.Parse(time.RFC3339Nano, v); perr == nil {
			created = t
		}
	}
	if s.now().Sub(created) > s.ttl {
		out.Body.Close()
		return nil, nil, domain.NotFound("artifact not found or expired", nil)
	}

	mime := aws.ToString(out.ContentType)
	if mime == "" {
		if m, ok := domain.MIMEForName(id); ok {
			mime = m
		} else {
			mime = "application/octet-stream"
		}
	}
	return &domain.Artifact{
		ID:        id,
		Name:      id,
		MIME:      mime,
		Kind:      domain.KindForMIME(mime),
		Archive:   mime == "application/zip",
		Size:      aws.ToInt64(out.ContentLength),
		CreatedAt: created,
	}, out.Body, nil
}

// SweepExpired deletes objects last modified more than the TTL ago.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	err := s.each(ctx, s.prefix, func(key string, size int64, modified time.Time) {
		if now.Sub(modified) <= s.ttl {
			return
		}
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			s.logger.Printf("Sweep: could not delete s3://%s/%s: %v", s.bucket, key, err)
			return
		}
		removed++
	})
	return removed, err
}

// Stats totals the objects under the prefix.
func (s *Store) Stats(ctx context.Context) (domain.StoreStats, error) {
	var st domain.StoreStats
	err := s.each(ctx, s.prefix, func(_ string, size int64, _ time.Time) {
		st.Count++
		st.TotalBytes += size
	})
	return st, err
}

func (s *Store) getObject(ctx context.Context, id string) (*s3.GetObjectOutput, error) {
	return s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + id),
	})
}

func (s *Store) each(ctx context.Context, prefix string, fn func(key string, size int64, modified time.Time)) error {
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("listing s3://%s/%s: %w", s.bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			fn(aws.ToString(obj.Key), aws.ToInt64(obj.Size), aws.ToTime(obj.LastModified))
		}
	}
	return nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
