package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
)

// S3Options configure the S3 client.
type S3Options struct {
	Bucket string
	Prefix string
	Region string
	// Endpoint overrides the service endpoint (MinIO, localstack); path-style addressing is used with it.
	Endpoint string
	// Static credentials; the default credential chain is used when empty.
	AccessKeyID     string
	SecretAccessKey string
	// SealPassword seals objects at rest when non-empty.
	SealPassword string
	// URLTTL is the lifetime of presigned download URLs.
	URLTTL time.Duration
}

// S3Client wraps the AWS S3 client for artifact storage and input downloads.
type S3Client struct {
	client   *s3.Client
	uploader *manager.Uploader
	presign  *s3.PresignClient
	opts     S3Options
}

// NewS3Client creates a new S3 client
func NewS3Client(ctx context.Context, opts S3Options) (*S3Client, error) {
	var loadOpts []func(*awscfg.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awscfg.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	cli := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	if opts.URLTTL <= 0 {
		opts.URLTTL = time.Hour
	}

	return &S3Client{
		client:   cli,
		uploader: manager.NewUploader(cli),
		presign:  s3.NewPresignClient(cli),
		opts:     opts,
	}, nil
}

func (s *S3Client) Backend() string { return "s3" }

func (s *S3Client) key(name string) string { return s.opts.Prefix + name }

// Put uploads data in a single managed upload; a failed upload leaves no object.
func (s *S3Client) Put(ctx context.Context, name string, data []byte, meta Metadata) (*Object, error) {
	if err := ValidName(name); err != nil {
		return nil, err
	}

	payload := data
	s3Metadata := map[string]string{
		"operation": meta.Operation,
		"pages":     strconv.Itoa(meta.Pages),
		"size":      strconv.Itoa(len(data)),
	}
	if s.opts.SealPassword != "" {
		sealed, err := Seal(data, s.opts.SealPassword)
		if err != nil {
			return nil, ioFailure(err, "seal %s", name)
		}
		payload = sealed
		s3Metadata["encrypted"] = "true"
		s3Metadata["encryption-format"] = sealMagic
	}
	contentType := meta.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}

	key := s.key(name)
	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.opts.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String(contentType),
		Metadata:    s3Metadata,
	})
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("artifact upload failed")
		return nil, ioFailure(err, "upload %s", name)
	}

	url := out.Location
	if s.opts.SealPassword == "" {
		if signed, err := s.presignGet(ctx, key); err == nil {
			url = signed
		} else {
			log.Warn().Err(err).Str("key", key).Msg("presign failed, using object location")
		}
	} else {
		// Sealed objects are only readable through the service.
		url = "/outputs/" + name
	}

	log.Info().Str("key", key).Int("size", len(data)).Bool("sealed", s.opts.SealPassword != "").Msg("uploaded artifact to S3")
	return &Object{
		Name:      name,
		URL:       url,
		Size:      len(data),
		Operation: meta.Operation,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (s *S3Client) presignGet(ctx context.Context, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.opts.URLTTL))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// Get downloads an artifact stored by Put.
func (s *S3Client) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ValidName(name); err != nil {
		return nil, err
	}
	return s.Download(ctx, s.opts.Bucket, s.key(name), 0)
}

// Download reads bucket/key, failing when the object exceeds limit bytes (0
// means no limit). Sealed objects are returned unsealed.
func (s *S3Client) Download(ctx context.Context, bucket, key string, limit int64) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, ioFailure(err, "failed to download s3://%s/%s", bucket, key)
	}
	defer result.Body.Close()

	if limit > 0 && result.ContentLength != nil && *result.ContentLength > limit {
		return nil, tooLarge(*result.ContentLength, limit)
	}
	data, err := readLimited(result.Body, limit)
	if err != nil || !IsSealed(data) {
		return data, err
	}
	if s.opts.SealPassword == "" {
		return nil, ioFailure(errors.New("no seal password configured"), "unseal %s", key)
	}
	plain, err := Unseal(data, s.opts.SealPassword)
	if err != nil {
		return nil, ioFailure(err, "unseal %s", key)
	}
	return plain, nil
}

// Ping checks that the bucket is reachable with the configured credentials.
func (s *S3Client) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.opts.Bucket)})
	return err
}

// ParseS3URL splits s3://bucket/key.
func ParseS3URL(ref string) (bucket, key string, err error) {
	path := strings.TrimPrefix(ref, "s3://")
	slash := strings.Index(path, "/")
	if !strings.HasPrefix(ref, "s3://") || slash <= 0 || slash == len(path)-1 {
		return "", "", fmt.Errorf("invalid s3 url: %s", ref)
	}
	return path[:slash], path[slash+1:], nil
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, ioFailure(err, "read body")
		}
		return data, nil
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, ioFailure(err, "read body")
	}
	if int64(len(data)) > limit {
		return nil, tooLarge(int64(len(data)), limit)
	}
	return data, nil
}
