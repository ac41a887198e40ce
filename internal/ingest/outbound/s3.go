package outbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/shandysiswandi/gostage/internal/ingest/entity"
)

type S3Config struct {
	Region string
	Bucket string
	// Prefix is prepended to every object key.
	Prefix string

	// Endpoint overrides the default S3 endpoint (MinIO, LocalStack).
	Endpoint     string
	UsePathStyle bool

	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	UploadTimeout time.Duration
}

// objectPutter is the part of *s3.Client the uploader needs.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader writes committed files to
// {bucket}/{prefix}/{dataset}/{table}/{filename}.
type S3Uploader struct {
	cfg    S3Config
	client objectPutter
}

func NewS3Uploader(ctx context.Context, cfg S3Config) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Uploader{cfg: cfg, client: client}, nil
}

// ObjectKey returns where a file lands in the bucket.
func (u *S3Uploader) ObjectKey(req entity.UploadRequest) string {
	return path.Join(strings.Trim(u.cfg.Prefix, "/"), req.Dataset, req.Table, req.Name)
}

func (u *S3Uploader) Upload(ctx context.Context, req entity.UploadRequest, onProgress func(pct float64)) error {
	if u.cfg.UploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.cfg.UploadTimeout)
		defer cancel()
	}

	if req.Content == nil {
		return errors.New("file has no content")
	}

	metadata := map[string]string{"write-mode": string(req.WriteMode)}
	if req.Schema != nil {
		raw, err := json.Marshal(req.Schema)
		if err != nil {
			return fmt.Errorf("encode schema: %w", err)
		}
		metadata["schema"] = string(raw)
	}

	body, err := req.Content.Open()
	if err != nil {
		return fmt.Errorf("open content: %w", err)
	}
	defer body.Close()

	size, err := contentSize(body, req.Size)
	if err != nil {
		return err
	}

	contentType := mime.TypeByExtension(path.Ext(req.Name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := u.ObjectKey(req)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(key),
		Body:          newProgressReadSeeker(body, size, onProgress),
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
		Metadata:      metadata,
	}, s3.WithAPIOptions(v4.SwapComputePayloadSHA256ForUnsignedPayloadMiddleware))
	if err != nil {
		return fmt.Errorf("failed to put object %s/%s: %w", u.cfg.Bucket, key, err)
	}
	return nil
}
