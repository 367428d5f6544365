package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Storage locates an S3-compatible bucket (R2 in production).
type Storage struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
}

// Uploader stores board exports and signs direct-upload URLs for them.
type Uploader struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

func NewUploader(ctx context.Context, st Storage) (*Uploader, error) {
	if st.Endpoint == "" || st.Bucket == "" {
		return nil, errors.New("export: storage endpoint and bucket are required")
	}
	region := st.Region
	if region == "" {
		region = "auto"
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(st.AccessKey, st.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("export: aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(st.Endpoint)
		o.UsePathStyle = true
	})

	return &Uploader{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  st.Bucket,
	}, nil
}

func (u *Uploader) Bucket() string { return u.bucket }

// ObjectKey names a new export of roomID by identity.
func ObjectKey(roomID, identity, contentType string) string {
	return fmt.Sprintf("rooms/%s/%s-%d-%s%s",
		roomID, identity, time.Now().UnixMilli(), uuid.NewString()[:8], Extension(contentType))
}

// PresignPut returns a URL the client can PUT the export to directly.
func (u *Uploader) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	req, err := u.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, func(po *s3.PresignOptions) {
		po.Expires = ttl
	})
	if err != nil {
		return "", fmt.Errorf("export: presign put %s: %w", key, err)
	}
	return req.URL, nil
}

// PresignGet returns a time-limited download URL for key.
func (u *Uploader) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := u.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
	}, func(po *s3.PresignOptions) {
		po.Expires = ttl
	})
	if err != nil {
		return "", fmt.Errorf("export: presign get %s: %w", key, err)
	}
	return req.URL, nil
}

// Upload stores body under key. The body must be seekable so the request
// can be signed over plain HTTP endpoints.
func (u *Uploader) Upload(ctx context.Context, key, contentType string, body io.ReadSeeker) error {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("export: upload %s: %w", key, err)
	}
	return nil
}
