package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/Cedctf/foodbridge-sub000/internal/config"
)

// Upload describes a pending listing image upload.
type Upload struct {
	URL       string    `json:"upload_url"` // presigned PUT
	Key       string    `json:"key"`
	PublicURL string    `json:"image_url"` // value to send as the listing's image_url
	ExpiresAt time.Time `json:"expires_at"`
}

// IS3Storage is the blob storage collaborator for listing images.
type IS3Storage interface {
	GeneratePresignedPutURL(ctx context.Context, ownerID, filename, contentType string) (*Upload, error)
}

// ErrUnsupportedContentType is returned for uploads that are not images.
var ErrUnsupportedContentType = errors.New("unsupported content type")

// presigner is the part of *s3.PresignClient used here.
type presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type s3Storage struct {
	cfg       *config.Config
	presigner presigner
}

// NewS3Storage creates a new S3 storage service.
func NewS3Storage(ctx context.Context, cfg *config.Config) (IS3Storage, error) {
	awsCfg, err := aws_config.LoadDefaultConfig(ctx,
		aws_config.WithRegion(cfg.AwsRegion),
		aws_config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AwsAccessKeyID,
			cfg.AwsSecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &s3Storage{
		cfg:       cfg,
		presigner: s3.NewPresignClient(s3.NewFromConfig(awsCfg)),
	}, nil
}

var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// ObjectKey builds uploads/<owner>/<uuid>_<sanitised filename>.
func ObjectKey(ownerID, filename, contentType string) string {
	if ownerID == "" {
		ownerID = "anonymous"
	}
	base := unsafeKeyChars.ReplaceAllString(path.Base(filename), "_")
	base = strings.Trim(base, "._")
	if base == "" {
		base = "image" + allowedImageTypes[contentType]
	}
	return fmt.Sprintf("uploads/%s/%s_%s", unsafeKeyChars.ReplaceAllString(ownerID, "_"), uuid.NewString(), base)
}

// GeneratePresignedPutURL creates a pre-signed URL for uploading a listing image.
func (s *s3Storage) GeneratePresignedPutURL(ctx context.Context, ownerID, filename, contentType string) (*Upload, error) {
	if _, ok := allowedImageTypes[contentType]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedContentType, contentType)
	}

	objectKey := ObjectKey(ownerID, filename, contentType)
	ttl := s.cfg.UploadURLTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	presignedReq, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.AwsS3Bucket),
		Key:         aws.String(objectKey),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return nil, fmt.Errorf("failed to generate presigned PUT URL for key %s: %w", objectKey, err)
	}

	slog.Debug("generated presigned upload URL", "key", objectKey)
	return &Upload{
		URL:       presignedReq.URL,
		Key:       objectKey,
		PublicURL: strings.TrimRight(s.cfg.ImageBaseS3URL, "/") + "/" + objectKey,
		ExpiresAt: time.Now().Add(ttl).UTC(),
	}, nil
}
