package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ImageResolver turns an opaque storage key into a fetchable URL. The
// orchestrator depends on this, not on S3 directly, so tests can stub it.
type ImageResolver interface {
	ResolveImageURL(ctx context.Context, key string) (string, error)
}

// StorageService stores meal photos in S3 and resolves stored keys to URLs,
// either via a CDN prefix or a short-lived presigned GET.
type StorageService struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	cdnURL        string
}

func NewStorageService(ctx context.Context) (*StorageService, error) {
	region := os.Getenv("S3_REGION")
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &StorageService{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        os.Getenv("S3_BUCKET"),
		cdnURL:        os.Getenv("CLOUDFRONT_URL"),
	}, nil
}

func (s *StorageService) ResolveImageURL(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty storage key")
	}
	if s.cdnURL != "" {
		return fmt.Sprintf("%s/%s", strings.TrimRight(s.cdnURL, "/"), key), nil
	}
	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return req.URL, nil
}

// UploadBase64Image accepts a "data:<mime>;base64,<data>" URI, stores the
// bytes under meal-photos/, and returns the resolvable URL plus the key.
func (s *StorageService) UploadBase64Image(ctx context.Context, dataURI string) (string, string, error) {
	parts := strings.Split(dataURI, ",")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid base64 image")
	}
	meta := parts[0]
	if !strings.HasPrefix(meta, "data:") || !strings.Contains(meta, ":") {
		return "", "", fmt.Errorf("invalid data URI header")
	}

	mediaType := strings.SplitN(meta, ":", 2)[1]
	contentType := strings.SplitN(mediaType, ";", 2)[0]

	ext := extensionFor(contentType)
	data, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", "", fmt.Errorf("failed to decode image: %w", err)
	}

	key := fmt.Sprintf("meal-photos/%d%s", time.Now().UnixNano(), ext)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	url, err := s.ResolveImageURL(ctx, key)
	if err != nil {
		return "", "", err
	}
	return url, key, nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	}
	if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
		return exts[0]
	}
	if parts := strings.SplitN(contentType, "/", 2); len(parts) == 2 {
		return "." + parts[1]
	}
	return ""
}
