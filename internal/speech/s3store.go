package speech

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client used by S3AudioStore.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Presigner is the subset of *s3.PresignClient used by S3AudioStore.
type S3Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3AudioStore uploads synthesized replies and hands out presigned GET URLs.
type S3AudioStore struct {
	client    S3API
	presigner S3Presigner
	bucket    string
	prefix    string
	ttl       time.Duration
}

// NewS3AudioStore creates a store writing under prompts/ in bucket.
func NewS3AudioStore(client *s3.Client, bucket string, ttl time.Duration) *S3AudioStore {
	return newS3AudioStore(client, s3.NewPresignClient(client), bucket, ttl)
}

func newS3AudioStore(client S3API, presigner S3Presigner, bucket string, ttl time.Duration) *S3AudioStore {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &S3AudioStore{client: client, presigner: presigner, bucket: bucket, prefix: "prompts/", ttl: ttl}
}

// Put implements AudioStore.
func (s *S3AudioStore) Put(ctx context.Context, key string, audio []byte) (string, error) {
	if strings.TrimSpace(s.bucket) == "" {
		return "", fmt.Errorf("speech: audio bucket not configured")
	}
	objectKey := s.prefix + key

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(audio),
		ContentType: aws.String("audio/mpeg"),
	})
	if err != nil {
		return "", fmt.Errorf("speech: s3 put %s: %w", objectKey, err)
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("speech: presign %s: %w", objectKey, err)
	}
	return req.URL, nil
}
