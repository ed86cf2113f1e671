// utils/r2.go
package utils

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter is the subset of *s3.Client the archive uses
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// SnapshotArchive stores analytics snapshots as JSON objects in an R2 (S3-compatible) bucket
type SnapshotArchive struct {
	Client ObjectPutter
	Bucket string
	Prefix string
}

type R2Options struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	Prefix          string
}

// NewR2SnapshotArchive builds an S3 client pointed at the Cloudflare R2 endpoint of the account
func NewR2SnapshotArchive(ctx context.Context, opts R2Options) (*SnapshotArchive, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKeyID, opts.AccessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.AccountID != "" {
			o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", opts.AccountID))
		}
		o.UsePathStyle = true
	})

	return &SnapshotArchive{Client: client, Bucket: opts.Bucket, Prefix: opts.Prefix}, nil
}

// PutSnapshot uploads body under prefix/key
func (a *SnapshotArchive) PutSnapshot(ctx context.Context, key string, body []byte) error {
	objectKey := path.Join(a.Prefix, key)
	_, err := a.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.Bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to R2: %w", objectKey, err)
	}
	return nil
}
