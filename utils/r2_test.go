package utils

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestSnapshotArchive_PutSnapshot(t *testing.T) {
	putter := &fakePutter{}
	archive := &SnapshotArchive{Client: putter, Bucket: "snapshots", Prefix: "analytics"}

	require.NoError(t, archive.PutSnapshot(context.Background(), "daily/2024-06-10.json", []byte(`{"total_sent":3}`)))
	assert.Equal(t, "snapshots", aws.ToString(putter.input.Bucket))
	assert.Equal(t, "analytics/daily/2024-06-10.json", aws.ToString(putter.input.Key))
	assert.Equal(t, "application/json", aws.ToString(putter.input.ContentType))
	assert.JSONEq(t, `{"total_sent":3}`, string(putter.body))

	putter.err = errors.New("access denied")
	err := archive.PutSnapshot(context.Background(), "x.json", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analytics/x.json")
}

func TestNewR2SnapshotArchive(t *testing.T) {
	archive, err := NewR2SnapshotArchive(context.Background(), R2Options{
		AccountID:       "acct",
		AccessKeyID:     "key",
		AccessKeySecret: "secret",
		Bucket:          "snapshots",
	})
	require.NoError(t, err)
	assert.Equal(t, "snapshots", archive.Bucket)
	assert.IsType(t, &s3.Client{}, archive.Client)
}

func TestNewHTTPClient(t *testing.T) {
	assert.Equal(t, 2*time.Second, NewHTTPClient(2*time.Second).Timeout)
	assert.Equal(t, 30*time.Second, NewHTTPClient(0).Timeout)
}
