package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/driftfs/driftfs/pkg/vfs"
)

// S3Store persists snapshots in an S3 (or S3-compatible) bucket.
//
// One object per owner, keyed "<prefix><owner>.json". S3 object writes are
// atomic by nature, so a failed PutObject leaves the previous snapshot in
// place. The bucket must already exist.
type S3Store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
}

// S3StoreConfig contains configuration for the S3 snapshot store.
type S3StoreConfig struct {
	// Client is the configured S3 client
	Client *s3.Client

	// Bucket is the S3 bucket name
	Bucket string

	// KeyPrefix is an optional prefix for all object keys
	// Example: "driftfs/snapshots/" results in keys like
	// "driftfs/snapshots/acme.json"
	KeyPrefix string
}

// NewS3Store creates an S3-backed snapshot store and verifies bucket
// access with a HeadBucket call.
func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %s: %w", cfg.Bucket, err)
	}

	return &S3Store{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
	}, nil
}

func (s *S3Store) key(owner string) string {
	return s.keyPrefix + owner + ".json"
}

func (s *S3Store) Load(ctx context.Context, owner string) (*vfs.Snapshot, bool, error) {
	if err := checkOwner(owner); err != nil {
		return nil, false, err
	}

	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(owner)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read snapshot for %s: %w", owner, err)
	}
	defer output.Body.Close()

	encoded, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read snapshot body for %s: %w", owner, err)
	}
	snapshot := &vfs.Snapshot{}
	if err := json.Unmarshal(encoded, snapshot); err != nil {
		return nil, false, fmt.Errorf("failed to decode snapshot for %s: %w", owner, err)
	}
	return snapshot, true, nil
}

func (s *S3Store) Save(ctx context.Context, owner string, snapshot *vfs.Snapshot) error {
	if err := checkOwner(owner); err != nil {
		return err
	}

	encoded, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot for %s: %w", owner, err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(owner)),
		Body:        bytes.NewReader(encoded),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to write snapshot for %s: %w", owner, err)
	}
	return nil
}

func (s *S3Store) Close() error { return nil }
