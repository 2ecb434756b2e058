package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/driftfs/driftfs/internal/logger"
	"github.com/driftfs/driftfs/internal/persist"
)

// CreatePersistStore creates a snapshot store based on configuration.
//
// This factory function uses the Type field to determine which backend to
// create, then decodes the backend-specific configuration from the
// corresponding map and passes it to the backend's constructor.
//
// Supported types:
//   - "memory": process-memory storage, nothing survives a restart
//   - "dir": one JSON file per owner in a local directory
//   - "badger": embedded BadgerDB database
//   - "s3": Amazon S3 or compatible object storage
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Persistence configuration
//
// Returns:
//   - persist.Store: Initialized snapshot store
//   - error: Configuration or initialization error
func CreatePersistStore(ctx context.Context, cfg *PersistenceConfig) (persist.Store, error) {
	switch cfg.Type {
	case "memory":
		return persist.NewMemoryStore(), nil
	case "dir":
		return createDirStore(cfg.Dir)
	case "badger":
		return createBadgerStore(ctx, cfg.Badger)
	case "s3":
		return createS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown persistence type: %q", cfg.Type)
	}
}

// createDirStore creates a directory-backed snapshot store.
func createDirStore(options map[string]any) (persist.Store, error) {
	type DirStoreConfig struct {
		Path string `mapstructure:"path"`
	}

	var storeCfg DirStoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode dir persistence config: %w", err)
	}
	if storeCfg.Path == "" {
		return nil, fmt.Errorf("dir persistence: path is required")
	}

	store, err := persist.NewDirStore(storeCfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create dir snapshot store: %w", err)
	}

	logger.Info("dir snapshot store initialized: path=%s", storeCfg.Path)
	return store, nil
}

// createBadgerStore creates a BadgerDB-backed snapshot store.
func createBadgerStore(ctx context.Context, options map[string]any) (persist.Store, error) {
	var storeCfg persist.BadgerStoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger persistence config: %w", err)
	}

	store, err := persist.NewBadgerStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger snapshot store: %w", err)
	}

	logger.Info("badger snapshot store initialized: path=%s", storeCfg.Path)
	return store, nil
}

// createS3Store creates an S3-backed snapshot store.
func createS3Store(ctx context.Context, options map[string]any) (persist.Store, error) {
	type S3StoreConfig struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		MaxRetries      int    `mapstructure:"max_retries"`
	}

	var storeCfg S3StoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 persistence config: %w", err)
	}

	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 persistence: bucket is required")
	}
	if storeCfg.Region == "" {
		return nil, fmt.Errorf("S3 persistence: region is required")
	}

	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	var configOptions []func(*awsConfig.LoadOptions) error

	configOptions = append(configOptions, awsConfig.WithRegion(storeCfg.Region))

	// Set custom endpoint if provided (for MinIO, Localstack, etc.)
	if storeCfg.Endpoint != "" {
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
				return aws.Endpoint{
					URL:               storeCfg.Endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		configOptions = append(configOptions, awsConfig.WithEndpointResolverWithOptions(customResolver))
	}

	// Set credentials if provided, otherwise use default credential chain
	if storeCfg.AccessKeyID != "" && storeCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			storeCfg.AccessKeyID,
			storeCfg.SecretAccessKey,
			"", // session token (empty for static credentials)
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	// Retry transient S3 failures (502, 503, timeouts) more than the AWS
	// default of 3 attempts.
	maxRetries := storeCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	cfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 Client
	// ========================================================================

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		// Force path-style addressing for compatibility with MinIO/Localstack
		if storeCfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	// ========================================================================
	// Step 3: Create S3 Snapshot Store
	// ========================================================================

	store, err := persist.NewS3Store(ctx, persist.S3StoreConfig{
		Client:    client,
		Bucket:    storeCfg.Bucket,
		KeyPrefix: storeCfg.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 snapshot store: %w", err)
	}

	logger.Info("S3 snapshot store initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)

	return store, nil
}
