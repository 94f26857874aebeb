package aws

import (
	"context"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/de-tools/storage-guard/pkg/models/domain"
	"github.com/de-tools/storage-guard/pkg/services/metrics"
	"github.com/de-tools/storage-guard/pkg/services/provider"
)

// S3API is the subset of the S3 client used to describe buckets.
type S3API interface {
	ListBuckets(ctx context.Context, in *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	GetBucketLocation(ctx context.Context, in *s3.GetBucketLocationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error)
	GetBucketPolicy(ctx context.Context, in *s3.GetBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.GetBucketPolicyOutput, error)
	GetBucketEncryption(ctx context.Context, in *s3.GetBucketEncryptionInput, optFns ...func(*s3.Options)) (*s3.GetBucketEncryptionOutput, error)
	GetBucketLogging(ctx context.Context, in *s3.GetBucketLoggingInput, optFns ...func(*s3.Options)) (*s3.GetBucketLoggingOutput, error)
	GetBucketVersioning(ctx context.Context, in *s3.GetBucketVersioningInput, optFns ...func(*s3.Options)) (*s3.GetBucketVersioningOutput, error)
	GetPublicAccessBlock(ctx context.Context, in *s3.GetPublicAccessBlockInput, optFns ...func(*s3.Options)) (*s3.GetPublicAccessBlockOutput, error)
	GetBucketTagging(ctx context.Context, in *s3.GetBucketTaggingInput, optFns ...func(*s3.Options)) (*s3.GetBucketTaggingOutput, error)
}

// ClientFactory builds an S3 client bound to a region.
type ClientFactory func(cfg awssdk.Config, region string) S3API

func NewS3Client(cfg awssdk.Config, region string) S3API {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if region != "" {
			o.Region = region
		}
	})
}

type Provider struct {
	provider.StandardChecks

	config     Config
	metrics    *metrics.Metrics
	newClient  ClientFactory
	loadConfig func(ctx context.Context, account domain.CloudAccount, cfg Config) (awssdk.Config, error)
}

func New(cfg Config, m *metrics.Metrics) *Provider {
	return &Provider{
		config:     cfg,
		metrics:    m,
		newClient:  NewS3Client,
		loadConfig: loadAccountConfig,
	}
}

func (p *Provider) Name() domain.Provider {
	return domain.ProviderAWS
}

// Connect acquires fresh credentials for the account. Callers connect once per scan.
func (p *Provider) Connect(ctx context.Context, account domain.CloudAccount) (provider.Session, error) {
	awsCfg, err := p.loadConfig(ctx, account, p.config)
	if err != nil {
		return nil, err
	}

	return newSession(awsCfg, p.newClient, provider.NewCaller(domain.ProviderAWS, p.config.Calls, p.metrics)), nil
}
