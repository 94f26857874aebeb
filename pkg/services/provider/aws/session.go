package aws

import (
	"context"
	"errors"
	"fmt"
	"sync"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/de-tools/storage-guard/pkg/models/domain"
	"github.com/de-tools/storage-guard/pkg/services/provider"
	"github.com/rs/zerolog"
)

type session struct {
	cfg       awssdk.Config
	newClient ClientFactory
	caller    *provider.Caller

	mu      sync.Mutex
	clients map[string]S3API
}

func newSession(cfg awssdk.Config, newClient ClientFactory, caller *provider.Caller) *session {
	return &session{
		cfg:       cfg,
		newClient: newClient,
		caller:    caller,
		clients:   make(map[string]S3API),
	}
}

func (s *session) client(region string) S3API {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[region]; ok {
		return c
	}
	c := s.newClient(s.cfg, region)
	s.clients[region] = c
	return c
}

// ListResources lists bucket names. Locations are only looked up to filter by region;
// a bucket whose location cannot be read is then left out.
func (s *session) ListResources(ctx context.Context, region string) ([]domain.ResourceRef, error) {
	var out *s3.ListBucketsOutput
	err := s.caller.Do(ctx, "list_buckets", func(ctx context.Context) error {
		var err error
		out, err = s.client(s.cfg.Region).ListBuckets(ctx, &s3.ListBucketsInput{})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list S3 buckets: %w", err)
	}

	refs := make([]domain.ResourceRef, 0, len(out.Buckets))
	for _, bucket := range out.Buckets {
		ref := domain.ResourceRef{
			Name:      awssdk.ToString(bucket.Name),
			CreatedAt: bucket.CreationDate,
		}
		if region != "" {
			bucketRegion, err := s.bucketRegion(ctx, ref.Name)
			if err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Str("resource", ref.Name).Msg("failed to locate bucket, skipping")
				continue
			}
			if bucketRegion != region {
				continue
			}
			ref.Region = bucketRegion
		}
		refs = append(refs, ref)
	}

	return refs, nil
}

func (s *session) FetchResource(ctx context.Context, name, region string) (domain.ResourceSnapshot, error) {
	if region == "" {
		var err error
		if region, err = s.bucketRegion(ctx, name); err != nil {
			return domain.ResourceSnapshot{}, err
		}
	}
	return s.describe(ctx, name, region)
}

func (s *session) bucketRegion(ctx context.Context, name string) (string, error) {
	var out *s3.GetBucketLocationOutput
	err := s.caller.Do(ctx, "get_bucket_location", func(ctx context.Context) error {
		var err error
		out, err = s.client(s.cfg.Region).GetBucketLocation(ctx, &s3.GetBucketLocationInput{Bucket: awssdk.String(name)})
		return err
	})
	if err != nil {
		return "", bucketError(name, err)
	}
	return normalizeRegion(out.LocationConstraint), nil
}

func normalizeRegion(constraint types.BucketLocationConstraint) string {
	switch constraint {
	case "":
		return DefaultRegion
	case types.BucketLocationConstraintEu:
		return "eu-west-1"
	default:
		return string(constraint)
	}
}

func (s *session) describe(ctx context.Context, name, region string) (domain.ResourceSnapshot, error) {
	client := s.client(region)
	bucket := awssdk.String(name)
	cfg := domain.Configuration{}

	policy, found, err := s.bucketPolicy(ctx, client, bucket)
	if err != nil {
		return domain.ResourceSnapshot{}, bucketError(name, err)
	}
	if found {
		cfg.Policy = policy
	}

	if cfg.EncryptionEnabled, err = s.encryptionEnabled(ctx, client, bucket); err != nil {
		return domain.ResourceSnapshot{}, bucketError(name, err)
	}
	if cfg.LoggingEnabled, err = s.loggingEnabled(ctx, client, bucket); err != nil {
		return domain.ResourceSnapshot{}, bucketError(name, err)
	}
	if cfg.VersioningEnabled, err = s.versioningEnabled(ctx, client, bucket); err != nil {
		return domain.ResourceSnapshot{}, bucketError(name, err)
	}

	blocked, err := s.publicAccessBlocked(ctx, client, bucket)
	if err != nil {
		return domain.ResourceSnapshot{}, bucketError(name, err)
	}
	cfg.PublicAccess = !blocked

	if cfg.Tags, err = s.tags(ctx, client, bucket); err != nil {
		return domain.ResourceSnapshot{}, bucketError(name, err)
	}

	return domain.ResourceSnapshot{
		Name:          name,
		Type:          domain.ResourceTypeBucket,
		Region:        region,
		Configuration: cfg,
	}, nil
}

// bucketPolicy reports found=false when the bucket carries no policy.
func (s *session) bucketPolicy(ctx context.Context, client S3API, bucket *string) (*domain.Policy, bool, error) {
	var out *s3.GetBucketPolicyOutput
	err := s.caller.Do(ctx, "get_bucket_policy", func(ctx context.Context) error {
		var err error
		out, err = client.GetBucketPolicy(ctx, &s3.GetBucketPolicyInput{Bucket: bucket})
		return err
	})
	if hasCode(err, "NoSuchBucketPolicy") {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	policy, err := domain.ParsePolicy(awssdk.ToString(out.Policy))
	if err != nil {
		return nil, false, err
	}
	return policy, policy != nil, nil
}

func (s *session) encryptionEnabled(ctx context.Context, client S3API, bucket *string) (bool, error) {
	var out *s3.GetBucketEncryptionOutput
	err := s.caller.Do(ctx, "get_bucket_encryption", func(ctx context.Context) error {
		var err error
		out, err = client.GetBucketEncryption(ctx, &s3.GetBucketEncryptionInput{Bucket: bucket})
		return err
	})
	if hasCode(err, "ServerSideEncryptionConfigurationNotFoundError") {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return out.ServerSideEncryptionConfiguration != nil && len(out.ServerSideEncryptionConfiguration.Rules) > 0, nil
}

func (s *session) loggingEnabled(ctx context.Context, client S3API, bucket *string) (bool, error) {
	var out *s3.GetBucketLoggingOutput
	err := s.caller.Do(ctx, "get_bucket_logging", func(ctx context.Context) error {
		var err error
		out, err = client.GetBucketLogging(ctx, &s3.GetBucketLoggingInput{Bucket: bucket})
		return err
	})
	if err != nil {
		return false, err
	}
	return out.LoggingEnabled != nil, nil
}

func (s *session) versioningEnabled(ctx context.Context, client S3API, bucket *string) (bool, error) {
	var out *s3.GetBucketVersioningOutput
	err := s.caller.Do(ctx, "get_bucket_versioning", func(ctx context.Context) error {
		var err error
		out, err = client.GetBucketVersioning(ctx, &s3.GetBucketVersioningInput{Bucket: bucket})
		return err
	})
	if err != nil {
		return false, err
	}
	return out.Status == types.BucketVersioningStatusEnabled, nil
}

// publicAccessBlocked is false when no public access block is configured.
func (s *session) publicAccessBlocked(ctx context.Context, client S3API, bucket *string) (bool, error) {
	var out *s3.GetPublicAccessBlockOutput
	err := s.caller.Do(ctx, "get_public_access_block", func(ctx context.Context) error {
		var err error
		out, err = client.GetPublicAccessBlock(ctx, &s3.GetPublicAccessBlockInput{Bucket: bucket})
		return err
	})
	if hasCode(err, "NoSuchPublicAccessBlockConfiguration") {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	block := out.PublicAccessBlockConfiguration
	if block == nil {
		return false, nil
	}
	return awssdk.ToBool(block.BlockPublicAcls) ||
		awssdk.ToBool(block.BlockPublicPolicy) ||
		awssdk.ToBool(block.IgnorePublicAcls) ||
		awssdk.ToBool(block.RestrictPublicBuckets), nil
}

func (s *session) tags(ctx context.Context, client S3API, bucket *string) (map[string]string, error) {
	var out *s3.GetBucketTaggingOutput
	err := s.caller.Do(ctx, "get_bucket_tagging", func(ctx context.Context) error {
		var err error
		out, err = client.GetBucketTagging(ctx, &s3.GetBucketTaggingInput{Bucket: bucket})
		return err
	})
	if hasCode(err, "NoSuchTagSet") {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}

	tags := make(map[string]string, len(out.TagSet))
	for _, tag := range out.TagSet {
		tags[awssdk.ToString(tag.Key)] = awssdk.ToString(tag.Value)
	}
	return tags, nil
}

func hasCode(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, code := range codes {
		if apiErr.ErrorCode() == code {
			return true
		}
	}
	return false
}

func bucketError(name string, err error) error {
	if provider.Classify(err) == provider.KindNotFound {
		return fmt.Errorf("%w: bucket %s: %v", provider.ErrResourceNotFound, name, err)
	}
	return fmt.Errorf("bucket %s: %w", name, err)
}
