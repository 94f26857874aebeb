package aws

import (
	"context"
	"fmt"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/de-tools/storage-guard/pkg/models/domain"
	"github.com/de-tools/storage-guard/pkg/services/provider"
)

const (
	DefaultRegion          = "us-east-1"
	DefaultSessionDuration = 900 * time.Second
	RoleSessionName        = "StorageGuardScanner"
)

// Credential keys understood in domain.Credentials.
const (
	CredRoleARN         = "role_arn"
	CredExternalID      = "external_id"
	CredAccessKeyID     = "access_key_id"
	CredSecretAccessKey = "secret_access_key"
	CredSessionToken    = "session_token"
	CredRegion          = "region"
)

type Config struct {
	Region          string
	SessionDuration time.Duration
	Calls           provider.CallConfig
}

func DefaultConfig() Config {
	return Config{
		Region:          DefaultRegion,
		SessionDuration: DefaultSessionDuration,
		Calls:           provider.DefaultCallConfig(),
	}
}

// loadAccountConfig resolves credentials for one account. Assumed-role sessions are
// fetched eagerly so a bad role aborts the account before any bucket is touched.
func loadAccountConfig(ctx context.Context, account domain.CloudAccount, cfg Config) (awssdk.Config, error) {
	creds := account.Credentials

	region := creds.Get(CredRegion)
	if region == "" {
		region = cfg.Region
	}
	if region == "" {
		region = DefaultRegion
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		// retries are owned by provider.Caller
		config.WithRetryer(func() awssdk.Retryer { return awssdk.NopRetryer{} }),
	}
	if keyID := creds.Get(CredAccessKeyID); keyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			keyID,
			creds.Get(CredSecretAccessKey),
			creds.Get(CredSessionToken),
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return awssdk.Config{}, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	if roleARN := creds.Get(CredRoleARN); roleARN != "" {
		duration := cfg.SessionDuration
		if duration <= 0 {
			duration = DefaultSessionDuration
		}
		assumeRole := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(awsCfg), roleARN, func(o *stscreds.AssumeRoleOptions) {
			o.RoleSessionName = RoleSessionName
			o.Duration = duration
			if externalID := creds.Get(CredExternalID); externalID != "" {
				o.ExternalID = awssdk.String(externalID)
			}
		})
		awsCfg.Credentials = awssdk.NewCredentialsCache(assumeRole)
	}

	if _, err := awsCfg.Credentials.Retrieve(ctx); err != nil {
		if provider.Classify(err) == provider.KindTransient {
			return awssdk.Config{}, fmt.Errorf("retrieve credentials for account %s: %w", account.ExternalID, err)
		}
		return awssdk.Config{}, fmt.Errorf("%w: invalid AWS credentials for account %s: %v", provider.ErrUnauthorized, account.ExternalID, err)
	}

	return awsCfg, nil
}
