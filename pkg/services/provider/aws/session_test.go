package aws

import (
	"context"
	"testing"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/de-tools/storage-guard/pkg/models/domain"
	"github.com/de-tools/storage-guard/pkg/services/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockS3 struct {
	mock.Mock
}

func (m *mockS3) ListBuckets(ctx context.Context, in *s3.ListBucketsInput, _ ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.ListBucketsOutput)
	return out, args.Error(1)
}

func (m *mockS3) GetBucketLocation(ctx context.Context, in *s3.GetBucketLocationInput, _ ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error) {
	args := m.Called(ctx, awssdk.ToString(in.Bucket))
	out, _ := args.Get(0).(*s3.GetBucketLocationOutput)
	return out, args.Error(1)
}

func (m *mockS3) GetBucketPolicy(ctx context.Context, in *s3.GetBucketPolicyInput, _ ...func(*s3.Options)) (*s3.GetBucketPolicyOutput, error) {
	args := m.Called(ctx, awssdk.ToString(in.Bucket))
	out, _ := args.Get(0).(*s3.GetBucketPolicyOutput)
	return out, args.Error(1)
}

func (m *mockS3) GetBucketEncryption(ctx context.Context, in *s3.GetBucketEncryptionInput, _ ...func(*s3.Options)) (*s3.GetBucketEncryptionOutput, error) {
	args := m.Called(ctx, awssdk.ToString(in.Bucket))
	out, _ := args.Get(0).(*s3.GetBucketEncryptionOutput)
	return out, args.Error(1)
}

func (m *mockS3) GetBucketLogging(ctx context.Context, in *s3.GetBucketLoggingInput, _ ...func(*s3.Options)) (*s3.GetBucketLoggingOutput, error) {
	args := m.Called(ctx, awssdk.ToString(in.Bucket))
	out, _ := args.Get(0).(*s3.GetBucketLoggingOutput)
	return out, args.Error(1)
}

func (m *mockS3) GetBucketVersioning(ctx context.Context, in *s3.GetBucketVersioningInput, _ ...func(*s3.Options)) (*s3.GetBucketVersioningOutput, error) {
	args := m.Called(ctx, awssdk.ToString(in.Bucket))
	out, _ := args.Get(0).(*s3.GetBucketVersioningOutput)
	return out, args.Error(1)
}

func (m *mockS3) GetPublicAccessBlock(ctx context.Context, in *s3.GetPublicAccessBlockInput, _ ...func(*s3.Options)) (*s3.GetPublicAccessBlockOutput, error) {
	args := m.Called(ctx, awssdk.ToString(in.Bucket))
	out, _ := args.Get(0).(*s3.GetPublicAccessBlockOutput)
	return out, args.Error(1)
}

func (m *mockS3) GetBucketTagging(ctx context.Context, in *s3.GetBucketTaggingInput, _ ...func(*s3.Options)) (*s3.GetBucketTaggingOutput, error) {
	args := m.Called(ctx, awssdk.ToString(in.Bucket))
	out, _ := args.Get(0).(*s3.GetBucketTaggingOutput)
	return out, args.Error(1)
}

func apiErr(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

func testSession(client S3API) *session {
	caller := provider.NewCaller(domain.ProviderAWS, provider.CallConfig{
		Retry: provider.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}, nil)
	return newSession(awssdk.Config{Region: DefaultRegion}, func(awssdk.Config, string) S3API { return client }, caller)
}

// expectHardenedBucket stubs a bucket with every control satisfied.
func expectHardenedBucket(m *mockS3, name string) {
	m.On("GetBucketPolicy", mock.Anything, name).Return(nil, apiErr("NoSuchBucketPolicy"))
	m.On("GetBucketEncryption", mock.Anything, name).Return(&s3.GetBucketEncryptionOutput{
		ServerSideEncryptionConfiguration: &types.ServerSideEncryptionConfiguration{
			Rules: []types.ServerSideEncryptionRule{{}},
		},
	}, nil)
	m.On("GetBucketLogging", mock.Anything, name).Return(&s3.GetBucketLoggingOutput{
		LoggingEnabled: &types.LoggingEnabled{TargetBucket: awssdk.String("logs")},
	}, nil)
	m.On("GetBucketVersioning", mock.Anything, name).Return(&s3.GetBucketVersioningOutput{
		Status: types.BucketVersioningStatusEnabled,
	}, nil)
	m.On("GetPublicAccessBlock", mock.Anything, name).Return(&s3.GetPublicAccessBlockOutput{
		PublicAccessBlockConfiguration: &types.PublicAccessBlockConfiguration{
			BlockPublicAcls:       awssdk.Bool(true),
			BlockPublicPolicy:     awssdk.Bool(true),
			IgnorePublicAcls:      awssdk.Bool(true),
			RestrictPublicBuckets: awssdk.Bool(true),
		},
	}, nil)
	m.On("GetBucketTagging", mock.Anything, name).Return(&s3.GetBucketTaggingOutput{
		TagSet: []types.Tag{{Key: awssdk.String("team"), Value: awssdk.String("data")}},
	}, nil)
}

// expectBareBucket stubs a bucket with no optional configuration at all.
func expectBareBucket(m *mockS3, name, policy string) {
	if policy == "" {
		m.On("GetBucketPolicy", mock.Anything, name).Return(nil, apiErr("NoSuchBucketPolicy"))
	} else {
		m.On("GetBucketPolicy", mock.Anything, name).Return(&s3.GetBucketPolicyOutput{Policy: awssdk.String(policy)}, nil)
	}
	m.On("GetBucketEncryption", mock.Anything, name).Return(nil, apiErr("ServerSideEncryptionConfigurationNotFoundError"))
	m.On("GetBucketLogging", mock.Anything, name).Return(&s3.GetBucketLoggingOutput{}, nil)
	m.On("GetBucketVersioning", mock.Anything, name).Return(&s3.GetBucketVersioningOutput{Status: types.BucketVersioningStatusSuspended}, nil)
	m.On("GetPublicAccessBlock", mock.Anything, name).Return(nil, apiErr("NoSuchPublicAccessBlockConfiguration"))
	m.On("GetBucketTagging", mock.Anything, name).Return(nil, apiErr("NoSuchTagSet"))
}

func TestSession_ListResources(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	m := &mockS3{}
	m.On("ListBuckets", mock.Anything, mock.Anything).Return(&s3.ListBucketsOutput{
		Buckets: []types.Bucket{
			{Name: awssdk.String("hardened"), CreationDate: &created},
			{Name: awssdk.String("open")},
		},
	}, nil)

	res, err := testSession(m).ListResources(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []domain.ResourceRef{
		{Name: "hardened", CreatedAt: &created},
		{Name: "open"},
	}, res)
	m.AssertNotCalled(t, "GetBucketLocation", mock.Anything, mock.Anything)
	m.AssertNotCalled(t, "GetBucketPolicy", mock.Anything, mock.Anything)
}

func TestSession_ListResources_FiltersRegion(t *testing.T) {
	m := &mockS3{}
	m.On("ListBuckets", mock.Anything, mock.Anything).Return(&s3.ListBucketsOutput{
		Buckets: []types.Bucket{{Name: awssdk.String("denied")}, {Name: awssdk.String("other-region")}, {Name: awssdk.String("ok")}},
	}, nil)
	m.On("GetBucketLocation", mock.Anything, "denied").Return(nil, apiErr("AccessDenied"))
	m.On("GetBucketLocation", mock.Anything, "other-region").Return(&s3.GetBucketLocationOutput{LocationConstraint: types.BucketLocationConstraintUsWest2}, nil)
	m.On("GetBucketLocation", mock.Anything, "ok").Return(&s3.GetBucketLocationOutput{}, nil)

	res, err := testSession(m).ListResources(context.Background(), DefaultRegion)
	require.NoError(t, err)
	assert.Equal(t, []domain.ResourceRef{{Name: "ok", Region: DefaultRegion}}, res)
}

func TestSession_FetchResource_Describes(t *testing.T) {
	m := &mockS3{}
	m.On("GetBucketLocation", mock.Anything, "hardened").Return(&s3.GetBucketLocationOutput{}, nil)
	m.On("GetBucketLocation", mock.Anything, "open").Return(&s3.GetBucketLocationOutput{LocationConstraint: types.BucketLocationConstraintEuCentral1}, nil)
	expectHardenedBucket(m, "hardened")
	expectBareBucket(m, "open", `{"Statement":[{"Effect":"Allow","Principal":"*","Action":"s3:GetObject"}]}`)
	sess := testSession(m)

	hardened, err := sess.FetchResource(context.Background(), "hardened", "")
	require.NoError(t, err)
	assert.Equal(t, "hardened", hardened.Name)
	assert.Equal(t, DefaultRegion, hardened.Region)
	assert.Equal(t, domain.ResourceTypeBucket, hardened.Type)
	assert.Equal(t, domain.Configuration{
		EncryptionEnabled: true,
		LoggingEnabled:    true,
		VersioningEnabled: true,
		Tags:              map[string]string{"team": "data"},
	}, hardened.Configuration)

	open, err := sess.FetchResource(context.Background(), "open", "")
	require.NoError(t, err)
	assert.Equal(t, "eu-central-1", open.Region)
	assert.True(t, open.Configuration.PublicAccess)
	assert.False(t, open.Configuration.EncryptionEnabled)
	assert.False(t, open.Configuration.VersioningEnabled)
	assert.False(t, open.Configuration.LoggingEnabled)
	require.NotNil(t, open.Configuration.Policy)
	assert.True(t, open.Configuration.Policy.Statement[0].HasWildcardPrincipal())
	assert.Empty(t, open.Configuration.Tags)
}

func TestSession_FetchResource_AccessDenied(t *testing.T) {
	m := &mockS3{}
	m.On("GetBucketPolicy", mock.Anything, "denied").Return(nil, apiErr("AccessDenied"))

	_, err := testSession(m).FetchResource(context.Background(), "denied", DefaultRegion)
	require.Error(t, err)
	assert.Equal(t, provider.KindAuthorization, provider.Classify(err))
	m.AssertNumberOfCalls(t, "GetBucketPolicy", 1)
}

func TestSession_ListResources_ListFailure(t *testing.T) {
	m := &mockS3{}
	m.On("ListBuckets", mock.Anything, mock.Anything).Return(nil, apiErr("AccessDenied"))

	_, err := testSession(m).ListResources(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, provider.KindAuthorization, provider.Classify(err))
	m.AssertNumberOfCalls(t, "ListBuckets", 1)
}

func TestSession_FetchResource(t *testing.T) {
	m := &mockS3{}
	m.On("GetBucketLocation", mock.Anything, "open").Return(&s3.GetBucketLocationOutput{}, nil)
	expectBareBucket(m, "open", "")

	res, err := testSession(m).FetchResource(context.Background(), "open", "")
	require.NoError(t, err)
	assert.Equal(t, "open", res.Name)
	assert.Nil(t, res.Configuration.Policy)
	assert.True(t, res.Configuration.PublicAccess)
}

func TestSession_FetchResource_RetriesThrottling(t *testing.T) {
	m := &mockS3{}
	m.On("GetBucketPolicy", mock.Anything, "busy").Return(nil, apiErr("SlowDown")).Once()
	expectHardenedBucket(m, "busy")

	res, err := testSession(m).FetchResource(context.Background(), "busy", "eu-west-1")
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", res.Region)
	m.AssertNumberOfCalls(t, "GetBucketPolicy", 2)
}

func TestSession_FetchResource_NotFound(t *testing.T) {
	m := &mockS3{}
	m.On("GetBucketLocation", mock.Anything, "gone").Return(nil, apiErr("NoSuchBucket"))

	_, err := testSession(m).FetchResource(context.Background(), "gone", "")
	assert.ErrorIs(t, err, provider.ErrResourceNotFound)
}

func TestSession_PartialPublicAccessBlock(t *testing.T) {
	m := &mockS3{}
	expectHardenedBucket(m, "partial")
	m.ExpectedCalls = filterCalls(m.ExpectedCalls, "GetPublicAccessBlock")
	m.On("GetPublicAccessBlock", mock.Anything, "partial").Return(&s3.GetPublicAccessBlockOutput{
		PublicAccessBlockConfiguration: &types.PublicAccessBlockConfiguration{BlockPublicPolicy: awssdk.Bool(true)},
	}, nil)

	res, err := testSession(m).FetchResource(context.Background(), "partial", DefaultRegion)
	require.NoError(t, err)
	assert.False(t, res.Configuration.PublicAccess)
}

func filterCalls(calls []*mock.Call, method string) []*mock.Call {
	kept := calls[:0]
	for _, c := range calls {
		if c.Method != method {
			kept = append(kept, c)
		}
	}
	return kept
}

func TestProvider_ConnectFailure(t *testing.T) {
	p := New(DefaultConfig(), nil)
	p.loadConfig = func(context.Context, domain.CloudAccount, Config) (awssdk.Config, error) {
		return awssdk.Config{}, provider.ErrUnauthorized
	}

	_, err := p.Connect(context.Background(), domain.CloudAccount{ExternalID: "123456789012"})
	assert.ErrorIs(t, err, provider.ErrUnauthorized)
	assert.Equal(t, domain.ProviderAWS, p.Name())
}

func TestProvider_ConnectBuildsRegionalClients(t *testing.T) {
	m := &mockS3{}
	var regions []string
	p := New(DefaultConfig(), nil)
	p.loadConfig = func(context.Context, domain.CloudAccount, Config) (awssdk.Config, error) {
		return awssdk.Config{Region: DefaultRegion}, nil
	}
	p.newClient = func(_ awssdk.Config, region string) S3API {
		regions = append(regions, region)
		return m
	}
	expectHardenedBucket(m, "b")

	sess, err := p.Connect(context.Background(), domain.CloudAccount{})
	require.NoError(t, err)
	_, err = sess.FetchResource(context.Background(), "b", "ap-south-1")
	require.NoError(t, err)
	_, err = sess.FetchResource(context.Background(), "b", "ap-south-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"ap-south-1"}, regions)
}
