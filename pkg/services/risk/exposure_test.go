package risk

import (
	"testing"

	"github.com/de-tools/storage-guard/pkg/models/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPolicy(t *testing.T, doc string) *domain.Policy {
	t.Helper()
	p, err := domain.ParsePolicy(doc)
	require.NoError(t, err)
	return p
}

func TestDetectExposure(t *testing.T) {
	tests := []struct {
		name     string
		policy   string
		cfg      domain.Configuration
		expected domain.Exposure
	}{
		{
			name:     "public access flag without policy",
			cfg:      domain.Configuration{PublicAccess: true},
			expected: domain.Exposure{InternetAccessible: true},
		},
		{
			name:     "wildcard principal",
			policy:   `{"Statement": [{"Effect": "Allow", "Principal": "*", "Action": "s3:GetObject"}]}`,
			expected: domain.Exposure{InternetAccessible: true},
		},
		{
			name:     "aws wildcard principal",
			policy:   `{"Statement": [{"Effect": "Allow", "Principal": {"AWS": "*"}, "Action": "s3:GetObject"}]}`,
			expected: domain.Exposure{InternetAccessible: true},
		},
		{
			name: "wildcard wins over an earlier specific principal",
			policy: `{"Statement": [
				{"Effect": "Allow", "Principal": {"AWS": "arn:aws:iam::123:root"}, "Action": "s3:GetObject"},
				{"Effect": "Allow", "Principal": "*", "Action": "s3:GetObject"}
			]}`,
			expected: domain.Exposure{InternetAccessible: true},
		},
		{
			name:     "specific principal",
			policy:   `{"Statement": [{"Effect": "Allow", "Principal": {"AWS": "arn:aws:iam::123:root"}, "Action": "s3:GetObject"}]}`,
			expected: domain.Exposure{AuthenticatedOnly: true},
		},
		{
			name:     "statement without principal",
			policy:   `{"Statement": [{"Effect": "Allow", "Action": "s3:GetObject"}]}`,
			expected: domain.Exposure{},
		},
		{
			name:     "private",
			expected: domain.Exposure{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var policy *domain.Policy
			if tt.policy != "" {
				policy = mustPolicy(t, tt.policy)
			}
			assert.Equal(t, tt.expected, DetectExposure(policy, tt.cfg))
		})
	}
}

func TestDetectResourceExposure_UsesEmbeddedPolicy(t *testing.T) {
	cfg := domain.Configuration{
		Policy: mustPolicy(t, `{"Statement": [{"Principal": {"AWS": "arn:aws:iam::1:root"}}]}`),
	}
	assert.Equal(t, domain.Exposure{AuthenticatedOnly: true}, DetectResourceExposure(cfg))
}
