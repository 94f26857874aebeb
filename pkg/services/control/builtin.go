package control

import "github.com/de-tools/storage-guard/pkg/models/domain"

func builtinControls() []domain.Control {
	return []domain.Control{
		{
			ID:           domain.ControlPublicAccess,
			Name:         "Public Access Check",
			Description:  "Storage resource should not have public access enabled",
			Version:      1,
			BaseSeverity: domain.SeverityHigh,
			ProviderSpecific: map[domain.Provider]domain.CheckMetadata{
				domain.ProviderAWS:   {Service: "s3", CheckType: "bucket_policy"},
				domain.ProviderAzure: {ResourceType: "Microsoft.Storage/storageAccounts", CheckType: "network_rules"},
				domain.ProviderGCP:   {Service: "storage", CheckType: "iam_policy"},
			},
			RemediationAvailable: true,
			RemediationGuidance:  "Block public access at bucket and account level.",
		},
		{
			ID:           domain.ControlEncryption,
			Name:         "Encryption at Rest",
			Description:  "Storage resource should have encryption enabled",
			Version:      1,
			BaseSeverity: domain.SeverityMedium,
			ProviderSpecific: map[domain.Provider]domain.CheckMetadata{
				domain.ProviderAWS:   {Service: "s3", CheckType: "encryption"},
				domain.ProviderAzure: {ResourceType: "Microsoft.Storage/storageAccounts", CheckType: "encryption"},
				domain.ProviderGCP:   {Service: "storage", CheckType: "encryption"},
			},
			RemediationAvailable: true,
			RemediationGuidance:  "Enable default encryption using SSE-S3 or KMS.",
		},
		{
			ID:           domain.ControlLogging,
			Name:         "Access Logging",
			Description:  "Storage resource should have access logging enabled",
			Version:      1,
			BaseSeverity: domain.SeverityMedium,
			ProviderSpecific: map[domain.Provider]domain.CheckMetadata{
				domain.ProviderAWS:   {Service: "s3", CheckType: "logging"},
				domain.ProviderAzure: {ResourceType: "Microsoft.Storage/storageAccounts", CheckType: "logging"},
				domain.ProviderGCP:   {Service: "storage", CheckType: "logging"},
			},
			RemediationAvailable: true,
			RemediationGuidance:  "Enable access logging and deliver logs to a separate bucket.",
		},
		{
			ID:           domain.ControlVersioning,
			Name:         "Versioning/Soft Delete",
			Description:  "Storage resource should have versioning or soft delete enabled",
			Version:      1,
			BaseSeverity: domain.SeverityMedium,
			ProviderSpecific: map[domain.Provider]domain.CheckMetadata{
				domain.ProviderAWS:   {Service: "s3", CheckType: "versioning"},
				domain.ProviderAzure: {ResourceType: "Microsoft.Storage/storageAccounts", CheckType: "delete_retention"},
				domain.ProviderGCP:   {Service: "storage", CheckType: "versioning"},
			},
			RemediationAvailable: true,
			RemediationGuidance:  "Enable versioning or soft delete to protect against accidental deletion.",
		},
		{
			ID:           domain.ControlPolicy,
			Name:         "Overly Permissive Policies",
			Description:  "Storage resource should not have overly permissive access policies",
			Version:      1,
			BaseSeverity: domain.SeverityHigh,
			ProviderSpecific: map[domain.Provider]domain.CheckMetadata{
				domain.ProviderAWS:   {Service: "s3", CheckType: "bucket_policy"},
				domain.ProviderAzure: {ResourceType: "Microsoft.Storage/storageAccounts", CheckType: "iam_policy"},
				domain.ProviderGCP:   {Service: "storage", CheckType: "iam_policy"},
			},
			RemediationAvailable: true,
			RemediationGuidance:  "Review bucket policies and remove wildcard principals or actions.",
		},
	}
}
