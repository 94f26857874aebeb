package events

import "github.com/de-tools/storage-guard/pkg/models/domain"

var eventProperties = map[string][]domain.Property{
	"PutBucketPolicy":                 {domain.PropertyPolicy},
	"DeleteBucketPolicy":              {domain.PropertyPolicy},
	"PutBucketAcl":                    {domain.PropertyPublicAccess},
	"PutBucketPublicAccessBlock":      {domain.PropertyPublicAccess},
	"DeleteBucketPublicAccessBlock":   {domain.PropertyPublicAccess},
	"PutBucketEncryption":             {domain.PropertyEncryption},
	"DeleteBucketEncryption":          {domain.PropertyEncryption},
	"PutBucketLogging":                {domain.PropertyLogging},
	"PutBucketVersioning":             {domain.PropertyVersioning},
	"PutBucketLifecycle":              {domain.PropertyVersioning},
	"PutBucketLifecycleConfiguration": {domain.PropertyVersioning},
}

var propertyControls = map[domain.Property][]string{
	domain.PropertyPublicAccess: {domain.ControlPublicAccess, domain.ControlPolicy},
	domain.PropertyPolicy:       {domain.ControlPublicAccess, domain.ControlPolicy},
	domain.PropertyEncryption:   {domain.ControlEncryption},
	domain.PropertyLogging:      {domain.ControlLogging},
	domain.PropertyVersioning:   {domain.ControlVersioning},
}

// PropertiesForEvent returns the configuration properties an event can change.
// Unmapped event names return nil.
func PropertiesForEvent(eventName string) []domain.Property {
	props, ok := eventProperties[eventName]
	if !ok {
		return nil
	}
	return append([]domain.Property(nil), props...)
}

// ControlsForProperties returns the controls to re-run, deduplicated and in
// evaluation order.
func ControlsForProperties(props []domain.Property) []string {
	selected := make(map[string]struct{})
	for _, p := range props {
		for _, id := range propertyControls[p] {
			selected[id] = struct{}{}
		}
	}

	var controls []string
	for _, id := range domain.AllControls() {
		if _, ok := selected[id]; ok {
			controls = append(controls, id)
		}
	}
	return controls
}
