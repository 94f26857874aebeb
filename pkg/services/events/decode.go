package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/de-tools/storage-guard/pkg/models/domain"
)

// Data errors: the event cannot be acted on and is dropped, not retried.
var (
	ErrMalformedEvent    = errors.New("malformed event")
	ErrUnsupportedSource = errors.New("unsupported event source")
	ErrNoResource        = errors.New("event does not reference a storage resource")
)

const (
	sourceS3         = "aws.s3"
	notificationType = "Notification"
)

type notification struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

// cloudTrailEvent is the EventBridge rendition of a CloudTrail API call.
type cloudTrailEvent struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	Account   string `json:"account"`
	Time      string `json:"time"`
	Region    string `json:"region"`
	Resources []struct {
		ARN string `json:"ARN"`
	} `json:"resources"`
	Detail struct {
		EventName          string `json:"eventName"`
		EventID            string `json:"eventID"`
		AWSRegion          string `json:"awsRegion"`
		RecipientAccountID string `json:"recipientAccountId"`
		RequestParameters  struct {
			BucketName string `json:"bucketName"`
		} `json:"requestParameters"`
	} `json:"detail"`
}

// Decode normalizes a raw change notification, unwrapping an SNS envelope when present.
func Decode(raw []byte) (domain.NormalizedEvent, error) {
	payload, err := unwrap(raw)
	if err != nil {
		return domain.NormalizedEvent{}, err
	}

	var ev cloudTrailEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return domain.NormalizedEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch {
	case ev.Source == sourceS3:
	case strings.Contains(ev.Source, "azure"):
		return domain.NormalizedEvent{Provider: domain.ProviderAzure}, fmt.Errorf("%w: %s", ErrUnsupportedSource, ev.Source)
	case strings.Contains(ev.Source, "google"):
		return domain.NormalizedEvent{Provider: domain.ProviderGCP}, fmt.Errorf("%w: %s", ErrUnsupportedSource, ev.Source)
	default:
		return domain.NormalizedEvent{}, fmt.Errorf("%w: %q", ErrUnsupportedSource, ev.Source)
	}

	event := domain.NormalizedEvent{
		Provider:   domain.ProviderAWS,
		EventID:    firstNonEmpty(ev.Detail.EventID, ev.ID),
		EventName:  ev.Detail.EventName,
		ResourceID: bucketName(ev),
		AccountID:  firstNonEmpty(ev.Account, ev.Detail.RecipientAccountID),
		Region:     firstNonEmpty(ev.Region, ev.Detail.AWSRegion),
		Raw:        json.RawMessage(payload),
	}
	if t, err := time.Parse(time.RFC3339, ev.Time); err == nil {
		event.EventTime = t.UTC()
	}

	if event.ResourceID == "" {
		return event, ErrNoResource
	}
	if event.AccountID == "" {
		return event, fmt.Errorf("%w: missing account id", ErrMalformedEvent)
	}
	return event, nil
}

func unwrap(raw []byte) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedEvent)
	}

	var env notification
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.Type != notificationType {
		return raw, nil
	}
	if strings.TrimSpace(env.Message) == "" {
		return nil, fmt.Errorf("%w: empty notification message", ErrMalformedEvent)
	}
	return []byte(env.Message), nil
}

// bucketName prefers the resource ARN and falls back to the request parameters.
// Object ARNs (arn:aws:s3:::bucket/key) resolve to their bucket.
func bucketName(ev cloudTrailEvent) string {
	for _, res := range ev.Resources {
		parsed, err := arn.Parse(res.ARN)
		if err != nil || parsed.Service != "s3" {
			continue
		}
		name, _, _ := strings.Cut(parsed.Resource, "/")
		if name != "" {
			return name
		}
	}
	return ev.Detail.RequestParameters.BucketName
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// IsDataError reports whether err means the event should be dropped rather than redelivered.
func IsDataError(err error) bool {
	return errors.Is(err, ErrMalformedEvent) ||
		errors.Is(err, ErrUnsupportedSource) ||
		errors.Is(err, ErrNoResource)
}
