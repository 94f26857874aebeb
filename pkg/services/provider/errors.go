package provider

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

var (
	ErrThrottled        = errors.New("provider request throttled")
	ErrUnauthorized     = errors.New("provider authorization failed")
	ErrResourceNotFound = errors.New("resource not found")
	ErrUnsupported      = errors.New("provider not supported")
)

// ErrorKind is the retry taxonomy of a provider error.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindTransient
	KindAuthorization
	KindNotFound
	KindPermanent
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransient:
		return "transient"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	default:
		return "permanent"
	}
}

func (k ErrorKind) Retryable() bool {
	return k == KindTransient
}

var (
	throttlingCodes = map[string]struct{}{
		"Throttling":                             {},
		"ThrottlingException":                    {},
		"ThrottledException":                     {},
		"SlowDown":                               {},
		"RequestLimitExceeded":                   {},
		"RequestThrottled":                       {},
		"RequestThrottledException":              {},
		"TooManyRequestsException":               {},
		"ProvisionedThroughputExceededException": {},
		"ServiceUnavailable":                     {},
		"InternalError":                          {},
		"RequestTimeout":                         {},
		"RequestTimeoutException":                {},
	}
	authorizationCodes = map[string]struct{}{
		"AccessDenied":                {},
		"AccessDeniedException":       {},
		"AllAccessDisabled":           {},
		"InvalidAccessKeyId":          {},
		"InvalidClientTokenId":        {},
		"ExpiredToken":                {},
		"ExpiredTokenException":       {},
		"SignatureDoesNotMatch":       {},
		"UnauthorizedOperation":       {},
		"UnrecognizedClientException": {},
		"InvalidToken":                {},
	}
	notFoundCodes = map[string]struct{}{
		"NoSuchBucket": {},
		"NotFound":     {},
	}
)

// Classify maps an error from any provider layer onto the retry taxonomy.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	switch {
	case errors.Is(err, ErrThrottled):
		return KindTransient
	case errors.Is(err, ErrUnauthorized):
		return KindAuthorization
	case errors.Is(err, ErrResourceNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnsupported):
		return KindPermanent
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindPermanent
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if _, ok := throttlingCodes[code]; ok {
			return KindTransient
		}
		if _, ok := authorizationCodes[code]; ok {
			return KindAuthorization
		}
		if _, ok := notFoundCodes[code]; ok {
			return KindNotFound
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch status := respErr.HTTPStatusCode(); {
		case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
			return KindTransient
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return KindAuthorization
		case status == http.StatusNotFound:
			return KindNotFound
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTransient
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindTransient
	}

	return KindPermanent
}
