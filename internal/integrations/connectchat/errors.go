package connectchat

import (
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/connectparticipant/types"
)

// ErrorTag classifies a participant-API failure. Only TagAccessDenied —
// the signature of an expired or invalidated connection — triggers the
// one-shot session renewal; every other tag surfaces to the caller
// untouched.
type ErrorTag string

const (
	TagOK              ErrorTag = ""
	TagAccessDenied    ErrorTag = "ACCESS_DENIED"
	TagServerException ErrorTag = "SERVER_EXCEPTION"
	TagThrottling      ErrorTag = "THROTTLING"
	TagValidationError ErrorTag = "VALIDATION_ERROR"
	TagQuotaError      ErrorTag = "QUOTA_ERROR"
	TagUnexpectedError ErrorTag = "UNEXPECTED_ERROR"
)

// classify maps a participant-API error onto its tag.
func classify(err error) ErrorTag {
	if err == nil {
		return TagOK
	}
	var (
		accessDenied *types.AccessDeniedException
		internal     *types.InternalServerException
		throttling   *types.ThrottlingException
		validation   *types.ValidationException
		quota        *types.ServiceQuotaExceededException
	)
	switch {
	case errors.As(err, &accessDenied):
		return TagAccessDenied
	case errors.As(err, &internal):
		return TagServerException
	case errors.As(err, &throttling):
		return TagThrottling
	case errors.As(err, &validation):
		return TagValidationError
	case errors.As(err, &quota):
		return TagQuotaError
	default:
		return TagUnexpectedError
	}
}
