package errs

import (
	"errors"

	"github.com/aws/smithy-go"
)

// FromAWS translates an AWS SDK error into the shared taxonomy. Both the
// Cognito and the IoT adapter route every SDK error through here so the
// per-service exception names are interpreted exactly once.
func FromAWS(op string, err error) *Error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return Wrap(Upstream, op, err)
	}

	switch apiErr.ErrorCode() {
	case "ResourceNotFoundException", "UserNotFoundException", "GroupNotFoundException":
		return Wrap(NotFound, op, err)
	case "ResourceAlreadyExistsException", "GroupExistsException", "ConditionalCheckFailedException":
		return Wrap(Conflict, op, err)
	case "NotAuthorizedException", "UnauthorizedException", "InvalidSignatureException", "ExpiredTokenException":
		return Wrap(Authentication, op, err)
	case "AccessDeniedException", "ForbiddenException":
		return Wrap(Authorization, op, err)
	case "InvalidParameterException", "InvalidRequestException":
		return Wrap(Validation, op, err)
	case "ThrottlingException", "TooManyRequestsException", "LimitExceededException",
		"ServiceUnavailableException", "InternalFailureException", "ServiceQuotaExceededException":
		return Wrap(Unavailable, op, err)
	default:
		return Wrap(Upstream, op, err)
	}
}
