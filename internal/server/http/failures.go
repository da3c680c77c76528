package httpserver

import (
	"net/http"

	"github.com/Ivan-Madera/autorizador/internal/errs"
)

// statusFor maps a failure kind to its HTTP status.
func statusFor(k errs.Kind) int {
	switch k {
	case errs.KindInvalidCredentials:
		return http.StatusUnauthorized
	case errs.KindAlreadyExists:
		return http.StatusConflict
	case errs.KindValidation:
		return http.StatusUnprocessableEntity
	case errs.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// methodStatus is what clients of the API expect for a wrong verb.
const methodStatus = http.StatusNotAcceptable

func methodNotAllowed() *errs.Failure {
	return &errs.Failure{
		Kind:       errs.KindValidation,
		Code:       "ERROR-002",
		Title:      "HTTP method not allowed.",
		Suggestion: "Check the HTTP method used in the request.",
		Detail:     "The HTTP method is not allowed for this endpoint, please check the request.",
	}
}

func unsupportedContentType() *errs.Failure {
	return &errs.Failure{
		Kind:       errs.KindValidation,
		Code:       "ERROR-003",
		Title:      "Content-Type not allowed.",
		Suggestion: "Check the Content-Type header in the request.",
		Detail:     "Content-Type is not allowed for this endpoint, please check the request.",
	}
}

func missingBearer() *errs.Failure {
	return &errs.Failure{
		Kind:       errs.KindInvalidCredentials,
		Code:       "ERROR-004",
		Title:      "Authorization header missing.",
		Suggestion: "Check the Authorization header in the request.",
		Detail:     "The Authorization header is missing or does not start with Bearer.",
	}
}

func invalidToken() *errs.Failure {
	return &errs.Failure{
		Kind:       errs.KindInvalidCredentials,
		Code:       "ERROR-005",
		Title:      "Invalid token.",
		Suggestion: "Check the token used in the request.",
		Detail:     "The token is invalid or has expired.",
	}
}

func invalidAppKey() *errs.Failure {
	return &errs.Failure{
		Kind:       errs.KindInvalidCredentials,
		Code:       "ERROR-006",
		Title:      "Invalid appkey.",
		Suggestion: "Check the appkey used in the request.",
		Detail:     "The appkey is invalid or has expired.",
	}
}

func notFound() *errs.Failure {
	return &errs.Failure{
		Kind:       errs.KindValidation,
		Code:       "ERROR-007",
		Title:      "Resource not found.",
		Suggestion: "Check the URL of the request.",
		Detail:     "The requested endpoint does not exist.",
	}
}
