package errs

import "errors"

// Kind is the coarse failure class reported to collaborators.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidCredentials
	KindAlreadyExists
	KindValidation
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindAlreadyExists:
		return "already_exists"
	case KindValidation:
		return "validation_failure"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal_failure"
	}
}

// Failure is a typed, expected failure outcome. Code/Title/Suggestion are
// stable and safe to show to clients; Detail is a human sentence that never
// distinguishes which credential check failed.
type Failure struct {
	Kind       Kind
	Code       string
	Title      string
	Suggestion string
	Detail     string
}

func (f *Failure) Error() string { return f.Code + ": " + f.Detail }

// Unwrap exposes the sentinel for the failure kind so errors.Is works.
func (f *Failure) Unwrap() error {
	switch f.Kind {
	case KindInvalidCredentials:
		return ErrInvalidCredentials
	case KindAlreadyExists:
		return ErrAlreadyExists
	case KindValidation:
		return ErrValidation
	case KindRateLimited:
		return ErrRateLimited
	default:
		return ErrInternal
	}
}

// WithDetail returns a copy of f with a different detail message.
func (f *Failure) WithDetail(detail string) *Failure {
	cp := *f
	cp.Detail = detail
	return &cp
}

// InvalidCredentials is the single failure used for every credential check
// (unknown email, wrong password, bad/expired/revoked/reused refresh token).
func InvalidCredentials() *Failure {
	return &Failure{
		Kind:       KindInvalidCredentials,
		Code:       "AUTH-001",
		Title:      "Invalid credentials.",
		Suggestion: "Check the user credentials.",
		Detail:     "The credentials are not valid.",
	}
}

// AlreadyExists reports a registration conflict.
func AlreadyExists() *Failure {
	return &Failure{
		Kind:       KindAlreadyExists,
		Code:       "AUTH-002",
		Title:      "User already exists.",
		Suggestion: "The user already exists.",
		Detail:     "The user already exists.",
	}
}

// RateLimited reports a temporary login lock.
func RateLimited() *Failure {
	return &Failure{
		Kind:       KindRateLimited,
		Code:       "AUTH-003",
		Title:      "Too many attempts.",
		Suggestion: "Wait before trying again.",
		Detail:     "Login is temporarily locked for this account and address.",
	}
}

// Validation reports malformed input.
func Validation(detail string) *Failure {
	return &Failure{
		Kind:       KindValidation,
		Code:       "ERROR-001",
		Title:      "Invalid request body.",
		Suggestion: "Check the body of the request.",
		Detail:     detail,
	}
}

// Internal reports an unexpected failure without leaking its cause.
func Internal() *Failure {
	return &Failure{
		Kind:       KindInternal,
		Code:       "ERROR-000",
		Title:      "Internal Server Error",
		Suggestion: "Please try again later",
		Detail:     "An unknown error occurred",
	}
}

// AsFailure converts any error to a Failure; unknown errors become Internal.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	switch {
	case errors.Is(err, ErrAlreadyExists):
		return AlreadyExists()
	case errors.Is(err, ErrRateLimited):
		return RateLimited()
	case errors.Is(err, ErrInvalidCredentials):
		return InvalidCredentials()
	}
	return Internal()
}

// KindOf reports the failure kind of err.
func KindOf(err error) Kind { return AsFailure(err).Kind }
