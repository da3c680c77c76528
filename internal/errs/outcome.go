package errs

// Outcome is a tagged success-or-failure result handed to transport code.
// Cause keeps the original error for logging; it is never sent to clients.
type Outcome[T any] struct {
	Value   T
	Failure *Failure
	Cause   error
}

// OK reports whether the outcome is a success.
func (o Outcome[T]) OK() bool { return o.Failure == nil }

// Success wraps a payload.
func Success[T any](v T) Outcome[T] { return Outcome[T]{Value: v} }

// Fail wraps a failure.
func Fail[T any](f *Failure) Outcome[T] { return Outcome[T]{Failure: f, Cause: f} }

// Resolve collapses a (value, error) pair into an Outcome.
func Resolve[T any](v T, err error) Outcome[T] {
	if err != nil {
		return Outcome[T]{Failure: AsFailure(err), Cause: err}
	}
	return Success(v)
}
