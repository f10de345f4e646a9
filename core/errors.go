package core

// causeError attaches an underlying cause to one of the package sentinels.
// errors.Is matches both the sentinel and anything in the cause chain.
type causeError struct {
	kind  error
	cause error
}

func wrapError(kind, cause error) error {
	if cause == nil {
		return kind
	}
	return &causeError{kind: kind, cause: cause}
}

func (e *causeError) Error() string {
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *causeError) Is(target error) bool {
	return target == e.kind
}

func (e *causeError) Unwrap() error {
	return e.cause
}
