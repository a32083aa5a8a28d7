package supervisor

// conflictError signals a start while the model is already admitted
// (starting, running, or carrying an unacknowledged error) for 409 mapping.
type conflictError struct {
	modelID int64
	state   State
}

func (e conflictError) Error() string {
	return "model already " + string(e.state)
}

// IsConflict reports whether err indicates a duplicate lifecycle request.
func IsConflict(err error) bool {
	_, ok := err.(conflictError)
	return ok
}

// notFoundError signals a stop/clear/subscribe against a model without the
// expected registry entry.
type notFoundError struct{ what string }

func (e notFoundError) Error() string { return e.what + " not found" }

func errNotFound(what string) error { return notFoundError{what: what} }

// IsNotFound reports whether err indicates a missing instance.
func IsNotFound(err error) bool {
	_, ok := err.(notFoundError)
	return ok
}

// preconditionError signals a start against an artifact that is not in a
// ready-to-serve state.
type preconditionError struct{ msg string }

func (e preconditionError) Error() string { return e.msg }

// IsPrecondition reports whether err indicates an unmet external precondition.
func IsPrecondition(err error) bool {
	_, ok := err.(preconditionError)
	return ok
}
