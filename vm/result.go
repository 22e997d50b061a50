package vm

// ---------------------------------------------------------------------------
// Result: explicit success/failure values
// ---------------------------------------------------------------------------

// Result carries either a success value or a descriptive failure. Lookups
// that may legitimately miss (method resolution) return a Result instead of
// an error so the caller decides whether the miss is fatal.
type Result struct {
	value Value
	err   error
}

// Success wraps a value in a successful Result.
func Success(v Value) Result {
	return Result{value: v}
}

// Failure wraps an error in a failed Result.
func Failure(err error) Result {
	return Result{err: err}
}

// IsSuccess reports whether the Result holds a value.
func (r Result) IsSuccess() bool {
	return r.err == nil
}

// IsFailure reports whether the Result holds a failure.
func (r Result) IsFailure() bool {
	return r.err != nil
}

// Value returns the success value, or nil for a failure.
func (r Result) Value() Value {
	return r.value
}

// Err returns the failure, or nil for a success.
func (r Result) Err() error {
	return r.err
}
