package generic

import "fmt"

type Void = struct{}

func NewVoid() Void { return Void{} }

type Result[T any] struct {
	Value T
	Error error
}

// NewResult wraps a (T, error) return value from another function call as a Result[T].
func NewResult[T any](value T, err error) Result[T] {
	return Result[T]{Value: value, Error: err}
}

func (r Result[T]) IsOk() bool { return r.Error == nil }

func (r Result[T]) IsErr() bool { return r.Error != nil }

// Expect returns the contained value, or panics with the supplied error
// message and the contained error.
func (r Result[T]) Expect(msg string) T {
	if r.Error == nil {
		return r.Value
	}
	panic(fmt.Errorf("%s: %w", msg, r.Error))
}

// Unwrap returns the contained value, or panics if there is an error.
func (r Result[T]) Unwrap() T {
	return r.Expect("tried to Unwrap() an Err")
}

// Unwrap is a shortcut for NewResult(...).Unwrap().
func Unwrap[T any](value T, err error) T {
	return NewResult(value, err).Unwrap()
}

// Unwrap_ is like Unwrap, but for return values that are just an error.
func Unwrap_(err error) {
	NewResult(NewVoid(), err).Unwrap()
}
