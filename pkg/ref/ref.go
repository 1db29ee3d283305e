// Package ref provides addressable references: get/set handles over plain
// variables, closures and paths into nested map structures. They source and
// sink values for the action package's Get and Set leaves.
//
// References provide no synchronization. Concurrent writers through the same
// reference race.
package ref

import (
	"fmt"

	"github.com/rendis/opflow/pkg/schema"
)

// Reader yields the current value of a location.
type Reader[T any] interface {
	Get() (T, error)
}

// Writer stores a value into a location.
type Writer[T any] interface {
	Set(v T) error
}

// Ref is a readable and writable location.
type Ref[T any] interface {
	Reader[T]
	Writer[T]
}

// Variable addresses a Go variable through a pointer.
type Variable[T any] struct {
	p *T
}

// Var returns a reference to *p.
func Var[T any](p *T) *Variable[T] {
	return &Variable[T]{p: p}
}

func (v *Variable[T]) Get() (T, error) { return *v.p, nil }

func (v *Variable[T]) Set(val T) error {
	*v.p = val
	return nil
}

// FuncRef addresses a location through a getter and a setter closure.
// Either may be nil, in which case the corresponding operation fails.
type FuncRef[T any] struct {
	get func() T
	set func(T)
}

// Funcs returns a reference backed by closures.
func Funcs[T any](get func() T, set func(T)) *FuncRef[T] {
	return &FuncRef[T]{get: get, set: set}
}

func (f *FuncRef[T]) Get() (T, error) {
	if f.get == nil {
		var zero T
		return zero, schema.NewError(schema.ErrCodeInvalidPath, "reference has no getter")
	}
	return f.get(), nil
}

func (f *FuncRef[T]) Set(v T) error {
	if f.set == nil {
		return schema.NewError(schema.ErrCodeInvalidPath, "reference has no setter")
	}
	f.set(v)
	return nil
}

// TypedRef narrows an untyped reference, such as a PathRef, to T.
type TypedRef[T any] struct {
	inner Ref[any]
}

// As returns r viewed as a Ref[T]. Reading a value of another type fails.
func As[T any](r Ref[any]) *TypedRef[T] {
	return &TypedRef[T]{inner: r}
}

func (t *TypedRef[T]) Get() (T, error) {
	var zero T
	v, err := t.inner.Get()
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, schema.NewErrorf(schema.ErrCodeInvalidPath,
			"%v holds %T, not %T", t.inner, v, zero)
	}
	return typed, nil
}

func (t *TypedRef[T]) Set(v T) error {
	return t.inner.Set(v)
}

func (t *TypedRef[T]) String() string {
	return fmt.Sprint(t.inner)
}

var (
	_ Ref[int] = (*Variable[int])(nil)
	_ Ref[int] = (*FuncRef[int])(nil)
	_ Ref[int] = (*TypedRef[int])(nil)
)
