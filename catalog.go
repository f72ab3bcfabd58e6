// catalog.go: Constructor tables and typed constructor builders
//
// Types defined from bundle units have no compiled constructors of their own.
// Their constructor variant sets are registered up front in a ConstructorTable,
// and the unit definers attach the registered variants to the type they define.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package shimbridge

import (
	"fmt"
	"reflect"
	"sync"
)

// ConstructorTable maps fully qualified names to ordered constructor variants.
type ConstructorTable struct {
	mu       sync.RWMutex
	variants map[string][]Constructor
}

// NewConstructorTable creates an empty table.
func NewConstructorTable() *ConstructorTable {
	return &ConstructorTable{variants: make(map[string][]Constructor)}
}

// Register appends ctors to the variant set of className, preserving order.
// Labels must be unique per class; unlabeled variants get "<class>#<index>".
func (ct *ConstructorTable) Register(className string, ctors ...Constructor) error {
	if className == "" {
		return NewCatalogError(className, "class name cannot be empty")
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()

	existing := ct.variants[className]
	seen := make(map[string]bool, len(existing)+len(ctors))
	for _, c := range existing {
		seen[c.Label] = true
	}

	added := make([]Constructor, 0, len(ctors))
	for _, c := range ctors {
		if c.Build == nil {
			return NewCatalogError(className, "constructor build function cannot be nil")
		}
		for i, p := range c.Params {
			if p == nil {
				return NewCatalogError(className, fmt.Sprintf("parameter %d has no type", i))
			}
		}
		if c.Label == "" {
			c.Label = fmt.Sprintf("%s#%d", className, len(existing)+len(added))
		}
		if seen[c.Label] {
			return NewCatalogError(className, "duplicate constructor label "+c.Label)
		}
		seen[c.Label] = true
		added = append(added, c)
	}

	ct.variants[className] = append(existing, added...)
	return nil
}

// MustRegister is Register for package initialization; it panics on error.
func (ct *ConstructorTable) MustRegister(className string, ctors ...Constructor) {
	if err := ct.Register(className, ctors...); err != nil {
		panic(err)
	}
}

// Variants returns the registered variants of className in registration order.
func (ct *ConstructorTable) Variants(className string) []Constructor {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	v := ct.variants[className]
	out := make([]Constructor, len(v))
	copy(out, v)
	return out
}

// Select returns the variants of className named by labels, in the order given.
func (ct *ConstructorTable) Select(className string, labels []string) ([]Constructor, error) {
	all := ct.Variants(className)
	if len(labels) == 0 {
		return all, nil
	}
	byLabel := make(map[string]Constructor, len(all))
	for _, c := range all {
		byLabel[c.Label] = c
	}
	out := make([]Constructor, 0, len(labels))
	for _, label := range labels {
		c, ok := byLabel[label]
		if !ok {
			return nil, fmt.Errorf("class %s has no constructor labeled %q", className, label)
		}
		out = append(out, c)
	}
	return out, nil
}

// Typed constructor builders. A nil argument is passed as the zero value of
// the parameter type.

// Ctor0 builds a zero-argument constructor.
func Ctor0(label string, fn func() (any, error)) Constructor {
	return Constructor{
		Label:  label,
		Params: nil,
		Build: func(args []any) (any, error) {
			return fn()
		},
	}
}

// Ctor1 builds a one-argument constructor.
func Ctor1[A any](label string, fn func(A) (any, error)) Constructor {
	return Constructor{
		Label:  label,
		Params: []reflect.Type{reflect.TypeFor[A]()},
		Build: func(args []any) (any, error) {
			a, err := argAs[A](args, 0)
			if err != nil {
				return nil, err
			}
			return fn(a)
		},
	}
}

// Ctor2 builds a two-argument constructor.
func Ctor2[A, B any](label string, fn func(A, B) (any, error)) Constructor {
	return Constructor{
		Label:  label,
		Params: []reflect.Type{reflect.TypeFor[A](), reflect.TypeFor[B]()},
		Build: func(args []any) (any, error) {
			a, err := argAs[A](args, 0)
			if err != nil {
				return nil, err
			}
			b, err := argAs[B](args, 1)
			if err != nil {
				return nil, err
			}
			return fn(a, b)
		},
	}
}

// Ctor3 builds a three-argument constructor.
func Ctor3[A, B, C any](label string, fn func(A, B, C) (any, error)) Constructor {
	return Constructor{
		Label:  label,
		Params: []reflect.Type{reflect.TypeFor[A](), reflect.TypeFor[B](), reflect.TypeFor[C]()},
		Build: func(args []any) (any, error) {
			a, err := argAs[A](args, 0)
			if err != nil {
				return nil, err
			}
			b, err := argAs[B](args, 1)
			if err != nil {
				return nil, err
			}
			c, err := argAs[C](args, 2)
			if err != nil {
				return nil, err
			}
			return fn(a, b, c)
		},
	}
}

// argAs converts args[i] to T using assignability, not just type identity.
func argAs[T any](args []any, i int) (T, error) {
	var zero T
	if i >= len(args) {
		return zero, fmt.Errorf("missing argument %d", i)
	}
	arg := args[i]
	if arg == nil {
		return zero, nil
	}
	if v, ok := arg.(T); ok {
		return v, nil
	}
	target := reflect.TypeFor[T]()
	rv := reflect.ValueOf(arg)
	if !rv.Type().AssignableTo(target) {
		return zero, fmt.Errorf("argument %d: %s is not assignable to %s", i, rv.Type(), target)
	}
	out := reflect.New(target).Elem()
	out.Set(rv)
	return out.Interface().(T), nil
}
