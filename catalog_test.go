// catalog_test.go: constructor table and typed builder tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package shimbridge

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorTable_Register(t *testing.T) {
	t.Run("PreservesOrderAndLabels", func(t *testing.T) {
		table := NewConstructorTable()
		require.NoError(t, table.Register("a.C",
			Ctor1("by-name", func(s string) (any, error) { return s, nil }),
			Ctor0("", func() (any, error) { return "default", nil })))
		require.NoError(t, table.Register("a.C",
			Ctor2("pair", func(a, b string) (any, error) { return a + b, nil })))

		variants := table.Variants("a.C")
		require.Len(t, variants, 3)
		assert.Equal(t, "by-name", variants[0].Label)
		assert.Equal(t, "a.C#1", variants[1].Label)
		assert.Equal(t, "pair", variants[2].Label)
	})

	t.Run("RejectsInvalid", func(t *testing.T) {
		table := NewConstructorTable()
		assert.Error(t, table.Register(""))
		assert.Error(t, table.Register("a.C", Constructor{Label: "nil-build"}))
		assert.Error(t, table.Register("a.C", Constructor{
			Label:  "nil-param",
			Params: []reflect.Type{nil},
			Build:  func([]any) (any, error) { return nil, nil },
		}))

		require.NoError(t, table.Register("a.C", Ctor0("x", func() (any, error) { return nil, nil })))
		err := table.Register("a.C", Ctor0("x", func() (any, error) { return nil, nil }))
		assert.True(t, HasErrorCode(err, ErrCodeCatalogError))
	})

	t.Run("MustRegisterPanics", func(t *testing.T) {
		assert.Panics(t, func() { NewConstructorTable().MustRegister("") })
	})

	t.Run("VariantsAreCopied", func(t *testing.T) {
		table := NewConstructorTable()
		table.MustRegister("a.C", Ctor0("x", func() (any, error) { return nil, nil }))
		v := table.Variants("a.C")
		v[0].Label = "mutated"
		assert.Equal(t, "x", table.Variants("a.C")[0].Label)
		assert.Empty(t, table.Variants("unknown"))
	})
}

func TestConstructorTable_Select(t *testing.T) {
	table := NewConstructorTable()
	table.MustRegister("a.C",
		Ctor0("zero", func() (any, error) { return 0, nil }),
		Ctor1("one", func(int) (any, error) { return 1, nil }))

	all, err := table.Select("a.C", nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	picked, err := table.Select("a.C", []string{"one", "zero"})
	require.NoError(t, err)
	require.Len(t, picked, 2)
	assert.Equal(t, "one", picked[0].Label)

	_, err = table.Select("a.C", []string{"missing"})
	assert.Error(t, err)
}

type shimConfig struct {
	name  string
	count int
}

func TestTypedBuilders(t *testing.T) {
	t.Run("Ctor1", func(t *testing.T) {
		c := Ctor1("by-name", func(name string) (any, error) { return shimConfig{name: name}, nil })
		assert.Equal(t, 1, c.Arity())
		obj, err := c.Build([]any{"cdh"})
		require.NoError(t, err)
		assert.Equal(t, shimConfig{name: "cdh"}, obj)
	})

	t.Run("NilBecomesZeroValue", func(t *testing.T) {
		c := Ctor2("pair", func(name string, n int) (any, error) { return shimConfig{name: name, count: n}, nil })
		obj, err := c.Build([]any{nil, 3})
		require.NoError(t, err)
		assert.Equal(t, shimConfig{count: 3}, obj)
	})

	t.Run("InterfaceParameter", func(t *testing.T) {
		c := Ctor1("stringer", func(s fmt.Stringer) (any, error) { return s.String(), nil })
		assert.True(t, c.Accepts([]any{BundleRef{ID: 1, SymbolicName: "b"}}))
		obj, err := c.Build([]any{BundleRef{ID: 1, SymbolicName: "b"}})
		require.NoError(t, err)
		assert.Equal(t, "b [1]", obj)
	})

	t.Run("Ctor3", func(t *testing.T) {
		c := Ctor3("triple", func(a string, b int, c bool) (any, error) {
			return fmt.Sprintf("%s-%d-%t", a, b, c), nil
		})
		obj, err := c.Build([]any{"x", 2, true})
		require.NoError(t, err)
		assert.Equal(t, "x-2-true", obj)
	})

	t.Run("WrongArgumentType", func(t *testing.T) {
		c := Ctor1("by-name", func(name string) (any, error) { return name, nil })
		_, err := c.Build([]any{42})
		assert.Error(t, err)
	})

	t.Run("MissingArgument", func(t *testing.T) {
		c := Ctor1("by-name", func(name string) (any, error) { return name, nil })
		_, err := c.Build(nil)
		assert.Error(t, err)
	})
}
