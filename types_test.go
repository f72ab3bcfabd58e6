// types_test.go: tests for shared types and the static loader
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package shimbridge

import (
	"context"
	"io"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitClassName(t *testing.T) {
	tests := []struct {
		name, pkg, simple string
	}{
		{"org.pentaho.Shim", "org.pentaho", "Shim"},
		{"Shim", "", "Shim"},
		{"a.B", "a", "B"},
	}
	for _, tt := range tests {
		pkg, simple := splitClassName(tt.name)
		if pkg != tt.pkg || simple != tt.simple {
			t.Errorf("splitClassName(%q) = (%q, %q), want (%q, %q)", tt.name, pkg, simple, tt.pkg, tt.simple)
		}
	}
}

func TestBundleRef_String(t *testing.T) {
	assert.Equal(t, "shim [3]", BundleRef{ID: 3, SymbolicName: "shim"}.String())
	assert.Equal(t, "shim/1.2 [3]", BundleRef{ID: 3, SymbolicName: "shim", Version: "1.2"}.String())
}

func TestConstructor_Accepts(t *testing.T) {
	stringType := reflect.TypeFor[string]()
	anyType := reflect.TypeFor[any]()
	readerType := reflect.TypeFor[io.Reader]()

	tests := []struct {
		name   string
		params []reflect.Type
		args   []any
		want   bool
	}{
		{"NoArgs", nil, []any{}, true},
		{"ArityMismatch", []reflect.Type{stringType}, []any{}, false},
		{"ExactType", []reflect.Type{stringType}, []any{"x"}, true},
		{"WrongType", []reflect.Type{stringType}, []any{42}, false},
		{"NilMatchesAnything", []reflect.Type{stringType}, []any{nil}, true},
		{"InterfaceParam", []reflect.Type{anyType}, []any{42}, true},
		{"ImplementsInterface", []reflect.Type{readerType}, []any{&emptyReader{}}, true},
		{"DoesNotImplement", []reflect.Type{readerType}, []any{"x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Constructor{Params: tt.params}
			assert.Equal(t, tt.want, c.Accepts(tt.args))
		})
	}

	sig := Constructor{Params: []reflect.Type{stringType, anyType}}.Signature()
	assert.Equal(t, "(string, interface {})", sig)
}

type emptyReader struct{}

func (emptyReader) Read(p []byte) (int, error) { return 0, io.EOF }

func TestLoadedType_Accessors(t *testing.T) {
	loader := NewStaticLoader("owner")
	ref := BundleRef{ID: 9, SymbolicName: "b"}
	lt := NewLoadedType(loader, TypeSpec{
		Name:     "a.b.C",
		Module:   &ref,
		Metadata: map[string]string{"k": "v"},
	})

	assert.Equal(t, "a.b.C", lt.Name())
	assert.Equal(t, "a.b", lt.Package())
	assert.Equal(t, Loader(loader), lt.DefinedBy())
	got, ok := lt.Module()
	assert.True(t, ok)
	assert.Equal(t, ref, got)
	assert.False(t, lt.DefinedAt().IsZero())

	meta := lt.Metadata()
	meta["k"] = "changed"
	assert.Equal(t, "v", lt.Metadata()["k"], "metadata is copied")

	_, ok = NewLoadedType(loader, TypeSpec{Name: "X"}).Module()
	assert.False(t, ok)
}

func TestStaticLoader(t *testing.T) {
	ctx := context.Background()

	t.Run("DefineTypeIsIdempotent", func(t *testing.T) {
		l := NewStaticLoader("legacy")
		first := l.DefineType("a.B")
		second := l.DefineType("a.B", Ctor0("other", func() (any, error) { return nil, nil }))
		assert.Same(t, first, second)
		assert.Empty(t, second.Constructors())

		got, err := l.LoadType(ctx, "a.B")
		require.NoError(t, err)
		assert.Same(t, first, got)
		assert.Equal(t, 1, l.Len())
	})

	t.Run("MissIsNotFound", func(t *testing.T) {
		l := NewStaticLoader("legacy")
		_, err := l.LoadType(ctx, "missing.Type")
		assert.True(t, IsNotFound(err))
		_, err = l.FindResource("missing.txt")
		assert.True(t, IsNotFound(err))
	})

	t.Run("ParentFallback", func(t *testing.T) {
		parent := NewStaticLoader("parent")
		pt := parent.DefineType("p.T")
		parent.AddResource("/conf/p.txt", []byte("parent"))

		child := NewStaticLoader("child").WithParent(parent)
		got, err := child.LoadType(ctx, "p.T")
		require.NoError(t, err)
		assert.Same(t, pt, got)

		res, err := child.FindResource("conf/p.txt")
		require.NoError(t, err)
		assert.Equal(t, "parent", readAll(t, res))
	})

	t.Run("ModuleAttribution", func(t *testing.T) {
		ref := BundleRef{ID: 2, SymbolicName: "wired"}
		l := NewStaticLoader("wiring").WithModule(ref)
		lt := l.DefineType("w.T")
		got, ok := lt.Module()
		assert.True(t, ok)
		assert.Equal(t, ref, got)
	})

	t.Run("ConcurrentDefine", func(t *testing.T) {
		l := NewStaticLoader("legacy")
		results := make([]*LoadedType, 32)
		var wg sync.WaitGroup
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = l.DefineType("c.T")
			}(i)
		}
		wg.Wait()
		for _, r := range results {
			assert.Same(t, results[0], r)
		}
	})
}

func readAll(t *testing.T, res *Resource) string {
	t.Helper()
	rc, err := res.Open()
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}
