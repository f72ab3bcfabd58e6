// loader.go: Loader abstraction and a map-backed loader implementation
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package shimbridge

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"strings"
	"sync"
)

// Loader resolves type names and resource paths from a single source.
//
// Both methods return an error satisfying IsNotFound when the loader does
// not know the name. Any other error is a failure of the source itself.
type Loader interface {
	LoadType(ctx context.Context, name string) (*LoadedType, error)
	FindResource(name string) (*Resource, error)
}

// DelegateSource hands out the loader belonging to a legacy plugin,
// blocking until the plugin is available or ctx ends.
type DelegateSource interface {
	AwaitDelegate(ctx context.Context, pluginType, pluginID string) (Loader, error)
}

// StaticLoader is a thread-safe, map-backed Loader.
//
// Legacy plugins use it to publish the types they provide; bundles use it as
// the wiring loader for types imported from elsewhere. Types defined through
// DefineType are created once per name, so repeated lookups return the same
// *LoadedType.
type StaticLoader struct {
	name      string
	module    *BundleRef
	parent    Loader
	mu        sync.RWMutex
	types     map[string]*LoadedType
	resources map[string][]byte
}

// NewStaticLoader creates an empty loader. name is used in resource locators.
func NewStaticLoader(name string) *StaticLoader {
	return &StaticLoader{
		name:      name,
		types:     make(map[string]*LoadedType),
		resources: make(map[string][]byte),
	}
}

// WithModule attributes every type defined afterwards to bundle ref.
func (l *StaticLoader) WithModule(ref BundleRef) *StaticLoader {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.module = &ref
	return l
}

// WithParent sets a loader consulted when this one misses.
func (l *StaticLoader) WithParent(parent Loader) *StaticLoader {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.parent = parent
	return l
}

// DefineType registers name with the given constructor variants. Defining an
// existing name returns the type defined first and ignores ctors.
func (l *StaticLoader) DefineType(name string, ctors ...Constructor) *LoadedType {
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.types[name]; ok {
		return existing
	}
	t := NewLoadedType(l, TypeSpec{Name: name, Module: l.module, Constructors: ctors})
	l.types[name] = t
	return t
}

// AddResource publishes content under path (leading "/" is ignored).
func (l *StaticLoader) AddResource(path string, content []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resources[strings.TrimPrefix(path, "/")] = content
}

// LoadType implements Loader.
func (l *StaticLoader) LoadType(ctx context.Context, name string) (*LoadedType, error) {
	l.mu.RLock()
	t, ok := l.types[name]
	parent := l.parent
	l.mu.RUnlock()
	if ok {
		return t, nil
	}
	if parent != nil {
		return parent.LoadType(ctx, name)
	}
	return nil, NewNotFoundError("type", name)
}

// FindResource implements Loader.
func (l *StaticLoader) FindResource(name string) (*Resource, error) {
	key := strings.TrimPrefix(name, "/")
	l.mu.RLock()
	content, ok := l.resources[key]
	parent := l.parent
	l.mu.RUnlock()
	if !ok {
		if parent != nil {
			return parent.FindResource(name)
		}
		return nil, NewNotFoundError("resource", name)
	}
	u := &url.URL{Scheme: "loader", Host: l.name, Path: "/" + key}
	return NewResource(u, func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(content)), nil
	}), nil
}

// Len returns the number of defined types.
func (l *StaticLoader) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.types)
}

func (l *StaticLoader) String() string { return "static-loader:" + l.name }
