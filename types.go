// types.go: Common data types shared by the resolver, loaders and registry
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package shimbridge

import (
	"fmt"
	"io"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/agilira/go-timecache"
)

// BundleRef identifies a bundle in the host module system.
type BundleRef struct {
	ID           int64  `json:"id" yaml:"id"`
	SymbolicName string `json:"symbolic_name" yaml:"symbolic_name"`
	Version      string `json:"version,omitempty" yaml:"version,omitempty"`
}

// String returns "symbolic-name/version [id]".
func (b BundleRef) String() string {
	if b.Version == "" {
		return fmt.Sprintf("%s [%d]", b.SymbolicName, b.ID)
	}
	return fmt.Sprintf("%s/%s [%d]", b.SymbolicName, b.Version, b.ID)
}

// Resource is a content locator returned by entry and resource lookups.
type Resource struct {
	URL    *url.URL
	opener func() (io.ReadCloser, error)
}

// NewResource creates a Resource whose content is produced by open.
func NewResource(u *url.URL, open func() (io.ReadCloser, error)) *Resource {
	return &Resource{URL: u, opener: open}
}

// Open returns a reader over the resource content.
func (r *Resource) Open() (io.ReadCloser, error) {
	if r.opener == nil {
		return nil, fmt.Errorf("resource %s has no content", r)
	}
	return r.opener()
}

func (r *Resource) String() string {
	if r == nil || r.URL == nil {
		return "<nil>"
	}
	return r.URL.String()
}

// ModuleUnit is a raw compiled-code payload read from one bundle entry.
type ModuleUnit struct {
	Name    string
	Path    string
	Bytes   []byte
	Origin  BundleRef
	Locator string
}

// LoadedType is the runtime type produced by a loader. Pointer identity is
// type identity: two lookups that must agree return the same *LoadedType.
type LoadedType struct {
	name         string
	pkg          string
	loader       Loader
	module       *BundleRef
	constructors []Constructor
	payload      any
	metadata     map[string]string
	definedAt    time.Time
}

// TypeSpec carries everything needed to define a LoadedType.
type TypeSpec struct {
	Name         string
	Module       *BundleRef
	Constructors []Constructor
	Payload      any
	Metadata     map[string]string
}

// NewLoadedType defines a type attributed to loader.
func NewLoadedType(loader Loader, spec TypeSpec) *LoadedType {
	ctors := make([]Constructor, len(spec.Constructors))
	copy(ctors, spec.Constructors)
	meta := make(map[string]string, len(spec.Metadata))
	for k, v := range spec.Metadata {
		meta[k] = v
	}
	pkg, _ := splitClassName(spec.Name)
	return &LoadedType{
		name:         spec.Name,
		pkg:          pkg,
		loader:       loader,
		module:       spec.Module,
		constructors: ctors,
		payload:      spec.Payload,
		metadata:     meta,
		definedAt:    time.Unix(0, timecache.CachedTimeNano()),
	}
}

// Name returns the fully qualified name.
func (t *LoadedType) Name() string { return t.name }

// Package returns the package part of the name ("" for the default package).
func (t *LoadedType) Package() string { return t.pkg }

// DefinedBy returns the loader that defined the type.
func (t *LoadedType) DefinedBy() Loader { return t.loader }

// Module returns the owning bundle, if the type came from one.
func (t *LoadedType) Module() (BundleRef, bool) {
	if t.module == nil {
		return BundleRef{}, false
	}
	return *t.module, true
}

// Constructors returns the constructor variants in declaration order.
func (t *LoadedType) Constructors() []Constructor {
	out := make([]Constructor, len(t.constructors))
	copy(out, t.constructors)
	return out
}

// Payload returns definer-specific data (a compiled wasm module, for instance).
func (t *LoadedType) Payload() any { return t.payload }

// Metadata returns a copy of the type metadata.
func (t *LoadedType) Metadata() map[string]string {
	out := make(map[string]string, len(t.metadata))
	for k, v := range t.metadata {
		out[k] = v
	}
	return out
}

// DefinedAt returns when the type was defined.
func (t *LoadedType) DefinedAt() time.Time { return t.definedAt }

func (t *LoadedType) String() string { return t.name }

// Constructor is one entry of a type's constructor variant set.
type Constructor struct {
	Label  string
	Params []reflect.Type
	Build  func(args []any) (any, error)
}

// Arity returns the parameter count.
func (c Constructor) Arity() int { return len(c.Params) }

// Accepts reports whether every argument can be passed to the matching
// parameter. A nil argument is compatible with any parameter type.
func (c Constructor) Accepts(args []any) bool {
	if len(args) != len(c.Params) {
		return false
	}
	for i, arg := range args {
		if arg == nil {
			continue
		}
		if !reflect.TypeOf(arg).AssignableTo(c.Params[i]) {
			return false
		}
	}
	return true
}

// Signature renders the parameter list, e.g. "(string, int)".
func (c Constructor) Signature() string {
	parts := make([]string, len(c.Params))
	for i, p := range c.Params {
		parts[i] = p.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// splitClassName splits "a.b.C" into ("a.b", "C").
func splitClassName(name string) (pkg, simple string) {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 {
		return "", name
	}
	return name[:idx], name[idx+1:]
}
