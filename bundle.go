// bundle.go: Host module system boundary and an fs.FS backed bundle
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package shimbridge

import (
	"errors"
	"io"
	"io/fs"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// Bundle is the view of one host module the resolver needs.
//
// FindEntries enumerates entries under dir whose file name matches
// filePattern (path.Match syntax), descending at most depth directory levels
// below dir. Results are ordered; a missing dir yields no entries and no error.
type Bundle interface {
	Ref() BundleRef
	FindEntries(dir, filePattern string, depth int) ([]*Resource, error)
	WiringLoader() Loader
}

// FSBundle exposes an fs.FS (a directory, an embed.FS, an unpacked archive)
// as a Bundle.
type FSBundle struct {
	ref    BundleRef
	fsys   fs.FS
	wiring Loader
}

// BundleOption configures an FSBundle.
type BundleOption func(*FSBundle)

// WithWiring sets the loader that resolves what the bundle imports.
func WithWiring(loader Loader) BundleOption {
	return func(b *FSBundle) {
		b.wiring = loader
	}
}

// NewFSBundle creates a bundle over fsys.
func NewFSBundle(ref BundleRef, fsys fs.FS, opts ...BundleOption) *FSBundle {
	b := &FSBundle{ref: ref, fsys: fsys}
	for _, opt := range opts {
		opt(b)
	}
	if b.wiring == nil {
		b.wiring = NewStaticLoader(ref.SymbolicName).WithModule(ref)
	}
	return b
}

// Ref implements Bundle.
func (b *FSBundle) Ref() BundleRef { return b.ref }

// WiringLoader implements Bundle.
func (b *FSBundle) WiringLoader() Loader { return b.wiring }

// FindEntries implements Bundle.
func (b *FSBundle) FindEntries(dir, filePattern string, depth int) ([]*Resource, error) {
	root, err := normalizeBundlePath(dir)
	if err != nil {
		return nil, err
	}
	if _, err := path.Match(filePattern, ""); err != nil {
		return nil, NewBundleError(dir, "invalid file pattern "+filePattern, err)
	}
	if depth < 0 {
		depth = 0
	}

	var results []*Resource
	if err := b.scanDirectory(root, filePattern, depth, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// scanDirectory collects matching files in dir, then recurses while depth allows.
func (b *FSBundle) scanDirectory(dir, pattern string, depth int, results *[]*Resource) error {
	info, err := fs.Stat(b.fsys, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return NewBundleError(dir, "failed to stat directory", err)
	}
	if !info.IsDir() {
		return nil
	}

	entries, err := fs.ReadDir(b.fsys, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return NewBundleError(dir, "failed to read directory", err)
	}

	var subdirs []string
	for _, entry := range entries {
		full := path.Join(dir, entry.Name())
		if entry.IsDir() {
			subdirs = append(subdirs, full)
			continue
		}
		if matched, _ := path.Match(pattern, entry.Name()); matched {
			*results = append(*results, b.resourceFor(full))
		}
	}

	if depth == 0 {
		return nil
	}
	for _, sub := range subdirs {
		if err := b.scanDirectory(sub, pattern, depth-1, results); err != nil {
			return err
		}
	}
	return nil
}

func (b *FSBundle) resourceFor(name string) *Resource {
	u := &url.URL{
		Scheme: "bundle",
		Host:   strconv.FormatInt(b.ref.ID, 10),
		Path:   "/" + strings.TrimPrefix(name, "./"),
	}
	fsys := b.fsys
	return NewResource(u, func() (io.ReadCloser, error) {
		return fsys.Open(name)
	})
}

// normalizeBundlePath turns "/a/b", "a/b/" or "/" into an fs.FS path.
func normalizeBundlePath(p string) (string, error) {
	clean := strings.Trim(p, "/")
	if clean == "" {
		return ".", nil
	}
	if !fs.ValidPath(clean) {
		return "", NewBundleError(p, "invalid or escaping bundle path", nil)
	}
	return clean, nil
}
