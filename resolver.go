// resolver.go: Two-source type and resource resolution
//
// The DualResolver answers lookups from two module systems. Types are looked
// up in the bundle's own entries first, so a bundle can shadow a legacy type
// of the same name, and only then in the loader of the legacy target plugin,
// which may not exist yet and is awaited through a DelegateSource. Resources
// and generic LoadClass calls use different orders; each order is an explicit
// strategy list below.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package shimbridge

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// PluginTarget names the legacy plugin whose loader backs type resolution.
type PluginTarget struct {
	PluginType string `json:"plugin_type" yaml:"plugin_type"`
	PluginID   string `json:"plugin_id" yaml:"plugin_id"`
}

func (p PluginTarget) String() string { return p.PluginType + "/" + p.PluginID }

// ResolverStats counts resolution outcomes.
type ResolverStats struct {
	LocalDefinitions     int64 `json:"local_definitions"`
	DuplicateDefinitions int64 `json:"duplicate_definitions"`
	DelegateResolutions  int64 `json:"delegate_resolutions"`
	ResourceLookups      int64 `json:"resource_lookups"`
	Misses               int64 `json:"misses"`
	MalformedUnits       int64 `json:"malformed_units"`
}

type typeStrategy struct {
	name string
	find func(ctx context.Context, name string) (*LoadedType, error)
}

type resourceStrategy struct {
	name string
	find func(name string) (*Resource, error)
}

// DualResolver resolves names through a bundle and a legacy plugin loader.
// It also implements Loader, so it can serve as another loader's parent.
type DualResolver struct {
	bundle    Bundle
	parent    Loader
	delegates DelegateSource
	target    PluginTarget
	formats   []UnitFormat
	depth     int
	logger    Logger

	mu       sync.RWMutex
	defined  map[string]*LoadedType
	packages map[string]bool

	classOrder    []typeStrategy
	loadOrder     []typeStrategy
	resourceOrder []resourceStrategy

	localDefinitions     atomic.Int64
	duplicateDefinitions atomic.Int64
	delegateResolutions  atomic.Int64
	resourceLookups      atomic.Int64
	misses               atomic.Int64
	malformedUnits       atomic.Int64
}

// ResolverOption configures a DualResolver.
type ResolverOption func(*DualResolver)

// WithResolverLogger sets the resolver logger.
func WithResolverLogger(logger any) ResolverOption {
	return func(r *DualResolver) {
		r.logger = NewLogger(logger)
	}
}

// WithUnitFormats sets the entry formats tried, in order, for local types.
func WithUnitFormats(formats ...UnitFormat) ResolverOption {
	return func(r *DualResolver) {
		r.formats = append([]UnitFormat(nil), formats...)
	}
}

// WithEntryDepth sets how many directory levels below the package directory
// entry searches descend. The default is 0: the package directory only.
func WithEntryDepth(depth int) ResolverOption {
	return func(r *DualResolver) {
		if depth >= 0 {
			r.depth = depth
		}
	}
}

// NewDualResolver creates a resolver for bundle. parent is the loader supplied
// at construction time (may be nil); delegates supplies the target plugin's
// loader for type resolution (may be nil, disabling the delegate source).
func NewDualResolver(bundle Bundle, parent Loader, delegates DelegateSource, target PluginTarget, opts ...ResolverOption) *DualResolver {
	r := &DualResolver{
		bundle:    bundle,
		parent:    parent,
		delegates: delegates,
		target:    target,
		logger:    DefaultLogger(),
		defined:   make(map[string]*LoadedType),
		packages:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	if len(r.formats) == 0 {
		r.formats = []UnitFormat{{Suffix: DescriptorSuffix, Definer: NewDescriptorDefiner(nil)}}
	}
	r.logger = r.logger.With("bundle", bundle.Ref().String())

	r.classOrder = []typeStrategy{
		{name: "bundle-entries", find: r.findEntryType},
		{name: "plugin-delegate", find: r.findDelegateType},
	}
	r.loadOrder = []typeStrategy{
		{name: "parent", find: r.findParentType},
		{name: "bundle-wiring", find: r.findWiringType},
	}
	r.resourceOrder = []resourceStrategy{
		{name: "bundle-wiring", find: r.findWiringResource},
		{name: "bundle-entries", find: r.findEntryResource},
		{name: "parent", find: r.findParentResource},
	}
	return r
}

// ResolveClass resolves name with bundle entries taking precedence over the
// target plugin's loader. Types defined from bundle entries are memoized, so
// every call for the same name returns the same *LoadedType.
//
// A malformed entry is reported as MalformedUnit and never falls through to
// the plugin loader. The wait for the plugin loader honors ctx; on cancel
// the memo is left untouched.
func (r *DualResolver) ResolveClass(ctx context.Context, name string) (*LoadedType, error) {
	if t := r.lookupDefined(name); t != nil {
		return t, nil
	}
	return r.runTypeStrategies(ctx, name, r.classOrder)
}

// LoadClass resolves name from whatever source already has it: memoized
// local types, then the construction-time parent, then the bundle wiring.
func (r *DualResolver) LoadClass(ctx context.Context, name string) (*LoadedType, error) {
	if t := r.lookupDefined(name); t != nil {
		return t, nil
	}
	for _, strategy := range r.loadOrder {
		t, err := strategy.find(ctx, name)
		if err == nil && t != nil {
			return t, nil
		}
		if err != nil && !IsNotFound(err) {
			r.logger.Debug("Load strategy failed", "strategy", strategy.name, "name", name, "error", err)
		}
	}
	r.misses.Add(1)
	return nil, NewNotFoundError("type", name)
}

// ResolveResource finds path through the bundle wiring, then the bundle
// entries, then the construction-time parent. It never waits for the plugin
// registry.
func (r *DualResolver) ResolveResource(path string) (*Resource, error) {
	r.resourceLookups.Add(1)
	for _, strategy := range r.resourceOrder {
		res, err := strategy.find(path)
		if err == nil && res != nil {
			return res, nil
		}
		if err != nil && !IsNotFound(err) {
			r.logger.Debug("Resource strategy failed", "strategy", strategy.name, "path", path, "error", err)
		}
	}
	r.misses.Add(1)
	return nil, NewNotFoundError("resource", path)
}

// LoadType implements Loader using the ResolveClass order.
func (r *DualResolver) LoadType(ctx context.Context, name string) (*LoadedType, error) {
	return r.ResolveClass(ctx, name)
}

// FindResource implements Loader.
func (r *DualResolver) FindResource(name string) (*Resource, error) {
	return r.ResolveResource(name)
}

// ModuleOf returns the bundle owning t, if t was defined by this resolver.
func (r *DualResolver) ModuleOf(t *LoadedType) (BundleRef, bool) {
	if t == nil || t.DefinedBy() != Loader(r) {
		return BundleRef{}, false
	}
	if r.lookupDefined(t.Name()) != t {
		return BundleRef{}, false
	}
	return t.Module()
}

// Bundle returns the reference of the resolver's bundle.
func (r *DualResolver) Bundle() BundleRef {
	return r.bundle.Ref()
}

// Target returns the legacy plugin backing type resolution.
func (r *DualResolver) Target() PluginTarget {
	return r.target
}

// Packages lists the packages of locally defined types, sorted.
func (r *DualResolver) Packages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.packages))
	for p := range r.packages {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Defined returns the number of memoized local types.
func (r *DualResolver) Defined() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defined)
}

// Stats returns resolution counters.
func (r *DualResolver) Stats() ResolverStats {
	return ResolverStats{
		LocalDefinitions:     r.localDefinitions.Load(),
		DuplicateDefinitions: r.duplicateDefinitions.Load(),
		DelegateResolutions:  r.delegateResolutions.Load(),
		ResourceLookups:      r.resourceLookups.Load(),
		Misses:               r.misses.Load(),
		MalformedUnits:       r.malformedUnits.Load(),
	}
}

func (r *DualResolver) runTypeStrategies(ctx context.Context, name string, order []typeStrategy) (*LoadedType, error) {
	for _, strategy := range order {
		t, err := strategy.find(ctx, name)
		if err == nil && t != nil {
			return t, nil
		}
		if err != nil && !IsNotFound(err) {
			return nil, err
		}
	}
	r.misses.Add(1)
	return nil, NewNotFoundError("type", name)
}

// Type strategies

// findEntryType defines name from the single bundle entry derived from it:
// "a.b.C" is looked up as file "C<suffix>" under "/a/b".
func (r *DualResolver) findEntryType(ctx context.Context, name string) (*LoadedType, error) {
	pkg, simple := splitClassName(name)
	dir := "/"
	if pkg != "" {
		dir = "/" + strings.ReplaceAll(pkg, ".", "/")
	}

	for _, format := range r.formats {
		entries, err := r.bundle.FindEntries(dir, escapePattern(simple+format.Suffix), r.depth)
		if err != nil {
			return nil, err
		}
		switch len(entries) {
		case 0:
			continue
		case 1:
			return r.defineFromEntry(ctx, name, dir, format, entries[0])
		default:
			r.logger.Warn("Ambiguous bundle entries, ignoring", "name", name, "matches", len(entries))
		}
	}
	return nil, NewNotFoundError("type", name)
}

func (r *DualResolver) defineFromEntry(ctx context.Context, name, dir string, format UnitFormat, entry *Resource) (*LoadedType, error) {
	// Another caller may have defined it while we were searching.
	if t := r.lookupDefined(name); t != nil {
		return t, nil
	}

	content, err := readResource(entry)
	if err != nil {
		r.malformedUnits.Add(1)
		return nil, NewMalformedUnitError(name, entry.String(), err)
	}
	unit := ModuleUnit{
		Name:    name,
		Path:    dir,
		Bytes:   content,
		Origin:  r.bundle.Ref(),
		Locator: entry.String(),
	}
	t, err := format.Definer.Define(ctx, unit, r)
	if err != nil {
		r.malformedUnits.Add(1)
		return nil, NewMalformedUnitError(name, entry.String(), err)
	}
	return r.storeDefined(ctx, t), nil
}

func (r *DualResolver) findDelegateType(ctx context.Context, name string) (*LoadedType, error) {
	if r.delegates == nil {
		return nil, NewNotFoundError("type", name)
	}
	delegate, err := r.delegates.AwaitDelegate(ctx, r.target.PluginType, r.target.PluginID)
	if err != nil {
		return nil, err
	}
	t, err := delegate.LoadType(ctx, name)
	if err != nil {
		return nil, err
	}
	r.delegateResolutions.Add(1)
	return t, nil
}

func (r *DualResolver) findParentType(ctx context.Context, name string) (*LoadedType, error) {
	if r.parent == nil {
		return nil, NewNotFoundError("type", name)
	}
	return r.parent.LoadType(ctx, name)
}

func (r *DualResolver) findWiringType(ctx context.Context, name string) (*LoadedType, error) {
	wiring := r.bundle.WiringLoader()
	if wiring == nil {
		return nil, NewNotFoundError("type", name)
	}
	return wiring.LoadType(ctx, name)
}

// Resource strategies

func (r *DualResolver) findWiringResource(name string) (*Resource, error) {
	wiring := r.bundle.WiringLoader()
	if wiring == nil {
		return nil, NewNotFoundError("resource", name)
	}
	return wiring.FindResource(name)
}

// findEntryResource looks name up as a bundle entry: "a/b/c.txt" is file
// "c.txt" under "a/b", "c.txt" is file "c.txt" under the bundle root.
func (r *DualResolver) findEntryResource(name string) (*Resource, error) {
	trimmed := strings.TrimPrefix(name, "/")
	dir, file := "/", trimmed
	if idx := strings.LastIndexByte(trimmed, '/'); idx > 0 {
		dir, file = trimmed[:idx], trimmed[idx+1:]
	}
	if file == "" {
		return nil, NewNotFoundError("resource", name)
	}

	entries, err := r.bundle.FindEntries(dir, escapePattern(file), r.depth)
	if err != nil {
		return nil, err
	}
	if len(entries) != 1 {
		return nil, NewNotFoundError("resource", name)
	}
	return entries[0], nil
}

func (r *DualResolver) findParentResource(name string) (*Resource, error) {
	if r.parent == nil {
		return nil, NewNotFoundError("resource", name)
	}
	return r.parent.FindResource(name)
}

// Memo

func (r *DualResolver) lookupDefined(name string) *LoadedType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defined[name]
}

// storeDefined records t unless another caller got there first, in which
// case the earlier type wins and t is discarded.
func (r *DualResolver) storeDefined(ctx context.Context, t *LoadedType) *LoadedType {
	r.mu.Lock()
	if existing, ok := r.defined[t.Name()]; ok {
		r.mu.Unlock()
		r.duplicateDefinitions.Add(1)
		releasePayload(ctx, t)
		return existing
	}
	r.defined[t.Name()] = t
	r.packages[t.Package()] = true
	r.mu.Unlock()

	r.localDefinitions.Add(1)
	r.logger.Debug("Defined type from bundle entry", "name", t.Name())
	return t
}

type payloadCloser interface {
	Close(ctx context.Context) error
}

func releasePayload(ctx context.Context, t *LoadedType) {
	if c, ok := t.Payload().(payloadCloser); ok {
		_ = c.Close(ctx)
	}
}

func readResource(res *Resource) ([]byte, error) {
	rc, err := res.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

// escapePattern quotes path.Match metacharacters so name matches literally.
func escapePattern(name string) string {
	if !strings.ContainsAny(name, `*?[\`) {
		return name
	}
	var b strings.Builder
	for _, c := range name {
		switch c {
		case '*', '?', '[', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
