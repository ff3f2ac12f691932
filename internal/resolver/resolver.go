// Package resolver maps free-text component mentions onto canonical
// components from the registry.
//
// A Resolver owns an immutable lookup table built from the active components.
// The table is built lazily on first use and swapped atomically on Refresh,
// so concurrent resolutions see either the old or the new table. Callers that
// change the registry call Refresh (or Invalidate) before the next resolution.
package resolver

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/scrypster/fieldmemo/internal/storage"
	"github.com/scrypster/fieldmemo/pkg/types"
)

// Registry is the read side of the component registry the resolver needs.
type Registry interface {
	ListComponents(ctx context.Context, filter storage.ComponentFilter) ([]*types.Component, error)
}

// Collision records a lookup key claimed by more than one component.
// The component registered later in registry order owns the key.
type Collision struct {
	Key    string `json:"key"`
	Winner string `json:"winner"` // Canonical name that owns the key
	Loser  string `json:"loser"`  // Canonical name that lost it
}

// table is one immutable snapshot of the registry.
type table struct {
	byKey       map[string]*types.Component // lookup key -> component
	byCanonical map[string]*types.Component // exact canonical name -> component
	collisions  []Collision
	err         error // registry read error, if the snapshot is empty because of one
}

// Resolver resolves component mentions against a registry snapshot.
type Resolver struct {
	registry Registry
	logger   zerolog.Logger

	current atomic.Pointer[table]
	buildMu sync.Mutex
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for collision and registry warnings.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// New creates a Resolver over registry. No registry read happens until the
// first resolution or an explicit Refresh.
func New(registry Registry, opts ...Option) *Resolver {
	r := &Resolver{
		registry: registry,
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the canonical name for mention, or false when no component
// matches. Matching tries the exact key, then the key without punctuation and
// trailing s, then the key without filler words.
func (r *Resolver) Resolve(ctx context.Context, mention string) (string, bool) {
	c, ok := r.ResolveComponent(ctx, mention)
	if !ok {
		return "", false
	}
	return c.CanonicalName, true
}

// ResolveComponent is Resolve returning the matched component.
func (r *Resolver) ResolveComponent(ctx context.Context, mention string) (*types.Component, bool) {
	t := r.load(ctx)
	for _, key := range candidates(mention) {
		if c, ok := t.byKey[key]; ok {
			return c, true
		}
	}
	return nil, false
}

// Lookup reports whether canonical is exactly the canonical name of an active
// component. It does not fall back to alias matching.
func (r *Resolver) Lookup(ctx context.Context, canonical string) (*types.Component, bool) {
	c, ok := r.load(ctx).byCanonical[canonical]
	return c, ok
}

// Table returns a copy of the lookup table, lookup key to canonical name.
func (r *Resolver) Table(ctx context.Context) map[string]string {
	t := r.load(ctx)
	out := make(map[string]string, len(t.byKey))
	for k, c := range t.byKey {
		out[k] = c.CanonicalName
	}
	return out
}

// Components returns the active components of the current snapshot sorted by
// canonical name.
func (r *Resolver) Components(ctx context.Context) []*types.Component {
	t := r.load(ctx)
	out := make([]*types.Component, 0, len(t.byCanonical))
	for _, c := range t.byCanonical {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CanonicalName < out[j].CanonicalName })
	return out
}

// Collisions returns the key collisions found in the current snapshot.
func (r *Resolver) Collisions() []Collision {
	t := r.current.Load()
	if t == nil {
		return nil
	}
	return append([]Collision(nil), t.collisions...)
}

// Err returns the registry error behind the current snapshot, if any.
func (r *Resolver) Err() error {
	if t := r.current.Load(); t != nil {
		return t.err
	}
	return nil
}

// Refresh rebuilds the table from the registry now.
func (r *Resolver) Refresh(ctx context.Context) error {
	r.buildMu.Lock()
	defer r.buildMu.Unlock()

	t := r.build(ctx)
	r.current.Store(t)
	return t.err
}

// Invalidate drops the current table; the next resolution rebuilds it.
func (r *Resolver) Invalidate() {
	r.current.Store(nil)
}

func (r *Resolver) load(ctx context.Context) *table {
	if t := r.current.Load(); t != nil {
		return t
	}

	r.buildMu.Lock()
	defer r.buildMu.Unlock()

	if t := r.current.Load(); t != nil {
		return t
	}
	t := r.build(ctx)
	r.current.Store(t)
	return t
}

// build reads the active components and registers every key. A registry
// failure yields an empty table that stays in place until Refresh or
// Invalidate, so a broken registry is not re-read on every mention.
func (r *Resolver) build(ctx context.Context) *table {
	t := &table{
		byKey:       make(map[string]*types.Component),
		byCanonical: make(map[string]*types.Component),
	}

	components, err := r.registry.ListComponents(ctx, storage.ComponentFilter{})
	if err != nil {
		r.logger.Error().Err(err).Msg("resolver: failed to load component registry; all mentions will be unmatched")
		t.err = err
		return t
	}

	for _, c := range components {
		if c == nil || !c.Active {
			continue
		}
		t.byCanonical[c.CanonicalName] = c

		keys := make([]string, 0, len(c.Aliases)+2)
		keys = append(keys, c.CanonicalName, c.PartNumber)
		keys = append(keys, c.Aliases...)
		for _, raw := range keys {
			key := Key(raw)
			if key == "" {
				continue
			}
			if prev, ok := t.byKey[key]; ok && prev.ID != c.ID {
				t.collisions = append(t.collisions, Collision{
					Key:    key,
					Winner: c.CanonicalName,
					Loser:  prev.CanonicalName,
				})
				r.logger.Warn().
					Str("key", key).
					Str("winner", c.CanonicalName).
					Str("loser", prev.CanonicalName).
					Msg("resolver: lookup key registered by more than one component; last one wins")
			}
			t.byKey[key] = c
		}
	}

	r.logger.Debug().
		Int("components", len(t.byCanonical)).
		Int("keys", len(t.byKey)).
		Msg("resolver: lookup table built")
	return t
}
