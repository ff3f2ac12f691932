package extraction

import (
	"context"

	"github.com/scrypster/fieldmemo/pkg/types"
)

// Validator checks component claims. *resolver.Resolver satisfies it.
type Validator interface {
	// Lookup validates an exact canonical name.
	Lookup(ctx context.Context, canonical string) (*types.Component, bool)
	// ResolveComponent resolves a free-text mention.
	ResolveComponent(ctx context.Context, mention string) (*types.Component, bool)
}

// Sanitize validates the component reference of every event in place and
// returns the raw mentions that remain unlinked, deduplicated in first-seen
// order. Blank action items are never reported as unmatched.
//
// A claimed canonical name is kept only if v validates it. Otherwise it is
// demoted: it becomes the raw mention when none was given, and the event is
// resolved again from the claim and then from the raw mention. An event with
// no claim is resolved from its raw mention. Linked events get the
// component's ID and exact canonical name; unlinked events get neither.
func (p *Payload) Sanitize(ctx context.Context, v Validator) []string {
	var unmatched []string
	seen := make(map[string]struct{})

	for _, e := range p.Events() {
		c := sanitizeRef(ctx, v, e.Ref())

		meta := e.Meta()
		if c != nil {
			meta.ComponentID = c.ID
			continue
		}
		meta.ComponentID = ""

		if a, ok := e.(*types.ActionItem); ok && a.Blank() {
			continue
		}
		raw := e.Ref().Raw
		if raw == "" {
			continue
		}
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}
		unmatched = append(unmatched, raw)
	}

	return unmatched
}

func sanitizeRef(ctx context.Context, v Validator, ref *types.ComponentRef) *types.Component {
	claim := ref.Canonical

	if claim != "" {
		if c, ok := v.Lookup(ctx, claim); ok {
			return c
		}
		// Unknown canonical: keep the wording, drop the claim.
		if ref.Raw == "" {
			ref.Raw = claim
		}
		ref.Canonical = ""
		if c, ok := v.ResolveComponent(ctx, claim); ok {
			ref.Canonical = c.CanonicalName
			return c
		}
	}

	if ref.Raw != "" && ref.Raw != claim {
		if c, ok := v.ResolveComponent(ctx, ref.Raw); ok {
			ref.Canonical = c.CanonicalName
			return c
		}
	}

	return nil
}
