package types

import (
	"errors"
	"strings"
	"time"
)

// ErrCanonicalNameRequired is returned by Component.Validate for a blank name.
var ErrCanonicalNameRequired = errors.New("component canonical name is required")

// Component is a canonical physical part in the component registry.
// Engineers refer to components by many spellings; those spellings are kept
// in Aliases so mentions in transcripts can be linked back to one identity.
type Component struct {
	ID            string    `json:"id" yaml:"id,omitempty"`                           // Unique identifier (uuid)
	CanonicalName string    `json:"canonical_name" yaml:"canonical_name"`             // Authoritative human-readable name
	PartNumber    string    `json:"part_number,omitempty" yaml:"part_number,omitempty"` // Optional manufacturer part number
	Category      string    `json:"category,omitempty" yaml:"category,omitempty"`
	Subsystem     string    `json:"subsystem,omitempty" yaml:"subsystem,omitempty"`
	Aliases       []string  `json:"aliases,omitempty" yaml:"aliases,omitempty"` // Lower-cased alternate spellings
	Active        bool      `json:"active" yaml:"active"`
	Notes         string    `json:"notes,omitempty" yaml:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at" yaml:"-"`
	UpdatedAt     time.Time `json:"updated_at" yaml:"-"`
}

// Normalize trims the canonical name and part number and lower-cases, trims
// and de-duplicates the alias list, dropping blanks. Alias order is kept.
func (c *Component) Normalize() {
	c.CanonicalName = strings.TrimSpace(c.CanonicalName)
	c.PartNumber = strings.TrimSpace(c.PartNumber)

	seen := make(map[string]struct{}, len(c.Aliases))
	aliases := make([]string, 0, len(c.Aliases))
	for _, a := range c.Aliases {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		aliases = append(aliases, a)
	}
	c.Aliases = aliases
}

// Validate checks the fields required before a component is persisted.
func (c *Component) Validate() error {
	if strings.TrimSpace(c.CanonicalName) == "" {
		return ErrCanonicalNameRequired
	}
	return nil
}
