// Package importer seeds the component registry from a YAML file.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/scrypster/fieldmemo/internal/storage"
	"github.com/scrypster/fieldmemo/pkg/types"
)

// ComponentsFile is the top-level structure of a registry YAML file.
//
// Example:
//
//	components:
//	  - canonical_name: "High Pressure Pump 3"
//	    part_number: "HPP-3000"
//	    subsystem: hydraulics
//	    aliases: ["hp pump", "pump three"]
//	  - canonical_name: "Gearbox"
//	    active: false
type ComponentsFile struct {
	Components []ComponentDefinition `yaml:"components"`
}

// ComponentDefinition is one registry entry. Active defaults to true.
type ComponentDefinition struct {
	CanonicalName string   `yaml:"canonical_name"`
	PartNumber    string   `yaml:"part_number"`
	Category      string   `yaml:"category"`
	Subsystem     string   `yaml:"subsystem"`
	Aliases       []string `yaml:"aliases"`
	Active        *bool    `yaml:"active"`
	Notes         string   `yaml:"notes"`
}

// Component converts the definition into a registry component.
func (d ComponentDefinition) Component() *types.Component {
	c := &types.Component{
		CanonicalName: d.CanonicalName,
		PartNumber:    d.PartNumber,
		Category:      d.Category,
		Subsystem:     d.Subsystem,
		Aliases:       d.Aliases,
		Active:        d.Active == nil || *d.Active,
		Notes:         d.Notes,
	}
	c.Normalize()
	return c
}

// ImportResult summarises a registry import.
type ImportResult struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// LoadComponentsFile reads and parses a registry YAML file from disk.
func LoadComponentsFile(path string) (*ComponentsFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("importer: open components file %q: %w", path, err)
	}
	defer f.Close()

	cf, err := LoadComponents(f)
	if err != nil {
		return nil, fmt.Errorf("importer: parse components file %q: %w", path, err)
	}
	return cf, nil
}

// LoadComponents parses registry YAML from r. Unknown keys are rejected.
func LoadComponents(r io.Reader) (*ComponentsFile, error) {
	var cf ComponentsFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil {
		if errors.Is(err, io.EOF) {
			return &cf, nil
		}
		return nil, fmt.Errorf("importer: decode components yaml: %w", err)
	}
	return &cf, nil
}

// ImportComponents upserts every definition into registry, matching existing
// components by case-insensitive canonical name. Entries that fail
// validation are skipped and reported; a store failure aborts the import.
//
// Callers refresh their resolver afterwards.
func ImportComponents(ctx context.Context, registry storage.ComponentRegistry, cf *ComponentsFile) (*ImportResult, error) {
	if cf == nil {
		return nil, fmt.Errorf("importer: components file must not be nil")
	}

	existing, err := registry.ListComponents(ctx, storage.ComponentFilter{IncludeInactive: true})
	if err != nil {
		return nil, fmt.Errorf("importer: list components: %w", err)
	}
	byName := make(map[string]*types.Component, len(existing))
	for _, c := range existing {
		byName[strings.ToLower(c.CanonicalName)] = c
	}

	result := &ImportResult{}
	for i, def := range cf.Components {
		c := def.Component()
		if err := c.Validate(); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("entry %d: %v", i+1, err))
			continue
		}

		key := strings.ToLower(c.CanonicalName)
		if current, ok := byName[key]; ok {
			c.ID = current.ID
			c.CreatedAt = current.CreatedAt
			if err := registry.UpdateComponent(ctx, c); err != nil {
				return result, fmt.Errorf("importer: update component %q: %w", c.CanonicalName, err)
			}
			result.Updated++
		} else {
			if err := registry.CreateComponent(ctx, c); err != nil {
				return result, fmt.Errorf("importer: create component %q: %w", c.CanonicalName, err)
			}
			result.Created++
		}
		byName[key] = c
	}

	log.Info().
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Msg("importer: component registry imported")

	return result, nil
}
