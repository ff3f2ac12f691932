package extraction

import (
	"fmt"
	"strings"

	"github.com/scrypster/fieldmemo/pkg/types"
)

// NoComponentsText is what ComponentList returns for an empty registry.
const NoComponentsText = "(No canonical components registered; set component_canonical to null for all entries)"

// ComponentList renders the registry as the bullet list handed to the
// upstream extractor, so it can emit exact canonical names:
//
//	- High Pressure Pump 3 (part: HP-3) aliases: hp pump, pump three
func ComponentList(components []*types.Component) string {
	if len(components) == 0 {
		return NoComponentsText
	}

	var b strings.Builder
	for i, c := range components {
		if i > 0 {
			b.WriteByte('\n')
		}
		part := c.PartNumber
		if part == "" {
			part = "N/A"
		}
		fmt.Fprintf(&b, "  - %s (part: %s)", c.CanonicalName, part)
		if len(c.Aliases) > 0 {
			b.WriteString(" aliases: ")
			b.WriteString(strings.Join(c.Aliases, ", "))
		}
	}
	return b.String()
}
