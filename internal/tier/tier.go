// Package tier implements the closed tier table from spec §4.3 (component
// C3). Tiers are a closed sum type extended by adding a table row, not by
// dynamic dispatch (spec §9 "Polymorphism").
package tier

import "strings"

// ID identifies one of the five chunking tiers.
type ID int

const (
	Inline ID = iota
	Granular
	Standard
	Large
	Jumbo
)

func (t ID) String() string {
	switch t {
	case Inline:
		return "inline"
	case Granular:
		return "granular"
	case Standard:
		return "standard"
	case Large:
		return "large"
	case Jumbo:
		return "jumbo"
	default:
		return "unknown"
	}
}

// Params holds the FastCDC (min, avg, max) chunk-size parameters for a
// tier. Inline has no chunking parameters.
type Params struct {
	ID       ID
	MinSize  uint64
	AvgSize  uint64
	MaxSize  uint64
}

const (
	inlineThreshold  = 4 * 1024
	granularCeiling  = 10 * 1024 * 1024
	standardCeiling  = 500 * 1024 * 1024
	largeCeiling     = 5 * 1024 * 1024 * 1024
)

var table = map[ID]Params{
	Inline:   {ID: Inline},
	Granular: {ID: Granular, MinSize: 2 * 1024, AvgSize: 4 * 1024, MaxSize: 8 * 1024},
	Standard: {ID: Standard, MinSize: 16 * 1024, AvgSize: 32 * 1024, MaxSize: 64 * 1024},
	Large:    {ID: Large, MinSize: 512 * 1024, AvgSize: 1024 * 1024, MaxSize: 2 * 1024 * 1024},
	Jumbo:    {ID: Jumbo, MinSize: 4 * 1024 * 1024, AvgSize: 8 * 1024 * 1024, MaxSize: 16 * 1024 * 1024},
}

// sourceCodeExtensions takes precedence over the size rule, forcing tier 1.
var sourceCodeExtensions = map[string]bool{
	"go": true, "c": true, "h": true, "cpp": true, "cc": true, "hpp": true,
	"rs": true, "py": true, "js": true, "ts": true, "tsx": true, "jsx": true,
	"java": true, "kt": true, "rb": true, "php": true, "sh": true, "md": true,
	"json": true, "yaml": true, "yml": true, "toml": true, "html": true,
	"css": true, "sql": true, "proto": true,
}

// diskImageExtensions takes precedence over the size rule, forcing tier 4.
var diskImageExtensions = map[string]bool{
	"iso": true, "vmdk": true, "dmg": true,
}

// Get returns the parameters for a tier id.
func Get(id ID) Params {
	return table[id]
}

// Select chooses a tier for a file of the given size and extension
// (extension without the leading dot; case-insensitive), per the closed
// table in spec §4.3. Extension overrides take precedence over the size
// rule.
func Select(size uint64, extension string) Params {
	ext := strings.ToLower(strings.TrimPrefix(extension, "."))

	if diskImageExtensions[ext] {
		return table[Jumbo]
	}
	if sourceCodeExtensions[ext] {
		return table[Granular]
	}

	switch {
	case size < inlineThreshold:
		return table[Inline]
	case size < granularCeiling:
		return table[Granular]
	case size < standardCeiling:
		return table[Standard]
	case size < largeCeiling:
		return table[Large]
	default:
		return table[Jumbo]
	}
}
