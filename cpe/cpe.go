// Package cpe parses CPE 2.3 formatted strings and resolves product names to
// the CPE names the NVD dictionary knows about.
package cpe

import (
	"strings"

	"golang.org/x/xerrors"
)

const (
	PartApplication     = "a"
	PartOperatingSystem = "o"
	PartHardware        = "h"

	Any = "*"
	NA  = "-"

	// cpe, 2.3, part, vendor, product
	minSegments = 5
	// number of attribute segments after the "cpe:2.3" prefix
	attributes = 11
)

// Identifier is a parsed CPE 2.3 formatted string. Attribute values are kept
// in their escaped form.
type Identifier struct {
	Part    string
	Vendor  string
	Product string
	Version string

	// update, edition, language, sw_edition, target_sw, target_hw, other
	Rest []string
}

// Parse splits a formatted string on unescaped colons. Missing trailing
// attributes are filled with ANY.
func Parse(s string) (Identifier, error) {
	segments := split(s)
	if len(segments) < minSegments {
		return Identifier{}, xerrors.Errorf("too few segments in %q: %d", s, len(segments))
	}
	if segments[0] != "cpe" || segments[1] != "2.3" {
		return Identifier{}, xerrors.Errorf("unsupported CPE prefix in %q", s)
	}
	if len(segments) > 2+attributes {
		return Identifier{}, xerrors.Errorf("too many segments in %q: %d", s, len(segments))
	}

	attrs := make([]string, attributes)
	for i := range attrs {
		attrs[i] = Any
		if 2+i < len(segments) && segments[2+i] != "" {
			attrs[i] = segments[2+i]
		}
	}
	return Identifier{
		Part:    attrs[0],
		Vendor:  attrs[1],
		Product: attrs[2],
		Version: attrs[3],
		Rest:    attrs[4:],
	}, nil
}

// New builds an identifier with every attribute after version set to ANY.
// Empty vendor, product or version become ANY.
func New(part, vendor, product, version string) Identifier {
	return Identifier{
		Part:    part,
		Vendor:  orAny(normalize(vendor)),
		Product: orAny(normalize(product)),
		Version: orAny(escape(version)),
	}
}

// Wildcard keeps part, vendor and product and sets everything else to ANY.
func (id Identifier) Wildcard() Identifier {
	return Identifier{
		Part:    id.Part,
		Vendor:  id.Vendor,
		Product: id.Product,
		Version: Any,
	}
}

func (id Identifier) IsApplication() bool {
	return id.Part == PartApplication
}

// IsConcrete reports whether the identifier names a specific version.
func (id Identifier) IsConcrete() bool {
	return id.Version != Any && id.Version != NA && id.Version != ""
}

func (id Identifier) String() string {
	attrs := make([]string, 0, 2+attributes)
	attrs = append(attrs, "cpe", "2.3", id.Part, id.Vendor, id.Product, id.Version)
	for i := 0; i < attributes-4; i++ {
		v := Any
		if i < len(id.Rest) && id.Rest[i] != "" {
			v = id.Rest[i]
		}
		attrs = append(attrs, v)
	}
	return strings.Join(attrs, ":")
}

// ProductMatches compares the product attribute against a user supplied
// name, case-insensitively and after normalization.
func (id Identifier) ProductMatches(name string) bool {
	return strings.EqualFold(unescape(id.Product), unescape(normalize(name)))
}

func split(s string) []string {
	var (
		segments []string
		cur      strings.Builder
		escaped  bool
	)
	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			cur.WriteRune(r)
			escaped = true
		case r == ':':
			segments = append(segments, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(segments, cur.String())
}

// normalize turns a free-form name into a CPE attribute: lower case, runs of
// whitespace replaced by "_", special characters escaped.
func normalize(name string) string {
	name = strings.ToLower(strings.Join(strings.Fields(name), "_"))
	return escape(name)
}

func escape(s string) string {
	if s == Any || s == NA {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
		case r > 0x7f:
		default:
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func unescape(s string) string {
	return strings.ReplaceAll(s, `\`, "")
}

func orAny(s string) string {
	if s == "" {
		return Any
	}
	return s
}
