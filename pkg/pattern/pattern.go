// Package pattern renders a record's logical attributes from raw source
// directory attribute values using {attributeName} placeholder substitution.
package pattern

import (
	"encoding/base64"
	"regexp"
	"strings"

	"github.com/dirbridge/dirbridge/pkg/errors"
	"github.com/dirbridge/dirbridge/pkg/source"
)

// placeholderPattern matches {attributeName} placeholders in a build pattern.
var placeholderPattern = regexp.MustCompile(`\{([^}]+)}`)

// Render substitutes every {attributeName} placeholder in pattern with the
// corresponding attribute value of the entry. Binary attribute values are
// base64-encoded; all others use their natural string form. A placeholder
// without a corresponding entry attribute fails with a MissingAttributeError.
func Render(pattern string, entry source.Entry) (string, error) {
	out := pattern
	for _, match := range placeholderPattern.FindAllStringSubmatch(pattern, -1) {
		name := match[1]
		attr, ok := entry.Attribute(name)
		if !ok {
			return "", errors.NewMissingAttributeError(name, pattern)
		}
		value := attr.Value
		if attr.Binary {
			value = base64.StdEncoding.EncodeToString(attr.Raw)
		}
		out = strings.ReplaceAll(out, "{"+name+"}", value)
	}
	return out, nil
}

// Placeholders returns the distinct attribute names referenced across the
// given patterns, in first-appearance order. The source search uses it to
// request exactly the attributes the patterns need.
func Placeholders(patterns ...string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, p := range patterns {
		for _, match := range placeholderPattern.FindAllStringSubmatch(p, -1) {
			if name := match[1]; !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}
