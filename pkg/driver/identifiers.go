package driver

import (
	"fmt"
	"regexp"
)

// The query language cannot parameterize labels or relationship types, so
// those names are interpolated into query text. Every identifier must pass
// this grammar first; anything else is rejected before it reaches a query.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name is safe to interpolate as a label
// or relationship type.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// checkIdentifiers validates every given label/type name, returning a
// descriptive error for the first offender.
func checkIdentifiers(names ...string) error {
	for _, name := range names {
		if !ValidIdentifier(name) {
			return fmt.Errorf("invalid graph identifier %q", name)
		}
	}
	return nil
}
