package warehouse

import (
	"errors"
	"fmt"
	"regexp"

	libinjection "github.com/corazawaf/libinjection-go"
)

// ErrInvalidIdentifier is returned for table names that are unsafe to
// interpolate into SQL.
var ErrInvalidIdentifier = errors.New("invalid identifier")

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,127}$`)

// ValidateIdentifier rejects anything that is not a plain identifier. The
// libinjection check catches tautologies that still fit the pattern.
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	if isSQLi, fingerprint := libinjection.IsSQLi(name); isSQLi {
		return fmt.Errorf("%w: %q matches injection pattern %s", ErrInvalidIdentifier, name, fingerprint)
	}
	return nil
}
