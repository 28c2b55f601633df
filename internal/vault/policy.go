package vault

import (
	"fmt"
	"strings"
	"unicode"
)

func validateName(kind, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty %s", ErrInvalidName, kind)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: %s %q contains control characters", ErrInvalidName, kind, name)
		}
	}
	return nil
}
