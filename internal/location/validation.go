package location

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const maxNameLength = 100

// ValidateName checks a hub, area or device display name.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateArea validates an Area before it is sent to the backend.
func ValidateArea(a *Area) error {
	if err := ValidateName(a.Name); err != nil {
		return err
	}
	if a.HubID == "" {
		return fmt.Errorf("%w: area must belong to a hub", ErrInvalidName)
	}
	return nil
}
