package utils

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxVMNameLength is the longest name qubesd accepts.
const MaxVMNameLength = 31

var vmNameRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_.-]*$`)

// ValidateVMName checks a VM name against the Qubes naming rules.
func ValidateVMName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("VM name is required")
	case len(name) > MaxVMNameLength:
		return fmt.Errorf("VM name '%s' is longer than %d characters", name, MaxVMNameLength)
	case !vmNameRe.MatchString(name):
		return fmt.Errorf("VM name '%s' must start with a letter and contain only letters, digits, '_', '.' and '-'", name)
	case IsOneOf(name, "none", "default", "Domain-0"):
		return fmt.Errorf("VM name '%s' is reserved", name)
	case strings.HasSuffix(name, "-dm"):
		return fmt.Errorf("VM name '%s' must not end in '-dm'", name)
	}
	return nil
}

// IsValidVMName is ValidateVMName as a predicate.
func IsValidVMName(name string) bool {
	return ValidateVMName(name) == nil
}

// IsOneOf checks if value is one of the allowed values.
func IsOneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}
