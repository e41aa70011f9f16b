package template

import (
	"errors"
	"strings"
)

// ErrDivisionByZero is returned by the div template helper.
var ErrDivisionByZero = errors.New("division by zero")

// NeedsTemplating reports whether input contains template actions.
func NeedsTemplating(input string) bool {
	return strings.Contains(input, "{{") && strings.Contains(input, "}}")
}
