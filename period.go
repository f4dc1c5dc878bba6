package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrValidation = errors.New("validation failed")

// ValidatePeriod checks p against the inclusive bounds.
func ValidatePeriod(p, min, max int) error {
	if p < min || p > max {
		return fmt.Errorf("%w: period must be between %d and %d ms, got %d", ErrValidation, min, max, p)
	}
	return nil
}

// ParsePeriod validates user-entered text the way the period field does:
// it must be a whole number of milliseconds within the bounds.
func ParsePeriod(text string, min, max int) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, fmt.Errorf("%w: period is required", ErrValidation)
	}

	p, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("%w: period %q is not a whole number", ErrValidation, text)
	}

	if err := ValidatePeriod(p, min, max); err != nil {
		return 0, err
	}
	return p, nil
}
