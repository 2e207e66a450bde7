// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
)

// Category identifies an award bucket with its own pool and rating space.
type Category string

// Award categories.
const (
	ALCyYoung         Category = "al_cy_young"
	NLCyYoung         Category = "nl_cy_young"
	ALMarianoRivera   Category = "al_mariano_rivera"
	NLTrevorHoffman   Category = "nl_trevor_hoffman"
	ALRookieOfTheYear Category = "al_rookie"
	NLRookieOfTheYear Category = "nl_rookie"
)

var categoryNames = map[Category]string{ //nolint:gochecknoglobals // fixed enumeration
	ALCyYoung:         "AL Cy Young Award",
	NLCyYoung:         "NL Cy Young Award",
	ALMarianoRivera:   "AL Mariano Rivera Award",
	NLTrevorHoffman:   "NL Trevor Hoffman Award",
	ALRookieOfTheYear: "AL Rookie of the Year",
	NLRookieOfTheYear: "NL Rookie of the Year",
}

var categoryOrder = []Category{ //nolint:gochecknoglobals // fixed enumeration
	ALCyYoung,
	NLCyYoung,
	ALMarianoRivera,
	NLTrevorHoffman,
	ALRookieOfTheYear,
	NLRookieOfTheYear,
}

// Categories returns every known category in display order.
func Categories() []Category {
	out := make([]Category, len(categoryOrder))
	copy(out, categoryOrder)
	return out
}

// ParseCategory validates s against the known categories.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, ok := categoryNames[c]
	return ok
}

// DisplayName returns the human label, or the raw value for unknown categories.
func (c Category) DisplayName() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return string(c)
}

func (c Category) String() string { return string(c) }
