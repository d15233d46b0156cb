package schema

import (
	"errors"
	"fmt"
	"strings"
)

var ErrMalformedLocale = errors.New("malformed locale")

// Locale is a language-REGION identifier such as fr-FR.
type Locale struct {
	Language string
	Region   string
	raw      string
}

// ParseLocale splits s on '-'. Segments after the region are ignored.
func ParseLocale(s string) (Locale, error) {
	parts := strings.Split(s, "-")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Locale{}, fmt.Errorf("%w: %q", ErrMalformedLocale, s)
	}
	return Locale{Language: parts[0], Region: parts[1], raw: s}, nil
}

// Market is the lowercased region.
func (l Locale) Market() string { return strings.ToLower(l.Region) }

func (l Locale) String() string { return l.raw }
