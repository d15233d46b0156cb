package schema

import "strings"

// DerivePaths returns the storage paths needed to read the localized view of a
// record: plain storage names first, then resolved fragment templates, each group
// in declaration order.
func DerivePaths(s Schema, locale string) ([]string, error) {
	loc, err := ParseLocale(locale)
	if err != nil {
		return nil, err
	}
	return s.Paths(loc), nil
}

// Paths is DerivePaths for an already parsed locale.
func (s Schema) Paths(loc Locale) []string {
	out := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		if f.Kind == Plain {
			out = append(out, f.Path)
		}
	}
	r := strings.NewReplacer(MarketPlaceholder, loc.Market(), CulturePlaceholder, loc.String())
	for _, f := range s.Fields {
		if f.Kind == Fragment {
			out = append(out, r.Replace(f.Path))
		}
	}
	return out
}
