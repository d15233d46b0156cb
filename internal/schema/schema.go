package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Kind tells how a field's storage path is obtained.
type Kind int

const (
	// Plain fields live under a fixed storage name.
	Plain Kind = iota
	// Fragment fields carry a path template resolved per locale.
	Fragment
)

func (k Kind) String() string {
	switch k {
	case Plain:
		return "plain"
	case Fragment:
		return "fragment"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Placeholders understood in fragment templates.
const (
	MarketPlaceholder  = "{market}"
	CulturePlaceholder = "{culture}"
)

var ErrInvalidSchema = errors.New("invalid schema")

// Field describes one field of a record type.
// For Plain fields Path is the storage name, for Fragment fields it is a template.
type Field struct {
	Name string
	Kind Kind
	Path string
}

func PlainField(name, storageName string) Field {
	return Field{Name: name, Kind: Plain, Path: storageName}
}

func FragmentField(name, template string) Field {
	return Field{Name: name, Kind: Fragment, Path: template}
}

// Schema is the declared field table of a record type, in declaration order.
type Schema struct {
	Name   string
	Fields []Field
}

// New validates fields and returns the schema.
func New(name string, fields ...Field) (Schema, error) {
	seen := make(map[string]struct{}, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			return Schema{}, fmt.Errorf("%w: field %d has no name", ErrInvalidSchema, i)
		}
		if _, dup := seen[f.Name]; dup {
			return Schema{}, fmt.Errorf("%w: duplicate field %q", ErrInvalidSchema, f.Name)
		}
		seen[f.Name] = struct{}{}
		if f.Path == "" {
			return Schema{}, fmt.Errorf("%w: field %q has empty path", ErrInvalidSchema, f.Name)
		}
		switch f.Kind {
		case Plain:
			if strings.ContainsAny(f.Path, "{}") {
				return Schema{}, fmt.Errorf("%w: plain field %q has placeholder in %q", ErrInvalidSchema, f.Name, f.Path)
			}
		case Fragment:
		default:
			return Schema{}, fmt.Errorf("%w: field %q has %s", ErrInvalidSchema, f.Name, f.Kind)
		}
	}
	return Schema{Name: name, Fields: append([]Field(nil), fields...)}, nil
}

// MustNew is New for package-level tables.
func MustNew(name string, fields ...Field) Schema {
	s, err := New(name, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Product mirrors model.Product's JSON layout.
var Product = MustNew("product",
	PlainField("ID", "id"),
	PlainField("Type", "type"),
	PlainField("ProductID", "productId"),
	FragmentField("MarketInfo", "marketInfo."+MarketPlaceholder),
	FragmentField("LanguageInfo", "languageInfo."+CulturePlaceholder),
)
