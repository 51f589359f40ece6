package entity

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// constructor builds one entity kind from a resolved attribute map.
//
// Constructors receive attributes after child expansion: any "category"
// or "store" key holds a []Category / []Store, never a raw string.
type constructor func(attrs map[string]any) (Entity, error)

// kindRegistry is the closed registry of entity constructors.
//
// Mirrors the storage backend registry pattern, but is immutable: the
// schema supports exactly these three kinds, so there is no Register
// function.
var kindRegistry = map[Kind]constructor{
	KindProduct:  newProduct,
	KindCategory: newCategory,
	KindStore:    newStore,
}

// New constructs one entity of the given kind from an attribute map.
//
// Behavior:
//   - An attribute named after a child kind ("category", "store") whose
//     value is a raw string is treated as a comma-delimited list: split,
//     trim, one child entity per token. Tokens that fail child validation
//     (empty name) are dropped individually; one malformed token never
//     invalidates its siblings.
//   - Required-field validation runs after all attributes are resolved.
//
// Errors:
//   - ErrUnknownKind if kind is not registered (propagate: contract error).
//   - ErrInvalidEntity if a required field is empty or absent (callers
//     drop the single candidate and continue).
func New(kind Kind, attrs map[string]any) (Entity, error) {
	ctor, ok := kindRegistry[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	resolved := make(map[string]any, len(attrs))
	for k, v := range attrs {
		if s, isString := v.(string); isString {
			switch Kind(k) {
			case KindCategory:
				resolved[k] = splitCategories(s)
				continue
			case KindStore:
				resolved[k] = splitStores(s)
				continue
			}
		}
		resolved[k] = v
	}

	return ctor(resolved)
}

// splitCategories expands a comma-delimited category string.
// Empty tokens (including a trailing "A," remainder) are discarded.
func splitCategories(s string) []Category {
	var out []Category
	for _, tok := range strings.Split(s, ",") {
		name := strings.TrimSpace(tok)
		if name == "" {
			continue
		}
		out = append(out, Category{CategoryName: name})
	}
	return out
}

func splitStores(s string) []Store {
	var out []Store
	for _, tok := range strings.Split(s, ",") {
		name := strings.TrimSpace(tok)
		if name == "" {
			continue
		}
		out = append(out, Store{StoreName: name})
	}
	return out
}

func newProduct(attrs map[string]any) (Entity, error) {
	p := &Product{}

	name, err := stringAttr(attrs, "name")
	if err != nil {
		return nil, err
	}
	p.ProductName = name

	if v, ok := attrs["nutriscore"]; ok && v != nil {
		score, ok := intAttr(v)
		if !ok {
			return nil, fmt.Errorf("%w: product %q: nutriscore %v is not an integer", ErrInvalidEntity, name, v)
		}
		p.Nutriscore = &score
	}

	if v, ok := attrs["url"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: product %q: url is not a string", ErrInvalidEntity, name)
		}
		p.URL = strings.TrimSpace(s)
	}

	if v, ok := attrs["category"]; ok && v != nil {
		cats, ok := v.([]Category)
		if !ok {
			return nil, fmt.Errorf("%w: product %q: category attribute is neither string nor []Category", ErrInvalidEntity, name)
		}
		p.Categories = cats
	}

	if v, ok := attrs["store"]; ok && v != nil {
		stores, ok := v.([]Store)
		if !ok {
			return nil, fmt.Errorf("%w: product %q: store attribute is neither string nor []Store", ErrInvalidEntity, name)
		}
		p.Stores = stores
	}

	return p, nil
}

func newCategory(attrs map[string]any) (Entity, error) {
	name, err := stringAttr(attrs, "name")
	if err != nil {
		return nil, err
	}
	return &Category{CategoryName: name}, nil
}

func newStore(attrs map[string]any) (Entity, error) {
	name, err := stringAttr(attrs, "name")
	if err != nil {
		return nil, err
	}
	return &Store{StoreName: name}, nil
}

// stringAttr fetches a required non-empty string attribute.
func stringAttr(attrs map[string]any, key string) (string, error) {
	v, ok := attrs[key]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: missing required attribute %q", ErrInvalidEntity, key)
	}
	s, ok := v.(string)
	if !ok {
		// Row reconstruction can surface []byte from some drivers.
		if b, isBytes := v.([]byte); isBytes {
			s = string(b)
		} else {
			return "", fmt.Errorf("%w: attribute %q has type %T, want string", ErrInvalidEntity, key, v)
		}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: required attribute %q is empty", ErrInvalidEntity, key)
	}
	return s, nil
}

// intAttr coerces the value forms drivers and JSON decoding produce for
// an integer column: int, int64, float64 (JSON numbers), numeric string.
func intAttr(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case float64:
		if t != math.Trunc(t) {
			return 0, false
		}
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return n, true
	case []byte:
		n, err := strconv.Atoi(strings.TrimSpace(string(t)))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
