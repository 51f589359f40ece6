// Package entity defines the value records persisted by the pipeline
// (Product, Category, Store) and a kind-keyed factory that builds them
// from raw attribute maps.
//
// Entities are transient, request-scoped values: constructed once during
// ingestion or row reconstruction, consumed once by the statement planner
// or returned to the caller, never mutated afterward. There is no identity
// map or cache.
package entity

import "errors"

// Kind identifies one of the closed set of entity kinds.
//
// The set is closed on purpose: the planner and the schema know exactly
// these three tables and the two association tables between them.
type Kind string

const (
	KindProduct  Kind = "product"
	KindCategory Kind = "category"
	KindStore    Kind = "store"
)

var (
	// ErrUnknownKind is returned when a caller asks for an entity kind
	// that is not registered. This is a contract error and should
	// propagate, not be swallowed.
	ErrUnknownKind = errors.New("entity: unknown kind")

	// ErrInvalidEntity is returned when a candidate fails validation
	// (e.g. a required field is empty). Callers drop the single
	// candidate and continue; the error never aborts a whole batch.
	ErrInvalidEntity = errors.New("entity: invalid entity")
)

// Entity is the closed sum of Product, Category and Store.
//
// Row returns the entity's own column/value pairs in declaration order,
// excluding children. Absent optional attributes are omitted entirely,
// never emitted as NULL columns.
type Entity interface {
	Kind() Kind
	Name() string
	Row() (columns []string, values []any)
	Children() []Entity
}

// Product is a catalog product with its category and store memberships.
type Product struct {
	ProductName string
	Nutriscore  *int
	URL         string
	Categories  []Category
	Stores      []Store
}

func (p *Product) Kind() Kind   { return KindProduct }
func (p *Product) Name() string { return p.ProductName }

func (p *Product) Row() (columns []string, values []any) {
	columns = append(columns, "name")
	values = append(values, p.ProductName)
	if p.Nutriscore != nil {
		columns = append(columns, "nutriscore")
		values = append(values, *p.Nutriscore)
	}
	if p.URL != "" {
		columns = append(columns, "url")
		values = append(values, p.URL)
	}
	return columns, values
}

func (p *Product) Children() []Entity {
	out := make([]Entity, 0, len(p.Categories)+len(p.Stores))
	for i := range p.Categories {
		out = append(out, &p.Categories[i])
	}
	for i := range p.Stores {
		out = append(out, &p.Stores[i])
	}
	return out
}

// Category is a named product category.
type Category struct {
	CategoryName string
}

func (c *Category) Kind() Kind   { return KindCategory }
func (c *Category) Name() string { return c.CategoryName }

func (c *Category) Row() (columns []string, values []any) {
	return []string{"name"}, []any{c.CategoryName}
}

func (c *Category) Children() []Entity { return nil }

// Store is a named retail store.
type Store struct {
	StoreName string
}

func (s *Store) Kind() Kind   { return KindStore }
func (s *Store) Name() string { return s.StoreName }

func (s *Store) Row() (columns []string, values []any) {
	return []string{"name"}, []any{s.StoreName}
}

func (s *Store) Children() []Entity { return nil }
