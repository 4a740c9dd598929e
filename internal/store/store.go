// Package store is the key-document store the script repository is written
// against. Backends: in-memory, Postgres (JSONB) and Cloud Firestore.
package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("document not found")
	// ErrIndexRequired is returned when a filtered query cannot also be
	// ordered by the backend as currently configured.
	ErrIndexRequired = errors.New("query requires an index")
)

type Op string

const (
	OpEqual Op = "=="
	OpIn    Op = "in"
)

// Filter matches documents whose value at Path equals Value (OpEqual, a
// string) or is one of Value (OpIn, a []string).
type Filter struct {
	Path  []string
	Op    Op
	Value any
}

// Order sorts by a timestamp field.
type Order struct {
	Path []string
	Desc bool
}

type Query struct {
	Filters []Filter
	OrderBy *Order
}

func Where(path []string, op Op, value any) Filter {
	return Filter{Path: path, Op: op, Value: value}
}

// Update sets the value at Path, or removes the field when Delete is set.
type Update struct {
	Path   []string
	Value  any
	Delete bool
}

func Set(path []string, value any) Update {
	return Update{Path: path, Value: value}
}

func Remove(path []string) Update {
	return Update{Path: path, Delete: true}
}

type Document interface {
	ID() string
	DataTo(v any) error
}

type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	Set(ctx context.Context, collection, id string, data any) error
	Update(ctx context.Context, collection, id string, updates ...Update) error
	Delete(ctx context.Context, collection, id string) error
	Ping(ctx context.Context) error
}

func validateQuery(q Query) error {
	for _, f := range q.Filters {
		if len(f.Path) == 0 {
			return errors.New("filter path is empty")
		}
		switch f.Op {
		case OpEqual:
			if _, ok := f.Value.(string); !ok {
				return errors.New("equality filter value must be a string")
			}
		case OpIn:
			if _, ok := f.Value.([]string); !ok {
				return errors.New("in filter value must be a []string")
			}
		default:
			return errors.New("unsupported filter operator " + string(f.Op))
		}
	}
	if q.OrderBy != nil && len(q.OrderBy.Path) == 0 {
		return errors.New("order path is empty")
	}
	return nil
}
