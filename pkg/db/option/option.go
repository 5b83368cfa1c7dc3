// Package option defines the query-option vocabulary shared by every
// repository.Repository[T] implementation: sort order, row-level locking,
// and comparison-operator conditions applied on top of a struct-literal
// query.
package option

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Operator is a comparison operator usable with ApplyOperator.
type Operator string

const (
	EQ  Operator = "="
	NEQ Operator = "<>"
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
	IN  Operator = "IN"
)

// Condition is an additional filter clause beyond the struct-literal query,
// e.g. {Field: "remaining", Operator: GT, Value: 0}.
type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// QuerySortBy describes ordering for a Find/FindOne call. Allow restricts
// which column names are accepted, guarding against caller-controlled sort
// injection.
type QuerySortBy struct {
	SortBy  string
	OrderBy string
	Allow   map[string]bool
}

// QueryOption mutates a *gorm.DB query builder. Repository implementations
// apply every QueryOption in order before executing the query.
type QueryOption func(*gorm.DB) *gorm.DB

// WithSortBy orders the result set. An empty SortBy defaults to
// "created_at"; an Allow list rejects unknown columns by falling back to
// the default rather than interpolating an unvalidated column name.
func WithSortBy(s QuerySortBy) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		sortBy := s.SortBy
		if sortBy == "" {
			sortBy = "created_at"
		}
		if s.Allow != nil && !s.Allow[sortBy] {
			sortBy = "created_at"
		}

		orderBy := s.OrderBy
		switch orderBy {
		case "asc", "ASC":
			orderBy = "ASC"
		default:
			orderBy = "DESC"
		}

		return db.Order(sortBy + " " + orderBy)
	}
}

// WithLockingUpdate applies a SELECT ... FOR UPDATE row lock to the query,
// used when a read must be immediately followed by a write within the same
// transaction (balance reads, idempotency-key checks).
func WithLockingUpdate() QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Scopes(LockingUpdate)
	}
}

// LockingUpdate is a gorm.DB scope applying a row-level lock, usable
// directly against a transaction handle via tx.Scopes(option.LockingUpdate).
func LockingUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
}

// ApplyOperator adds a WHERE clause beyond the struct-literal query passed
// to Find/FindOne, e.g. filtering by a numeric threshold or an IN list.
func ApplyOperator(c Condition) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if c.Operator == IN {
			return db.Where(c.Field+" IN (?)", c.Value)
		}
		return db.Where(c.Field+" "+string(c.Operator)+" ?", c.Value)
	}
}

// WithLimit caps the number of rows returned, for paging a Find in
// fixed-size batches.
func WithLimit(n int) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Limit(n)
	}
}

// WithOffset skips rows, paired with WithLimit for batch paging.
func WithOffset(n int) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(n)
	}
}
