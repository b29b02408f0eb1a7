package option

import (
	"strings"

	"guarantee-controlplane/pkg/db/pagination"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryOption mutates a query before it is executed by a repository.
type QueryOption func(db *gorm.DB) *gorm.DB

type Operator string

const (
	EQ  Operator = "eq"
	NEQ Operator = "neq"
	GT  Operator = "gt"
	GTE Operator = "gte"
	LT  Operator = "lt"
	LTE Operator = "lte"
	IN  Operator = "in"
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

type QuerySortBy struct {
	SortBy  string
	OrderBy string
	// Allow lists the columns callers may sort on. Unknown columns fall back to created_at.
	Allow map[string]bool
}

func WithSortBy(s QuerySortBy) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		column := s.SortBy
		if column == "" || (s.Allow != nil && !s.Allow[column]) {
			column = "created_at"
		}

		desc := strings.EqualFold(s.OrderBy, "desc")
		return db.Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: desc})
	}
}

func ApplyOperator(c Condition) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		col := clause.Column{Name: c.Field}
		switch c.Operator {
		case NEQ:
			return db.Where(clause.Neq{Column: col, Value: c.Value})
		case GT:
			return db.Where(clause.Gt{Column: col, Value: c.Value})
		case GTE:
			return db.Where(clause.Gte{Column: col, Value: c.Value})
		case LT:
			return db.Where(clause.Lt{Column: col, Value: c.Value})
		case LTE:
			return db.Where(clause.Lte{Column: col, Value: c.Value})
		case IN:
			values, ok := c.Value.([]any)
			if !ok {
				values = []any{c.Value}
			}
			return db.Where(clause.IN{Column: col, Values: values})
		default:
			return db.Where(clause.Eq{Column: col, Value: c.Value})
		}
	}
}

func ApplyPagination(p pagination.Pagination) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		p = p.Normalize()
		return db.Limit(p.Limit).Offset(p.Offset)
	}
}

func WithPreload(name string, args ...any) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Preload(name, args...)
	}
}

func WithLockingUpdate() QueryOption {
	return LockingUpdate
}

// LockingUpdate adds SELECT ... FOR UPDATE. Dialects without row locks (sqlite) drop the clause.
func LockingUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}
