package option

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// QueryOption narrows or orders a gorm statement.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type optionFunc func(db *gorm.DB) *gorm.DB

func (f optionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

type Operator string

const (
	EQ    Operator = "="
	NEQ   Operator = "<>"
	GT    Operator = ">"
	GTE   Operator = ">="
	LT    Operator = "<"
	LTE   Operator = "<="
	IN    Operator = "IN"
	NULL  Operator = "IS NULL"
	NNULL Operator = "IS NOT NULL"
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// ApplyOperator adds a single column condition. Field names are caller supplied
// constants, never request input.
func ApplyOperator(cond Condition) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		switch cond.Operator {
		case NULL, NNULL:
			return db.Where(fmt.Sprintf("%s %s", cond.Field, cond.Operator))
		case IN:
			return db.Where(fmt.Sprintf("%s IN ?", cond.Field), cond.Value)
		default:
			return db.Where(fmt.Sprintf("%s %s ?", cond.Field, cond.Operator), cond.Value)
		}
	})
}

// QuerySortBy orders by Field when Allow lists it; otherwise by the first allowed column.
type QuerySortBy struct {
	Field string
	Desc  bool
	Allow map[string]bool
}

func WithSortBy(sort QuerySortBy) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		field := strings.TrimSpace(sort.Field)
		if !sort.Allow[field] {
			field = "id"
		}
		dir := "ASC"
		if sort.Desc {
			dir = "DESC"
		}
		return db.Order(fmt.Sprintf("%s %s", field, dir))
	})
}

func ApplyPagination(limit, offset int) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		if limit > 0 {
			db = db.Limit(limit)
		}
		if offset > 0 {
			db = db.Offset(offset)
		}
		return db
	})
}
