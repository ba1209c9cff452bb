package option

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adjustly/adjustly/pkg/db/pagination"
	"gorm.io/gorm"
)

// QueryOption adjusts a gorm statement before execution.
type QueryOption interface {
	Apply(*gorm.DB) *gorm.DB
}

type Operator string

const (
	EQ  Operator = "="
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
)

// Condition expresses a single comparison predicate on a column.
type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

type conditionOption struct {
	cond Condition
}

func (o conditionOption) Apply(db *gorm.DB) *gorm.DB {
	field := strings.TrimSpace(o.cond.Field)
	if field == "" {
		return db
	}
	return db.Where(fmt.Sprintf("%s %s ?", field, o.cond.Operator), o.cond.Value)
}

// ApplyOperator builds a QueryOption from a Condition.
func ApplyOperator(cond Condition) QueryOption {
	return conditionOption{cond: cond}
}

// QuerySortBy restricts ordering to an allow-listed set of columns.
type QuerySortBy struct {
	Allow map[string]bool
	Field string
	Desc  bool
}

type sortOption struct {
	sort QuerySortBy
}

func (o sortOption) Apply(db *gorm.DB) *gorm.DB {
	field := strings.TrimSpace(o.sort.Field)
	if field == "" {
		field = "created_at"
	}
	if len(o.sort.Allow) > 0 && !o.sort.Allow[field] {
		return db
	}
	direction := "ASC"
	if o.sort.Desc {
		direction = "DESC"
	}
	return db.Order(fmt.Sprintf("%s %s", field, direction))
}

// WithSortBy orders results by an allow-listed column.
func WithSortBy(sort QuerySortBy) QueryOption {
	return sortOption{sort: sort}
}

type limitOption struct {
	limit int
}

func (o limitOption) Apply(db *gorm.DB) *gorm.DB {
	if o.limit <= 0 {
		return db
	}
	return db.Limit(o.limit)
}

// WithLimit caps the number of returned rows.
func WithLimit(limit int) QueryOption {
	return limitOption{limit: limit}
}

type paginationOption struct {
	page pagination.Pagination
}

func (o paginationOption) Apply(db *gorm.DB) *gorm.DB {
	size := o.page.PageSize
	if size <= 0 {
		size = 25
	}

	if token := strings.TrimSpace(o.page.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err == nil && cursor != nil && cursor.ID != "" {
			id, iderr := strconv.ParseInt(cursor.ID, 10, 64)
			ts, terr := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
			if iderr == nil && terr == nil {
				db = db.Where("(created_at < ?) OR (created_at = ? AND id < ?)", ts, ts, id)
			}
		}
	}

	// One extra row so the caller can tell whether another page exists.
	return db.Limit(size + 1)
}

// ApplyPagination bounds the statement by a (created_at, id) keyset cursor.
// Results must be ordered created_at desc, id desc for the cursor to hold.
func ApplyPagination(page pagination.Pagination) QueryOption {
	return paginationOption{page: page}
}
