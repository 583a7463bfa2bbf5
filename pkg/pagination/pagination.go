package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Params holds 1-based page parameters extracted from a request.
type Params struct {
	PageIndex int
	PageSize  int
}

// NewParams clamps the given values into a usable page request.
func NewParams(pageIndex, pageSize int) Params {
	if pageIndex < 1 {
		pageIndex = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return Params{PageIndex: pageIndex, PageSize: pageSize}
}

// FromContext extracts pagination parameters from the echo context.
func FromContext(c echo.Context) Params {
	index, _ := strconv.Atoi(c.QueryParam("page_index"))
	size, _ := strconv.Atoi(c.QueryParam("page_size"))
	return NewParams(index, size)
}

// Limit is the SQL LIMIT for the page.
func (p Params) Limit() int {
	return p.PageSize
}

// Offset is the SQL OFFSET for the page.
func (p Params) Offset() int {
	return (p.PageIndex - 1) * p.PageSize
}

// Next returns the parameters of the following page.
func (p Params) Next() Params {
	return Params{PageIndex: p.PageIndex + 1, PageSize: p.PageSize}
}

// Page wraps a paginated API response.
type Page[T any] struct {
	Items     []T `json:"items"`
	PageIndex int `json:"page_index"`
	PageSize  int `json:"page_size"`
	PageCount int `json:"page_count"`
	Total     int `json:"total"`
}

func NewPage[T any](items []T, total int, p Params) Page[T] {
	if items == nil {
		items = []T{}
	}
	pageCount := 0
	if p.PageSize > 0 {
		pageCount = (total + p.PageSize - 1) / p.PageSize
	}
	return Page[T]{
		Items:     items,
		PageIndex: p.PageIndex,
		PageSize:  p.PageSize,
		PageCount: pageCount,
		Total:     total,
	}
}

// HasMore reports whether pages exist after this one.
func (pg Page[T]) HasMore() bool {
	return pg.PageIndex < pg.PageCount
}
