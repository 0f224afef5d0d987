package domain

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Page is a 1-indexed page request.
type Page struct {
	Number int
	Size   int
}

// NewPage normalizes raw page/limit values.
func NewPage(number, size int) Page {
	if number < 1 {
		number = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return Page{Number: number, Size: size}
}

// Offset is the number of rows skipped before this page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// Pagination describes a page of a larger result set.
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// NewPagination computes page metadata for total matching rows.
func NewPagination(p Page, total int) Pagination {
	totalPages := 0
	if p.Size > 0 {
		totalPages = (total + p.Size - 1) / p.Size
	}
	return Pagination{
		Page:       p.Number,
		Limit:      p.Size,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    p.Number < totalPages,
		HasPrev:    p.Number > 1,
	}
}

// PageOf is a paginated list response body.
type PageOf[T any] struct {
	Items      []T        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// NewPageOf builds a list body, never encoding a nil slice.
func NewPageOf[T any](items []T, p Page, total int) PageOf[T] {
	if items == nil {
		items = []T{}
	}
	return PageOf[T]{Items: items, Pagination: NewPagination(p, total)}
}
