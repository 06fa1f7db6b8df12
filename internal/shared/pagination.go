package shared

import "math"

// Page size bounds for listings.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"count"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes pagination metadata. Page is kept as requested so callers
// can detect an out of range page.
func NewPagination(page, pageSize, total int) Pagination {
	pageSize = ClampPageSize(pageSize)
	totalPages := int(math.Ceil(float64(total) / float64(pageSize)))
	return Pagination{Page: page, PageSize: pageSize, Total: total, TotalPages: totalPages}
}

// ClampPageSize applies the default and the hard cap.
func ClampPageSize(pageSize int) int {
	if pageSize <= 0 {
		return DefaultPageSize
	}
	if pageSize > MaxPageSize {
		return MaxPageSize
	}
	return pageSize
}

// InRange reports whether Page addresses existing rows.
func (p Pagination) InRange() bool {
	return p.Page >= 1 && p.Page <= p.TotalPages
}

// Addressable reports whether Page has a row offset representable as an int.
func (p Pagination) Addressable() bool {
	return p.Page >= 1 && p.PageSize > 0 && p.Page-1 <= math.MaxInt/p.PageSize
}

// Offset returns the row offset of Page. Pages past the addressable range
// saturate at math.MaxInt.
func (p Pagination) Offset() int {
	if p.Page < 1 {
		return 0
	}
	if !p.Addressable() {
		return math.MaxInt
	}
	return (p.Page - 1) * p.PageSize
}
