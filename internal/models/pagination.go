package models

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageRequest selects one 1-based page of a listing
type PageRequest struct {
	Page     int
	PageSize int
}

// NewPageRequest normalizes caller input: page >= 1, size in [1, MaxPageSize]
func NewPageRequest(page, pageSize int) PageRequest {
	if page < 1 {
		page = 1
	}
	switch {
	case pageSize < 1:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}
	return PageRequest{Page: page, PageSize: pageSize}
}

// Offset is the number of rows skipped before this page
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Window returns the [start, end) slice bounds of this page over n items
func (p PageRequest) Window(n int) (int, int) {
	start := min(p.Offset(), n)
	end := min(start+p.PageSize, n)
	return start, end
}

// Result describes this page within a listing of total items
func (p PageRequest) Result(total int64) PaginationResult {
	pages := int((total + int64(p.PageSize) - 1) / int64(p.PageSize))
	return PaginationResult{
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalCount: total,
		TotalPages: pages,
		HasNext:    p.Page < pages,
	}
}

// PaginationResult holds pagination metadata
type PaginationResult struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalCount int64 `json:"total_count"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}
