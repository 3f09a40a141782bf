package user

// Pagination represents pagination information for list responses.
type Pagination struct {
	Total      int64 // Total number of matching records
	Page       int64 // Current page number (1-based)
	Limit      int64 // Number of records per page
	TotalPages int64 // Total number of pages
}

// NewPagination creates a new Pagination instance with calculated total pages.
func NewPagination(total, page, limit int64) *Pagination {
	var totalPages int64 = 1
	if limit > 0 {
		totalPages = pageCount(total, limit)
	}

	return &Pagination{
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}
}

// Bounds returns the half-open slice range [start, end) for the page within
// a collection of total elements. Pages past the end yield an empty range and
// pages below 1 read as the first page.
func (p *Pagination) Bounds() (start, end int) {
	if p.Limit <= 0 {
		return 0, int(p.Total)
	}
	page := max(p.Page, 1)
	// Page counts are compared before multiplying so huge pages cannot overflow.
	if page-1 >= pageCount(p.Total, p.Limit) {
		return int(p.Total), int(p.Total)
	}
	first := (page - 1) * p.Limit
	last := p.Total
	if p.Limit < p.Total-first {
		last = first + p.Limit
	}
	return int(first), int(last)
}

// pageCount is ceil(total/limit) without intermediate overflow.
func pageCount(total, limit int64) int64 {
	n := total / limit
	if total%limit != 0 {
		n++
	}
	return n
}
