package shared

// Paging bounds for listing endpoints. The cap keeps a route-sheet export
// from dragging the whole orders table through one response.
const (
	DefaultPerPage = 20
	MaxPerPage     = 200
)

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// NormalizePage clamps user-supplied paging inputs to the allowed bounds.
func NormalizePage(page, perPage int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 || perPage > MaxPerPage {
		perPage = DefaultPerPage
	}
	return page, perPage
}

// PageOffset converts a normalized page to a query offset.
func PageOffset(page, perPage int) int {
	return (page - 1) * perPage
}

// NewPagination computes the page envelope for total matching rows.
func NewPagination(page, perPage, total int) Pagination {
	page, perPage = NormalizePage(page, perPage)
	totalPages := (total + perPage - 1) / perPage
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}
