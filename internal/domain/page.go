package domain

// Default and maximum page sizes for listings.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// PaginationParams carries page/limit values from the HTTP layer to the store.
// Page is 1-indexed.
type PaginationParams struct {
	Page  int
	Limit int
}

// NewPaginationParams builds PaginationParams from optional query values.
// Missing or non-positive values fall back to page 1 and DefaultPageLimit;
// the limit is capped at MaxPageLimit.
func NewPaginationParams(page, limit *int) PaginationParams {
	p := PaginationParams{Page: 1, Limit: DefaultPageLimit}
	if page != nil && *page >= 1 {
		p.Page = *page
	}
	if limit != nil && *limit >= 1 {
		p.Limit = min(*limit, MaxPageLimit)
	}
	return p
}

// Offset is the number of rows skipped before this page.
func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.Limit
}
