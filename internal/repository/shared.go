package repository

// DefaultLimit is used when a listing does not ask for a page size.
const DefaultLimit = 1_000_000

// Pagination holds offset/limit parameters for listing entities. A nil Limit leaves the page
// unbounded; a zero Limit selects nothing.
type Pagination struct {
	Offset int
	Limit  *int
}

// PageSize returns the requested limit, or DefaultLimit when none was asked for.
func (p *Pagination) PageSize() int {
	if p.Limit == nil {
		return DefaultLimit
	}
	return max(0, *p.Limit)
}

// Window clamps the page onto a collection of n items and returns the [start, end) bounds.
func (p *Pagination) Window(n int) (int, int) {
	start := min(max(0, p.Offset), n)
	return start, start + min(p.PageSize(), n-start)
}

type FilterOrder struct {
	Filter  string
	OrderBy string
}

func (fo *FilterOrder) GetFilter() string { return fo.Filter }

func (fo *FilterOrder) GetOrderBy() string { return fo.OrderBy }
