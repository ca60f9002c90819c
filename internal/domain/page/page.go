// Package page implements cursor pagination shared by all list endpoints.
package page

// Order controls list direction relative to creation time.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// DefaultLimit applies when a request does not specify one.
const DefaultLimit = 20

// MaxLimit caps a single page.
const MaxLimit = 100

// Params carries cursor pagination inputs. After and Before are exclusive
// cursors on the public ID of a previously returned row.
type Params struct {
	Order  Order
	After  string
	Before string
	Limit  int
}

// Normalize fills defaults and clamps the limit.
func (p Params) Normalize() Params {
	if p.Order != OrderAsc && p.Order != OrderDesc {
		p.Order = OrderDesc
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

// Page is a single page of results.
type Page[T any] struct {
	Data    []T
	FirstID string
	LastID  string
	HasMore bool
}

// FromLookahead builds a Page from rows fetched with limit+1. The extra row,
// when present, only signals that more data exists and is not returned.
func FromLookahead[T any](rows []T, limit int, publicID func(T) string) Page[T] {
	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	p := Page[T]{Data: rows, HasMore: hasMore}
	if len(rows) > 0 {
		p.FirstID = publicID(rows[0])
		p.LastID = publicID(rows[len(rows)-1])
	}
	return p
}
