package domain

import (
	"errors"
	"strings"
	"time"
)

// TimeLayout is the wire format of todo timestamps: ISO-8601 UTC with
// millisecond precision. Values in this layout sort lexicographically in
// chronological order.
const TimeLayout = "2006-01-02T15:04:05.000Z"

const (
	MaxTextLength = 200
	MaxBulkItems  = 100
	DefaultLimit  = 20
	MaxLimit      = 100
)

// ErrNotFound is returned when no todo has the requested id.
var ErrNotFound = errors.New("todo not found")

// Todo is a single tracked text item.
type Todo struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	Done      bool   `json:"done"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Stats summarises the collection.
type Stats struct {
	Total   int `json:"total"`
	Done    int `json:"done"`
	Pending int `json:"pending"`
}

// SortKey selects the field a listing is ordered by.
type SortKey string

const (
	SortByID        SortKey = "id"
	SortByCreatedAt SortKey = "createdAt"
	SortByUpdatedAt SortKey = "updatedAt"
)

// ParseSortKey falls back to SortByID for unrecognised input.
func ParseSortKey(s string) SortKey {
	switch k := SortKey(s); k {
	case SortByID, SortByCreatedAt, SortByUpdatedAt:
		return k
	default:
		return SortByID
	}
}

// SortOrder is the listing direction.
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// ParseSortOrder treats anything other than "desc" as ascending.
func ParseSortOrder(s string) SortOrder {
	if SortOrder(s) == OrderDesc {
		return OrderDesc
	}
	return OrderAsc
}

// ClampLimit bounds a page size to [0, MaxLimit].
func ClampLimit(n int) int {
	if n < 0 {
		return 0
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

// ClampOffset bounds an offset to [0, +inf).
func ClampOffset(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// ListQuery holds the normalised filter, sort and pagination inputs of a
// listing. Done is nil when no completion filter applies.
type ListQuery struct {
	Q      string
	Done   *bool
	Sort   SortKey
	Order  SortOrder
	Limit  int
	Offset int
}

// DefaultListQuery returns the query used when no parameters are supplied.
func DefaultListQuery() ListQuery {
	return ListQuery{Sort: SortByID, Order: OrderAsc, Limit: DefaultLimit}
}

// Matches reports whether t passes the query's filters.
func (q ListQuery) Matches(t Todo) bool {
	if q.Done != nil && t.Done != *q.Done {
		return false
	}
	if q.Q != "" && !strings.Contains(strings.ToLower(t.Text), strings.ToLower(q.Q)) {
		return false
	}
	return true
}

// Less orders a before b by the query's sort key and direction.
func (q ListQuery) Less(a, b Todo) bool {
	var cmp int
	switch q.Sort {
	case SortByCreatedAt:
		cmp = strings.Compare(a.CreatedAt, b.CreatedAt)
	case SortByUpdatedAt:
		cmp = strings.Compare(a.UpdatedAt, b.UpdatedAt)
	default:
		switch {
		case a.ID < b.ID:
			cmp = -1
		case a.ID > b.ID:
			cmp = 1
		}
	}
	if q.Order == OrderDesc {
		cmp = -cmp
	}
	return cmp < 0
}

// PageMeta describes where a page sits in the filtered result set.
type PageMeta struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasNext bool `json:"hasNext"`
	HasPrev bool `json:"hasPrev"`
}

// Page is a bounded slice of a listing.
type Page struct {
	Items []Todo   `json:"items"`
	Meta  PageMeta `json:"meta"`
}

// NewPage slices matched (already filtered and sorted) to the query window.
func NewPage(matched []Todo, limit, offset int) Page {
	total := len(matched)
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	items := make([]Todo, end-start)
	copy(items, matched[start:end])
	return Page{
		Items: items,
		Meta: PageMeta{
			Total:   total,
			Limit:   limit,
			Offset:  offset,
			HasNext: offset < total-limit,
			HasPrev: offset > 0,
		},
	}
}
