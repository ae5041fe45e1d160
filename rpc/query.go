package rpc

import (
	"time"

	"xdao.co/xchain/model"
)

// Default paging applied to zero-valued Query fields.
const (
	DefaultPageSize = 30
	DefaultPage     = 1
)

// Query selects one page of history. Zero values mean newest first from now
// (or oldest first from the beginning for ASC), DefaultPageSize entries,
// first page and any category.
type Query struct {
	StartTime time.Time
	Direction model.Direction
	PageSize  int
	Page      int
	Category  string
}

// Resolved is a Query with defaults applied, ready to be sent.
type Resolved struct {
	StartMs   uint64
	Direction model.Direction
	PageSize  int
	Page      int
	Category  string
}

// Resolve validates q and fills in defaults. now supplies the start time
// when q.StartTime is zero.
func (q Query) Resolve(now func() time.Time) (Resolved, error) {
	r := Resolved{
		Direction: q.Direction,
		PageSize:  q.PageSize,
		Page:      q.Page,
		Category:  q.Category,
	}
	switch r.Direction {
	case model.Asc, model.Desc:
	case "":
		r.Direction = model.Desc
	default:
		return Resolved{}, model.SerializationError("invalid-query", "direction must be ASC or DESC, got "+string(q.Direction), nil)
	}
	if r.PageSize < 0 || r.Page < 0 {
		return Resolved{}, model.SerializationError("invalid-query", "page and page size must be positive", nil)
	}
	if r.PageSize == 0 {
		r.PageSize = DefaultPageSize
	}
	if r.Page == 0 {
		r.Page = DefaultPage
	}
	start := q.StartTime
	if start.IsZero() {
		if r.Direction == model.Asc {
			return r, nil
		}
		if now == nil {
			now = time.Now
		}
		start = now()
	}
	if ms := start.UnixMilli(); ms > 0 {
		r.StartMs = uint64(ms)
	}
	return r, nil
}
