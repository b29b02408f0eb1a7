package pagination

const (
	DefaultLimit = 50
	MaxLimit     = 250
)

// Pagination is offset based; list endpoints page with ?limit=&offset=.
type Pagination struct {
	Limit  int `form:"limit,default=50"`
	Offset int `form:"offset,default=0"`
}

// Normalize clamps the window into the supported range.
func (p Pagination) Normalize() Pagination {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

type PageInfo struct {
	Total   int64 `json:"total"`
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	HasMore bool  `json:"has_more"`
}

func BuildPageInfo(p Pagination, returned int, total int64) PageInfo {
	return PageInfo{
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: int64(p.Offset+returned) < total,
	}
}
