package model

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// CodeFilter narrows a code listing. Zero values mean "any".
type CodeFilter struct {
	GameID   string
	Status   CodeStatus
	BatchTag string
	Keyword  string
}

type PageRequest struct {
	Page     int
	PageSize int
}

// Normalize clamps page and size to sane bounds.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

func (p PageRequest) Offset() int { return (p.Page - 1) * p.PageSize }

type CodePage struct {
	Items      []*ActivationCode `json:"items"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalPages int               `json:"total_pages"`
}

func NewCodePage(items []*ActivationCode, total int, p PageRequest) *CodePage {
	pages := 0
	if p.PageSize > 0 {
		pages = (total + p.PageSize - 1) / p.PageSize
	}
	if items == nil {
		items = []*ActivationCode{}
	}
	return &CodePage{Items: items, Total: total, Page: p.Page, PageSize: p.PageSize, TotalPages: pages}
}
