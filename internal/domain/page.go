package domain

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// PageRequest is 1-based offset pagination.
type PageRequest struct {
	Page  int
	Limit int
}

// Normalize applies the default page size and clamps both fields into range.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Page is a generic page of results with the total match count.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

func NewPage[T any](items []T, total int, req PageRequest) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Total: total, Page: req.Page, Limit: req.Limit}
}
