package models

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// Page is a zero-based page request.
type Page struct {
	Number int
	Size   int
}

func (p Page) Normalize() Page {
	if p.Number < 0 {
		p.Number = 0
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

func (p Page) Offset() int {
	return p.Number * p.Size
}

type PageResult[T any] struct {
	Items  []T `json:"items"`
	Number int `json:"page"`
	Size   int `json:"size"`
	Total  int `json:"total"`
}

func (r PageResult[T]) TotalPages() int {
	if r.Size <= 0 {
		return 0
	}
	return (r.Total + r.Size - 1) / r.Size
}
