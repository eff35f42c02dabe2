package repository

// Page is one slice of a larger result set
type Page[T any] struct {
	Content       []T `json:"content"`
	TotalElements int `json:"totalElements"`
	PageNumber    int `json:"pageNumber"` // zero-based
	PageSize      int `json:"pageSize"`
}

// NewPage wraps content as page number of size out of total matches
func NewPage[T any](content []T, total, number, size int) Page[T] {
	if content == nil {
		content = []T{}
	}
	return Page[T]{
		Content:       content,
		TotalElements: total,
		PageNumber:    number,
		PageSize:      size,
	}
}

// TotalPages returns the number of pages of PageSize needed for every match
func (p Page[T]) TotalPages() int {
	if p.PageSize <= 0 {
		return 0
	}
	return (p.TotalElements + p.PageSize - 1) / p.PageSize
}

func (p Page[T]) HasNext() bool {
	return p.PageNumber+1 < p.TotalPages()
}

func (p Page[T]) HasPrevious() bool {
	return p.PageNumber > 0
}

func (p Page[T]) IsEmpty() bool {
	return len(p.Content) == 0
}

// NumberOfElements returns the size of this page's content
func (p Page[T]) NumberOfElements() int {
	return len(p.Content)
}
