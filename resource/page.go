package resource

import (
	"net/url"
	"strconv"
)

// PageMeta describes a single page of a collection.
type PageMeta struct {
	TotalElements int `json:"total_elements"`
	TotalPages    int `json:"total_pages"`
	PerPage       int `json:"per_page"`
	Page          int `json:"page"`
}

// DefaultPageMeta returns the first page with ten elements per page.
func DefaultPageMeta() PageMeta {
	return PageMeta{TotalElements: 0, TotalPages: 1, PerPage: 10, Page: 1}
}

// HasNext reports whether there is a page after the current one.
func (m PageMeta) HasNext() bool {
	return m.Page < m.TotalPages
}

// Next returns meta of the following page.
func (m PageMeta) Next() PageMeta {
	m.Page++
	return m
}

func (m PageMeta) apply(q url.Values) {
	q.Set("page", strconv.Itoa(m.Page))
	q.Set("size", strconv.Itoa(m.PerPage))
}

// Page is a slice of collection elements with metadata.
type Page[T any] struct {
	Data     []T      `json:"data"`
	Metadata PageMeta `json:"metadata"`
}
