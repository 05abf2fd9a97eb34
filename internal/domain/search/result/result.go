package result

import "github.com/assetgrid/searchsync/internal/domain/document"

// Page is one page of assembled search results.
//
// Total is the number of matching documents known so far. Exhaustive reports
// whether every native match was actually scanned; when false, Total is a
// lower bound (the availability scan stopped once the requested page was
// filled).
type Page struct {
	Items      []*document.Document `json:"items"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"page_size"`
	Total      int                  `json:"total"`
	Exhaustive bool                 `json:"exhaustive"`
}
