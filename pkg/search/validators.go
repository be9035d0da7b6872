package search

// SearchQuery is shared by the id, count and pager endpoints. Attributes use
// the "type:name" form.
type SearchQuery struct {
	Mode           string   `query:"mode" json:"mode,omitempty" default:"modular" validate:"oneof=modular universal"`
	Text           string   `query:"q" json:"q,omitempty" mod:"trim"`
	Attributes     []string `query:"attributes" json:"attributes,omitempty" validate:"dive,attr_filter"`
	Sort           string   `query:"sort" json:"sort,omitempty" default:"none" validate:"oneof=none title download_date size read_date random"`
	Desc           bool     `query:"desc" json:"desc,omitempty"`
	FavouritesOnly bool     `query:"favourites_only" json:"favourites_only,omitempty"`
}

type CreatePagerPayload struct {
	SearchQuery
	PageSize int  `json:"page_size,omitempty" validate:"omitempty,min=1,max=500"`
	LoadAll  bool `json:"load_all,omitempty"`
	// ErrorsOnly ignores the search fields and pages through failed books.
	ErrorsOnly bool `json:"errors_only,omitempty"`
}

type RangeQuery struct {
	Offset int `query:"offset" json:"offset,omitempty" validate:"min=0"`
	Limit  int `query:"limit" json:"limit,omitempty" validate:"omitempty,min=1,max=2000"`
}

type PagerResponse struct {
	ID              string `json:"id"`
	PageSize        int    `json:"page_size"`
	InitialLoadSize int    `json:"initial_load_size"`
	Total           int    `json:"total"`
}

type IDsResponse struct {
	IDs   []int `json:"ids"`
	Total int   `json:"total"`
}

type CountResponse struct {
	Total int `json:"total"`
}

func (sq SearchQuery) toQuery() (Query, error) {
	q := Query{
		Filter: Filter{
			Mode:           sq.Mode,
			Text:           sq.Text,
			FavouritesOnly: sq.FavouritesOnly,
		},
		Sort: sq.Sort,
		Desc: sq.Desc,
	}
	for _, s := range sq.Attributes {
		f, err := ParseAttributeFilter(s)
		if err != nil {
			return Query{}, err
		}
		q.Attributes = append(q.Attributes, f)
	}
	return q, nil
}
