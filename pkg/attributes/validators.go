package attributes

type FacetQuery struct {
	Text           string   `query:"q" json:"q,omitempty" mod:"trim"`
	Selected       []string `query:"selected" json:"selected,omitempty" validate:"dive,attr_filter"`
	FavouritesOnly bool     `query:"favourites_only" json:"favourites_only,omitempty"`
}

type MasterDataQuery struct {
	FacetQuery
	Types    []string `query:"types" json:"types" validate:"required,min=1,dive,attribute_type"`
	Page     int      `query:"page" json:"page,omitempty" default:"1" validate:"min=1"`
	PageSize int      `query:"page_size" json:"page_size,omitempty" default:"50" validate:"min=1,max=500"`
	Sort     string   `query:"sort" json:"sort,omitempty" default:"name" validate:"oneof=name count"`
}

type MergeAttributesPayload struct {
	SourceID int `json:"source_id" validate:"required,min=1"`
}
