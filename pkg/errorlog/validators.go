package errorlog

type ListErrorsQuery struct {
	AfterID *int     `query:"after_id" json:"after_id,omitempty" validate:"omitempty,min=0"`
	Types   []string `query:"types" json:"types,omitempty" validate:"dive,error_type"`
}

type RecordErrorPayload struct {
	Type        string  `json:"type" default:"unknown" validate:"error_type"`
	Description string  `json:"description" validate:"max=4000"`
	URL         *string `json:"url,omitempty" validate:"omitempty,max=2000"`
}
