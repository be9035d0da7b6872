package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	AttributeTypeSource    = "source"
	AttributeTypeTag       = "tag"
	AttributeTypeAuthor    = "author"
	AttributeTypeLanguage  = "language"
	AttributeTypeCharacter = "character"
	AttributeTypeSeries    = "series"
	AttributeTypeCategory  = "category"
)

// AttributeTypes lists every attribute type. Sources aren't stored as
// attributes; they are derived from the site of each book.
var AttributeTypes = []string{
	AttributeTypeSource,
	AttributeTypeTag,
	AttributeTypeAuthor,
	AttributeTypeLanguage,
	AttributeTypeCharacter,
	AttributeTypeSeries,
	AttributeTypeCategory,
}

func IsAttributeType(t string) bool {
	return contains(AttributeTypes, t)
}

type Attribute struct {
	bun.BaseModel `bun:"table:attributes,alias:a"`

	ID        int       `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Type      string    `bun:",nullzero" json:"type"`
	Name      string    `bun:",nullzero" json:"name"`
	// Count is the number of books referencing this attribute.
	Count int `bun:"usage_count" json:"count"`
	// Matches is the number of books in the current selection that reference
	// this attribute. Only filled by facet queries.
	Matches int `bun:",scanonly" json:"matches"`
}

type ContentAttribute struct {
	bun.BaseModel `bun:"table:content_attributes,alias:ca"`

	ID          int        `bun:",pk,nullzero" json:"id"`
	ContentID   int        `bun:",nullzero" json:"content_id"`
	AttributeID int        `bun:",nullzero" json:"attribute_id"`
	Attribute   *Attribute `bun:"rel:belongs-to,join:attribute_id=id" json:"attribute,omitempty"`
}
