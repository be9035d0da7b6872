package search

import (
	"strings"

	"github.com/shishobooks/stacks/pkg/errcodes"
	"github.com/shishobooks/stacks/pkg/models"
	"github.com/uptrace/bun"
)

const (
	ModeModular   = "modular"
	ModeUniversal = "universal"
)

const (
	SortNone         = "none"
	SortTitle        = "title"
	SortDownloadDate = "download_date"
	SortSize         = "size"
	SortReadDate     = "read_date"
	SortRandom       = "random"
)

var (
	Modes = []string{ModeModular, ModeUniversal}
	Sorts = []string{SortNone, SortTitle, SortDownloadDate, SortSize, SortReadDate, SortRandom}
)

// AttributeFilter selects books carrying the attribute with this type and
// name. Names compare case-insensitively.
type AttributeFilter struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// ParseAttributeFilter reads the "type:name" form used in query strings.
func ParseAttributeFilter(s string) (AttributeFilter, error) {
	attrType, name, ok := strings.Cut(s, ":")
	name = strings.TrimSpace(name)
	if !ok || !models.IsAttributeType(attrType) || name == "" {
		return AttributeFilter{}, errcodes.ValidationError("Attribute filter " + s + " must look like type:name.")
	}
	return AttributeFilter{Type: attrType, Name: name}, nil
}

// Filter describes which library books a query matches.
//
// In modular mode Text matches titles and the attributes are ANDed across
// types and ORed within a type. In universal mode Text matches the title,
// author, site or any attribute name, and Attributes are ignored.
type Filter struct {
	Mode           string
	Text           string
	Attributes     []AttributeFilter
	FavouritesOnly bool

	// Statuses overrides the library statuses.
	Statuses []string
}

// Query is a Filter plus an ordering.
type Query struct {
	Filter
	Sort string
	Desc bool
}

func (f Filter) validate() error {
	if f.Mode != "" && !oneOf(Modes, f.Mode) {
		return errcodes.ValidationError("Unknown search mode " + f.Mode + ".")
	}
	for _, a := range f.Attributes {
		if !models.IsAttributeType(a.Type) {
			return errcodes.ValidationError("Unknown attribute type " + a.Type + ".")
		}
		if strings.TrimSpace(a.Name) == "" {
			return errcodes.ValidationError("Attribute filters need a name.")
		}
	}
	for _, s := range f.Statuses {
		if !oneOf(models.ContentStatuses, s) {
			return errcodes.ValidationError("Unknown content status " + s + ".")
		}
	}
	return nil
}

func (q Query) validate() error {
	if q.Sort != "" && !oneOf(Sorts, q.Sort) {
		return errcodes.ValidationError("Unknown sort field " + q.Sort + ".")
	}
	return q.Filter.validate()
}

// Apply adds the filter's conditions to a select over contents aliased c.
func (f Filter) Apply(q *bun.SelectQuery) *bun.SelectQuery {
	statuses := f.Statuses
	if len(statuses) == 0 {
		statuses = models.LibraryStatuses
	}
	q = q.Where("c.status IN (?)", bun.In(statuses))
	if f.FavouritesOnly {
		q = q.Where("c.favourite = ?", true)
	}

	text := NormalizeText(f.Text)
	if f.Mode == ModeUniversal {
		if text == "" {
			return q
		}
		pattern := ContainsPattern(text)
		return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("LOWER(c.title) LIKE ? ESCAPE '"+likeEscape+"'", pattern).
				WhereOr("LOWER(c.author) LIKE ? ESCAPE '"+likeEscape+"'", pattern).
				WhereOr("LOWER(c.site) LIKE ? ESCAPE '"+likeEscape+"'", pattern).
				WhereOr(`c.id IN (
					SELECT ca.content_id FROM content_attributes AS ca
					JOIN attributes AS a ON a.id = ca.attribute_id
					WHERE LOWER(a.name) LIKE ? ESCAPE '`+likeEscape+`')`, pattern)
		})
	}

	if text != "" {
		q = q.Where("LOWER(c.title) LIKE ? ESCAPE '"+likeEscape+"'", ContainsPattern(text))
	}
	for _, group := range groupByType(f.Attributes) {
		if group.attrType == models.AttributeTypeSource {
			q = q.Where("LOWER(c.site) IN (?)", bun.In(group.names))
			continue
		}
		q = q.Where(`c.id IN (
			SELECT ca.content_id FROM content_attributes AS ca
			JOIN attributes AS a ON a.id = ca.attribute_id
			WHERE a.type = ? AND LOWER(a.name) IN (?))`, group.attrType, bun.In(group.names))
	}
	return q
}

type attributeGroup struct {
	attrType string
	names    []string
}

// groupByType keeps the first-seen order of types so generated SQL is stable.
func groupByType(filters []AttributeFilter) []attributeGroup {
	var groups []attributeGroup
	index := map[string]int{}
	for _, f := range filters {
		name := strings.ToLower(strings.TrimSpace(f.Name))
		i, ok := index[f.Type]
		if !ok {
			i = len(groups)
			index[f.Type] = i
			groups = append(groups, attributeGroup{attrType: f.Type})
		}
		groups[i].names = append(groups[i].names, name)
	}
	return groups
}

// applySort orders by the sort field with the id as tiebreaker so pages never
// overlap. Random order is handled by the caller.
func applySort(q *bun.SelectQuery, sort string, desc bool) *bun.SelectQuery {
	dir := " ASC"
	if desc {
		dir = " DESC"
	}
	switch sort {
	case SortTitle:
		q = q.OrderExpr("c.title COLLATE NOCASE" + dir)
	case SortDownloadDate:
		q = q.OrderExpr("c.download_date" + dir)
	case SortSize:
		q = q.OrderExpr("c.size" + dir)
	case SortReadDate:
		q = q.OrderExpr("c.last_read_at" + dir)
	}
	return q.OrderExpr("c.id ASC")
}

func oneOf(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
