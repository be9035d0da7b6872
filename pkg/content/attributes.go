package content

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shishobooks/stacks/pkg/errcodes"
	"github.com/shishobooks/stacks/pkg/models"
	"github.com/uptrace/bun"
)

// LoadAttributes fills the Attributes of each book, sorted by type then name.
func LoadAttributes(ctx context.Context, db bun.IDB, contents []*models.Content) error {
	if len(contents) == 0 {
		return nil
	}

	ids := make([]int, 0, len(contents))
	byID := make(map[int]*models.Content, len(contents))
	for _, c := range contents {
		c.Attributes = []*models.Attribute{}
		ids = append(ids, c.ID)
		byID[c.ID] = c
	}

	var links []*models.ContentAttribute
	err := db.NewSelect().
		Model(&links).
		Relation("Attribute").
		Where("ca.content_id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	for _, link := range links {
		if c, ok := byID[link.ContentID]; ok && link.Attribute != nil {
			c.Attributes = append(c.Attributes, link.Attribute)
		}
	}
	for _, c := range contents {
		sortAttributes(c.Attributes)
	}
	return nil
}

func sortAttributes(attrs []*models.Attribute) {
	sort.Slice(attrs, func(i, j int) bool {
		if attrs[i].Type != attrs[j].Type {
			return attrs[i].Type < attrs[j].Type
		}
		return strings.ToLower(attrs[i].Name) < strings.ToLower(attrs[j].Name)
	})
}

// findOrCreateAttribute matches on type and case-insensitive name.
func findOrCreateAttribute(ctx context.Context, tx bun.IDB, attrType, name string) (*models.Attribute, error) {
	attr := &models.Attribute{}
	err := tx.NewSelect().
		Model(attr).
		Where("a.type = ? AND a.name = ? COLLATE NOCASE", attrType, name).
		Scan(ctx)
	if err == nil {
		return attr, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, errors.WithStack(err)
	}

	now := time.Now()
	attr = &models.Attribute{
		CreatedAt: now,
		UpdatedAt: now,
		Type:      attrType,
		Name:      name,
	}
	_, err = tx.NewInsert().Model(attr).Returning("*").Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return attr, nil
}

// replaceAttributes makes the book's links match attrs and moves the usage
// counts of every attribute that gained or lost the book.
func replaceAttributes(ctx context.Context, tx bun.IDB, contentID int, attrs []*models.Attribute) ([]*models.Attribute, error) {
	wanted := map[int]*models.Attribute{}
	for _, a := range attrs {
		if a == nil {
			continue
		}
		name := strings.TrimSpace(a.Name)
		if name == "" {
			return nil, errcodes.ValidationError("Attribute name can't be empty.")
		}
		if a.Type == models.AttributeTypeSource {
			return nil, errcodes.ValidationError("Sources come from the content's site and can't be set as attributes.")
		}
		if !models.IsAttributeType(a.Type) {
			return nil, errcodes.ValidationError("Unknown attribute type " + a.Type + ".")
		}
		resolved, err := findOrCreateAttribute(ctx, tx, a.Type, name)
		if err != nil {
			return nil, err
		}
		wanted[resolved.ID] = resolved
	}

	var current []int
	err := tx.NewSelect().
		Model((*models.ContentAttribute)(nil)).
		Column("ca.attribute_id").
		Where("ca.content_id = ?", contentID).
		Scan(ctx, &current)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var removed []int
	have := map[int]bool{}
	for _, id := range current {
		have[id] = true
		if _, ok := wanted[id]; !ok {
			removed = append(removed, id)
		}
	}
	var added []int
	for id := range wanted {
		if !have[id] {
			added = append(added, id)
		}
	}

	if len(removed) > 0 {
		_, err := tx.NewDelete().
			Model((*models.ContentAttribute)(nil)).
			Where("content_id = ? AND attribute_id IN (?)", contentID, bun.In(removed)).
			Exec(ctx)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if err := adjustAttributeCounts(ctx, tx, removed, -1); err != nil {
			return nil, err
		}
	}
	if len(added) > 0 {
		sort.Ints(added)
		links := make([]*models.ContentAttribute, 0, len(added))
		for _, id := range added {
			links = append(links, &models.ContentAttribute{ContentID: contentID, AttributeID: id})
		}
		_, err := tx.NewInsert().Model(&links).Exec(ctx)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if err := adjustAttributeCounts(ctx, tx, added, 1); err != nil {
			return nil, err
		}
	}

	result := make([]*models.Attribute, 0, len(wanted))
	if len(wanted) > 0 {
		ids := make([]int, 0, len(wanted))
		for id := range wanted {
			ids = append(ids, id)
		}
		err := tx.NewSelect().
			Model(&result).
			Where("a.id IN (?)", bun.In(ids)).
			Scan(ctx)
		if err != nil {
			return nil, errors.WithStack(err)
		}
	}
	sortAttributes(result)
	return result, nil
}

func adjustAttributeCounts(ctx context.Context, tx bun.IDB, ids []int, delta int) error {
	_, err := tx.NewUpdate().
		Model((*models.Attribute)(nil)).
		Set("usage_count = usage_count + ?", delta).
		Set("updated_at = ?", time.Now()).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	return errors.WithStack(err)
}
