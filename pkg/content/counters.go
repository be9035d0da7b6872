package content

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shishobooks/stacks/pkg/models"
	"github.com/uptrace/bun"
)

// adjustStatusCounts applies deltas to the per-status book counters. It must
// run in the transaction that changes the statuses.
func adjustStatusCounts(ctx context.Context, tx bun.IDB, deltas map[string]int) error {
	for status, delta := range deltas {
		if delta == 0 {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO content_status_counts (status, total) VALUES (?, ?)
			ON CONFLICT (status) DO UPDATE SET total = total + excluded.total
		`, status, delta)
		if err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

func countStatuses(ctx context.Context, db bun.IDB, statuses []string) (int, error) {
	var total int
	err := db.NewSelect().
		Model((*models.StatusCount)(nil)).
		ColumnExpr("COALESCE(SUM(csc.total), 0)").
		Where("csc.status IN (?)", bun.In(statuses)).
		Scan(ctx, &total)
	return total, errors.WithStack(err)
}

// TransitionStatus sets the status of the books with the given ids and moves
// the status counters to match.
func TransitionStatus(ctx context.Context, tx bun.IDB, ids []int, to string) error {
	if len(ids) == 0 {
		return nil
	}

	var rows []struct {
		Status string `bun:"status"`
		Total  int    `bun:"total"`
	}
	err := tx.NewSelect().
		Model((*models.Content)(nil)).
		ColumnExpr("c.status AS status, COUNT(*) AS total").
		Where("id IN (?)", bun.In(ids)).
		Where("status != ?", to).
		Group("c.status").
		Scan(ctx, &rows)
	if err != nil {
		return errors.WithStack(err)
	}
	if len(rows) == 0 {
		return nil
	}

	deltas := map[string]int{}
	for _, r := range rows {
		deltas[r.Status] -= r.Total
		deltas[to] += r.Total
	}

	_, err = tx.NewUpdate().
		Model((*models.Content)(nil)).
		Set("status = ?", to).
		Where("id IN (?)", bun.In(ids)).
		Where("status != ?", to).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return adjustStatusCounts(ctx, tx, deltas)
}

// DeleteContents deletes books and everything hanging off them, keeping
// attribute usage counts and status counters exact. It returns the ids that
// existed.
func DeleteContents(ctx context.Context, tx bun.IDB, ids []int) ([]int, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var existing []models.Content
	err := tx.NewSelect().
		Model(&existing).
		Column("c.id", "c.status").
		Where("c.id IN (?)", bun.In(ids)).
		Order("c.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if len(existing) == 0 {
		return nil, nil
	}

	found := make([]int, 0, len(existing))
	deltas := map[string]int{}
	for _, c := range existing {
		found = append(found, c.ID)
		deltas[c.Status]--
	}

	var usage []struct {
		AttributeID int `bun:"attribute_id"`
		Total       int `bun:"total"`
	}
	err = tx.NewSelect().
		Model((*models.ContentAttribute)(nil)).
		ColumnExpr("ca.attribute_id AS attribute_id, COUNT(*) AS total").
		Where("ca.content_id IN (?)", bun.In(found)).
		Group("ca.attribute_id").
		Scan(ctx, &usage)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	for _, u := range usage {
		if err := adjustAttributeCounts(ctx, tx, []int{u.AttributeID}, -u.Total); err != nil {
			return nil, err
		}
	}

	for _, model := range []interface{}{
		(*models.ContentAttribute)(nil),
		(*models.ImageFile)(nil),
		(*models.QueueRecord)(nil),
		(*models.ErrorRecord)(nil),
	} {
		_, err := tx.NewDelete().
			Model(model).
			Where("content_id IN (?)", bun.In(found)).
			Exec(ctx)
		if err != nil {
			return nil, errors.WithStack(err)
		}
	}

	_, err = tx.NewDelete().
		Model((*models.Content)(nil)).
		Where("id IN (?)", bun.In(found)).
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if err := adjustStatusCounts(ctx, tx, deltas); err != nil {
		return nil, err
	}
	return found, nil
}
