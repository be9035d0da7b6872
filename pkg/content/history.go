package content

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shishobooks/stacks/pkg/errcodes"
	"github.com/shishobooks/stacks/pkg/events"
	"github.com/shishobooks/stacks/pkg/models"
	"github.com/uptrace/bun"
)

func (svc *Service) RetrieveSiteHistory(ctx context.Context, site string) (*models.SiteHistory, error) {
	history := &models.SiteHistory{}
	err := svc.store.NewSelect().Model(history).Where("sh.site = ?", site).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Site history")
		}
		return nil, errors.WithStack(err)
	}
	return history, nil
}

// SaveSiteHistory keeps one record per site, holding the last url.
func (svc *Service) SaveSiteHistory(ctx context.Context, site, url string) (*models.SiteHistory, error) {
	site = strings.TrimSpace(site)
	if site == "" {
		return nil, errcodes.ValidationError("Site can't be empty.")
	}

	history := &models.SiteHistory{Site: site, URL: url, UpdatedAt: time.Now()}
	err := svc.store.Write(ctx, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(history).
			On("CONFLICT (site) DO UPDATE").
			Set("url = EXCLUDED.url").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		return errors.WithStack(err)
	})
	if err != nil {
		return nil, err
	}

	svc.events.Publish(events.TopicHistory, events.ActionUpdated)
	return history, nil
}
