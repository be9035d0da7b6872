package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Content struct {
	bun.BaseModel `bun:"table:contents,alias:c"`

	ID           int                 `bun:",pk,nullzero" json:"id"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
	Site         string              `bun:",nullzero" json:"site"`
	URL          string              `bun:",nullzero" json:"url"`
	Title        string              `json:"title"`
	Author       string              `json:"author"`
	Status       string              `bun:",nullzero" json:"status"`
	Favourite    bool                `json:"favourite"`
	Completion   int                 `json:"completion"`
	Size         int64               `json:"size"`
	CoverURL     *string             `json:"cover_url,omitempty"`
	DownloadDate *time.Time          `json:"download_date,omitempty"`
	LastReadAt   *time.Time          `json:"last_read_at,omitempty"`
	Attributes   []*Attribute        `bun:"-" json:"attributes"`
	Images       []*ImageFile        `bun:"rel:has-many,join:id=content_id" json:"images,omitempty"`
	QueueRecord  *QueueRecord        `bun:"rel:has-one,join:id=content_id" json:"queue_record,omitempty"`
}

// AttributeIDs returns the ids of the book's attributes that are persisted.
func (c *Content) AttributeIDs() []int {
	ids := make([]int, 0, len(c.Attributes))
	for _, a := range c.Attributes {
		if a.ID != 0 {
			ids = append(ids, a.ID)
		}
	}
	return ids
}
