package models

import (
	"time"

	"github.com/uptrace/bun"
)

type QueueRecord struct {
	bun.BaseModel `bun:"table:queue_records,alias:q"`

	ContentID  int       `bun:",pk" json:"content_id"`
	CreatedAt  time.Time `json:"created_at"`
	Rank       int       `json:"rank"`
	RetryCount int       `json:"retry_count"`
	Content    *Content  `bun:"rel:belongs-to,join:content_id=id" json:"content,omitempty"`
}
